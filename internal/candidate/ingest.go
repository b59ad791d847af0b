package candidate

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattjoyce/hireflow/internal/audit"
	"github.com/mattjoyce/hireflow/internal/extract"
	"github.com/mattjoyce/hireflow/internal/notify"
	"github.com/mattjoyce/hireflow/internal/recruit"
	"github.com/mattjoyce/hireflow/internal/stage"
	"github.com/mattjoyce/hireflow/internal/store"
	"github.com/mattjoyce/hireflow/internal/tally"
)

// Event types recorded in the idempotency ledger.
const (
	EventApplication           = "application"
	EventGeneralCompetency     = "general-competencies"
	EventSpecializedCompetency = "specialized-competencies"
	EventAgreement             = "agreement"
)

// IngestApplication creates or refreshes the person and opens an application
// at APPLICATION. A person who already passed general competencies is moved
// straight on to SPECIALIZED_COMPETENCIES; everyone else is invited to take
// the GC assessment.
func (s *Service) IngestApplication(ctx context.Context, ev tally.Event) (*Result, error) {
	rec, warnings, err := extract.Application(ev)
	s.logDrift(ctx, ev.Data.SubmissionID, warnings)
	if err != nil {
		return nil, err
	}

	return s.ingest(ctx, rec.SubmissionID, EventApplication, func(tx *store.Tx, u *unit) (*Result, error) {
		p, err := s.upsertApplicant(ctx, tx, rec)
		if err != nil {
			return nil, err
		}

		app := &recruit.Application{
			PersonID:        p.ID,
			Position:        rec.Position,
			EducationLevel:  rec.EducationLevel,
			HasResume:       rec.HasResume,
			HasAcademicBg:   rec.HasAcademicBg,
			HasVideoIntro:   rec.HasVideoIntro,
			HasPreviousWork: rec.HasPreviousWork,
			HasOtherFile:    rec.HasOtherFile,
			ResumeURL:       rec.ResumeURL,
			AcademicBgURL:   rec.AcademicBgURL,
			VideoIntroURL:   rec.VideoIntroURL,
			PreviousWorkURL: rec.PreviousWorkURL,
			OtherFileURL:    rec.OtherFileURL,
			SubmissionID:    rec.SubmissionID,
			RespondentID:    rec.RespondentID,
			ResponseID:      rec.ResponseID,
		}
		if err := tx.CreateApplication(ctx, app); err != nil {
			return nil, err
		}
		if err := s.record(ctx, tx, "Created application: "+app.Position, recruit.ActionCreate,
			map[string]any{"entity": "application", "subject": app.Position, "submission_id": rec.SubmissionID},
			audit.Refs{PersonID: p.ID, ApplicationID: app.ID}); err != nil {
			return nil, err
		}

		if p.HasPassedGeneralCompetencies() {
			in := stage.Input{Event: stage.EventPriorGCPassed, Facts: stage.Facts{PersonPassedGC: true}}
			if _, err := s.transition(ctx, tx, u, p, app, in, ""); err != nil {
				return nil, err
			}
		} else {
			u.queue(notify.TemplateGCInvitation, p, app)
		}

		res := &Result{}
		res.echo(app)
		return res, nil
	})
}

// upsertApplicant finds the person by email, refreshing any contact details
// the new application supplies, or creates them.
func (s *Service) upsertApplicant(ctx context.Context, tx *store.Tx, rec extract.ApplicationRecord) (*recruit.Person, error) {
	p, err := tx.GetPersonByEmail(ctx, rec.Email)
	if errors.Is(err, store.ErrNotFound) {
		p = &recruit.Person{
			Email:        rec.Email,
			FirstName:    rec.FirstName,
			LastName:     rec.LastName,
			Phone:        rec.Phone,
			Country:      rec.Country,
			City:         rec.City,
			PortfolioURL: rec.PortfolioURL,
		}
		if err := tx.CreatePerson(ctx, p); err != nil {
			return nil, err
		}
		err = s.record(ctx, tx, "Created person: "+p.FirstName+" "+p.LastName, recruit.ActionCreate,
			map[string]any{"entity": "person", "subject": p.FirstName + " " + p.LastName},
			audit.Refs{PersonID: p.ID})
		return p, err
	}
	if err != nil {
		return nil, err
	}

	changed := false
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&p.FirstName, rec.FirstName},
		{&p.LastName, rec.LastName},
		{&p.Phone, rec.Phone},
		{&p.Country, rec.Country},
		{&p.City, rec.City},
		{&p.PortfolioURL, rec.PortfolioURL},
	} {
		if f.src != "" && *f.dst != f.src {
			*f.dst = f.src
			changed = true
		}
	}
	if !changed {
		return p, nil
	}
	if err := tx.UpdatePerson(ctx, p); err != nil {
		return nil, err
	}
	err = s.record(ctx, tx, "Updated person contact details", recruit.ActionUpdate,
		map[string]any{"entity": "person", "field": "contact details"},
		audit.Refs{PersonID: p.ID})
	return p, err
}

// IngestGeneralCompetency grades a GC attempt against the configured
// threshold and moves the person's applications that are still waiting on
// it. Applications past GENERAL_COMPETENCIES, or no longer ACTIVE, are left
// alone.
func (s *Service) IngestGeneralCompetency(ctx context.Context, ev tally.Event) (*Result, error) {
	rec, warnings, err := extract.GeneralCompetency(ev)
	s.logDrift(ctx, ev.Data.SubmissionID, warnings)
	if err != nil {
		return nil, err
	}

	return s.ingest(ctx, rec.SubmissionID, EventGeneralCompetency, func(tx *store.Tx, u *unit) (*Result, error) {
		p, err := s.resolveAssessee(ctx, tx, rec)
		if err != nil {
			return nil, err
		}

		threshold := s.threshold
		score := rec.Score
		passed := score >= threshold
		completedAt := rec.CompletedAt
		if completedAt == nil {
			now := s.now().UTC()
			completedAt = &now
		}

		a := &recruit.Assessment{
			Kind:         recruit.AssessmentGeneral,
			PersonID:     p.ID,
			Score:        &score,
			Threshold:    &threshold,
			Passed:       &passed,
			SubScores:    rec.SubScores,
			RawPayload:   rec.RawPayload,
			SubmissionID: rec.SubmissionID,
			CompletedAt:  completedAt,
		}
		if err := tx.CreateAssessment(ctx, a); err != nil {
			return nil, err
		}
		if err := s.record(ctx, tx, "Created assessment: general competencies", recruit.ActionCreate,
			map[string]any{"entity": "assessment", "subject": "general competencies", "score": score, "passed": passed},
			audit.Refs{PersonID: p.ID}); err != nil {
			return nil, err
		}

		p.GeneralCompetenciesCompleted = true
		p.GeneralCompetenciesScore = &score
		if passed && p.GeneralCompetenciesPassedAt == nil {
			p.GeneralCompetenciesPassedAt = completedAt
		}
		if err := tx.UpdatePerson(ctx, p); err != nil {
			return nil, err
		}
		if err := s.record(ctx, tx, "Updated person general competencies score", recruit.ActionUpdate,
			map[string]any{"entity": "person", "field": "general competencies score", "score": score},
			audit.Refs{PersonID: p.ID}); err != nil {
			return nil, err
		}

		event := stage.EventGCFailed
		if passed {
			event = stage.EventGCPassed
		}
		apps, err := tx.ListApplicationsByPerson(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		res := &Result{PersonID: p.ID, AssessmentID: a.ID, Score: &score, Passed: &passed}
		for _, app := range apps {
			if awaitsGeneralCompetencies(app) {
				if _, err := s.transition(ctx, tx, u, p, app, stage.Input{Event: event}, ""); err != nil {
					return nil, err
				}
			}
			res.Applications = append(res.Applications, ApplicationState{
				ApplicationID: app.ID,
				CurrentStage:  app.CurrentStage,
				Status:        app.Status,
			})
		}
		return res, nil
	})
}

func awaitsGeneralCompetencies(app *recruit.Application) bool {
	if app.Status != recruit.StatusActive {
		return false
	}
	return app.CurrentStage == recruit.StageApplication || app.CurrentStage == recruit.StageGeneralCompetencies
}

// resolveAssessee finds the GC taker by hidden person id, then by email. An
// unknown email creates the person.
func (s *Service) resolveAssessee(ctx context.Context, tx *store.Tx, rec extract.GeneralCompetencyRecord) (*recruit.Person, error) {
	if rec.PersonID != "" {
		p, err := tx.GetPerson(ctx, rec.PersonID)
		if err == nil || !errors.Is(err, store.ErrNotFound) || rec.Email == "" {
			return p, err
		}
	}

	p, err := tx.GetPersonByEmail(ctx, rec.Email)
	if !errors.Is(err, store.ErrNotFound) {
		return p, err
	}
	p = &recruit.Person{Email: rec.Email}
	if err := tx.CreatePerson(ctx, p); err != nil {
		return nil, err
	}
	err = s.record(ctx, tx, "Created person: "+p.Email, recruit.ActionCreate,
		map[string]any{"entity": "person", "subject": "general competencies taker"},
		audit.Refs{PersonID: p.ID})
	return p, err
}

// IngestSpecializedCompetency stores an SC submission for review. The
// application comes from the hidden application id when the form has one,
// otherwise from the respondent that submitted the original application.
func (s *Service) IngestSpecializedCompetency(ctx context.Context, ev tally.Event) (*Result, error) {
	rec, warnings, err := extract.SpecializedCompetency(ev)
	s.logDrift(ctx, ev.Data.SubmissionID, warnings)
	if err != nil {
		return nil, err
	}

	return s.ingest(ctx, rec.SubmissionID, EventSpecializedCompetency, func(tx *store.Tx, u *unit) (*Result, error) {
		var (
			app *recruit.Application
			err error
		)
		if rec.ApplicationID != "" {
			app, err = tx.GetApplication(ctx, rec.ApplicationID)
		} else {
			app, err = tx.FindApplicationByRespondent(ctx, rec.RespondentID)
		}
		if err != nil {
			return nil, err
		}

		completedAt := rec.CompletedAt
		if completedAt == nil {
			now := s.now().UTC()
			completedAt = &now
		}
		a := &recruit.Assessment{
			Kind:          recruit.AssessmentSpecialized,
			PersonID:      app.PersonID,
			ApplicationID: app.ID,
			Competency:    rec.Competency,
			Score:         rec.Score,
			Artifacts:     rec.Artifacts,
			RawPayload:    rec.RawPayload,
			SubmissionID:  rec.SubmissionID,
			CompletedAt:   completedAt,
		}
		if err := tx.CreateAssessment(ctx, a); err != nil {
			return nil, err
		}
		if err := s.record(ctx, tx, "Created assessment: "+a.Competency, recruit.ActionCreate,
			map[string]any{"entity": "specialized assessment", "subject": a.Competency, "artifacts": len(a.Artifacts)},
			audit.Refs{PersonID: app.PersonID, ApplicationID: app.ID}); err != nil {
			return nil, err
		}

		res := &Result{AssessmentID: a.ID, Score: a.Score}
		res.echo(app)
		return res, nil
	})
}

// IngestAgreement stores the signed agreement and completes the pipeline.
func (s *Service) IngestAgreement(ctx context.Context, ev tally.Event) (*Result, error) {
	rec, warnings, err := extract.Agreement(ev)
	s.logDrift(ctx, ev.Data.SubmissionID, warnings)
	if err != nil {
		return nil, err
	}

	return s.ingest(ctx, rec.SubmissionID, EventAgreement, func(tx *store.Tx, u *unit) (*Result, error) {
		app, err := tx.GetApplication(ctx, rec.ApplicationID)
		if err != nil {
			return nil, err
		}
		p, err := tx.GetPerson(ctx, app.PersonID)
		if err != nil {
			return nil, err
		}

		if _, err := s.transition(ctx, tx, u, p, app, stage.Input{Event: stage.EventAgreementSigned}, ""); err != nil {
			return nil, err
		}

		details := &recruit.AgreementDetails{
			SubmissionID:      rec.SubmissionID,
			LegalFirstName:    rec.LegalFirstName,
			LegalLastName:     rec.LegalLastName,
			PreferredName:     rec.PreferredName,
			ProfilePictureURL: rec.ProfilePictureURL,
			Biography:         rec.Biography,
			DateOfBirth:       rec.DateOfBirth,
			Country:           rec.Country,
			PrivacyAccepted:   rec.PrivacyAccepted,
			SignatureURL:      rec.SignatureURL,
			EntityRepresented: rec.EntityRepresented,
			ServiceHours:      rec.ServiceHours,
			SignedAt:          s.now().UTC(),
		}
		if err := tx.SaveAgreement(ctx, app.ID, details); err != nil {
			return nil, fmt.Errorf("store agreement: %w", err)
		}
		if err := s.record(ctx, tx, "Updated application agreement", recruit.ActionUpdate,
			map[string]any{"entity": "application", "field": "agreement", "privacy_accepted": rec.PrivacyAccepted},
			audit.Refs{PersonID: app.PersonID, ApplicationID: app.ID}); err != nil {
			return nil, err
		}

		res := &Result{}
		res.echo(app)
		return res, nil
	})
}
