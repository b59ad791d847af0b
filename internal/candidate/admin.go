package candidate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mattjoyce/hireflow/internal/audit"
	"github.com/mattjoyce/hireflow/internal/notify"
	"github.com/mattjoyce/hireflow/internal/recruit"
	"github.com/mattjoyce/hireflow/internal/stage"
	"github.com/mattjoyce/hireflow/internal/store"
)

// ReviewAssessment records a reviewer's pass/fail on a submitted
// specialized competencies assessment. GC attempts are graded on arrival and
// cannot be reviewed.
func (s *Service) ReviewAssessment(ctx context.Context, assessmentID string, passed bool, reviewer string) (*recruit.Assessment, error) {
	var a *recruit.Assessment
	err := s.atomically(ctx, func(tx *store.Tx, u *unit) error {
		var err error
		if a, err = tx.GetAssessment(ctx, assessmentID); err != nil {
			return err
		}
		switch {
		case a.Kind != recruit.AssessmentSpecialized:
			return invariant("assessment %s is graded automatically", a.ID)
		case a.CompletedAt == nil:
			return invariant("assessment %s was never submitted", a.ID)
		case a.Passed != nil:
			return invariant("assessment %s was already reviewed", a.ID)
		}

		at := s.now().UTC()
		if err := tx.ReviewAssessment(ctx, a.ID, passed, reviewer, at); err != nil {
			return err
		}
		a.Passed, a.ReviewedBy, a.ReviewedAt = &passed, reviewer, &at

		return s.record(ctx, tx, "Updated assessment review", recruit.ActionUpdate,
			map[string]any{"entity": "assessment", "field": "review", "passed": passed, "competency": a.Competency},
			audit.Refs{PersonID: a.PersonID, ApplicationID: a.ApplicationID, ActorID: reviewer})
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// AdvanceToInterview moves an application from SPECIALIZED_COMPETENCIES to
// INTERVIEW. At least one specialized assessment must have passed review.
func (s *Service) AdvanceToInterview(ctx context.Context, applicationID, actor string) (*Result, error) {
	res := &Result{}
	err := s.atomically(ctx, func(tx *store.Tx, u *unit) error {
		app, p, err := loadApplication(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		assessments, err := tx.ListApplicationAssessments(ctx, app.ID)
		if err != nil {
			return err
		}
		var facts stage.Facts
		for _, a := range assessments {
			switch {
			case a.Passed != nil && *a.Passed:
				facts.PassedSpecialized++
			case a.AwaitingReview():
				facts.PendingSpecialized++
			}
		}

		if _, err := s.transition(ctx, tx, u, p, app, stage.Input{Event: stage.EventAdvanceToInterview, Facts: facts}, actor); err != nil {
			return err
		}
		res.echo(app)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// InterviewRequest carries the scheduling fields of an interview.
type InterviewRequest struct {
	InterviewerID  string     `json:"interviewerId"`
	SchedulingLink string     `json:"schedulingLink"`
	ScheduledAt    *time.Time `json:"scheduledAt,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// ScheduleInterview books an interview for an application at INTERVIEW and
// sends the invitation. If an interview is still open it is rescheduled
// instead of adding another.
func (s *Service) ScheduleInterview(ctx context.Context, applicationID string, req InterviewRequest, actor string) (*recruit.Interview, error) {
	if strings.TrimSpace(req.SchedulingLink) == "" && req.ScheduledAt == nil {
		return nil, invariant("interview needs a scheduling link or a time")
	}

	var iv *recruit.Interview
	err := s.atomically(ctx, func(tx *store.Tx, u *unit) error {
		app, p, err := loadApplication(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if app.CurrentStage != recruit.StageInterview || app.Status != recruit.StatusActive {
			return invariant("application %s is %s/%s, interviews need INTERVIEW/ACTIVE", app.ID, app.CurrentStage, app.Status)
		}

		now := s.now().UTC()
		iv, err = tx.LatestOpenInterview(ctx, app.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			iv = &recruit.Interview{
				ApplicationID:    app.ID,
				InterviewerID:    req.InterviewerID,
				SchedulingLink:   req.SchedulingLink,
				ScheduledAt:      req.ScheduledAt,
				Notes:            req.Notes,
				InvitationSentAt: &now,
			}
			if err := tx.CreateInterview(ctx, iv); err != nil {
				return err
			}
			err = s.record(ctx, tx, "Created interview", recruit.ActionCreate,
				map[string]any{"entity": "interview", "interview_id": iv.ID},
				audit.Refs{PersonID: app.PersonID, ApplicationID: app.ID, ActorID: actor})
		case err != nil:
			return err
		default:
			if req.InterviewerID != "" {
				iv.InterviewerID = req.InterviewerID
			}
			if req.SchedulingLink != "" {
				iv.SchedulingLink = req.SchedulingLink
			}
			if req.Notes != "" {
				iv.Notes = req.Notes
			}
			iv.ScheduledAt = req.ScheduledAt
			iv.InvitationSentAt = &now
			if err := tx.UpdateInterview(ctx, iv); err != nil {
				return err
			}
			err = s.record(ctx, tx, "Updated interview schedule", recruit.ActionUpdate,
				map[string]any{"entity": "interview", "field": "schedule", "interview_id": iv.ID},
				audit.Refs{PersonID: app.PersonID, ApplicationID: app.ID, ActorID: actor})
		}
		if err != nil {
			return err
		}

		u.queue(notify.TemplateInterviewInvitation, p, app)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return iv, nil
}

// CompleteInterview records the interviewer's outcome. It does not decide
// the application; that is a separate human decision.
func (s *Service) CompleteInterview(ctx context.Context, interviewID string, outcome recruit.InterviewOutcome, notes, actor string) (*recruit.Interview, error) {
	if outcome != recruit.OutcomeAccept && outcome != recruit.OutcomeReject {
		return nil, invariant("interview outcome must be ACCEPT or REJECT, got %q", outcome)
	}

	var iv *recruit.Interview
	err := s.atomically(ctx, func(tx *store.Tx, u *unit) error {
		var err error
		if iv, err = tx.GetInterview(ctx, interviewID); err != nil {
			return err
		}
		if iv.CompletedAt != nil {
			return invariant("interview %s is already completed", iv.ID)
		}
		app, p, err := loadApplication(ctx, tx, iv.ApplicationID)
		if err != nil {
			return err
		}
		if _, err := s.transition(ctx, tx, u, p, app, stage.Input{Event: stage.EventInterviewCompleted}, actor); err != nil {
			return err
		}

		now := s.now().UTC()
		iv.CompletedAt = &now
		iv.Outcome = outcome
		if notes != "" {
			iv.Notes = notes
		}
		if err := tx.UpdateInterview(ctx, iv); err != nil {
			return err
		}
		return s.record(ctx, tx, "Updated interview outcome", recruit.ActionUpdate,
			map[string]any{"entity": "interview", "field": "outcome", "outcome": string(outcome), "interview_id": iv.ID},
			audit.Refs{PersonID: app.PersonID, ApplicationID: app.ID, ActorID: actor})
	})
	if err != nil {
		return nil, err
	}
	return iv, nil
}

// DecisionRequest is a human accept/reject.
type DecisionRequest struct {
	Kind   recruit.DecisionKind `json:"kind"`
	Reason string               `json:"reason,omitempty"`
	Notes  string               `json:"notes,omitempty"`
}

// Decide accepts or rejects an application. Accepting moves it to
// AGREEMENT and sends the offer letter; rejecting needs a reason and sends
// the rejection email. An application takes one decision: once it leaves
// ACTIVE the engine refuses another.
func (s *Service) Decide(ctx context.Context, applicationID string, req DecisionRequest, actor string) (*Result, error) {
	if !req.Kind.Valid() {
		return nil, invariant("decision must be ACCEPT or REJECT, got %q", req.Kind)
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Kind == recruit.DecisionReject && req.Reason == "" {
		return nil, invariant("a rejection needs a reason")
	}
	if strings.HasPrefix(req.Notes, recruit.OfferWithdrawnMarker) {
		return nil, invariant("notes must not start with %s", recruit.OfferWithdrawnMarker)
	}

	event := stage.EventAccept
	if req.Kind == recruit.DecisionReject {
		event = stage.EventReject
	}
	return s.decide(ctx, applicationID, event, &recruit.Decision{
		Kind:   req.Kind,
		Reason: req.Reason,
		Notes:  req.Notes,
	}, actor)
}

// WithdrawOffer rescinds an accepted offer before the agreement is signed.
// It is stored as a REJECT decision whose notes carry the withdrawal marker.
func (s *Service) WithdrawOffer(ctx context.Context, applicationID, reason, actor string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "offer withdrawn"
	}
	return s.decide(ctx, applicationID, stage.EventOfferWithdrawn, &recruit.Decision{
		Kind:   recruit.DecisionReject,
		Reason: reason,
		Notes:  recruit.OfferWithdrawnMarker + " " + reason,
	}, actor)
}

func (s *Service) decide(ctx context.Context, applicationID string, event stage.Event, d *recruit.Decision, actor string) (*Result, error) {
	res := &Result{}
	err := s.atomically(ctx, func(tx *store.Tx, u *unit) error {
		app, p, err := loadApplication(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if _, err := s.transition(ctx, tx, u, p, app, stage.Input{Event: event, Reason: d.Reason}, actor); err != nil {
			return err
		}

		d.ApplicationID = app.ID
		d.DecidedBy = actor
		if err := tx.CreateDecision(ctx, d); err != nil {
			return err
		}
		subject := strings.ToLower(string(d.Kind))
		if d.IsOfferWithdrawal() {
			subject = "offer withdrawal"
		}
		if err := s.record(ctx, tx, "Created decision: "+subject, recruit.ActionCreate,
			map[string]any{"entity": "decision", "subject": subject, "decision_id": d.ID},
			audit.Refs{PersonID: app.PersonID, ApplicationID: app.ID, ActorID: actor}); err != nil {
			return err
		}

		res.echo(app)
		res.DecisionID = d.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Withdraw records that the candidate pulled out.
func (s *Service) Withdraw(ctx context.Context, applicationID, reason, actor string) (*Result, error) {
	res := &Result{}
	err := s.atomically(ctx, func(tx *store.Tx, u *unit) error {
		app, p, err := loadApplication(ctx, tx, applicationID)
		if err != nil {
			return err
		}
		if _, err := s.transition(ctx, tx, u, p, app, stage.Input{Event: stage.EventWithdraw, Reason: strings.TrimSpace(reason)}, actor); err != nil {
			return err
		}
		res.echo(app)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// HistoryEntry is one humanized line of an application's audit trail.
type HistoryEntry struct {
	ID         string             `json:"id"`
	At         time.Time          `json:"at"`
	ActionType recruit.ActionType `json:"actionType"`
	Summary    string             `json:"summary"`
	ActorID    string             `json:"actorId,omitempty"`
}

// History returns an application's audit trail, oldest first.
func (s *Service) History(ctx context.Context, applicationID string) ([]HistoryEntry, error) {
	var entries []recruit.AuditEntry
	err := s.store.Atomically(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetApplication(ctx, applicationID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListAudit(ctx, store.AuditFilter{ApplicationID: applicationID})
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:         e.ID,
			At:         e.CreatedAt,
			ActionType: e.ActionType,
			Summary:    audit.Humanize(e),
			ActorID:    e.ActorID,
		})
	}
	return out, nil
}

// StageCounts returns how many applications sit in each stage and status.
func (s *Service) StageCounts(ctx context.Context) ([]store.StageCount, error) {
	var counts []store.StageCount
	err := s.store.Atomically(ctx, func(tx *store.Tx) error {
		var err error
		counts, err = tx.CountApplications(ctx)
		return err
	})
	return counts, err
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func loadApplication(ctx context.Context, tx *store.Tx, id string) (*recruit.Application, *recruit.Person, error) {
	app, err := tx.GetApplication(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	p, err := tx.GetPerson(ctx, app.PersonID)
	if err != nil {
		return nil, nil, err
	}
	return app, p, nil
}
