// Package inspect renders everything recorded about one application.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/hireflow/internal/audit"
	"github.com/mattjoyce/hireflow/internal/recruit"
	"github.com/mattjoyce/hireflow/internal/store"
)

// Report is the structured JSON representation of an application report.
type Report struct {
	ApplicationID string         `json:"application_id"`
	Position      string         `json:"position"`
	Stage         recruit.Stage  `json:"stage"`
	Status        recruit.Status `json:"status"`
	Person        Person         `json:"person"`
	Assessments   []Assessment   `json:"assessments"`
	Interviews    []Interview    `json:"interviews"`
	Decisions     []Decision     `json:"decisions"`
	History       []Event        `json:"history"`
}

type Person struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	GCScore   *float64 `json:"gc_score,omitempty"`
	GCPassed  bool     `json:"gc_passed"`
	Location  string   `json:"location,omitempty"`
}

type Assessment struct {
	ID         string                 `json:"id"`
	Kind       recruit.AssessmentKind `json:"kind"`
	Competency string                 `json:"competency,omitempty"`
	Score      *float64               `json:"score,omitempty"`
	Threshold  *float64               `json:"threshold,omitempty"`
	Verdict    string                 `json:"verdict"`
	ReviewedBy string                 `json:"reviewed_by,omitempty"`
	Artifacts  []string               `json:"artifacts,omitempty"`
}

type Interview struct {
	ID             string                   `json:"id"`
	InterviewerID  string                   `json:"interviewer_id,omitempty"`
	SchedulingLink string                   `json:"scheduling_link,omitempty"`
	ScheduledAt    *time.Time               `json:"scheduled_at,omitempty"`
	Outcome        recruit.InterviewOutcome `json:"outcome"`
}

type Decision struct {
	Kind      recruit.DecisionKind `json:"kind"`
	Withdrawn bool                 `json:"offer_withdrawn"`
	Reason    string               `json:"reason,omitempty"`
	DecidedBy string               `json:"decided_by,omitempty"`
	DecidedAt time.Time            `json:"decided_at"`
}

// Event is one humanized audit line.
type Event struct {
	At      time.Time `json:"at"`
	Summary string    `json:"summary"`
	ActorID string    `json:"actor_id,omitempty"`
}

// BuildReport renders a terminal-friendly report for an application.
func BuildReport(ctx context.Context, st *store.Store, applicationID string) (string, error) {
	report, err := gatherReportData(ctx, st, applicationID)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Application Report\n")
	fmt.Fprintf(&out, "Application : %s\n", report.ApplicationID)
	fmt.Fprintf(&out, "Position    : %s\n", report.Position)
	fmt.Fprintf(&out, "Stage       : %s (%s)\n", report.Stage, report.Status)
	fmt.Fprintf(&out, "Candidate   : %s <%s>\n", renderUnset(report.Person.Name, "<unnamed>"), report.Person.Email)
	if report.Person.GCScore != nil {
		verdict := "failed"
		if report.Person.GCPassed {
			verdict = "passed"
		}
		fmt.Fprintf(&out, "GC score    : %g (%s)\n", *report.Person.GCScore, verdict)
	}
	fmt.Fprintf(&out, "\n")

	fmt.Fprintf(&out, "Assessments\n")
	if len(report.Assessments) == 0 {
		fmt.Fprintf(&out, "  <none>\n")
	}
	for _, a := range report.Assessments {
		fmt.Fprintf(&out, "  - %s %s: %s", a.Kind, renderUnset(a.Competency, "general"), a.Verdict)
		if a.Score != nil {
			fmt.Fprintf(&out, " (score %g)", *a.Score)
		}
		if a.ReviewedBy != "" {
			fmt.Fprintf(&out, " by %s", a.ReviewedBy)
		}
		fmt.Fprintf(&out, "\n")
		for _, artifact := range a.Artifacts {
			fmt.Fprintf(&out, "      %s\n", artifact)
		}
	}

	fmt.Fprintf(&out, "\nInterviews\n")
	if len(report.Interviews) == 0 {
		fmt.Fprintf(&out, "  <none>\n")
	}
	for _, iv := range report.Interviews {
		when := "<unscheduled>"
		if iv.ScheduledAt != nil {
			when = iv.ScheduledAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(&out, "  - %s %s with %s: %s\n", iv.ID, when, renderUnset(iv.InterviewerID, "<unassigned>"), iv.Outcome)
	}

	fmt.Fprintf(&out, "\nDecisions\n")
	if len(report.Decisions) == 0 {
		fmt.Fprintf(&out, "  <none>\n")
	}
	for _, d := range report.Decisions {
		kind := string(d.Kind)
		if d.Withdrawn {
			kind = "OFFER WITHDRAWN"
		}
		fmt.Fprintf(&out, "  - %s %s by %s", d.DecidedAt.UTC().Format(time.RFC3339), kind, renderUnset(d.DecidedBy, "<system>"))
		if d.Reason != "" {
			fmt.Fprintf(&out, ": %s", d.Reason)
		}
		fmt.Fprintf(&out, "\n")
	}

	fmt.Fprintf(&out, "\nHistory\n")
	for _, e := range report.History {
		fmt.Fprintf(&out, "  %s  %s", e.At.UTC().Format(time.RFC3339), e.Summary)
		if e.ActorID != "" {
			fmt.Fprintf(&out, " [%s]", e.ActorID)
		}
		fmt.Fprintf(&out, "\n")
	}

	return out.String(), nil
}

// BuildJSONReport returns the machine-readable JSON report.
func BuildJSONReport(ctx context.Context, st *store.Store, applicationID string) (string, error) {
	report, err := gatherReportData(ctx, st, applicationID)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, st *store.Store, applicationID string) (*Report, error) {
	if strings.TrimSpace(applicationID) == "" {
		return nil, fmt.Errorf("application id is required")
	}

	report := &Report{ApplicationID: applicationID}
	err := st.Atomically(ctx, func(tx *store.Tx) error {
		app, err := tx.GetApplication(ctx, applicationID)
		if err != nil {
			return err
		}
		p, err := tx.GetPerson(ctx, app.PersonID)
		if err != nil {
			return err
		}
		report.Position = app.Position
		report.Stage = app.CurrentStage
		report.Status = app.Status
		report.Person = Person{
			ID:        p.ID,
			Name:      strings.TrimSpace(p.FirstName + " " + p.LastName),
			Email:     p.Email,
			GCScore:   p.GeneralCompetenciesScore,
			GCPassed:  p.HasPassedGeneralCompetencies(),
			Location:  strings.Trim(p.City+", "+p.Country, ", "),
		}

		general, err := tx.ListPersonAssessments(ctx, p.ID)
		if err != nil {
			return err
		}
		specialized, err := tx.ListApplicationAssessments(ctx, app.ID)
		if err != nil {
			return err
		}
		report.Assessments = make([]Assessment, 0, len(general)+len(specialized))
		for _, a := range general {
			if a.Kind == recruit.AssessmentGeneral {
				report.Assessments = append(report.Assessments, assessmentLine(a))
			}
		}
		for _, a := range specialized {
			report.Assessments = append(report.Assessments, assessmentLine(a))
		}

		interviews, err := tx.ListInterviews(ctx, app.ID)
		if err != nil {
			return err
		}
		report.Interviews = make([]Interview, 0, len(interviews))
		for _, iv := range interviews {
			report.Interviews = append(report.Interviews, Interview{
				ID:             iv.ID,
				InterviewerID:  iv.InterviewerID,
				SchedulingLink: iv.SchedulingLink,
				ScheduledAt:    iv.ScheduledAt,
				Outcome:        iv.Outcome,
			})
		}

		decisions, err := tx.ListDecisions(ctx, app.ID)
		if err != nil {
			return err
		}
		report.Decisions = make([]Decision, 0, len(decisions))
		for _, d := range decisions {
			report.Decisions = append(report.Decisions, Decision{
				Kind:      d.Kind,
				Withdrawn: d.IsOfferWithdrawal(),
				Reason:    d.Reason,
				DecidedBy: d.DecidedBy,
				DecidedAt: d.DecidedAt,
			})
		}

		entries, err := tx.ListAudit(ctx, store.AuditFilter{ApplicationID: app.ID})
		if err != nil {
			return err
		}
		report.History = make([]Event, 0, len(entries))
		for _, e := range entries {
			report.History = append(report.History, Event{At: e.CreatedAt, Summary: audit.Humanize(e), ActorID: e.ActorID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

func assessmentLine(a *recruit.Assessment) Assessment {
	line := Assessment{
		ID:         a.ID,
		Kind:       a.Kind,
		Competency: a.Competency,
		Score:      a.Score,
		Threshold:  a.Threshold,
		ReviewedBy: a.ReviewedBy,
		Artifacts:  a.Artifacts,
	}
	switch {
	case a.AwaitingReview():
		line.Verdict = "awaiting review"
	case a.Passed == nil:
		line.Verdict = "not submitted"
	case *a.Passed:
		line.Verdict = "passed"
	default:
		line.Verdict = "failed"
	}
	return line
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
