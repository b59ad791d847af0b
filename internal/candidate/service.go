// Package candidate owns every change to persons and applications. Webhook
// deliveries and admin decisions both come through here; each runs as one
// store transaction holding the fact rows, the stage engine's transitions and
// their audit entries. Emails go out only after the transaction commits.
package candidate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/hireflow/internal/audit"
	"github.com/mattjoyce/hireflow/internal/notify"
	"github.com/mattjoyce/hireflow/internal/recruit"
	"github.com/mattjoyce/hireflow/internal/stage"
	"github.com/mattjoyce/hireflow/internal/store"
	"github.com/mattjoyce/hireflow/internal/tally"
)

// ErrInvariant marks a request that is well-formed but not allowed in the
// current state. Nothing is written when it is returned.
var ErrInvariant = errors.New("invariant violation")

func invariant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}

// IsInvariant reports whether err should be answered as a refused request.
func IsInvariant(err error) bool {
	var guard *stage.GuardError
	return errors.Is(err, ErrInvariant) ||
		errors.Is(err, stage.ErrNoTransition) ||
		errors.Is(err, store.ErrConflict) ||
		errors.As(err, &guard)
}

// ApplicationState is an application's position after a request.
type ApplicationState struct {
	ApplicationID string         `json:"applicationId"`
	CurrentStage  recruit.Stage  `json:"currentStage"`
	Status        recruit.Status `json:"status"`
}

// Result is the response body of an ingest or admin request. A replayed
// webhook delivery returns the Result stored for the first delivery.
type Result struct {
	PersonID      string             `json:"personId,omitempty"`
	ApplicationID string             `json:"applicationId,omitempty"`
	AssessmentID  string             `json:"assessmentId,omitempty"`
	DecisionID    string             `json:"decisionId,omitempty"`
	CurrentStage  recruit.Stage      `json:"currentStage,omitempty"`
	Status        recruit.Status     `json:"status,omitempty"`
	Score         *float64           `json:"score,omitempty"`
	Passed        *bool              `json:"passed,omitempty"`
	Applications  []ApplicationState `json:"applications,omitempty"`

	Replayed bool `json:"-"`
}

func (r *Result) echo(app *recruit.Application) {
	r.PersonID = app.PersonID
	r.ApplicationID = app.ID
	r.CurrentStage = app.CurrentStage
	r.Status = app.Status
}

type Service struct {
	store     *store.Store
	engine    *stage.Engine
	recorder  *audit.Recorder
	sender    notify.Sender
	threshold float64
	logger    *slog.Logger
	drift     *slog.Logger
	now       func() time.Time
}

// New builds a Service. gcThreshold is the score a general competencies
// attempt needs to pass; it is copied onto every assessment graded.
func New(st *store.Store, engine *stage.Engine, sender notify.Sender, gcThreshold float64, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		engine:    engine,
		recorder:  audit.NewRecorder(),
		sender:    sender,
		threshold: gcThreshold,
		logger:    logger.With("component", "candidate"),
		drift:     logger.With("component", "tally"),
		now:       time.Now,
	}
}

// Threshold returns the passing score applied to new GC attempts.
func (s *Service) Threshold() float64 { return s.threshold }

// unit collects the side effects of one transaction that must wait for
// commit.
type unit struct {
	mail []notify.Message
}

func (u *unit) queue(t notify.Template, p *recruit.Person, app *recruit.Application) {
	msg := notify.Message{Template: t}
	if p != nil {
		msg.To = p.Email
		msg.Name = p.FirstName
		msg.PersonID = p.ID
	}
	if app != nil {
		msg.ApplicationID = app.ID
		msg.Data = map[string]string{"position": app.Position}
		if msg.PersonID == "" {
			msg.PersonID = app.PersonID
		}
	}
	u.mail = append(u.mail, msg)
}

// atomically runs fn in one transaction, then sends whatever it queued.
func (s *Service) atomically(ctx context.Context, fn func(*store.Tx, *unit) error) error {
	u := &unit{}
	if err := s.store.Atomically(ctx, func(tx *store.Tx) error { return fn(tx, u) }); err != nil {
		return err
	}
	s.dispatch(ctx, u.mail)
	return nil
}

// ingest wraps a webhook handler body with the idempotency claim. The claim
// is the first write, so a duplicate delivery fails before touching anything
// and is answered with the response stored by the first one.
func (s *Service) ingest(ctx context.Context, submissionID, eventType string, fn func(*store.Tx, *unit) (*Result, error)) (*Result, error) {
	var res *Result
	err := s.atomically(ctx, func(tx *store.Tx, u *unit) error {
		if err := tx.ClaimSubmission(ctx, submissionID, eventType); err != nil {
			return err
		}
		r, err := fn(tx, u)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
		if err := tx.SaveSubmissionResponse(ctx, submissionID, raw); err != nil {
			return err
		}
		res = r
		return nil
	})
	if errors.Is(err, store.ErrDuplicateSubmission) {
		return s.replay(ctx, submissionID)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) replay(ctx context.Context, submissionID string) (*Result, error) {
	var ps *recruit.ProcessedSubmission
	err := s.store.Atomically(ctx, func(tx *store.Tx) error {
		var err error
		ps, err = tx.GetProcessedSubmission(ctx, submissionID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("replay submission: %w", err)
	}

	var res Result
	if err := json.Unmarshal(ps.Response, &res); err != nil {
		return nil, fmt.Errorf("decode stored response: %w", err)
	}
	res.Replayed = true
	s.logger.InfoContext(ctx, "duplicate submission replayed",
		"submission_id", submissionID,
		"event_type", ps.EventType,
	)
	return &res, nil
}

// transition asks the engine what in does to app, persists the new state and
// one audit entry per change, and queues the rule's emails. app is updated
// in place.
func (s *Service) transition(ctx context.Context, tx *store.Tx, u *unit, p *recruit.Person, app *recruit.Application, in stage.Input, actor string) (stage.Outcome, error) {
	out, err := s.engine.Apply(stage.State{Stage: app.CurrentStage, Status: app.Status}, in)
	if err != nil {
		return stage.Outcome{}, fmt.Errorf("application %s: %w", app.ID, err)
	}
	if out.Changed() {
		if err := tx.SetApplicationState(ctx, app.ID, out.After.Stage, out.After.Status); err != nil {
			return stage.Outcome{}, err
		}
	}

	refs := audit.Refs{PersonID: app.PersonID, ApplicationID: app.ID, ActorID: actor}
	for _, c := range out.Changes {
		noun := "Stage"
		if c.Action == recruit.ActionStatusChange {
			noun = "Status"
		}
		details := map[string]any{"from": c.From, "to": c.To, "event": string(c.Event)}
		if c.Reason != "" {
			details["reason"] = c.Reason
		}
		label := fmt.Sprintf("%s changed: %s -> %s", noun, c.From, c.To)
		if _, err := s.recorder.Record(ctx, tx, label, c.Action, details, refs); err != nil {
			return stage.Outcome{}, err
		}
	}

	app.CurrentStage, app.Status = out.After.Stage, out.After.Status
	for _, t := range out.Emails {
		u.queue(t, p, app)
	}
	s.logger.DebugContext(ctx, "transition applied",
		"application_id", app.ID,
		"event", string(in.Event),
		"stage", string(app.CurrentStage),
		"status", string(app.Status),
	)
	return out, nil
}

// dispatch sends queued emails. A send failure is logged and leaves the
// committed transition alone. Each sent email gets its own audit entry.
func (s *Service) dispatch(ctx context.Context, mail []notify.Message) {
	for _, msg := range mail {
		logger := s.logger.With("template", string(msg.Template), "application_id", msg.ApplicationID)
		if err := s.sender.Send(ctx, msg); err != nil {
			logger.ErrorContext(ctx, "email trigger failed", "error", err)
			continue
		}
		err := s.store.Atomically(ctx, func(tx *store.Tx) error {
			_, err := s.recorder.Record(ctx, tx, "Email sent: "+string(msg.Template), recruit.ActionEmailSent,
				map[string]any{"template": string(msg.Template)},
				audit.Refs{PersonID: msg.PersonID, ApplicationID: msg.ApplicationID})
			return err
		})
		if err != nil {
			logger.ErrorContext(ctx, "failed to record sent email", "error", err)
		}
	}
}

func (s *Service) logDrift(ctx context.Context, submissionID string, warnings []tally.DriftWarning) {
	for _, w := range warnings {
		s.drift.WarnContext(ctx, "form field matched by fallback key",
			"form", w.Form,
			"label", w.Label,
			"key", w.Key,
			"submission_id", submissionID,
		)
	}
}

func (s *Service) record(ctx context.Context, tx *store.Tx, label string, kind recruit.ActionType, details map[string]any, refs audit.Refs) error {
	_, err := s.recorder.Record(ctx, tx, label, kind, details, refs)
	return err
}
