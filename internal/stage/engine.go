// Package stage is the pipeline state machine. It is pure: callers load the
// application's state and the facts a guard needs, ask the engine what
// happens, then persist the resulting changes themselves.
package stage

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mattjoyce/hireflow/internal/notify"
	"github.com/mattjoyce/hireflow/internal/recruit"
)

// Event is a fact that may move an application.
type Event string

const (
	EventGCPassed           Event = "GC_PASSED"
	EventGCFailed           Event = "GC_FAILED"
	EventPriorGCPassed      Event = "PRIOR_GC_PASSED"
	EventAdvanceToInterview Event = "ADVANCE_TO_INTERVIEW"
	EventInterviewCompleted Event = "INTERVIEW_COMPLETED"
	EventAccept             Event = "ACCEPT"
	EventReject             Event = "REJECT"
	EventWithdraw           Event = "WITHDRAW"
	EventAgreementSigned    Event = "AGREEMENT_SIGNED"
	EventOfferWithdrawn     Event = "OFFER_WITHDRAWN"
)

var (
	// ErrNoTransition means no rule exists for the (stage, event, status)
	// combination.
	ErrNoTransition = errors.New("no transition")
	errInvalidTable = errors.New("invalid transition table")
)

// GuardError is returned when a rule exists but its guard refused.
type GuardError struct {
	Event  Event
	Stage  recruit.Stage
	Reason string
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("%s not allowed at %s: %s", e.Event, e.Stage, e.Reason)
}

// State is what the engine needs to know about an application.
type State struct {
	Stage  recruit.Stage
	Status recruit.Status
}

// Facts carries the store-derived inputs guards look at.
type Facts struct {
	PersonPassedGC     bool
	PassedSpecialized  int
	PendingSpecialized int
}

// Guard returns a non-empty refusal reason when the rule must not fire.
type Guard func(Facts) string

// Rule is one row of the transition table. An empty To keeps the stage and
// an empty StatusTo keeps the status. Chain names an event fired
// immediately afterwards at the resulting stage.
type Rule struct {
	From          recruit.Stage
	Event         Event
	RequireStatus recruit.Status
	Guard         Guard
	GuardName     string
	To            recruit.Stage
	StatusTo      recruit.Status
	Chain         Event
	Emails        []notify.Template
	Reason        string
}

func (r Rule) target() recruit.Stage {
	if r.To == "" {
		return r.From
	}
	return r.To
}

func (r Rule) statusAfter() recruit.Status {
	if r.StatusTo == "" {
		return r.RequireStatus
	}
	return r.StatusTo
}

// Change is one persisted movement: a status change or a stage change.
type Change struct {
	Action recruit.ActionType
	From   string
	To     string
	Event  Event
	Reason string
}

// Input is one request to move an application.
type Input struct {
	Event Event
	Facts Facts
	// Reason overrides the rule's default reason in the resulting changes.
	Reason string
}

// Outcome is the engine's answer. Changes are ordered: within one rule the
// status change precedes the stage change.
type Outcome struct {
	Before  State
	After   State
	Changes []Change
	Emails  []notify.Template
	Fired   []Event
}

// Changed reports whether anything needs persisting.
func (o Outcome) Changed() bool { return len(o.Changes) > 0 }

type ruleKey struct {
	stage recruit.Stage
	event Event
}

// Engine applies a validated transition table.
type Engine struct {
	rules map[ruleKey]Rule
	order []Rule
}

// New validates rules and builds an engine. Validation requires:
// known stages and statuses, at most one rule per (stage, event), no rule
// moving backwards, and chains that resolve and terminate.
func New(rules []Rule) (*Engine, error) {
	e := &Engine{rules: make(map[ruleKey]Rule, len(rules))}
	for _, r := range rules {
		if err := checkRule(r); err != nil {
			return nil, err
		}
		k := ruleKey{r.From, r.Event}
		if _, dup := e.rules[k]; dup {
			return nil, fmt.Errorf("%w: duplicate rule for %s on %s", errInvalidTable, r.Event, r.From)
		}
		e.rules[k] = r
		e.order = append(e.order, r)
	}
	for _, r := range e.order {
		if err := e.checkChain(r); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(e.order, func(i, j int) bool {
		if e.order[i].From.Rank() != e.order[j].From.Rank() {
			return e.order[i].From.Rank() < e.order[j].From.Rank()
		}
		return e.order[i].Event < e.order[j].Event
	})
	return e, nil
}

func checkRule(r Rule) error {
	switch {
	case !r.From.Valid():
		return fmt.Errorf("%w: unknown stage %q", errInvalidTable, r.From)
	case r.Event == "":
		return fmt.Errorf("%w: rule at %s has no event", errInvalidTable, r.From)
	case !r.RequireStatus.Valid():
		return fmt.Errorf("%w: %s on %s requires unknown status %q", errInvalidTable, r.Event, r.From, r.RequireStatus)
	case r.To != "" && !r.To.Valid():
		return fmt.Errorf("%w: %s on %s targets unknown stage %q", errInvalidTable, r.Event, r.From, r.To)
	case r.StatusTo != "" && !r.StatusTo.Valid():
		return fmt.Errorf("%w: %s on %s sets unknown status %q", errInvalidTable, r.Event, r.From, r.StatusTo)
	case r.target().Rank() < r.From.Rank():
		return fmt.Errorf("%w: %s on %s regresses to %s", errInvalidTable, r.Event, r.From, r.To)
	}
	return nil
}

func (e *Engine) checkChain(start Rule) error {
	seen := map[ruleKey]bool{{start.From, start.Event}: true}
	r := start
	for r.Chain != "" {
		k := ruleKey{r.target(), r.Chain}
		next, ok := e.rules[k]
		if !ok {
			return fmt.Errorf("%w: %s on %s chains to %s with no rule at %s", errInvalidTable, r.Event, r.From, r.Chain, r.target())
		}
		if next.RequireStatus != r.statusAfter() {
			return fmt.Errorf("%w: %s on %s chains to %s which requires %s", errInvalidTable, r.Event, r.From, r.Chain, next.RequireStatus)
		}
		if seen[k] {
			return fmt.Errorf("%w: chain from %s on %s does not terminate", errInvalidTable, start.Event, start.From)
		}
		seen[k] = true
		r = next
	}
	return nil
}

// Rules returns the table in pipeline order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.order))
	copy(out, e.order)
	return out
}

// Lookup returns the rule for an event at a stage, if any.
func (e *Engine) Lookup(s recruit.Stage, ev Event) (Rule, bool) {
	r, ok := e.rules[ruleKey{s, ev}]
	return r, ok
}

// Apply computes what in.Event does to an application in state s.
func (e *Engine) Apply(s State, in Input) (Outcome, error) {
	out := Outcome{Before: s, After: s}
	ev := in.Event
	for {
		r, ok := e.rules[ruleKey{out.After.Stage, ev}]
		if !ok {
			return Outcome{}, fmt.Errorf("%w: %s at stage %s", ErrNoTransition, ev, out.After.Stage)
		}
		if r.RequireStatus != out.After.Status {
			return Outcome{}, fmt.Errorf("%w: %s requires status %s, application is %s", ErrNoTransition, ev, r.RequireStatus, out.After.Status)
		}
		if r.Guard != nil {
			if refusal := r.Guard(in.Facts); refusal != "" {
				return Outcome{}, &GuardError{Event: ev, Stage: out.After.Stage, Reason: refusal}
			}
		}

		reason := r.Reason
		if in.Reason != "" && ev == in.Event {
			reason = in.Reason
		}
		if r.StatusTo != "" && r.StatusTo != out.After.Status {
			out.Changes = append(out.Changes, Change{
				Action: recruit.ActionStatusChange,
				From:   string(out.After.Status),
				To:     string(r.StatusTo),
				Event:  ev,
				Reason: reason,
			})
			out.After.Status = r.StatusTo
		}
		if r.To != "" && r.To != out.After.Stage {
			out.Changes = append(out.Changes, Change{
				Action: recruit.ActionStageChange,
				From:   string(out.After.Stage),
				To:     string(r.To),
				Event:  ev,
				Reason: reason,
			})
			out.After.Stage = r.To
		}
		out.Emails = append(out.Emails, r.Emails...)
		out.Fired = append(out.Fired, ev)

		if r.Chain == "" {
			return out, nil
		}
		ev = r.Chain
	}
}
