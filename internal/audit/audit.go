// Package audit appends entries to the append-only audit trail and renders
// them for people.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/hireflow/internal/recruit"
)

// Appender persists one entry. The store's transaction implements it, so
// entries commit or roll back with the change they describe.
type Appender interface {
	AppendAudit(ctx context.Context, e recruit.AuditEntry) error
}

// Refs links an entry to the rows it concerns. All fields are optional.
type Refs struct {
	PersonID      string
	ApplicationID string
	ActorID       string
}

// Recorder builds entries and hands them to an Appender.
type Recorder struct {
	now func() time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{now: time.Now}
}

// Record appends one entry. Errors are returned unchanged in meaning; callers
// must abort the surrounding unit of work on failure.
func (r *Recorder) Record(ctx context.Context, a Appender, label string, kind recruit.ActionType, details map[string]any, refs Refs) (recruit.AuditEntry, error) {
	if !kind.Valid() {
		return recruit.AuditEntry{}, fmt.Errorf("audit: unknown action type %q", kind)
	}
	if details == nil {
		details = map[string]any{}
	}
	e := recruit.AuditEntry{
		ID:            uuid.NewString(),
		Action:        label,
		ActionType:    kind,
		Details:       details,
		ActorID:       refs.ActorID,
		PersonID:      refs.PersonID,
		ApplicationID: refs.ApplicationID,
		CreatedAt:     r.now().UTC(),
	}
	if err := a.AppendAudit(ctx, e); err != nil {
		return recruit.AuditEntry{}, fmt.Errorf("audit %s: %w", kind, err)
	}
	return e, nil
}
