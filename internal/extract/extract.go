// Package extract turns resolved form fields into typed records.
//
// Every function here is pure: same submission in, same record out, no I/O.
// Drift warnings are returned for the caller to log.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattjoyce/hireflow/internal/tally"
)

// MissingFieldError reports a required business field absent from an
// otherwise well-formed submission.
type MissingFieldError struct {
	Form  string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s submission is missing required field %q", e.Form, e.Field)
}

func missing(form, field string) error {
	return &MissingFieldError{Form: form, Field: field}
}

// Form context names used in drift warnings and errors.
const (
	FormApplication = "application"
	FormGeneral     = "general-competencies"
	FormSpecialized = "specialized-competencies"
	FormAgreement   = "agreement"
)

// submittedAt parses the submission timestamp, falling back to the event's.
func submittedAt(ev tally.Event) *time.Time {
	for _, raw := range []string{ev.Data.CreatedAt, ev.CreatedAt} {
		if raw == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// rawFields re-encodes the whole field list for storage alongside an
// assessment.
func rawFields(fields []tally.Field) json.RawMessage {
	b, err := json.Marshal(fields)
	if err != nil {
		return json.RawMessage("[]")
	}
	return b
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
