package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/mattjoyce/hireflow/internal/recruit"
)

const interviewColumns = `id, application_id, interviewer_id, scheduling_link, scheduled_at, completed_at,
  notes, outcome, invitation_sent_at, created_at`

func (t *Tx) CreateInterview(ctx context.Context, iv *recruit.Interview) error {
	if iv.ID == "" {
		iv.ID = uuid.NewString()
	}
	if iv.Outcome == "" {
		iv.Outcome = recruit.OutcomePending
	}
	iv.CreatedAt = t.stamp()

	_, err := t.tx.ExecContext(ctx, `
INSERT INTO interviews(`+interviewColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, iv.ID, iv.ApplicationID, iv.InterviewerID, iv.SchedulingLink, fmtTimePtr(iv.ScheduledAt), fmtTimePtr(iv.CompletedAt),
		iv.Notes, iv.Outcome, fmtTimePtr(iv.InvitationSentAt), fmtTime(iv.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert interview: %w", err)
	}
	return nil
}

func (t *Tx) GetInterview(ctx context.Context, id string) (*recruit.Interview, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+interviewColumns+` FROM interviews WHERE id = ?;`, id)
	iv, err := scanInterview(row)
	if err != nil {
		return nil, notFound(err, "interview", id)
	}
	return iv, nil
}

// LatestOpenInterview returns the newest interview not yet completed.
func (t *Tx) LatestOpenInterview(ctx context.Context, applicationID string) (*recruit.Interview, error) {
	row := t.tx.QueryRowContext(ctx, `
SELECT `+interviewColumns+`
FROM interviews
WHERE application_id = ? AND completed_at IS NULL
ORDER BY rowid DESC
LIMIT 1;
`, applicationID)
	iv, err := scanInterview(row)
	if err != nil {
		return nil, notFound(err, "open interview for application", applicationID)
	}
	return iv, nil
}

// ListInterviews returns an application's interviews, oldest first.
func (t *Tx) ListInterviews(ctx context.Context, applicationID string) ([]*recruit.Interview, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT `+interviewColumns+`
FROM interviews
WHERE application_id = ?
ORDER BY rowid ASC;
`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list interviews: %w", err)
	}
	defer rows.Close()

	var out []*recruit.Interview
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// UpdateInterview rewrites the mutable interview fields.
func (t *Tx) UpdateInterview(ctx context.Context, iv *recruit.Interview) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE interviews
SET interviewer_id = ?, scheduling_link = ?, scheduled_at = ?, completed_at = ?,
    notes = ?, outcome = ?, invitation_sent_at = ?
WHERE id = ?;
`, iv.InterviewerID, iv.SchedulingLink, fmtTimePtr(iv.ScheduledAt), fmtTimePtr(iv.CompletedAt),
		iv.Notes, iv.Outcome, fmtTimePtr(iv.InvitationSentAt), iv.ID)
	if err != nil {
		return fmt.Errorf("update interview: %w", err)
	}
	return expectOne(res, "interview", iv.ID)
}

func scanInterview(row scanner) (*recruit.Interview, error) {
	var (
		iv                       recruit.Interview
		scheduledAt, completedAt sql.NullString
		invitedAt                sql.NullString
		createdAtS               string
	)
	if err := row.Scan(&iv.ID, &iv.ApplicationID, &iv.InterviewerID, &iv.SchedulingLink, &scheduledAt, &completedAt,
		&iv.Notes, &iv.Outcome, &invitedAt, &createdAtS); err != nil {
		return nil, err
	}
	iv.ScheduledAt = parseTimePtr(scheduledAt)
	iv.CompletedAt = parseTimePtr(completedAt)
	iv.InvitationSentAt = parseTimePtr(invitedAt)
	iv.CreatedAt = parseTime(createdAtS)
	return &iv, nil
}

func (t *Tx) CreateDecision(ctx context.Context, d *recruit.Decision) error {
	if !d.Kind.Valid() {
		return fmt.Errorf("invalid decision kind %q", d.Kind)
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = t.stamp()
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO decisions(id, application_id, kind, reason, notes, decided_by, decided_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, d.ID, d.ApplicationID, d.Kind, d.Reason, d.Notes, d.DecidedBy, fmtTime(d.DecidedAt))
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// ListDecisions returns an application's decisions, oldest first.
func (t *Tx) ListDecisions(ctx context.Context, applicationID string) ([]*recruit.Decision, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT id, application_id, kind, reason, notes, decided_by, decided_at
FROM decisions
WHERE application_id = ?
ORDER BY rowid ASC;
`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []*recruit.Decision
	for rows.Next() {
		var (
			d         recruit.Decision
			decidedAt string
		)
		if err := rows.Scan(&d.ID, &d.ApplicationID, &d.Kind, &d.Reason, &d.Notes, &d.DecidedBy, &decidedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.DecidedAt = parseTime(decidedAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}
