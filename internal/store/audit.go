package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/mattjoyce/hireflow/internal/recruit"
)

// AppendAudit inserts an audit entry. There is no update or delete.
func (t *Tx) AppendAudit(ctx context.Context, e recruit.AuditEntry) error {
	details, err := marshalJSON(e.Details, "{}")
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
INSERT INTO audit_logs(id, action, action_type, details, actor_id, person_id, application_id, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Action, e.ActionType, details, nullString(e.ActorID), nullString(e.PersonID), nullString(e.ApplicationID), fmtTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// AuditFilter selects entries by linkage. Empty fields match anything.
type AuditFilter struct {
	PersonID      string
	ApplicationID string
	Limit         int
}

// ListAudit returns matching entries, oldest first.
func (t *Tx) ListAudit(ctx context.Context, f AuditFilter) ([]recruit.AuditEntry, error) {
	q := `
SELECT id, action, action_type, details, actor_id, person_id, application_id, created_at
FROM audit_logs
WHERE (? = '' OR person_id = ?) AND (? = '' OR application_id = ?)
ORDER BY rowid ASC`
	args := []any{f.PersonID, f.PersonID, f.ApplicationID, f.ApplicationID}
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := t.tx.QueryContext(ctx, q+`;`, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	var out []recruit.AuditEntry
	for rows.Next() {
		var (
			e                                recruit.AuditEntry
			details, createdAt               string
			actorID, personID, applicationID sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Action, &e.ActionType, &details, &actorID, &personID, &applicationID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			e.Details = map[string]any{}
		}
		e.ActorID = actorID.String
		e.PersonID = personID.String
		e.ApplicationID = applicationID.String
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountAudit counts entries linked to an application.
func (t *Tx) CountAudit(ctx context.Context, applicationID string) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs WHERE application_id = ?;`, applicationID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit: %w", err)
	}
	return n, nil
}
