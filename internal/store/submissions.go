package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattjoyce/hireflow/internal/recruit"
)

// ClaimSubmission records that submissionID is being processed. It must be
// the first write of the unit of work: a replay or a concurrent duplicate
// fails here with ErrDuplicateSubmission before anything else is touched.
func (t *Tx) ClaimSubmission(ctx context.Context, submissionID, eventType string) error {
	if submissionID == "" {
		return fmt.Errorf("submission id is empty")
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO processed_submissions(submission_id, event_type, response, created_at)
VALUES(?, ?, '{}', ?);
`, submissionID, eventType, fmtTime(t.stamp()))
	if isUniqueViolation(err) {
		return fmt.Errorf("submission %q: %w", submissionID, ErrDuplicateSubmission)
	}
	if err != nil {
		return fmt.Errorf("claim submission: %w", err)
	}
	return nil
}

// SaveSubmissionResponse stores the response to replay for later deliveries.
func (t *Tx) SaveSubmissionResponse(ctx context.Context, submissionID string, response json.RawMessage) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE processed_submissions SET response = ? WHERE submission_id = ?;
`, string(response), submissionID)
	if err != nil {
		return fmt.Errorf("save submission response: %w", err)
	}
	return expectOne(res, "submission", submissionID)
}

func (t *Tx) GetProcessedSubmission(ctx context.Context, submissionID string) (*recruit.ProcessedSubmission, error) {
	var (
		ps        recruit.ProcessedSubmission
		response  string
		createdAt string
	)
	err := t.tx.QueryRowContext(ctx, `
SELECT submission_id, event_type, response, created_at
FROM processed_submissions
WHERE submission_id = ?;
`, submissionID).Scan(&ps.SubmissionID, &ps.EventType, &response, &createdAt)
	if err != nil {
		return nil, notFound(err, "submission", submissionID)
	}
	ps.Response = json.RawMessage(response)
	ps.CreatedAt = parseTime(createdAt)
	return &ps, nil
}
