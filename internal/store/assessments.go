package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/hireflow/internal/recruit"
)

const assessmentColumns = `id, kind, person_id, application_id, competency, score, threshold, passed,
  sub_scores, artifacts, raw_payload, submission_id, completed_at, reviewed_by, reviewed_at, created_at`

func (t *Tx) CreateAssessment(ctx context.Context, a *recruit.Assessment) error {
	if a.PersonID == "" && a.ApplicationID == "" {
		return fmt.Errorf("assessment needs a person or an application")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = t.stamp()

	subScores, err := marshalJSON(a.SubScores, "{}")
	if err != nil {
		return fmt.Errorf("marshal sub scores: %w", err)
	}
	artifacts, err := marshalJSON(a.Artifacts, "[]")
	if err != nil {
		return fmt.Errorf("marshal artifacts: %w", err)
	}
	var raw any
	if len(a.RawPayload) > 0 {
		raw = string(a.RawPayload)
	}

	_, err = t.tx.ExecContext(ctx, `
INSERT INTO assessments(`+assessmentColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, a.ID, a.Kind, nullString(a.PersonID), nullString(a.ApplicationID), a.Competency,
		floatArg(a.Score), floatArg(a.Threshold), boolPtrArg(a.Passed),
		subScores, artifacts, raw, nullString(a.SubmissionID), fmtTimePtr(a.CompletedAt),
		a.ReviewedBy, fmtTimePtr(a.ReviewedAt), fmtTime(a.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("assessment for submission %q: %w", a.SubmissionID, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

func (t *Tx) GetAssessment(ctx context.Context, id string) (*recruit.Assessment, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+assessmentColumns+` FROM assessments WHERE id = ?;`, id)
	a, err := scanAssessment(row)
	if err != nil {
		return nil, notFound(err, "assessment", id)
	}
	return a, nil
}

// ListPersonAssessments returns a person's GC attempts, oldest first.
func (t *Tx) ListPersonAssessments(ctx context.Context, personID string) ([]*recruit.Assessment, error) {
	return t.listAssessments(ctx, `person_id = ? AND kind = ?`, personID, recruit.AssessmentGeneral)
}

// ListApplicationAssessments returns an application's SC submissions,
// oldest first.
func (t *Tx) ListApplicationAssessments(ctx context.Context, applicationID string) ([]*recruit.Assessment, error) {
	return t.listAssessments(ctx, `application_id = ? AND kind = ?`, applicationID, recruit.AssessmentSpecialized)
}

func (t *Tx) listAssessments(ctx context.Context, where string, args ...any) ([]*recruit.Assessment, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT `+assessmentColumns+`
FROM assessments
WHERE `+where+`
ORDER BY rowid ASC;
`, args...)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	var out []*recruit.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assessment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ReviewAssessment records a reviewer's ruling.
func (t *Tx) ReviewAssessment(ctx context.Context, id string, passed bool, reviewer string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE assessments SET passed = ?, reviewed_by = ?, reviewed_at = ? WHERE id = ?;
`, boolInt(passed), reviewer, fmtTime(at), id)
	if err != nil {
		return fmt.Errorf("review assessment: %w", err)
	}
	return expectOne(res, "assessment", id)
}

func scanAssessment(row scanner) (*recruit.Assessment, error) {
	var (
		a                       recruit.Assessment
		personID, applicationID sql.NullString
		score, threshold        sql.NullFloat64
		passed                  sql.NullInt64
		subScores, artifacts    string
		raw, submissionID       sql.NullString
		completedAt, reviewedAt sql.NullString
		createdAtS              string
	)
	if err := row.Scan(&a.ID, &a.Kind, &personID, &applicationID, &a.Competency, &score, &threshold, &passed,
		&subScores, &artifacts, &raw, &submissionID, &completedAt, &a.ReviewedBy, &reviewedAt, &createdAtS); err != nil {
		return nil, err
	}
	a.PersonID = personID.String
	a.ApplicationID = applicationID.String
	a.Score = floatPtr(score)
	a.Threshold = floatPtr(threshold)
	if passed.Valid {
		p := passed.Int64 != 0
		a.Passed = &p
	}
	if err := json.Unmarshal([]byte(subScores), &a.SubScores); err != nil {
		return nil, fmt.Errorf("decode sub scores: %w", err)
	}
	if err := json.Unmarshal([]byte(artifacts), &a.Artifacts); err != nil {
		return nil, fmt.Errorf("decode artifacts: %w", err)
	}
	if raw.Valid {
		a.RawPayload = json.RawMessage(raw.String)
	}
	a.SubmissionID = submissionID.String
	a.CompletedAt = parseTimePtr(completedAt)
	a.ReviewedAt = parseTimePtr(reviewedAt)
	a.CreatedAt = parseTime(createdAtS)
	return &a, nil
}
