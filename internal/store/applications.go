package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mattjoyce/hireflow/internal/recruit"
)

const applicationColumns = `id, person_id, position, current_stage, status, education_level,
  has_resume, has_academic_bg, has_video_intro, has_previous_work, has_other_file,
  resume_url, academic_bg_url, video_intro_url, previous_work_url, other_file_url,
  submission_id, respondent_id, response_id, agreement, created_at, updated_at`

// CreateApplication inserts a new application. A second application by the
// same person for the same position returns ErrConflict.
func (t *Tx) CreateApplication(ctx context.Context, a *recruit.Application) error {
	if a.PersonID == "" || a.Position == "" {
		return fmt.Errorf("application needs a person and a position")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CurrentStage == "" {
		a.CurrentStage = recruit.StageApplication
	}
	if a.Status == "" {
		a.Status = recruit.StatusActive
	}
	now := t.stamp()
	a.CreatedAt, a.UpdatedAt = now, now

	agreement, err := marshalAgreement(a.Agreement)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(ctx, `
INSERT INTO applications(`+applicationColumns+`)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, a.ID, a.PersonID, a.Position, a.CurrentStage, a.Status, a.EducationLevel,
		boolInt(a.HasResume), boolInt(a.HasAcademicBg), boolInt(a.HasVideoIntro), boolInt(a.HasPreviousWork), boolInt(a.HasOtherFile),
		a.ResumeURL, a.AcademicBgURL, a.VideoIntroURL, a.PreviousWorkURL, a.OtherFileURL,
		nullString(a.SubmissionID), nullString(a.RespondentID), nullString(a.ResponseID), agreement,
		fmtTime(now), fmtTime(now))
	if isUniqueViolation(err) {
		return fmt.Errorf("application for %q: %w", a.Position, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (t *Tx) GetApplication(ctx context.Context, id string) (*recruit.Application, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?;`, id)
	a, err := scanApplication(row)
	if err != nil {
		return nil, notFound(err, "application", id)
	}
	return a, nil
}

// FindApplicationByRespondent returns the newest application whose original
// submission came from respondentID.
func (t *Tx) FindApplicationByRespondent(ctx context.Context, respondentID string) (*recruit.Application, error) {
	if respondentID == "" {
		return nil, fmt.Errorf("application for respondent: %w", ErrNotFound)
	}
	row := t.tx.QueryRowContext(ctx, `
SELECT `+applicationColumns+`
FROM applications
WHERE respondent_id = ?
ORDER BY rowid DESC
LIMIT 1;
`, respondentID)
	a, err := scanApplication(row)
	if err != nil {
		return nil, notFound(err, "application for respondent", respondentID)
	}
	return a, nil
}

func (t *Tx) ListApplicationsByPerson(ctx context.Context, personID string) ([]*recruit.Application, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT `+applicationColumns+`
FROM applications
WHERE person_id = ?
ORDER BY rowid ASC;
`, personID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*recruit.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

// SetApplicationState persists a stage and status together.
func (t *Tx) SetApplicationState(ctx context.Context, id string, stage recruit.Stage, status recruit.Status) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE applications SET current_stage = ?, status = ?, updated_at = ? WHERE id = ?;
`, stage, status, fmtTime(t.stamp()), id)
	if err != nil {
		return fmt.Errorf("update application state: %w", err)
	}
	return expectOne(res, "application", id)
}

// SaveAgreement stores the signed agreement fields on the application.
func (t *Tx) SaveAgreement(ctx context.Context, id string, ag *recruit.AgreementDetails) error {
	agreement, err := marshalAgreement(ag)
	if err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
UPDATE applications SET agreement = ?, updated_at = ? WHERE id = ?;
`, agreement, fmtTime(t.stamp()), id)
	if err != nil {
		return fmt.Errorf("save agreement: %w", err)
	}
	return expectOne(res, "application", id)
}

// StageCount is one cell of the stage x status histogram.
type StageCount struct {
	Stage  recruit.Stage  `json:"stage"`
	Status recruit.Status `json:"status"`
	Count  int            `json:"count"`
}

func (t *Tx) CountApplications(ctx context.Context) ([]StageCount, error) {
	rows, err := t.tx.QueryContext(ctx, `
SELECT current_stage, status, COUNT(*)
FROM applications
GROUP BY current_stage, status;
`)
	if err != nil {
		return nil, fmt.Errorf("count applications: %w", err)
	}
	defer rows.Close()

	var out []StageCount
	for rows.Next() {
		var c StageCount
		if err := rows.Scan(&c.Stage, &c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("scan stage count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func marshalAgreement(ag *recruit.AgreementDetails) (any, error) {
	if ag == nil {
		return nil, nil
	}
	b, err := json.Marshal(agreementRow{
		SubmissionID:      ag.SubmissionID,
		LegalFirstName:    ag.LegalFirstName,
		LegalLastName:     ag.LegalLastName,
		PreferredName:     ag.PreferredName,
		ProfilePictureURL: ag.ProfilePictureURL,
		Biography:         ag.Biography,
		DateOfBirth:       ag.DateOfBirth,
		Country:           ag.Country,
		PrivacyAccepted:   ag.PrivacyAccepted,
		SignatureURL:      ag.SignatureURL,
		EntityRepresented: ag.EntityRepresented,
		ServiceHours:      ag.ServiceHours,
		SignedAt:          fmtTime(ag.SignedAt),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal agreement: %w", err)
	}
	return string(b), nil
}

// agreementRow is the JSON shape of applications.agreement.
type agreementRow struct {
	SubmissionID      string `json:"submission_id"`
	LegalFirstName    string `json:"legal_first_name"`
	LegalLastName     string `json:"legal_last_name"`
	PreferredName     string `json:"preferred_name,omitempty"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
	Biography         string `json:"biography,omitempty"`
	DateOfBirth       string `json:"date_of_birth,omitempty"`
	Country           string `json:"country,omitempty"`
	PrivacyAccepted   bool   `json:"privacy_accepted"`
	SignatureURL      string `json:"signature_url,omitempty"`
	EntityRepresented string `json:"entity_represented,omitempty"`
	ServiceHours      string `json:"service_hours,omitempty"`
	SignedAt          string `json:"signed_at"`
}

func scanApplication(row scanner) (*recruit.Application, error) {
	var (
		a                                   recruit.Application
		resume, academic, video, prev, other int
		submissionID, respondentID          sql.NullString
		responseID, agreement               sql.NullString
		createdAtS, updatedAtS              string
	)
	if err := row.Scan(&a.ID, &a.PersonID, &a.Position, &a.CurrentStage, &a.Status, &a.EducationLevel,
		&resume, &academic, &video, &prev, &other,
		&a.ResumeURL, &a.AcademicBgURL, &a.VideoIntroURL, &a.PreviousWorkURL, &a.OtherFileURL,
		&submissionID, &respondentID, &responseID, &agreement, &createdAtS, &updatedAtS); err != nil {
		return nil, err
	}
	a.HasResume = resume != 0
	a.HasAcademicBg = academic != 0
	a.HasVideoIntro = video != 0
	a.HasPreviousWork = prev != 0
	a.HasOtherFile = other != 0
	a.SubmissionID = submissionID.String
	a.RespondentID = respondentID.String
	a.ResponseID = responseID.String
	a.CreatedAt = parseTime(createdAtS)
	a.UpdatedAt = parseTime(updatedAtS)

	if agreement.Valid && agreement.String != "" {
		var r agreementRow
		if err := json.Unmarshal([]byte(agreement.String), &r); err != nil {
			return nil, fmt.Errorf("decode agreement: %w", err)
		}
		a.Agreement = &recruit.AgreementDetails{
			SubmissionID:      r.SubmissionID,
			LegalFirstName:    r.LegalFirstName,
			LegalLastName:     r.LegalLastName,
			PreferredName:     r.PreferredName,
			ProfilePictureURL: r.ProfilePictureURL,
			Biography:         r.Biography,
			DateOfBirth:       r.DateOfBirth,
			Country:           r.Country,
			PrivacyAccepted:   r.PrivacyAccepted,
			SignatureURL:      r.SignatureURL,
			EntityRepresented: r.EntityRepresented,
			ServiceHours:      r.ServiceHours,
			SignedAt:          parseTime(r.SignedAt),
		}
	}
	return &a, nil
}
