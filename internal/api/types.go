package api

import (
	"time"

	"github.com/mattjoyce/hireflow/internal/recruit"
)

// ReviewRequest is the JSON body for POST /assessments/{id}/review.
type ReviewRequest struct {
	Passed *bool `json:"passed"`
}

// CompleteInterviewRequest is the JSON body for POST /interviews/{id}/complete.
type CompleteInterviewRequest struct {
	Outcome recruit.InterviewOutcome `json:"outcome"`
	Notes   string                   `json:"notes,omitempty"`
}

// ReasonRequest is the JSON body for the withdraw endpoints.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

// AssessmentResponse is returned after a review.
type AssessmentResponse struct {
	ID            string                 `json:"id"`
	Kind          recruit.AssessmentKind `json:"kind"`
	PersonID      string                 `json:"personId,omitempty"`
	ApplicationID string                 `json:"applicationId,omitempty"`
	Competency    string                 `json:"competency,omitempty"`
	Score         *float64               `json:"score,omitempty"`
	Passed        *bool                  `json:"passed"`
	Artifacts     []string               `json:"artifacts,omitempty"`
	CompletedAt   *time.Time             `json:"completedAt,omitempty"`
	ReviewedBy    string                 `json:"reviewedBy,omitempty"`
	ReviewedAt    *time.Time             `json:"reviewedAt,omitempty"`
}

func assessmentResponse(a *recruit.Assessment) AssessmentResponse {
	return AssessmentResponse{
		ID:            a.ID,
		Kind:          a.Kind,
		PersonID:      a.PersonID,
		ApplicationID: a.ApplicationID,
		Competency:    a.Competency,
		Score:         a.Score,
		Passed:        a.Passed,
		Artifacts:     a.Artifacts,
		CompletedAt:   a.CompletedAt,
		ReviewedBy:    a.ReviewedBy,
		ReviewedAt:    a.ReviewedAt,
	}
}

// InterviewResponse is returned by the interview endpoints.
type InterviewResponse struct {
	ID               string                   `json:"id"`
	ApplicationID    string                   `json:"applicationId"`
	InterviewerID    string                   `json:"interviewerId,omitempty"`
	SchedulingLink   string                   `json:"schedulingLink,omitempty"`
	ScheduledAt      *time.Time               `json:"scheduledAt,omitempty"`
	CompletedAt      *time.Time               `json:"completedAt,omitempty"`
	Outcome          recruit.InterviewOutcome `json:"outcome"`
	Notes            string                   `json:"notes,omitempty"`
	InvitationSentAt *time.Time               `json:"invitationSentAt,omitempty"`
}

func interviewResponse(iv *recruit.Interview) InterviewResponse {
	return InterviewResponse{
		ID:               iv.ID,
		ApplicationID:    iv.ApplicationID,
		InterviewerID:    iv.InterviewerID,
		SchedulingLink:   iv.SchedulingLink,
		ScheduledAt:      iv.ScheduledAt,
		CompletedAt:      iv.CompletedAt,
		Outcome:          iv.Outcome,
		Notes:            iv.Notes,
		InvitationSentAt: iv.InvitationSentAt,
	}
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
