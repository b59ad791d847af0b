package recruit

import (
	"encoding/json"
	"strings"
	"time"
)

// Stage is an application's position in the recruitment pipeline.
type Stage string

const (
	StageApplication             Stage = "APPLICATION"
	StageGeneralCompetencies     Stage = "GENERAL_COMPETENCIES"
	StageSpecializedCompetencies Stage = "SPECIALIZED_COMPETENCIES"
	StageInterview               Stage = "INTERVIEW"
	StageAgreement               Stage = "AGREEMENT"
	StageSigned                  Stage = "SIGNED"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageApplication,
	StageGeneralCompetencies,
	StageSpecializedCompetencies,
	StageInterview,
	StageAgreement,
	StageSigned,
}

// Rank returns the stage's position in the pipeline, or -1 for unknown stages.
func (s Stage) Rank() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

func (s Stage) Valid() bool { return s.Rank() >= 0 }

// Title renders the stage for people, e.g. "General Competencies".
func (s Stage) Title() string { return titleCase(string(s)) }

// Status tells whether the application is still live and how it ended.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusAccepted  Status = "ACCEPTED"
	StatusRejected  Status = "REJECTED"
	StatusWithdrawn Status = "WITHDRAWN"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusAccepted, StatusRejected, StatusWithdrawn:
		return true
	}
	return false
}

func (s Status) Title() string { return titleCase(string(s)) }

type AssessmentKind string

const (
	AssessmentGeneral     AssessmentKind = "GENERAL_COMPETENCIES"
	AssessmentSpecialized AssessmentKind = "SPECIALIZED_COMPETENCIES"
)

type InterviewOutcome string

const (
	OutcomePending InterviewOutcome = "PENDING"
	OutcomeAccept  InterviewOutcome = "ACCEPT"
	OutcomeReject  InterviewOutcome = "REJECT"
)

func (o InterviewOutcome) Valid() bool {
	return o == OutcomePending || o == OutcomeAccept || o == OutcomeReject
}

type DecisionKind string

const (
	DecisionAccept DecisionKind = "ACCEPT"
	DecisionReject DecisionKind = "REJECT"
)

func (d DecisionKind) Valid() bool { return d == DecisionAccept || d == DecisionReject }

// OfferWithdrawnMarker prefixes the notes of the decision written when an
// accepted offer is withdrawn, separating it from an ordinary rejection.
const OfferWithdrawnMarker = "[OFFER_WITHDRAWN]"

// ActionType classifies an audit entry.
type ActionType string

const (
	ActionCreate       ActionType = "CREATE"
	ActionUpdate       ActionType = "UPDATE"
	ActionDelete       ActionType = "DELETE"
	ActionStageChange  ActionType = "STAGE_CHANGE"
	ActionStatusChange ActionType = "STATUS_CHANGE"
	ActionEmailSent    ActionType = "EMAIL_SENT"
	ActionView         ActionType = "VIEW"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionStageChange, ActionStatusChange, ActionEmailSent, ActionView:
		return true
	}
	return false
}

// Person is a unique individual keyed by email.
type Person struct {
	ID                           string
	Email                        string
	FirstName                    string
	LastName                     string
	Phone                        string
	Country                      string
	City                         string
	PortfolioURL                 string
	GeneralCompetenciesCompleted bool
	GeneralCompetenciesScore     *float64
	GeneralCompetenciesPassedAt  *time.Time
	CreatedAt                    time.Time
	UpdatedAt                    time.Time
}

// HasPassedGeneralCompetencies reports whether any earlier GC attempt passed.
func (p *Person) HasPassedGeneralCompetencies() bool {
	return p != nil && p.GeneralCompetenciesPassedAt != nil
}

// Application is one person's candidacy for one position.
type Application struct {
	ID             string
	PersonID       string
	Position       string
	CurrentStage   Stage
	Status         Status
	EducationLevel string

	HasResume       bool
	HasAcademicBg   bool
	HasVideoIntro   bool
	HasPreviousWork bool
	HasOtherFile    bool
	ResumeURL       string
	AcademicBgURL   string
	VideoIntroURL   string
	PreviousWorkURL string
	OtherFileURL    string

	SubmissionID string
	RespondentID string
	ResponseID   string

	Agreement *AgreementDetails

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AgreementDetails holds the fields captured by the signed agreement form.
type AgreementDetails struct {
	SubmissionID      string
	LegalFirstName    string
	LegalLastName     string
	PreferredName     string
	ProfilePictureURL string
	Biography         string
	DateOfBirth       string
	Country           string
	PrivacyAccepted   bool
	SignatureURL      string
	EntityRepresented string
	ServiceHours      string
	SignedAt          time.Time
}

// Assessment is a GC attempt attached to a person or an SC attempt attached
// to an application.
type Assessment struct {
	ID            string
	Kind          AssessmentKind
	PersonID      string
	ApplicationID string
	Competency    string
	Score         *float64
	Threshold     *float64
	Passed        *bool
	SubScores     map[string]float64
	Artifacts     []string
	RawPayload    json.RawMessage
	SubmissionID  string
	CompletedAt   *time.Time
	ReviewedBy    string
	ReviewedAt    *time.Time
	CreatedAt     time.Time
}

// AwaitingReview is true once the assessment was submitted but nobody has
// ruled on it yet.
func (a *Assessment) AwaitingReview() bool {
	return a.CompletedAt != nil && a.Passed == nil
}

type Interview struct {
	ID               string
	ApplicationID    string
	InterviewerID    string
	SchedulingLink   string
	ScheduledAt      *time.Time
	CompletedAt      *time.Time
	Notes            string
	Outcome          InterviewOutcome
	InvitationSentAt *time.Time
	CreatedAt        time.Time
}

type Decision struct {
	ID            string
	ApplicationID string
	Kind          DecisionKind
	Reason        string
	Notes         string
	DecidedBy     string
	DecidedAt     time.Time
}

// IsOfferWithdrawal reports whether the decision records a withdrawn offer.
func (d *Decision) IsOfferWithdrawal() bool {
	return strings.HasPrefix(d.Notes, OfferWithdrawnMarker)
}

// AuditEntry is one immutable line of the audit trail.
type AuditEntry struct {
	ID            string
	Action        string
	ActionType    ActionType
	Details       map[string]any
	ActorID       string
	PersonID      string
	ApplicationID string
	CreatedAt     time.Time
}

// ProcessedSubmission is the idempotency ledger row for one webhook delivery.
type ProcessedSubmission struct {
	SubmissionID string
	EventType    string
	Response     json.RawMessage
	CreatedAt    time.Time
}

func titleCase(s string) string {
	words := strings.Split(strings.ToLower(s), "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
