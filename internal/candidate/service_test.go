package candidate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hireflow/internal/extract"
	"github.com/mattjoyce/hireflow/internal/notify"
	"github.com/mattjoyce/hireflow/internal/notify/mocks"
	"github.com/mattjoyce/hireflow/internal/recruit"
	"github.com/mattjoyce/hireflow/internal/stage"
	"github.com/mattjoyce/hireflow/internal/storage"
	"github.com/mattjoyce/hireflow/internal/store"
	"github.com/mattjoyce/hireflow/internal/tally"
)

type fixture struct {
	svc    *Service
	store  *store.Store
	sender *mocks.MockSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "hireflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	st := store.New(db)
	sender := mocks.NewMockSender(gomock.NewController(t))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		svc:    New(st, stage.Default(), sender, 800, logger),
		store:  st,
		sender: sender,
	}
}

type templateMatcher notify.Template

func (m templateMatcher) Matches(x interface{}) bool {
	msg, ok := x.(notify.Message)
	return ok && msg.Template == notify.Template(m)
}

func (m templateMatcher) String() string { return "message with template " + string(m) }

func (f *fixture) expectMail(tpl notify.Template) *gomock.Call {
	return f.sender.EXPECT().Send(gomock.Any(), templateMatcher(tpl)).Return(nil)
}

func (f *fixture) application(t *testing.T, id string) *recruit.Application {
	t.Helper()
	var app *recruit.Application
	require.NoError(t, f.store.Atomically(context.Background(), func(tx *store.Tx) error {
		var err error
		app, err = tx.GetApplication(context.Background(), id)
		return err
	}))
	return app
}

func (f *fixture) auditCount(t *testing.T, applicationID string) int {
	t.Helper()
	var n int
	require.NoError(t, f.store.Atomically(context.Background(), func(tx *store.Tx) error {
		var err error
		n, err = tx.CountAudit(context.Background(), applicationID)
		return err
	}))
	return n
}

func (f *fixture) specializedAssessments(t *testing.T, applicationID string) []*recruit.Assessment {
	t.Helper()
	var out []*recruit.Assessment
	require.NoError(t, f.store.Atomically(context.Background(), func(tx *store.Tx) error {
		var err error
		out, err = tx.ListApplicationAssessments(context.Background(), applicationID)
		return err
	}))
	return out
}

func envelope(submissionID, respondentID, formName string, fields ...tally.Field) tally.Event {
	return tally.Event{
		EventID:   "evt-" + submissionID,
		EventType: "FORM_RESPONSE",
		CreatedAt: "2026-03-01T10:00:00Z",
		Data: tally.Submission{
			ResponseID:   "resp-" + submissionID,
			SubmissionID: submissionID,
			RespondentID: respondentID,
			FormID:       "form-" + formName,
			FormName:     formName,
			CreatedAt:    "2026-03-01T10:00:00Z",
			Fields:       fields,
		},
	}
}

func textField(label, value string) tally.Field {
	return tally.Field{Key: "question_" + strings.ReplaceAll(label, " ", "_"), Label: label, Type: "INPUT_TEXT", Value: tally.StringValue(value)}
}

func numberField(label string, value float64) tally.Field {
	return tally.Field{Key: "question_" + strings.ReplaceAll(label, " ", "_"), Label: label, Type: "INPUT_NUMBER", Value: tally.NumberValue(value)}
}

func applicationEvent(submissionID, email, position string) tally.Event {
	return envelope(submissionID, "rsp-"+email, "Job Application",
		textField("Email", email),
		textField("First Name", "Ana"),
		textField("Last Name", "Silva"),
		textField("Position", position),
	)
}

func gcEvent(submissionID, email string, score float64) tally.Event {
	return envelope(submissionID, "rsp-gc-"+email, "General Competencies",
		textField("Email", email),
		numberField("Score", score),
		numberField("Culture Score", score/3),
	)
}

func scEvent(submissionID, respondentID, applicationID string) tally.Event {
	fields := []tally.Field{
		textField("Competency", "Backend"),
		{Key: "question_task", Label: "Task", Type: "FILE_UPLOAD", Value: tally.FilesValue(tally.File{URL: "https://cdn.example/task.zip"})},
	}
	if applicationID != "" {
		fields = append(fields, textField("Application ID", applicationID))
	}
	return envelope(submissionID, respondentID, "Backend Task", fields...)
}

func agreementEvent(submissionID, applicationID string) tally.Event {
	return envelope(submissionID, "rsp-agreement", "Agreement",
		textField("Application ID", applicationID),
		textField("Legal First Name", "Ana"),
		textField("Legal Last Name", "Silva"),
		tally.Field{Key: "question_privacy", Label: "Privacy Policy", Type: "CHECKBOX", Value: tally.BoolValue(true)},
	)
}

// toSpecialized applies and passes GC, leaving the application at
// SPECIALIZED_COMPETENCIES.
func (f *fixture) toSpecialized(t *testing.T, email, position string) *Result {
	t.Helper()
	ctx := context.Background()
	f.expectMail(notify.TemplateGCInvitation)
	f.expectMail(notify.TemplateSCInvitation)

	res, err := f.svc.IngestApplication(ctx, applicationEvent("app-"+email+position, email, position))
	require.NoError(t, err)
	_, err = f.svc.IngestGeneralCompetency(ctx, gcEvent("gc-"+email+position, email, 900))
	require.NoError(t, err)

	app := f.application(t, res.ApplicationID)
	require.Equal(t, recruit.StageSpecializedCompetencies, app.CurrentStage)
	return res
}

// toInterview continues to INTERVIEW with one passed SC review.
func (f *fixture) toInterview(t *testing.T, email, position string) *Result {
	t.Helper()
	ctx := context.Background()
	res := f.toSpecialized(t, email, position)

	sc, err := f.svc.IngestSpecializedCompetency(ctx, scEvent("sc-"+email+position, "", res.ApplicationID))
	require.NoError(t, err)
	_, err = f.svc.ReviewAssessment(ctx, sc.AssessmentID, true, "reviewer-1")
	require.NoError(t, err)
	_, err = f.svc.AdvanceToInterview(ctx, res.ApplicationID, "recruiter-1")
	require.NoError(t, err)
	return res
}

func TestApplicationInvitesToGeneralCompetencies(t *testing.T) {
	f := newFixture(t)
	var sent notify.Message
	f.expectMail(notify.TemplateGCInvitation).Do(func(_ context.Context, msg notify.Message) { sent = msg })

	res, err := f.svc.IngestApplication(context.Background(), applicationEvent("sub-1", "Ana@Example.com", "Designer"))
	require.NoError(t, err)

	assert.Equal(t, recruit.StageApplication, res.CurrentStage)
	assert.Equal(t, recruit.StatusActive, res.Status)
	assert.NotEmpty(t, res.PersonID)
	assert.False(t, res.Replayed)

	assert.Equal(t, "ana@example.com", sent.To)
	assert.Equal(t, res.ApplicationID, sent.ApplicationID)
	assert.Equal(t, "Designer", sent.Data["position"])

	app := f.application(t, res.ApplicationID)
	assert.Equal(t, "rsp-Ana@Example.com", app.RespondentID)
	assert.Equal(t, "sub-1", app.SubmissionID)
}

func TestApplicationReplayIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectMail(notify.TemplateGCInvitation).Times(1)

	ev := applicationEvent("sub-1", "ana@example.com", "Designer")
	first, err := f.svc.IngestApplication(ctx, ev)
	require.NoError(t, err)
	before := f.auditCount(t, first.ApplicationID)

	second, err := f.svc.IngestApplication(ctx, ev)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.ApplicationID, second.ApplicationID)
	assert.Equal(t, first.CurrentStage, second.CurrentStage)
	assert.Equal(t, before, f.auditCount(t, first.ApplicationID))
}

func TestApplicationMissingFieldIsReported(t *testing.T) {
	f := newFixture(t)
	ev := envelope("sub-1", "rsp-1", "Job Application", textField("Email", "a@x.com"))

	_, err := f.svc.IngestApplication(context.Background(), ev)
	var mfe *extract.MissingFieldError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, "first name", mfe.Field)
}

func TestSecondApplicationForSamePositionIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectMail(notify.TemplateGCInvitation).Times(1)

	_, err := f.svc.IngestApplication(ctx, applicationEvent("sub-1", "ana@example.com", "Designer"))
	require.NoError(t, err)
	_, err = f.svc.IngestApplication(ctx, applicationEvent("sub-2", "ana@example.com", "Designer"))
	require.Error(t, err)
	assert.True(t, IsInvariant(err))
}

func TestGeneralCompetencyPassAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectMail(notify.TemplateGCInvitation)
	f.expectMail(notify.TemplateSCInvitation)

	app, err := f.svc.IngestApplication(ctx, applicationEvent("sub-1", "ana@example.com", "Designer"))
	require.NoError(t, err)

	res, err := f.svc.IngestGeneralCompetency(ctx, gcEvent("gc-1", "ana@example.com", 850))
	require.NoError(t, err)
	require.NotNil(t, res.Passed)
	assert.True(t, *res.Passed)
	assert.Equal(t, app.PersonID, res.PersonID)
	require.Len(t, res.Applications, 1)
	assert.Equal(t, recruit.StageSpecializedCompetencies, res.Applications[0].CurrentStage)

	history, err := f.svc.History(ctx, app.ApplicationID)
	require.NoError(t, err)
	var summaries []string
	for _, h := range history {
		summaries = append(summaries, h.Summary)
	}
	assert.Contains(t, summaries, "Moved from Application to General Competencies (general competencies completed)")
	assert.Contains(t, summaries, "Moved from General Competencies to Specialized Competencies (general competencies passed)")
	assert.Contains(t, summaries, "Sent sc invitation email")
}

func TestGeneralCompetencyFailStopsAtGeneralCompetencies(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectMail(notify.TemplateGCInvitation)

	app, err := f.svc.IngestApplication(ctx, applicationEvent("sub-1", "ana@example.com", "Designer"))
	require.NoError(t, err)

	res, err := f.svc.IngestGeneralCompetency(ctx, gcEvent("gc-1", "ana@example.com", 500))
	require.NoError(t, err)
	assert.False(t, *res.Passed)
	assert.Equal(t, recruit.StageGeneralCompetencies, f.application(t, app.ApplicationID).CurrentStage)

	var person *recruit.Person
	var attempts []*recruit.Assessment
	require.NoError(t, f.store.Atomically(ctx, func(tx *store.Tx) error {
		var err error
		if person, err = tx.GetPerson(ctx, app.PersonID); err != nil {
			return err
		}
		attempts, err = tx.ListPersonAssessments(ctx, app.PersonID)
		return err
	}))
	assert.True(t, person.GeneralCompetenciesCompleted)
	assert.Nil(t, person.GeneralCompetenciesPassedAt)
	require.Len(t, attempts, 1)
	assert.Equal(t, 800.0, *attempts[0].Threshold)
	assert.False(t, *attempts[0].Passed)
}

func TestGeneralCompetencyThresholdIsCapturedAtGrading(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.IngestGeneralCompetency(ctx, gcEvent("gc-1", "ana@example.com", 700))
	require.NoError(t, err)

	f.svc.threshold = 600
	res, err := f.svc.IngestGeneralCompetency(ctx, gcEvent("gc-2", "ana@example.com", 700))
	require.NoError(t, err)
	assert.True(t, *res.Passed)

	var attempts []*recruit.Assessment
	require.NoError(t, f.store.Atomically(ctx, func(tx *store.Tx) error {
		var err error
		attempts, err = tx.ListPersonAssessments(ctx, res.PersonID)
		return err
	}))
	require.Len(t, attempts, 2)
	assert.Equal(t, 800.0, *attempts[0].Threshold)
	assert.False(t, *attempts[0].Passed)
	assert.Equal(t, 600.0, *attempts[1].Threshold)
	assert.True(t, *attempts[1].Passed)
}

func TestGeneralCompetencyCreatesUnknownPerson(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.IngestGeneralCompetency(context.Background(), gcEvent("gc-1", "new@example.com", 900))
	require.NoError(t, err)
	assert.NotEmpty(t, res.PersonID)
	assert.Empty(t, res.Applications)
}

func TestGeneralCompetencyUnknownPersonID(t *testing.T) {
	f := newFixture(t)
	ev := envelope("gc-1", "rsp", "General Competencies",
		textField("Person ID", "missing"),
		numberField("Score", 900),
	)
	_, err := f.svc.IngestGeneralCompetency(context.Background(), ev)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPriorPassAdvancesNewApplicationAndLaterGCLeavesItAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.toSpecialized(t, "ana@example.com", "Designer")

	f.expectMail(notify.TemplateSCInvitation)
	second, err := f.svc.IngestApplication(ctx, applicationEvent("app-2", "ana@example.com", "Developer"))
	require.NoError(t, err)
	assert.Equal(t, recruit.StageSpecializedCompetencies, second.CurrentStage)

	res, err := f.svc.IngestGeneralCompetency(ctx, gcEvent("gc-retake", "ana@example.com", 100))
	require.NoError(t, err)
	assert.False(t, *res.Passed)
	for _, id := range []string{first.ApplicationID, second.ApplicationID} {
		assert.Equal(t, recruit.StageSpecializedCompetencies, f.application(t, id).CurrentStage)
	}
}

func TestSpecializedCompetencyResolvedByRespondent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.toSpecialized(t, "ana@example.com", "Designer")

	res, err := f.svc.IngestSpecializedCompetency(ctx, scEvent("sc-1", "rsp-ana@example.com", ""))
	require.NoError(t, err)
	assert.Equal(t, app.ApplicationID, res.ApplicationID)

	got := f.specializedAssessments(t, app.ApplicationID)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Passed)
	assert.True(t, got[0].AwaitingReview())
	assert.Equal(t, "Backend", got[0].Competency)
	assert.Equal(t, []string{"https://cdn.example/task.zip"}, got[0].Artifacts)
}

func TestSpecializedCompetencyUnknownApplication(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.IngestSpecializedCompetency(context.Background(), scEvent("sc-1", "nobody", ""))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAdvanceToInterviewNeedsPassedReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.toSpecialized(t, "ana@example.com", "Designer")

	sc, err := f.svc.IngestSpecializedCompetency(ctx, scEvent("sc-1", "", app.ApplicationID))
	require.NoError(t, err)

	_, err = f.svc.AdvanceToInterview(ctx, app.ApplicationID, "recruiter-1")
	var guard *stage.GuardError
	require.ErrorAs(t, err, &guard)
	assert.True(t, IsInvariant(err))
	assert.Equal(t, recruit.StageSpecializedCompetencies, f.application(t, app.ApplicationID).CurrentStage)

	_, err = f.svc.ReviewAssessment(ctx, sc.AssessmentID, false, "reviewer-1")
	require.NoError(t, err)
	_, err = f.svc.AdvanceToInterview(ctx, app.ApplicationID, "recruiter-1")
	require.ErrorAs(t, err, &guard)
}

func TestReviewAssessmentInvariants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.toSpecialized(t, "ana@example.com", "Designer")

	var gc []*recruit.Assessment
	require.NoError(t, f.store.Atomically(ctx, func(tx *store.Tx) error {
		var err error
		gc, err = tx.ListPersonAssessments(ctx, app.PersonID)
		return err
	}))
	require.Len(t, gc, 1)
	_, err := f.svc.ReviewAssessment(ctx, gc[0].ID, true, "reviewer-1")
	assert.ErrorIs(t, err, ErrInvariant)

	sc, err := f.svc.IngestSpecializedCompetency(ctx, scEvent("sc-1", "", app.ApplicationID))
	require.NoError(t, err)
	reviewed, err := f.svc.ReviewAssessment(ctx, sc.AssessmentID, true, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, "reviewer-1", reviewed.ReviewedBy)

	_, err = f.svc.ReviewAssessment(ctx, sc.AssessmentID, false, "reviewer-2")
	assert.ErrorIs(t, err, ErrInvariant)

	_, err = f.svc.ReviewAssessment(ctx, "missing", true, "reviewer-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHappyPathToSigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.toInterview(t, "ana@example.com", "Designer")
	assert.Equal(t, recruit.StageInterview, f.application(t, app.ApplicationID).CurrentStage)

	f.expectMail(notify.TemplateInterviewInvitation).Times(2)
	when := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	iv, err := f.svc.ScheduleInterview(ctx, app.ApplicationID, InterviewRequest{
		InterviewerID:  "interviewer-1",
		SchedulingLink: "https://cal.example/ana",
	}, "recruiter-1")
	require.NoError(t, err)
	require.NotNil(t, iv.InvitationSentAt)

	rescheduled, err := f.svc.ScheduleInterview(ctx, app.ApplicationID, InterviewRequest{ScheduledAt: &when}, "recruiter-1")
	require.NoError(t, err)
	assert.Equal(t, iv.ID, rescheduled.ID)
	assert.Equal(t, "https://cal.example/ana", rescheduled.SchedulingLink)
	require.NotNil(t, rescheduled.ScheduledAt)
	assert.True(t, when.Equal(*rescheduled.ScheduledAt))

	done, err := f.svc.CompleteInterview(ctx, iv.ID, recruit.OutcomeAccept, "strong", "interviewer-1")
	require.NoError(t, err)
	assert.Equal(t, recruit.OutcomeAccept, done.Outcome)
	_, err = f.svc.CompleteInterview(ctx, iv.ID, recruit.OutcomeAccept, "", "interviewer-1")
	assert.ErrorIs(t, err, ErrInvariant)

	f.expectMail(notify.TemplateOfferLetter)
	decided, err := f.svc.Decide(ctx, app.ApplicationID, DecisionRequest{Kind: recruit.DecisionAccept}, "recruiter-1")
	require.NoError(t, err)
	assert.Equal(t, recruit.StageAgreement, decided.CurrentStage)
	assert.Equal(t, recruit.StatusAccepted, decided.Status)
	assert.NotEmpty(t, decided.DecisionID)

	signed, err := f.svc.IngestAgreement(ctx, agreementEvent("ag-1", app.ApplicationID))
	require.NoError(t, err)
	assert.Equal(t, recruit.StageSigned, signed.CurrentStage)
	assert.Equal(t, recruit.StatusAccepted, signed.Status)

	stored := f.application(t, app.ApplicationID)
	require.NotNil(t, stored.Agreement)
	assert.Equal(t, "Ana", stored.Agreement.LegalFirstName)
	assert.True(t, stored.Agreement.PrivacyAccepted)

	history, err := f.svc.History(ctx, app.ApplicationID)
	require.NoError(t, err)
	var summaries []string
	for _, h := range history {
		summaries = append(summaries, h.Summary)
	}
	assert.Contains(t, summaries, "Status changed from Active to Accepted (application accepted)")
	assert.Contains(t, summaries, "Moved from Interview to Agreement (application accepted)")
	assert.Contains(t, summaries, "Moved from Agreement to Signed (agreement signed)")
	assert.Contains(t, summaries, "Sent offer letter email")

	counts, err := f.svc.StageCounts(ctx)
	require.NoError(t, err)
	assert.Contains(t, counts, store.StageCount{Stage: recruit.StageSigned, Status: recruit.StatusAccepted, Count: 1})
}

func TestScheduleInterviewOutsideInterviewStage(t *testing.T) {
	f := newFixture(t)
	app := f.toSpecialized(t, "ana@example.com", "Designer")
	_, err := f.svc.ScheduleInterview(context.Background(), app.ApplicationID, InterviewRequest{SchedulingLink: "x"}, "r")
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestRejectNeedsReasonAndIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.toSpecialized(t, "ana@example.com", "Designer")

	_, err := f.svc.Decide(ctx, app.ApplicationID, DecisionRequest{Kind: recruit.DecisionReject}, "recruiter-1")
	assert.ErrorIs(t, err, ErrInvariant)

	f.expectMail(notify.TemplateRejection)
	res, err := f.svc.Decide(ctx, app.ApplicationID, DecisionRequest{Kind: recruit.DecisionReject, Reason: "portfolio"}, "recruiter-1")
	require.NoError(t, err)
	assert.Equal(t, recruit.StatusRejected, res.Status)
	assert.Equal(t, recruit.StageSpecializedCompetencies, res.CurrentStage)

	_, err = f.svc.Decide(ctx, app.ApplicationID, DecisionRequest{Kind: recruit.DecisionAccept}, "recruiter-1")
	assert.ErrorIs(t, err, stage.ErrNoTransition)
	_, err = f.svc.Withdraw(ctx, app.ApplicationID, "", "recruiter-1")
	assert.ErrorIs(t, err, stage.ErrNoTransition)
}

func TestAcceptOnlyFromInterview(t *testing.T) {
	f := newFixture(t)
	app := f.toSpecialized(t, "ana@example.com", "Designer")
	_, err := f.svc.Decide(context.Background(), app.ApplicationID, DecisionRequest{Kind: recruit.DecisionAccept}, "r")
	assert.ErrorIs(t, err, stage.ErrNoTransition)
	assert.Equal(t, recruit.StatusActive, f.application(t, app.ApplicationID).Status)
}

func TestWithdrawOffer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.toInterview(t, "ana@example.com", "Designer")

	f.expectMail(notify.TemplateOfferLetter)
	_, err := f.svc.Decide(ctx, app.ApplicationID, DecisionRequest{Kind: recruit.DecisionAccept}, "recruiter-1")
	require.NoError(t, err)

	f.expectMail(notify.TemplateRejection)
	res, err := f.svc.WithdrawOffer(ctx, app.ApplicationID, "budget cut", "recruiter-1")
	require.NoError(t, err)
	assert.Equal(t, recruit.StatusRejected, res.Status)
	assert.Equal(t, recruit.StageAgreement, res.CurrentStage)

	var decisions []*recruit.Decision
	require.NoError(t, f.store.Atomically(ctx, func(tx *store.Tx) error {
		var err error
		decisions, err = tx.ListDecisions(ctx, app.ApplicationID)
		return err
	}))
	require.Len(t, decisions, 2)
	assert.False(t, decisions[0].IsOfferWithdrawal())
	assert.True(t, decisions[1].IsOfferWithdrawal())
	assert.Equal(t, recruit.DecisionReject, decisions[1].Kind)

	_, err = f.svc.IngestAgreement(ctx, agreementEvent("ag-1", app.ApplicationID))
	assert.True(t, IsInvariant(err))
}

func TestAgreementBeforeAcceptIsRefusedAndNotClaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	app := f.toInterview(t, "ana@example.com", "Designer")

	_, err := f.svc.IngestAgreement(ctx, agreementEvent("ag-1", app.ApplicationID))
	require.Error(t, err)
	assert.True(t, IsInvariant(err))
	assert.Nil(t, f.application(t, app.ApplicationID).Agreement)

	f.expectMail(notify.TemplateOfferLetter)
	_, err = f.svc.Decide(ctx, app.ApplicationID, DecisionRequest{Kind: recruit.DecisionAccept}, "recruiter-1")
	require.NoError(t, err)

	res, err := f.svc.IngestAgreement(ctx, agreementEvent("ag-1", app.ApplicationID))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, recruit.StageSigned, res.CurrentStage)
}

func TestWithdrawByCandidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectMail(notify.TemplateGCInvitation)
	app, err := f.svc.IngestApplication(ctx, applicationEvent("sub-1", "ana@example.com", "Designer"))
	require.NoError(t, err)

	res, err := f.svc.Withdraw(ctx, app.ApplicationID, "took another offer", "recruiter-1")
	require.NoError(t, err)
	assert.Equal(t, recruit.StatusWithdrawn, res.Status)

	_, err = f.svc.IngestGeneralCompetency(ctx, gcEvent("gc-1", "ana@example.com", 900))
	require.NoError(t, err)
	assert.Equal(t, recruit.StageApplication, f.application(t, app.ApplicationID).CurrentStage)
}

func TestEmailFailureKeepsTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sender.EXPECT().Send(gomock.Any(), templateMatcher(notify.TemplateGCInvitation)).Return(errors.New("smtp down"))

	res, err := f.svc.IngestApplication(ctx, applicationEvent("sub-1", "ana@example.com", "Designer"))
	require.NoError(t, err)

	history, err := f.svc.History(ctx, res.ApplicationID)
	require.NoError(t, err)
	for _, h := range history {
		assert.NotEqual(t, recruit.ActionEmailSent, h.ActionType)
	}
	assert.Equal(t, recruit.StageApplication, f.application(t, res.ApplicationID).CurrentStage)
}

func TestHistoryUnknownApplication(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.History(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentDuplicateDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectMail(notify.TemplateGCInvitation).Times(1)

	ev := applicationEvent("sub-1", "ana@example.com", "Designer")
	type outcome struct {
		res *Result
		err error
	}
	results := make(chan outcome, 5)
	for i := 0; i < 5; i++ {
		go func() {
			res, err := f.svc.IngestApplication(ctx, ev)
			results <- outcome{res, err}
		}()
	}

	ids := map[string]bool{}
	replayed := 0
	for i := 0; i < 5; i++ {
		o := <-results
		require.NoError(t, o.err)
		ids[o.res.ApplicationID] = true
		if o.res.Replayed {
			replayed++
		}
	}
	assert.Len(t, ids, 1, fmt.Sprint(ids))
	assert.Equal(t, 4, replayed)
}
