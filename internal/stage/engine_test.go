package stage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hireflow/internal/notify"
	"github.com/mattjoyce/hireflow/internal/recruit"
)

func active(s recruit.Stage) State {
	return State{Stage: s, Status: recruit.StatusActive}
}

func TestDefaultTableIsValid(t *testing.T) {
	e, err := New(DefaultRules())
	require.NoError(t, err)
	assert.Len(t, e.Rules(), len(DefaultRules()))

	rules := e.Rules()
	for i := 1; i < len(rules); i++ {
		assert.LessOrEqual(t, rules[i-1].From.Rank(), rules[i].From.Rank())
	}
}

func TestAcceptChangesStatusThenStage(t *testing.T) {
	out, err := Default().Apply(active(recruit.StageInterview), Input{Event: EventAccept})
	require.NoError(t, err)

	assert.Equal(t, State{Stage: recruit.StageAgreement, Status: recruit.StatusAccepted}, out.After)
	require.Len(t, out.Changes, 2)
	assert.Equal(t, recruit.ActionStatusChange, out.Changes[0].Action)
	assert.Equal(t, "ACTIVE", out.Changes[0].From)
	assert.Equal(t, "ACCEPTED", out.Changes[0].To)
	assert.Equal(t, recruit.ActionStageChange, out.Changes[1].Action)
	assert.Equal(t, "INTERVIEW", out.Changes[1].From)
	assert.Equal(t, "AGREEMENT", out.Changes[1].To)
	assert.Equal(t, []notify.Template{notify.TemplateOfferLetter}, out.Emails)
}

func TestGCPassedAtApplicationChains(t *testing.T) {
	out, err := Default().Apply(active(recruit.StageApplication), Input{Event: EventGCPassed})
	require.NoError(t, err)

	assert.Equal(t, recruit.StageSpecializedCompetencies, out.After.Stage)
	require.Len(t, out.Changes, 2)
	assert.Equal(t, "APPLICATION", out.Changes[0].From)
	assert.Equal(t, "GENERAL_COMPETENCIES", out.Changes[0].To)
	assert.Equal(t, "GENERAL_COMPETENCIES", out.Changes[1].From)
	assert.Equal(t, "SPECIALIZED_COMPETENCIES", out.Changes[1].To)
	assert.Equal(t, []Event{EventGCPassed, EventGCPassed}, out.Fired)
	assert.Equal(t, []notify.Template{notify.TemplateSCInvitation}, out.Emails)
}

func TestPriorGCPassedRequiresHistory(t *testing.T) {
	e := Default()

	_, err := e.Apply(active(recruit.StageApplication), Input{Event: EventPriorGCPassed})
	var ge *GuardError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, recruit.StageApplication, ge.Stage)

	out, err := e.Apply(active(recruit.StageApplication), Input{
		Event: EventPriorGCPassed,
		Facts: Facts{PersonPassedGC: true},
	})
	require.NoError(t, err)
	assert.Equal(t, recruit.StageSpecializedCompetencies, out.After.Stage)
}

func TestGCFailed(t *testing.T) {
	e := Default()

	out, err := e.Apply(active(recruit.StageApplication), Input{Event: EventGCFailed})
	require.NoError(t, err)
	assert.Equal(t, recruit.StageGeneralCompetencies, out.After.Stage)
	assert.Equal(t, recruit.StatusActive, out.After.Status)

	out, err = e.Apply(active(recruit.StageGeneralCompetencies), Input{Event: EventGCFailed})
	require.NoError(t, err)
	assert.False(t, out.Changed())
	assert.Empty(t, out.Emails)
}

func TestAdvanceToInterviewGuard(t *testing.T) {
	e := Default()

	tests := []struct {
		name    string
		facts   Facts
		wantErr bool
	}{
		{"none reviewed", Facts{PendingSpecialized: 2}, true},
		{"one passed with failures and pending", Facts{PassedSpecialized: 1, PendingSpecialized: 1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Apply(active(recruit.StageSpecializedCompetencies), Input{Event: EventAdvanceToInterview, Facts: tt.facts})
			if tt.wantErr {
				var ge *GuardError
				assert.True(t, errors.As(err, &ge))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, recruit.StageInterview, out.After.Stage)
		})
	}
}

func TestRejectKeepsStage(t *testing.T) {
	for _, s := range liveStages {
		t.Run(string(s), func(t *testing.T) {
			out, err := Default().Apply(active(s), Input{Event: EventReject, Reason: "not a fit"})
			require.NoError(t, err)
			assert.Equal(t, s, out.After.Stage)
			assert.Equal(t, recruit.StatusRejected, out.After.Status)
			require.Len(t, out.Changes, 1)
			assert.Equal(t, "not a fit", out.Changes[0].Reason)
			assert.Equal(t, []notify.Template{notify.TemplateRejection}, out.Emails)
		})
	}
}

func TestTerminalStatusesBlockEngine(t *testing.T) {
	e := Default()
	events := []Event{EventGCPassed, EventGCFailed, EventAdvanceToInterview, EventInterviewCompleted, EventAccept, EventReject, EventWithdraw}

	for _, status := range []recruit.Status{recruit.StatusRejected, recruit.StatusWithdrawn} {
		for _, s := range recruit.Stages {
			for _, ev := range events {
				_, err := e.Apply(State{Stage: s, Status: status}, Input{Event: ev, Facts: Facts{PassedSpecialized: 3, PersonPassedGC: true}})
				assert.ErrorIs(t, err, ErrNoTransition, "%s %s %s", status, s, ev)
			}
		}
	}

	_, err := e.Apply(State{Stage: recruit.StageSigned, Status: recruit.StatusAccepted}, Input{Event: EventOfferWithdrawn})
	assert.ErrorIs(t, err, ErrNoTransition)
}

func TestAgreementPaths(t *testing.T) {
	e := Default()
	accepted := State{Stage: recruit.StageAgreement, Status: recruit.StatusAccepted}

	out, err := e.Apply(accepted, Input{Event: EventAgreementSigned})
	require.NoError(t, err)
	assert.Equal(t, State{Stage: recruit.StageSigned, Status: recruit.StatusAccepted}, out.After)

	out, err = e.Apply(accepted, Input{Event: EventOfferWithdrawn})
	require.NoError(t, err)
	assert.Equal(t, State{Stage: recruit.StageAgreement, Status: recruit.StatusRejected}, out.After)
	require.Len(t, out.Changes, 1)
	assert.Equal(t, recruit.ActionStatusChange, out.Changes[0].Action)

	_, err = e.Apply(State{Stage: recruit.StageAgreement, Status: recruit.StatusActive}, Input{Event: EventAgreementSigned})
	assert.ErrorIs(t, err, ErrNoTransition)
}

func TestNewRejectsBadTables(t *testing.T) {
	base := Rule{From: recruit.StageInterview, Event: EventAccept, RequireStatus: recruit.StatusActive, To: recruit.StageAgreement}

	tests := []struct {
		name  string
		rules []Rule
	}{
		{"duplicate", []Rule{base, base}},
		{"regress", []Rule{{From: recruit.StageInterview, Event: EventReject, RequireStatus: recruit.StatusActive, To: recruit.StageApplication}}},
		{"unknown stage", []Rule{{From: "LIMBO", Event: EventReject, RequireStatus: recruit.StatusActive}}},
		{"missing status", []Rule{{From: recruit.StageInterview, Event: EventReject}}},
		{"dangling chain", []Rule{{From: recruit.StageApplication, Event: EventGCPassed, RequireStatus: recruit.StatusActive, To: recruit.StageGeneralCompetencies, Chain: EventGCPassed}}},
		{"looping chain", []Rule{{From: recruit.StageInterview, Event: EventInterviewCompleted, RequireStatus: recruit.StatusActive, Chain: EventInterviewCompleted}}},
		{"chain status mismatch", []Rule{
			{From: recruit.StageInterview, Event: EventAccept, RequireStatus: recruit.StatusActive, To: recruit.StageAgreement, StatusTo: recruit.StatusAccepted, Chain: EventAgreementSigned},
			{From: recruit.StageAgreement, Event: EventAgreementSigned, RequireStatus: recruit.StatusActive, To: recruit.StageSigned},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.rules)
			assert.ErrorIs(t, err, errInvalidTable)
		})
	}
}

func TestNeverRegresses(t *testing.T) {
	for _, r := range DefaultRules() {
		assert.GreaterOrEqual(t, r.target().Rank(), r.From.Rank(), "%s on %s", r.Event, r.From)
	}
}
