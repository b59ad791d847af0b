package stage

import (
	"github.com/mattjoyce/hireflow/internal/notify"
	"github.com/mattjoyce/hireflow/internal/recruit"
)

// liveStages are the stages where an ACTIVE application can still be
// rejected or withdrawn.
var liveStages = []recruit.Stage{
	recruit.StageApplication,
	recruit.StageGeneralCompetencies,
	recruit.StageSpecializedCompetencies,
	recruit.StageInterview,
}

func priorGCPassed(f Facts) string {
	if !f.PersonPassedGC {
		return "person has no passing general competencies result"
	}
	return ""
}

func specializedPassed(f Facts) string {
	if f.PassedSpecialized < 1 {
		return "no specialized competencies assessment has been reviewed and passed"
	}
	return ""
}

// DefaultRules is the recruitment pipeline.
func DefaultRules() []Rule {
	rules := []Rule{
		{
			From: recruit.StageApplication, Event: EventGCPassed, RequireStatus: recruit.StatusActive,
			To: recruit.StageGeneralCompetencies, Chain: EventGCPassed,
			Reason: "general competencies completed",
		},
		{
			From: recruit.StageApplication, Event: EventGCFailed, RequireStatus: recruit.StatusActive,
			To:     recruit.StageGeneralCompetencies,
			Reason: "general competencies completed below threshold",
		},
		{
			From: recruit.StageApplication, Event: EventPriorGCPassed, RequireStatus: recruit.StatusActive,
			Guard: priorGCPassed, GuardName: "person passed general competencies before",
			To: recruit.StageGeneralCompetencies, Chain: EventGCPassed,
			Reason: "general competencies already passed",
		},
		{
			From: recruit.StageGeneralCompetencies, Event: EventGCPassed, RequireStatus: recruit.StatusActive,
			To:     recruit.StageSpecializedCompetencies,
			Emails: []notify.Template{notify.TemplateSCInvitation},
			Reason: "general competencies passed",
		},
		{
			From: recruit.StageGeneralCompetencies, Event: EventGCFailed, RequireStatus: recruit.StatusActive,
			Reason: "general competencies below threshold",
		},
		{
			From: recruit.StageSpecializedCompetencies, Event: EventAdvanceToInterview, RequireStatus: recruit.StatusActive,
			Guard: specializedPassed, GuardName: "at least one specialized assessment passed",
			To:     recruit.StageInterview,
			Reason: "specialized competencies reviewed",
		},
		{
			From: recruit.StageInterview, Event: EventInterviewCompleted, RequireStatus: recruit.StatusActive,
			Reason: "interview completed",
		},
		{
			From: recruit.StageInterview, Event: EventAccept, RequireStatus: recruit.StatusActive,
			To: recruit.StageAgreement, StatusTo: recruit.StatusAccepted,
			Emails: []notify.Template{notify.TemplateOfferLetter},
			Reason: "application accepted",
		},
		{
			From: recruit.StageAgreement, Event: EventAgreementSigned, RequireStatus: recruit.StatusAccepted,
			To:     recruit.StageSigned,
			Reason: "agreement signed",
		},
		{
			From: recruit.StageAgreement, Event: EventOfferWithdrawn, RequireStatus: recruit.StatusAccepted,
			StatusTo: recruit.StatusRejected,
			Emails:   []notify.Template{notify.TemplateRejection},
			Reason:   "offer withdrawn",
		},
	}

	for _, s := range liveStages {
		rules = append(rules,
			Rule{
				From: s, Event: EventReject, RequireStatus: recruit.StatusActive,
				StatusTo: recruit.StatusRejected,
				Emails:   []notify.Template{notify.TemplateRejection},
				Reason:   "application rejected",
			},
			Rule{
				From: s, Event: EventWithdraw, RequireStatus: recruit.StatusActive,
				StatusTo: recruit.StatusWithdrawn,
				Reason:   "candidate withdrew",
			},
		)
	}
	return rules
}

// Default returns the engine for DefaultRules.
func Default() *Engine {
	e, err := New(DefaultRules())
	if err != nil {
		panic(err)
	}
	return e
}
