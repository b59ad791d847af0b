package extract

import (
	"encoding/json"
	"time"

	"github.com/mattjoyce/hireflow/internal/tally"
)

var (
	gcPersonID    = tally.FieldSpec{Label: "Person ID", KeyPrefix: "question_hidden_person"}
	gcEmail       = tally.FieldSpec{Label: "Email", KeyPrefix: "question_gc_email"}
	gcScore       = tally.FieldSpec{Label: "Score", KeyPrefix: "question_gc_score"}
	gcCulture     = tally.FieldSpec{Label: "Culture Score", KeyPrefix: "question_gc_culture"}
	gcSituational = tally.FieldSpec{Label: "Situational Score", KeyPrefix: "question_gc_situational"}
	gcDigital     = tally.FieldSpec{Label: "Digital Score", KeyPrefix: "question_gc_digital"}

	scApplicationID = tally.FieldSpec{Label: "Application ID", KeyPrefix: "question_hidden_application"}
	scCompetency    = tally.FieldSpec{Label: "Competency", KeyPrefix: "question_hidden_competency"}
	scScore         = tally.FieldSpec{Label: "Score", KeyPrefix: "question_sc_score"}
)

// Sub-score names stored on a GC assessment.
const (
	SubScoreCulture     = "culture"
	SubScoreSituational = "situational"
	SubScoreDigital     = "digital"
)

// GeneralCompetencyRecord is a completed general-competency attempt.
type GeneralCompetencyRecord struct {
	PersonID     string
	Email        string
	Score        float64
	SubScores    map[string]float64
	RawPayload   json.RawMessage
	CompletedAt  *time.Time
	SubmissionID string
}

// GeneralCompetency extracts a GC submission. At least one of the hidden
// person id or the email must be present, and the composite score is
// required.
func GeneralCompetency(ev tally.Event) (GeneralCompetencyRecord, []tally.DriftWarning, error) {
	l := tally.NewLookup(FormGeneral, ev.Data.Fields)
	rec := GeneralCompetencyRecord{
		SubmissionID: ev.Data.SubmissionID,
		CompletedAt:  submittedAt(ev),
		RawPayload:   rawFields(ev.Data.Fields),
		SubScores:    map[string]float64{},
	}

	rec.PersonID, _ = l.Text(gcPersonID)
	if email, ok := l.Text(gcEmail); ok {
		rec.Email = normalizeEmail(email)
	}
	if rec.PersonID == "" && rec.Email == "" {
		return GeneralCompetencyRecord{}, l.Warnings, missing(FormGeneral, "person id")
	}

	score, ok := l.Number(gcScore)
	if !ok {
		return GeneralCompetencyRecord{}, l.Warnings, missing(FormGeneral, "score")
	}
	rec.Score = score

	for name, spec := range map[string]tally.FieldSpec{
		SubScoreCulture:     gcCulture,
		SubScoreSituational: gcSituational,
		SubScoreDigital:     gcDigital,
	} {
		if v, ok := l.Number(spec); ok {
			rec.SubScores[name] = v
		}
	}

	return rec, l.Warnings, nil
}

// SpecializedCompetencyRecord is a submitted specialized-competency task.
// ApplicationID may be empty: some SC forms do not carry the hidden field and
// the application must then be found by respondent.
type SpecializedCompetencyRecord struct {
	ApplicationID string
	RespondentID  string
	Competency    string
	Score         *float64
	Artifacts     []string
	RawPayload    json.RawMessage
	CompletedAt   *time.Time
	SubmissionID  string
}

// SpecializedCompetency extracts an SC submission. Nothing is required beyond
// the envelope; scoring is left to the reviewer when no score is present.
func SpecializedCompetency(ev tally.Event) (SpecializedCompetencyRecord, []tally.DriftWarning, error) {
	l := tally.NewLookup(FormSpecialized, ev.Data.Fields)
	rec := SpecializedCompetencyRecord{
		RespondentID: ev.Data.RespondentID,
		SubmissionID: ev.Data.SubmissionID,
		CompletedAt:  submittedAt(ev),
		RawPayload:   rawFields(ev.Data.Fields),
	}

	rec.ApplicationID, _ = l.Text(scApplicationID)
	if c, ok := l.Text(scCompetency); ok {
		rec.Competency = c
	} else {
		rec.Competency = ev.Data.FormName
	}
	if score, ok := l.Number(scScore); ok {
		rec.Score = &score
	}

	for _, f := range ev.Data.Fields {
		rec.Artifacts = append(rec.Artifacts, tally.FileURLs(f)...)
	}

	return rec, l.Warnings, nil
}
