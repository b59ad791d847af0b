package extract

import (
	"github.com/mattjoyce/hireflow/internal/tally"
)

// Application form field map. Labels are what the form author typed; key
// prefixes are the keys observed the last time the map was refreshed.
var (
	appEmail        = tally.FieldSpec{Label: "Email", KeyPrefix: "question_Ap6vXe"}
	appFirstName    = tally.FieldSpec{Label: "First Name", KeyPrefix: "question_4x1Kq0"}
	appLastName     = tally.FieldSpec{Label: "Last Name", KeyPrefix: "question_jo0Wd7"}
	appPosition     = tally.FieldSpec{Label: "Position", KeyPrefix: "question_2EbR5A"}
	appPhone        = tally.FieldSpec{Label: "Phone Number", KeyPrefix: "question_xDJv8d"}
	appCountry      = tally.FieldSpec{Label: "Country", KeyPrefix: "question_RoVl0B"}
	appCity         = tally.FieldSpec{Label: "City", KeyPrefix: "question_oRqEGY"}
	appPortfolio    = tally.FieldSpec{Label: "Portfolio Link", KeyPrefix: "question_GpLxqk"}
	appEducation    = tally.FieldSpec{Label: "Education Level", KeyPrefix: "question_O7rDyK"}
	appPackage      = tally.FieldSpec{Label: "Application Package", KeyPrefix: "question_VPbL8N"}
	appResume       = tally.FieldSpec{Label: "Resume", KeyPrefix: "question_P9dWlB"}
	appAcademic     = tally.FieldSpec{Label: "Academic Background", KeyPrefix: "question_EQk6Jz"}
	appVideo        = tally.FieldSpec{Label: "Video Introduction", KeyPrefix: "question_rOeKjM"}
	appPreviousWork = tally.FieldSpec{Label: "Previous Experience", KeyPrefix: "question_4xZWqE"}
	appOtherFile    = tally.FieldSpec{Label: "Other File", KeyPrefix: "question_jo0bA7"}
)

// Option ids of the "Application Package" checkbox.
const (
	OptionResume       = "2b4a7c1e-5f0d-4b8e-9a3c-1d6e8f2a4b01"
	OptionAcademicBg   = "7c9e2f4a-1b3d-4e5f-8a6b-2c4d6e8f0a12"
	OptionVideoIntro   = "9e1f3a5b-7c2d-4f6e-8b0a-3d5f7e9a1c23"
	OptionPreviousWork = "4d6f8a0b-2c4e-4a1f-9c3b-5e7a9c1e3f34"
	OptionOtherFile    = "6f8a0c2d-4e6a-4c3b-8e5d-7a9c1e3a5b45"
)

// ApplicationRecord is everything needed to create a Person (or refresh its
// contact details) and a new Application.
type ApplicationRecord struct {
	Email          string
	FirstName      string
	LastName       string
	Position       string
	Phone          string
	Country        string
	City           string
	PortfolioURL   string
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
}

// Application extracts the job application form.
func Application(ev tally.Event) (ApplicationRecord, []tally.DriftWarning, error) {
	l := tally.NewLookup(FormApplication, ev.Data.Fields)
	rec := ApplicationRecord{
		SubmissionID: ev.Data.SubmissionID,
		RespondentID: ev.Data.RespondentID,
		ResponseID:   ev.Data.ResponseID,
	}

	email, ok := l.Text(appEmail)
	if !ok {
		return ApplicationRecord{}, l.Warnings, missing(FormApplication, "email")
	}
	rec.Email = normalizeEmail(email)

	if rec.FirstName, ok = l.Text(appFirstName); !ok {
		return ApplicationRecord{}, l.Warnings, missing(FormApplication, "first name")
	}
	if rec.LastName, ok = l.Text(appLastName); !ok {
		return ApplicationRecord{}, l.Warnings, missing(FormApplication, "last name")
	}
	if rec.Position, ok = l.DropdownText(appPosition); !ok {
		return ApplicationRecord{}, l.Warnings, missing(FormApplication, "position")
	}

	rec.Phone, _ = l.Text(appPhone)
	rec.Country, _ = l.DropdownText(appCountry)
	rec.City, _ = l.Text(appCity)
	rec.PortfolioURL, _ = l.Text(appPortfolio)
	rec.EducationLevel, _ = l.DropdownText(appEducation)

	if pkg, ok := l.Find(appPackage); ok {
		rec.HasResume = tally.HasOption(pkg, OptionResume)
		rec.HasAcademicBg = tally.HasOption(pkg, OptionAcademicBg)
		rec.HasVideoIntro = tally.HasOption(pkg, OptionVideoIntro)
		rec.HasPreviousWork = tally.HasOption(pkg, OptionPreviousWork)
		rec.HasOtherFile = tally.HasOption(pkg, OptionOtherFile)
	}

	rec.ResumeURL, _ = l.FileURL(appResume)
	rec.AcademicBgURL, _ = l.FileURL(appAcademic)
	rec.VideoIntroURL, _ = l.FileURL(appVideo)
	rec.PreviousWorkURL, _ = l.FileURL(appPreviousWork)
	rec.OtherFileURL, _ = l.FileURL(appOtherFile)

	return rec, l.Warnings, nil
}
