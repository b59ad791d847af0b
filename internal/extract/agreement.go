package extract

import "github.com/mattjoyce/hireflow/internal/tally"

var (
	agApplicationID = tally.FieldSpec{Label: "Application ID", KeyPrefix: "question_hidden_application"}
	agLegalFirst    = tally.FieldSpec{Label: "Legal First Name", KeyPrefix: "question_ag_legal_first"}
	agLegalLast     = tally.FieldSpec{Label: "Legal Last Name", KeyPrefix: "question_ag_legal_last"}
	agPreferred     = tally.FieldSpec{Label: "Preferred Name", KeyPrefix: "question_ag_preferred"}
	agPicture       = tally.FieldSpec{Label: "Profile Picture", KeyPrefix: "question_ag_picture"}
	agBiography     = tally.FieldSpec{Label: "Biography", KeyPrefix: "question_ag_bio"}
	agDateOfBirth   = tally.FieldSpec{Label: "Date of Birth", KeyPrefix: "question_ag_dob"}
	agCountry       = tally.FieldSpec{Label: "Country", KeyPrefix: "question_ag_country"}
	agPrivacy       = tally.FieldSpec{Label: "Privacy Policy", KeyPrefix: "question_ag_privacy"}
	agSignature     = tally.FieldSpec{Label: "Signature", KeyPrefix: "question_ag_signature"}
	agEntity        = tally.FieldSpec{Label: "Entity Represented", KeyPrefix: "question_ag_entity"}
	agServiceHours  = tally.FieldSpec{Label: "Service Hours", KeyPrefix: "question_ag_hours"}
)

type AgreementRecord struct {
	ApplicationID     string
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
	SubmissionID      string
}

// Agreement extracts the signed agreement form.
func Agreement(ev tally.Event) (AgreementRecord, []tally.DriftWarning, error) {
	l := tally.NewLookup(FormAgreement, ev.Data.Fields)
	rec := AgreementRecord{SubmissionID: ev.Data.SubmissionID}

	var ok bool
	if rec.ApplicationID, ok = l.Text(agApplicationID); !ok {
		return AgreementRecord{}, l.Warnings, missing(FormAgreement, "application id")
	}
	if rec.LegalFirstName, ok = l.Text(agLegalFirst); !ok {
		return AgreementRecord{}, l.Warnings, missing(FormAgreement, "legal first name")
	}
	if rec.LegalLastName, ok = l.Text(agLegalLast); !ok {
		return AgreementRecord{}, l.Warnings, missing(FormAgreement, "legal last name")
	}

	rec.PreferredName, _ = l.Text(agPreferred)
	rec.ProfilePictureURL, _ = l.FileURL(agPicture)
	rec.Biography, _ = l.Text(agBiography)
	rec.DateOfBirth, _ = l.Text(agDateOfBirth)
	rec.Country, _ = l.DropdownText(agCountry)
	if f, found := l.Find(agPrivacy); found {
		rec.PrivacyAccepted = tally.Checked(f)
	}
	rec.SignatureURL, _ = l.FileURL(agSignature)
	rec.EntityRepresented, _ = l.Text(agEntity)
	rec.ServiceHours, _ = l.DropdownText(agServiceHours)

	return rec, l.Warnings, nil
}
