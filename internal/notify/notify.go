// Package notify defines the outbound email trigger points. Delivery lives
// elsewhere; this package only names the templates and hands messages to a
// Sender.
package notify

import (
	"context"
	"log/slog"
)

//go:generate mockgen -destination=mocks/mock_sender.go -package=mocks github.com/mattjoyce/hireflow/internal/notify Sender

// Template identifies one transactional email.
type Template string

const (
	TemplateGCInvitation        Template = "gc_invitation"
	TemplateSCInvitation        Template = "sc_invitation"
	TemplateInterviewInvitation Template = "interview_invitation"
	TemplateOfferLetter         Template = "offer_letter"
	TemplateRejection           Template = "rejection"
)

// Templates lists every template in a stable order.
var Templates = []Template{
	TemplateGCInvitation,
	TemplateSCInvitation,
	TemplateInterviewInvitation,
	TemplateOfferLetter,
	TemplateRejection,
}

// Message is one email to trigger.
type Message struct {
	Template      Template
	To            string
	Name          string
	PersonID      string
	ApplicationID string
	Data          map[string]string
}

// Sender delivers templated emails. Errors are reported to the caller, who
// logs them; they never undo a committed transition.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender records each trigger in the log and delivers nothing.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger.With("component", "notify")}
}

// Send logs the template and ids. The recipient address is not logged.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "email triggered",
		"template", string(msg.Template),
		"person_id", msg.PersonID,
		"application_id", msg.ApplicationID,
	)
	return nil
}
