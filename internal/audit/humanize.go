package audit

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mattjoyce/hireflow/internal/recruit"
)

var (
	changeLabel = regexp.MustCompile(`(?i)^\s*(stage|status)\s+changed:?\s*(?:from\s+)?([A-Z_]+)\s*(?:->|to)\s*([A-Z_]+)\s*$`)
	emailLabel  = regexp.MustCompile(`(?i)^\s*email\s+sent:?\s*([a-z_]+)\s*$`)
	createLabel = regexp.MustCompile(`(?i)^\s*created\s+([a-z_ ]+?)(?::\s*(.+))?\s*$`)
)

// Humanize turns an entry into a sentence. It tries the structured details
// first, then a pattern match on the raw label, then returns the label as
// is. It never panics and always returns the same text for the same entry.
func Humanize(e recruit.AuditEntry) string {
	if s := fromDetails(e); s != "" {
		return s
	}
	if s := fromLabel(e.Action); s != "" {
		return s
	}
	if label := strings.TrimSpace(e.Action); label != "" {
		return label
	}
	if e.ActionType != "" {
		return titleCase(string(e.ActionType))
	}
	return "Unknown action"
}

func fromDetails(e recruit.AuditEntry) string {
	d := e.Details
	switch e.ActionType {
	case recruit.ActionStageChange:
		from, to := detail(d, "from"), detail(d, "to")
		if from == "" || to == "" {
			return ""
		}
		return withReason(fmt.Sprintf("Moved from %s to %s", titleCase(from), titleCase(to)), detail(d, "reason"))
	case recruit.ActionStatusChange:
		from, to := detail(d, "from"), detail(d, "to")
		if from == "" || to == "" {
			return ""
		}
		return withReason(fmt.Sprintf("Status changed from %s to %s", titleCase(from), titleCase(to)), detail(d, "reason"))
	case recruit.ActionEmailSent:
		if tpl := detail(d, "template"); tpl != "" {
			return fmt.Sprintf("Sent %s email", strings.ReplaceAll(strings.ToLower(tpl), "_", " "))
		}
	case recruit.ActionCreate:
		entity := detail(d, "entity")
		if entity == "" {
			return ""
		}
		s := "Created " + strings.ToLower(entity)
		if subject := detail(d, "subject"); subject != "" {
			s += " for " + subject
		}
		return s
	case recruit.ActionUpdate:
		entity := detail(d, "entity")
		if entity == "" {
			return ""
		}
		s := "Updated " + strings.ToLower(entity)
		if field := detail(d, "field"); field != "" {
			s += " " + field
		}
		return s
	}
	return ""
}

func fromLabel(label string) string {
	if m := changeLabel.FindStringSubmatch(label); m != nil {
		if strings.EqualFold(m[1], "stage") {
			return fmt.Sprintf("Moved from %s to %s", titleCase(m[2]), titleCase(m[3]))
		}
		return fmt.Sprintf("Status changed from %s to %s", titleCase(m[2]), titleCase(m[3]))
	}
	if m := emailLabel.FindStringSubmatch(label); m != nil {
		return fmt.Sprintf("Sent %s email", strings.ReplaceAll(strings.ToLower(m[1]), "_", " "))
	}
	if m := createLabel.FindStringSubmatch(label); m != nil {
		s := "Created " + strings.ToLower(strings.TrimSpace(m[1]))
		if m[2] != "" {
			s += " for " + strings.TrimSpace(m[2])
		}
		return s
	}
	return ""
}

func withReason(s, reason string) string {
	if reason == "" {
		return s
	}
	return s + " (" + reason + ")"
}

// detail reads a string-ish value from a details blob of unknown shape.
func detail(d map[string]any, key string) string {
	v, ok := d[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	case float64, int, int64, bool:
		return fmt.Sprint(t)
	}
	return ""
}

func titleCase(s string) string {
	if st := recruit.Stage(strings.ToUpper(s)); st.Valid() {
		return st.Title()
	}
	if status := recruit.Status(strings.ToUpper(s)); status.Valid() {
		return status.Title()
	}
	words := strings.Fields(strings.ReplaceAll(strings.ToLower(s), "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
