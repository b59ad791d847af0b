package tally

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FieldSpec names a field the way the form author labelled it, plus the key
// prefix that identified it when the label map was last refreshed.
type FieldSpec struct {
	Label     string
	KeyPrefix string
}

// DriftWarning reports a field that was found only by its fallback key: the
// label changed upstream and the label map is stale.
type DriftWarning struct {
	Form  string
	Label string
	Key   string
}

func (w DriftWarning) String() string {
	return fmt.Sprintf("form %q: field %q not found by label, matched fallback key %q", w.Form, w.Label, w.Key)
}

// FindField resolves a field by case-insensitive label, then by key prefix.
// A key-prefix match returns a warning; callers decide whether to log it.
func FindField(fields []Field, label, keyPrefix, form string) (Field, *DriftWarning, bool) {
	if label != "" {
		for _, f := range fields {
			if strings.EqualFold(strings.TrimSpace(f.Label), label) {
				return f, nil, true
			}
		}
	}
	if keyPrefix != "" {
		for _, f := range fields {
			if strings.HasPrefix(f.Key, keyPrefix) {
				return f, &DriftWarning{Form: form, Label: label, Key: f.Key}, true
			}
		}
	}
	return Field{}, nil, false
}

// Lookup binds a field list to a form name and collects drift warnings
// across many FindField calls.
type Lookup struct {
	Form     string
	Fields   []Field
	Warnings []DriftWarning
}

func NewLookup(form string, fields []Field) *Lookup {
	return &Lookup{Form: form, Fields: fields}
}

// Find resolves spec and records any drift warning.
func (l *Lookup) Find(spec FieldSpec) (Field, bool) {
	f, warn, ok := FindField(l.Fields, spec.Label, spec.KeyPrefix, l.Form)
	if warn != nil {
		l.Warnings = append(l.Warnings, *warn)
	}
	return f, ok
}

func (l *Lookup) Text(spec FieldSpec) (string, bool) {
	f, ok := l.Find(spec)
	if !ok {
		return "", false
	}
	return String(f)
}

func (l *Lookup) Number(spec FieldSpec) (float64, bool) {
	f, ok := l.Find(spec)
	if !ok {
		return 0, false
	}
	return Number(f)
}

func (l *Lookup) FileURL(spec FieldSpec) (string, bool) {
	f, ok := l.Find(spec)
	if !ok {
		return "", false
	}
	return FileURL(f)
}

func (l *Lookup) DropdownText(spec FieldSpec) (string, bool) {
	f, ok := l.Find(spec)
	if !ok {
		return "", false
	}
	return DropdownText(f)
}

// String returns the trimmed text of a string field; blank counts as absent.
func String(f Field) (string, bool) {
	if f.Value.Kind != KindString {
		return "", false
	}
	s := strings.TrimSpace(f.Value.Str)
	return s, s != ""
}

// Number accepts numeric values and numeric strings. NaN and infinities are
// treated as absent.
func Number(f Field) (float64, bool) {
	var n float64
	switch f.Value.Kind {
	case KindNumber:
		n = f.Value.Num
	case KindString:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f.Value.Str), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// FileURL returns the URL of the first uploaded file.
func FileURL(f Field) (string, bool) {
	if f.Value.Kind != KindFiles {
		return "", false
	}
	for _, file := range f.Value.Files {
		if u := strings.TrimSpace(file.URL); u != "" {
			return u, true
		}
	}
	return "", false
}

// FileURLs returns every uploaded file URL in order.
func FileURLs(f Field) []string {
	if f.Value.Kind != KindFiles {
		return nil
	}
	var urls []string
	for _, file := range f.Value.Files {
		if u := strings.TrimSpace(file.URL); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// HasOption reports whether optionID is among the selected choices.
func HasOption(f Field, optionID string) bool {
	if f.Value.Kind != KindChoices {
		return false
	}
	for _, c := range f.Value.Choices {
		if c.ID == optionID {
			return true
		}
	}
	return false
}

// Checked is true for a literal true value or a non-empty checkbox selection.
func Checked(f Field) bool {
	switch f.Value.Kind {
	case KindBool:
		return f.Value.Bool
	case KindChoices:
		return len(f.Value.Choices) > 0
	}
	return false
}

// DropdownText resolves the selected options to their display text, joining
// multiple selections with ", ". Plain string values pass through.
func DropdownText(f Field) (string, bool) {
	switch f.Value.Kind {
	case KindString:
		return String(f)
	case KindChoices:
	default:
		return "", false
	}

	texts := make([]string, 0, len(f.Value.Choices))
	for _, c := range f.Value.Choices {
		if t := strings.TrimSpace(c.Text); t != "" {
			texts = append(texts, t)
			continue
		}
		for _, opt := range f.Options {
			if opt.ID == c.ID {
				if t := strings.TrimSpace(opt.Text); t != "" {
					texts = append(texts, t)
				}
				break
			}
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	return strings.Join(texts, ", "), true
}
