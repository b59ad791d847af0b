// Package tally models the form service's webhook payloads.
//
// Field keys are regenerated whenever a form author recreates a question,
// while labels stay put. Lookups therefore go label first and fall back to a
// key prefix, reporting a DriftWarning when the fallback was needed.
package tally

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Event is the envelope of every webhook delivery.
type Event struct {
	EventID   string     `json:"eventId"`
	EventType string     `json:"eventType"`
	CreatedAt string     `json:"createdAt"`
	Data      Submission `json:"data"`
}

// Submission is one filled-in form.
type Submission struct {
	ResponseID   string  `json:"responseId"`
	SubmissionID string  `json:"submissionId"`
	RespondentID string  `json:"respondentId"`
	FormID       string  `json:"formId"`
	FormName     string  `json:"formName"`
	CreatedAt    string  `json:"createdAt"`
	Fields       []Field `json:"fields"`
}

// Field is a single answered question.
type Field struct {
	Key     string     `json:"key"`
	Label   string     `json:"label"`
	Type    string     `json:"type"`
	Value   FieldValue `json:"value"`
	Options []Option   `json:"options,omitempty"`
}

// Option is one selectable choice of a dropdown, checkbox or multi-select.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// File is an uploaded file reference.
type File struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	URL      string `json:"url"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// Choice is a selected option. Some field types send only the option id,
// others send the text inline.
type Choice struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

// ValueKind tags which member of FieldValue is populated.
type ValueKind int

const (
	KindEmpty ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindFiles
	KindChoices
	KindUnknown
)

func (k ValueKind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindFiles:
		return "files"
	case KindChoices:
		return "choices"
	default:
		return "unknown"
	}
}

// FieldValue is the decoded value of a field. Exactly one member matching
// Kind is meaningful.
type FieldValue struct {
	Kind    ValueKind
	Str     string
	Num     float64
	Bool    bool
	Files   []File
	Choices []Choice

	raw json.RawMessage
}

func StringValue(s string) FieldValue { return FieldValue{Kind: KindString, Str: s} }
func NumberValue(n float64) FieldValue { return FieldValue{Kind: KindNumber, Num: n} }
func BoolValue(b bool) FieldValue { return FieldValue{Kind: KindBool, Bool: b} }
func FilesValue(f ...File) FieldValue { return FieldValue{Kind: KindFiles, Files: f} }
func ChoiceIDs(ids ...string) FieldValue {
	choices := make([]Choice, len(ids))
	for i, id := range ids {
		choices[i] = Choice{ID: id}
	}
	return FieldValue{Kind: KindChoices, Choices: choices}
}

// Raw returns the JSON the value was decoded from, or a re-encoding when the
// value was built in code.
func (v FieldValue) Raw() json.RawMessage {
	if len(v.raw) > 0 {
		return v.raw
	}
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

// UnmarshalJSON decodes the loosely typed value into the tagged union.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	*v = FieldValue{raw: append(json.RawMessage(nil), data...)}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		v.Kind = KindEmpty
		return nil
	}

	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &v.Str); err != nil {
			return fmt.Errorf("decode string value: %w", err)
		}
		v.Kind = KindString
	case 't', 'f':
		if err := json.Unmarshal(trimmed, &v.Bool); err != nil {
			return fmt.Errorf("decode bool value: %w", err)
		}
		v.Kind = KindBool
	case '[':
		return v.decodeArray(trimmed)
	case '{':
		var c Choice
		if err := json.Unmarshal(trimmed, &c); err != nil || (c.ID == "" && c.Text == "") {
			v.Kind = KindUnknown
			return nil
		}
		v.Kind = KindChoices
		v.Choices = []Choice{c}
	default:
		var n float64
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("decode number value: %w", err)
		}
		v.Kind = KindNumber
		v.Num = n
	}
	return nil
}

func (v *FieldValue) decodeArray(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("decode array value: %w", err)
	}
	if len(items) == 0 {
		v.Kind = KindEmpty
		return nil
	}

	var (
		files   []File
		choices []Choice
	)
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 {
			continue
		}
		switch item[0] {
		case '"':
			var id string
			if err := json.Unmarshal(item, &id); err != nil {
				return fmt.Errorf("decode array item: %w", err)
			}
			choices = append(choices, Choice{ID: id})
		case '{':
			var probe map[string]json.RawMessage
			if err := json.Unmarshal(item, &probe); err != nil {
				return fmt.Errorf("decode array item: %w", err)
			}
			if _, ok := probe["url"]; ok {
				var f File
				if err := json.Unmarshal(item, &f); err != nil {
					return fmt.Errorf("decode file item: %w", err)
				}
				files = append(files, f)
				continue
			}
			var c Choice
			if err := json.Unmarshal(item, &c); err != nil {
				return fmt.Errorf("decode choice item: %w", err)
			}
			choices = append(choices, c)
		default:
			// numbers inside arrays are ranking/matrix answers; kept raw only
			v.Kind = KindUnknown
			return nil
		}
	}

	switch {
	case len(files) > 0 && len(choices) == 0:
		v.Kind = KindFiles
		v.Files = files
	case len(choices) > 0 && len(files) == 0:
		v.Kind = KindChoices
		v.Choices = choices
	default:
		v.Kind = KindUnknown
	}
	return nil
}

// MarshalJSON re-encodes the value; decoded values round-trip byte for byte.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	if len(v.raw) > 0 {
		return v.raw, nil
	}
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return []byte("null"), nil
		}
		return []byte(strconv.FormatFloat(v.Num, 'f', -1, 64)), nil
	case KindBool:
		return json.Marshal(v.Bool)
	case KindFiles:
		return json.Marshal(v.Files)
	case KindChoices:
		ids := make([]string, 0, len(v.Choices))
		plain := true
		for _, c := range v.Choices {
			if c.Text != "" {
				plain = false
				break
			}
			ids = append(ids, c.ID)
		}
		if plain {
			return json.Marshal(ids)
		}
		return json.Marshal(v.Choices)
	default:
		return []byte("null"), nil
	}
}

// IsEmpty reports whether the respondent left the field blank.
func (v FieldValue) IsEmpty() bool {
	switch v.Kind {
	case KindEmpty:
		return true
	case KindString:
		return strings.TrimSpace(v.Str) == ""
	case KindFiles:
		return len(v.Files) == 0
	case KindChoices:
		return len(v.Choices) == 0
	}
	return false
}
