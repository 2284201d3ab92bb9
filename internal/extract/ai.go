package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// Request is one structuring call to an AI capability.
type Request struct {
	Text   string
	Prompt string
	Model  string
}

// AIClient is the external text-in, text-out AI capability.
type AIClient interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// AIClientFunc adapts a function to AIClient.
type AIClientFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f AIClientFunc) Complete(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// AIOutcome classifies the result of the primary structuring path.
type AIOutcome int

const (
	OutcomeOK AIOutcome = iota
	OutcomeUnreachable
	OutcomeMalformed
	OutcomeEmpty
	OutcomeDisabled
)

func (o AIOutcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeMalformed:
		return "malformed"
	case OutcomeEmpty:
		return "empty"
	case OutcomeDisabled:
		return "disabled"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Reason returns the result reason reported when this outcome sends the
// request down the fallback path.
func (o AIOutcome) Reason() string {
	switch o {
	case OutcomeUnreachable:
		return "ai_unreachable"
	case OutcomeMalformed:
		return "ai_malformed_response"
	case OutcomeEmpty:
		return "ai_empty_response"
	case OutcomeDisabled:
		return "ai_disabled"
	}
	return ""
}

// MarshalText encodes the outcome by name.
func (o AIOutcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// AIError wraps the failure behind a non-OK outcome.
type AIError struct {
	Outcome AIOutcome
	Err     error
}

func (e *AIError) Error() string {
	return fmt.Sprintf("ai structuring %s: %v", e.Outcome, e.Err)
}

func (e *AIError) Unwrap() error { return e.Err }

// DefaultPrompt instructs the model to answer with the record schema only.
const DefaultPrompt = `You extract contact details from the OCR text of a business card.
Return only a JSON object with exactly these keys:
name, title, company, email, phone, mobile, website, address, university,
department, language, social_media, notes, other.
Each value is a string copied from the text, or null when the card does not state it.
Do not guess values. Do not add keys. Do not wrap the object in markdown.`

var (
	emailFormat   = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	websiteFormat = regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?(?:[a-z0-9](?:[a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,}(?:[/?#]\S*)?$`)
	phoneFormat   = regexp.MustCompile(`^\+?[\d\s().\-/]+$`)
)

// ValidEmail reports whether v is a syntactically valid e-mail address.
func ValidEmail(v string) bool { return emailFormat.MatchString(v) }

// ValidWebsite reports whether v looks like a URL or domain.
func ValidWebsite(v string) bool { return websiteFormat.MatchString(v) }

// ValidPhone reports whether v is a number with 7 to 15 digits.
func ValidPhone(v string) bool {
	if !phoneFormat.MatchString(v) {
		return false
	}
	n := countDigits(v)
	return n >= 7 && n <= 15
}

var formatChecks = map[string]func(string) bool{
	FieldEmail:   ValidEmail,
	FieldWebsite: ValidWebsite,
	FieldPhone:   ValidPhone,
	FieldMobile:  ValidPhone,
}

// StripCodeFences removes a markdown code fence wrapped around a response.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseResponse validates a raw AI response: a single JSON object whose keys
// are record field names and whose values are strings or null. Blank strings
// count as null. It returns the populated values.
func ParseResponse(raw string) (map[string]string, error) {
	body := StripCodeFences(raw)
	if body == "" {
		return nil, errors.New("empty response")
	}

	dec := json.NewDecoder(strings.NewReader(body))
	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if obj == nil {
		return nil, errors.New("response is not an object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after object")
	}

	values := make(map[string]string, len(obj))
	for k, v := range obj {
		if !IsFieldName(k) {
			return nil, fmt.Errorf("unrecognized key %q", k)
		}
		v = bytes.TrimSpace(v)
		if bytes.Equal(v, []byte("null")) {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return nil, fmt.Errorf("key %q: value must be a string or null", k)
		}
		if s = strings.TrimSpace(s); s != "" {
			values[k] = s
		}
	}
	return values, nil
}

// recordFromAI builds a record from validated AI values. Fields with a format
// check that fails get half the AI confidence.
func recordFromAI(values map[string]string, confidence float64) *ContactRecord {
	rec := &ContactRecord{}
	for _, name := range FieldNames {
		v, ok := values[name]
		if !ok {
			continue
		}
		c := confidence
		if check, ok := formatChecks[name]; ok && !check(v) {
			c = confidence / 2
		}
		_ = rec.Set(name, &Field{Value: v, Source: SourceAI, Confidence: c})
	}
	return rec
}
