package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParseError marks generated text that could not be decoded into the
// expected structure. Callers handle it by contract, falling back to a
// documented default object instead of aborting the run.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "structured output parse error: " + e.Reason
}

// ExtractJSON pulls the JSON document out of generated text, tolerating
// code fences and surrounding prose.
func ExtractJSON(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &ParseError{Reason: "empty model output"}
	}

	if strings.HasPrefix(trimmed, "```") {
		trimmed = stripCodeFence(trimmed)
	}

	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
		return json.RawMessage(trimmed), nil
	}

	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		candidate := trimmed[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
			return json.RawMessage(candidate), nil
		}
	}

	return nil, &ParseError{Reason: "model output is not valid JSON"}
}

// DecodeStructured extracts the JSON block and unmarshals it into target.
func DecodeStructured(text string, target any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &ParseError{Reason: fmt.Sprintf("decode into %T: %v", target, err)}
	}
	return nil
}

// IsParseError reports whether err is a structured-output parse failure.
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimPrefix(trimmed, "json")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}
