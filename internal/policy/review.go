package policy

import (
	"encoding/json"
	"errors"
	"strings"
)

var ErrAutoPublishNotAllowed = errors.New("automatic publication is not allowed")

// ReviewMetadata travels with every finalized report. Generated analysis
// is advisory; a human validates it before it reaches a customer.
type ReviewMetadata struct {
	Required          bool     `json:"required"`
	AllowedActions    []string `json:"allowed_actions"`
	ProhibitedActions []string `json:"prohibited_actions"`
	Disclaimer        string   `json:"disclaimer"`
}

func DefaultReviewMetadata() ReviewMetadata {
	return ReviewMetadata{
		Required:          true,
		AllowedActions:    []string{"download", "share_internal", "manual_review"},
		ProhibitedActions: []string{"auto_publish", "publish_now"},
		Disclaimer:        "generated market analysis; validate figures before acting on it",
	}
}

// ValidateManualOnlyPayload rejects request payloads that ask for the
// report to be published without human review.
func ValidateManualOnlyPayload(payload json.RawMessage) error {
	trimmed := strings.TrimSpace(string(payload))
	if trimmed == "" {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		// Only validate structured payloads.
		return nil
	}

	if hasAutoPublishFlag(decoded) {
		return ErrAutoPublishNotAllowed
	}
	return nil
}

func hasAutoPublishFlag(value any) bool {
	switch typed := value.(type) {
	case map[string]any:
		for rawKey, child := range typed {
			key := strings.ToLower(strings.TrimSpace(rawKey))
			switch key {
			case "auto_publish", "autopublish", "publish_automatically", "publish_now":
				if asBool(child) {
					return true
				}
			case "delivery_mode", "execution_mode", "mode", "action":
				if isAutomaticMode(child) {
					return true
				}
			}
			if hasAutoPublishFlag(child) {
				return true
			}
		}
	case []any:
		for _, child := range typed {
			if hasAutoPublishFlag(child) {
				return true
			}
		}
	}

	return false
}

func asBool(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "1", "yes", "y", "on":
			return true
		}
	case float64:
		return typed != 0
	case int:
		return typed != 0
	}
	return false
}

func isAutomaticMode(value any) bool {
	switch typed := value.(type) {
	case string:
		normalized := strings.ToLower(strings.TrimSpace(typed))
		switch normalized {
		case "auto", "automatic", "autopublish", "publish_now", "without_review":
			return true
		}
	case map[string]any, []any:
		return hasAutoPublishFlag(typed)
	}
	return false
}
