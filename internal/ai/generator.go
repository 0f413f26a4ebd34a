package ai

import (
	"context"
	"errors"
)

var ErrGeneratorUnavailable = errors.New("text generation client unavailable")

type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

type GenerateRequest struct {
	Model           string
	Instructions    string
	Input           string
	Temperature     float64
	MaxOutputTokens int
}

type GenerateResult struct {
	Text    string
	ModelID string
	Usage   TokenUsage
}

// TextGenerator is the boundary to the text-generation collaborator.
// Implementations retry transport-level failures internally; semantic
// failures (malformed output) are the caller's problem, handled through
// the structured-output contract in this package.
type TextGenerator interface {
	Generate(ctx context.Context, request GenerateRequest) (GenerateResult, error)
	Available() bool
}
