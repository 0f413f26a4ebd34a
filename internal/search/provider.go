package search

import (
	"context"
	"errors"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

var ErrSearchUnavailable = errors.New("search provider is not configured")

type Query struct {
	Category domain.ResearchCategory
	Text     string
	Language string
	Region   string
	MaxHits  int
}

// Provider is the web-lookup boundary. Failures are returned, never
// retried here beyond the client's own transport retries; the executor
// decides how to degrade.
type Provider interface {
	Search(ctx context.Context, query Query) ([]domain.Finding, error)
	Available() bool
}
