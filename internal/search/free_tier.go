package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

// FreeTierProvider synthesizes low-confidence findings from the query text
// alone. Used when no provider is configured or the budget ledger refuses
// a paid call, so the pipeline can continue on free data.
type FreeTierProvider struct{}

func NewFreeTierProvider() *FreeTierProvider {
	return &FreeTierProvider{}
}

func (p *FreeTierProvider) Available() bool {
	return true
}

func (p *FreeTierProvider) Search(_ context.Context, query Query) ([]domain.Finding, error) {
	topic := strings.TrimSpace(query.Text)
	if topic == "" {
		topic = string(query.Category)
	}

	return []domain.Finding{
		{
			Title:   fmt.Sprintf("General background: %s", topic),
			Snippet: fmt.Sprintf("No paid lookup was issued for %q. Treat this %s angle as unverified and revisit it with fresh data.", topic, query.Category),
			Source:  "free_tier",
			Score:   0.2,
		},
	}, nil
}
