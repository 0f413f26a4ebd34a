package enrich

import (
	"sort"
	"strings"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

// Merge folds a batch of task results into one enrichment summary.
// Pure function of its inputs: no external calls, no WorkItem mutation.
// Findings duplicated across results (same URL, or same normalized title)
// are kept once, preferring the higher-scored copy.
func Merge(results []domain.TaskResult) domain.EnrichmentSummary {
	summary := domain.EnrichmentSummary{
		ByCategory: make(map[domain.ResearchCategory][]domain.Finding),
	}

	type seenKey struct {
		category domain.ResearchCategory
		identity string
	}
	best := make(map[seenKey]domain.Finding)
	order := make([]seenKey, 0)

	for _, result := range results {
		if result.Degraded {
			summary.DegradedItems++
		}
		if result.FromCache {
			summary.CacheHits++
		}
		summary.TotalCost += result.CostCharged

		for _, finding := range result.Findings {
			identity := findingIdentity(finding)
			if identity == "" {
				continue
			}
			key := seenKey{category: result.Category, identity: identity}
			existing, exists := best[key]
			if !exists {
				best[key] = finding
				order = append(order, key)
				continue
			}
			if finding.Score > existing.Score {
				best[key] = finding
			}
		}
	}

	for _, key := range order {
		summary.ByCategory[key.category] = append(summary.ByCategory[key.category], best[key])
		summary.TotalFindings++
	}
	for category := range summary.ByCategory {
		findings := summary.ByCategory[category]
		sort.SliceStable(findings, func(i, j int) bool {
			return findings[i].Score > findings[j].Score
		})
		summary.ByCategory[category] = findings
	}
	return summary
}

func findingIdentity(finding domain.Finding) string {
	if url := strings.TrimSpace(strings.ToLower(finding.URL)); url != "" {
		return "url:" + strings.TrimRight(url, "/")
	}
	title := strings.Join(strings.Fields(strings.ToLower(finding.Title)), " ")
	if title != "" {
		return "title:" + title
	}
	snippet := strings.Join(strings.Fields(strings.ToLower(finding.Snippet)), " ")
	if snippet != "" {
		return "snippet:" + snippet
	}
	return ""
}
