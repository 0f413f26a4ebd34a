package plan

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/iago/opportunity-radar-back/internal/domain"
)

var ErrDependencyCycle = errors.New("dependency cycle among planned work items")

const (
	lowConfidenceThreshold  = 0.6
	lowCompletenessThreshold = 0.5
	minCompetitorMentions   = 3
)

type Constraints struct {
	// MaxItems caps the plan. Zero means the default of 8.
	MaxItems int
	// CostPerLookup is the planner's estimate attached to each item.
	CostPerLookup float64
	Language      string
	Region        string
}

// Planner derives follow-up WorkItems from the weaknesses of a draft
// report: low-confidence sections, thin competitor coverage, missing
// figures. Output is deterministic for identical inputs.
type Planner struct {
	now func() time.Time
}

func NewPlanner() *Planner {
	return &Planner{now: func() time.Time { return time.Now().UTC() }}
}

type candidate struct {
	category domain.ResearchCategory
	query    string
	priority domain.WorkItemPriority
	// dependsOn references another candidate's query; used only for the
	// cycle check before any paid call is issued.
	dependsOn string
}

// Plan proposes and ranks candidate lookups for draft, trimmed to the cap.
// Ordering: priority tier descending, then insertion order (stable sort).
func (p *Planner) Plan(idea domain.Idea, draft *domain.Report, constraints Constraints) ([]domain.WorkItem, error) {
	maxItems := constraints.MaxItems
	if maxItems <= 0 {
		maxItems = 8
	}

	candidates := p.collect(idea, draft)
	if err := checkCycles(candidates); err != nil {
		return nil, err
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].priority.Tier() > candidates[j].priority.Tier()
	})
	if len(candidates) > maxItems {
		candidates = candidates[:maxItems]
	}

	now := p.now()
	items := make([]domain.WorkItem, 0, len(candidates))
	for _, c := range candidates {
		items = append(items, domain.WorkItem{
			ID:            uuid.NewString(),
			Category:      c.category,
			Query:         c.query,
			Priority:      c.priority,
			EstimatedCost: constraints.CostPerLookup,
			Status:        domain.WorkItemPending,
			CreatedAt:     now,
		})
	}
	return items, nil
}

func (p *Planner) collect(idea domain.Idea, draft *domain.Report) []candidate {
	market := strings.TrimSpace(idea.TargetMarket)
	title := strings.TrimSpace(idea.Title)

	candidates := make([]candidate, 0, 12)
	if draft == nil {
		// No draft yet: one broad lookup per category seeds the first pass.
		candidates = append(candidates,
			candidate{domain.CategoryMarketData, fmt.Sprintf("market size and growth for %s in %s", title, market), domain.PriorityHigh, ""},
			candidate{domain.CategoryCompetitor, fmt.Sprintf("main competitors for %s in %s", title, market), domain.PriorityHigh, ""},
			candidate{domain.CategoryMarketTrends, fmt.Sprintf("current trends shaping %s", market), domain.PriorityMedium, ""},
			candidate{domain.CategoryCustomer, fmt.Sprintf("customer pain points around %s", idea.ProblemStatement), domain.PriorityMedium, ""},
			candidate{domain.CategoryRegulatory, fmt.Sprintf("regulation affecting %s in %s", title, market), domain.PriorityLow, ""},
		)
		return candidates
	}

	for _, section := range draft.Sections {
		if section.Confidence < lowConfidenceThreshold || section.Completeness < lowCompletenessThreshold {
			candidates = append(candidates, candidate{
				category: categoryForSection(section.Category),
				query:    fmt.Sprintf("supporting data for %s of %s in %s", strings.ReplaceAll(string(section.Category), "_", " "), title, market),
				priority: priorityForConfidence(section.Confidence),
			})
		}
		if !containsFigures(section.Content) {
			candidates = append(candidates, candidate{
				category: domain.CategoryMarketData,
				query:    fmt.Sprintf("figures and statistics for %s of %s", strings.ReplaceAll(string(section.Category), "_", " "), title),
				priority: domain.PriorityMedium,
			})
		}
	}

	if competitors := draft.SectionByCategory(domain.SectionCompetitorLandscape); competitors != nil {
		if countCompetitorMentions(competitors.Content) < minCompetitorMentions {
			candidates = append(candidates, candidate{
				category: domain.CategoryCompetitor,
				query:    fmt.Sprintf("additional competitors and alternatives to %s in %s", title, market),
				priority: domain.PriorityHigh,
			})
		}
	}

	return dedupeCandidates(candidates)
}

// checkCycles walks dependsOn references. A cycle is fatal to planning,
// before any paid lookup is issued.
func checkCycles(candidates []candidate) error {
	edges := make(map[string]string, len(candidates))
	for _, c := range candidates {
		if c.dependsOn != "" {
			edges[c.query] = c.dependsOn
		}
	}
	for start := range edges {
		slow, fast := start, start
		for {
			next, ok := edges[fast]
			if !ok {
				break
			}
			fast = next
			next2, ok := edges[fast]
			if !ok {
				break
			}
			fast = next2
			slow = edges[slow]
			if slow == fast {
				return ErrDependencyCycle
			}
		}
	}
	return nil
}

func dedupeCandidates(candidates []candidate) []candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		key := string(c.category) + "|" + strings.ToLower(strings.Join(strings.Fields(c.query), " "))
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func priorityForConfidence(confidence float64) domain.WorkItemPriority {
	if confidence < 0.35 {
		return domain.PriorityHigh
	}
	return domain.PriorityMedium
}

func categoryForSection(section domain.SectionCategory) domain.ResearchCategory {
	switch section {
	case domain.SectionCompetitorLandscape:
		return domain.CategoryCompetitor
	case domain.SectionCustomerProfile:
		return domain.CategoryCustomer
	case domain.SectionRegulatoryOutlook:
		return domain.CategoryRegulatory
	case domain.SectionMarketAnalysis:
		return domain.CategoryMarketData
	default:
		return domain.CategoryMarketTrends
	}
}

var figurePattern = regexp.MustCompile(`\d+([.,]\d+)?\s*(%|million|billion|bi|mi|usd|eur|brl|\$)|\$\s*\d`)

func containsFigures(content string) bool {
	return figurePattern.MatchString(strings.ToLower(content))
}

var competitorSeparator = regexp.MustCompile(`[,;]|\band\b|\be\b`)

func countCompetitorMentions(content string) int {
	count := 0
	for _, fragment := range competitorSeparator.Split(content, -1) {
		if len(strings.Fields(fragment)) > 0 {
			count++
		}
	}
	return count
}
