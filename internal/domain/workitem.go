package domain

import "time"

// ResearchCategory labels one kind of follow-up lookup.
type ResearchCategory string

const (
	CategoryMarketData   ResearchCategory = "market_data"
	CategoryCompetitor   ResearchCategory = "competitor"
	CategoryMarketTrends ResearchCategory = "market_trends"
	CategoryRegulatory   ResearchCategory = "regulatory"
	CategoryCustomer     ResearchCategory = "customer"
)

// ResearchCategories lists every recognized lookup category, in a fixed order.
func ResearchCategories() []ResearchCategory {
	return []ResearchCategory{
		CategoryMarketData,
		CategoryCompetitor,
		CategoryMarketTrends,
		CategoryRegulatory,
		CategoryCustomer,
	}
}

func IsResearchCategory(value string) bool {
	switch ResearchCategory(value) {
	case CategoryMarketData, CategoryCompetitor, CategoryMarketTrends, CategoryRegulatory, CategoryCustomer:
		return true
	default:
		return false
	}
}

type WorkItemPriority string

const (
	PriorityHigh   WorkItemPriority = "high"
	PriorityMedium WorkItemPriority = "medium"
	PriorityLow    WorkItemPriority = "low"
)

// Tier orders priorities for sorting: higher value sorts first.
func (p WorkItemPriority) Tier() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

type WorkItemStatus string

const (
	WorkItemPending    WorkItemStatus = "pending"
	WorkItemInProgress WorkItemStatus = "in_progress"
	WorkItemCompleted  WorkItemStatus = "completed"
	WorkItemFailed     WorkItemStatus = "failed"
)

// WorkItem is a single bounded follow-up lookup produced during gap planning.
// Terminal once completed or failed.
type WorkItem struct {
	ID            string           `json:"id"`
	Category      ResearchCategory `json:"category"`
	Query         string           `json:"query"`
	Priority      WorkItemPriority `json:"priority"`
	EstimatedCost float64          `json:"estimated_cost"`
	Status        WorkItemStatus   `json:"status"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Finding is one unit of researched information inside a task result.
type Finding struct {
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	URL     string  `json:"url,omitempty"`
	Source  string  `json:"source,omitempty"`
	Score   float64 `json:"score,omitempty"`
}

// TaskResult is the outcome of executing one WorkItem. A degraded result
// keeps the batch cardinality intact when the lookup failed or was refused.
type TaskResult struct {
	ItemID      string           `json:"item_id"`
	Category    ResearchCategory `json:"category"`
	Query       string           `json:"query"`
	Findings    []Finding        `json:"findings"`
	FromCache   bool             `json:"from_cache"`
	Degraded    bool             `json:"degraded"`
	FailureNote string           `json:"failure_note,omitempty"`
	Confidence  float64          `json:"confidence"`
	CostCharged float64          `json:"cost_charged"`
	CompletedAt time.Time        `json:"completed_at"`
}

// EnrichmentSummary is the merged, deduplicated view over a batch of task
// results, consumable by the generation step.
type EnrichmentSummary struct {
	ByCategory    map[ResearchCategory][]Finding `json:"by_category"`
	TotalFindings int                            `json:"total_findings"`
	DegradedItems int                            `json:"degraded_items"`
	CacheHits     int                            `json:"cache_hits"`
	TotalCost     float64                        `json:"total_cost"`
}
