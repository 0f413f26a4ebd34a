package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/iago/opportunity-radar-back/internal/budget"
	"github.com/iago/opportunity-radar-back/internal/cache"
	"github.com/iago/opportunity-radar-back/internal/domain"
	"github.com/iago/opportunity-radar-back/internal/search"
)

var ErrTooManyDegraded = errors.New("degraded results exceed the allowed fraction")

const degradedConfidence = 0.1

type Config struct {
	// Width bounds concurrent lookups; items beyond it queue for a slot.
	Width int
	// MaxDegradedFraction is the share of degraded results past which the
	// batch is reported as an aggregate failure. Zero means 0.5.
	MaxDegradedFraction float64
	// Language and Region scope the cache keys and lookups of this run.
	Language string
	Region   string
	Logger   *log.Logger
}

type Dependencies struct {
	Cache    *cache.ResearchCache
	Ledger   *budget.Ledger
	Provider search.Provider
	FreeTier search.Provider
}

// Executor fans WorkItems out to bounded concurrent workers. Every
// submitted item yields exactly one TaskResult; a failed or refused lookup
// degrades to a stub rather than aborting the batch.
type Executor struct {
	cache    *cache.ResearchCache
	ledger   *budget.Ledger
	provider search.Provider
	freeTier search.Provider
	width    int
	maxFrac  float64
	language string
	region   string
	logger   *log.Logger

	flight singleflight.Group
}

func New(deps Dependencies, config Config) *Executor {
	if config.Width <= 0 {
		config.Width = 5
	}
	if config.MaxDegradedFraction <= 0 || config.MaxDegradedFraction > 1 {
		config.MaxDegradedFraction = 0.5
	}
	freeTier := deps.FreeTier
	if freeTier == nil {
		freeTier = search.NewFreeTierProvider()
	}

	return &Executor{
		cache:    deps.Cache,
		ledger:   deps.Ledger,
		provider: deps.Provider,
		freeTier: freeTier,
		width:    config.Width,
		maxFrac:  config.MaxDegradedFraction,
		language: config.Language,
		region:   config.Region,
		logger:   config.Logger,
	}
}

// Execute runs items and returns one result slot per input item, in
// submission order. Item statuses transition in place: in_progress when a
// worker claims the item, then completed, or failed when the result is a
// degraded stub. A single item's failure never cancels its siblings;
// ErrTooManyDegraded is returned alongside the results when the degraded
// share crosses the configured fraction.
func (e *Executor) Execute(ctx context.Context, items []domain.WorkItem) ([]domain.TaskResult, error) {
	results := make([]domain.TaskResult, len(items))
	if len(items) == 0 {
		return results, nil
	}

	semaphore := make(chan struct{}, e.width)
	var wg sync.WaitGroup
	for index := range items {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				items[slot].Status = domain.WorkItemFailed
				results[slot] = e.stubResult(items[slot], fmt.Sprintf("cancelled before execution: %v", ctx.Err()))
				return
			}
			defer func() { <-semaphore }()

			items[slot].Status = domain.WorkItemInProgress
			result := e.executeOne(ctx, items[slot])
			if result.Degraded {
				items[slot].Status = domain.WorkItemFailed
			} else {
				items[slot].Status = domain.WorkItemCompleted
			}
			results[slot] = result
		}(index)
	}
	wg.Wait()

	degraded := 0
	for _, result := range results {
		if result.Degraded {
			degraded++
		}
	}
	if float64(degraded) > e.maxFrac*float64(len(items)) {
		return results, fmt.Errorf("%w: %d of %d items degraded", ErrTooManyDegraded, degraded, len(items))
	}
	return results, nil
}

func (e *Executor) executeOne(ctx context.Context, item domain.WorkItem) domain.TaskResult {
	key := cache.Key{
		Category: item.Category,
		Query:    item.Query,
		Language: e.language,
		Region:   e.region,
	}

	if payload, ok := e.cache.Get(key); ok {
		findings, err := decodeFindings(payload)
		if err == nil {
			return domain.TaskResult{
				ItemID:      item.ID,
				Category:    item.Category,
				Query:       item.Query,
				Findings:    findings,
				FromCache:   true,
				Confidence:  confidenceFor(findings),
				CompletedAt: time.Now().UTC(),
			}
		}
		e.logf("cache payload decode failed for item=%s, refetching: %v", item.ID, err)
	}

	signature := fmt.Sprintf("%s|%s|%s|%s", key.Category, key.Query, key.Language, key.Region)
	value, err, _ := e.flight.Do(signature, func() (any, error) {
		return e.lookup(ctx, item, key)
	})
	if err != nil {
		return e.stubResult(item, err.Error())
	}

	outcome := value.(*lookupOutcome)
	result := domain.TaskResult{
		ItemID:      item.ID,
		Category:    item.Category,
		Query:       item.Query,
		Findings:    outcome.findings,
		CompletedAt: time.Now().UTC(),
	}
	if outcome.fromFreeTier {
		result.Degraded = true
		result.Confidence = degradedConfidence
		result.FailureNote = outcome.note
		return result
	}

	result.Confidence = confidenceFor(outcome.findings)
	claimed := false
	outcome.costOnce.Do(func() {
		result.CostCharged = outcome.cost
		claimed = true
	})
	if !claimed {
		// A sibling in the same flight already paid for this key.
		result.FromCache = true
	}
	return result
}

type lookupOutcome struct {
	findings     []domain.Finding
	cost         float64
	fromFreeTier bool
	note         string
	costOnce     sync.Once
}

// lookup performs the budget pre-check, the paid call, the cache store and
// the spend record for one distinct key. Duplicate in-flight keys share
// this single execution.
func (e *Executor) lookup(ctx context.Context, item domain.WorkItem, key cache.Key) (*lookupOutcome, error) {
	if e.provider == nil || !e.provider.Available() {
		return e.freeLookup(ctx, item, key, "no paid search provider configured")
	}

	decision := e.ledger.CanAfford(budget.SourceWebSearch, 1)
	if !decision.Allowed {
		e.logf("budget refused lookup item=%s reason=%q", item.ID, decision.Reason)
		return e.freeLookup(ctx, item, key, "budget refused: "+decision.Reason)
	}

	findings, err := e.provider.Search(ctx, search.Query{
		Category: item.Category,
		Text:     item.Query,
		Language: key.Language,
		Region:   key.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	charged, chargeErr := e.ledger.RecordUsage(budget.SourceWebSearch, 1, item.Category)
	if chargeErr != nil {
		// The pre-check raced another worker past the limit. Keep the data
		// already fetched but surface the refusal through the ledger alert.
		e.logf("spend record refused after fetch item=%s: %v", item.ID, chargeErr)
	}

	if payload, encodeErr := json.Marshal(findings); encodeErr == nil {
		if cacheErr := e.cache.Set(key, payload, priorityWeight(item.Priority)); cacheErr != nil {
			e.logf("cache store rejected item=%s: %v", item.ID, cacheErr)
		}
	}

	return &lookupOutcome{findings: findings, cost: charged}, nil
}

func (e *Executor) freeLookup(ctx context.Context, item domain.WorkItem, key cache.Key, note string) (*lookupOutcome, error) {
	findings, err := e.freeTier.Search(ctx, search.Query{
		Category: item.Category,
		Text:     item.Query,
		Language: key.Language,
		Region:   key.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("free-tier fallback failed: %w", err)
	}
	return &lookupOutcome{findings: findings, fromFreeTier: true, note: note}, nil
}

// stubResult preserves batch cardinality when a lookup failed outright.
func (e *Executor) stubResult(item domain.WorkItem, note string) domain.TaskResult {
	return domain.TaskResult{
		ItemID:      item.ID,
		Category:    item.Category,
		Query:       item.Query,
		Findings:    []domain.Finding{},
		Degraded:    true,
		FailureNote: note,
		Confidence:  degradedConfidence,
		CompletedAt: time.Now().UTC(),
	}
}

func (e *Executor) logf(format string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Printf(format, args...)
}

func decodeFindings(payload json.RawMessage) ([]domain.Finding, error) {
	var findings []domain.Finding
	if err := json.Unmarshal(payload, &findings); err != nil {
		return nil, err
	}
	return findings, nil
}

func confidenceFor(findings []domain.Finding) float64 {
	switch {
	case len(findings) >= 5:
		return 0.9
	case len(findings) >= 2:
		return 0.7
	case len(findings) == 1:
		return 0.4
	default:
		return degradedConfidence
	}
}

func priorityWeight(priority domain.WorkItemPriority) float64 {
	switch priority {
	case domain.PriorityHigh:
		return 3
	case domain.PriorityMedium:
		return 2
	default:
		return 1
	}
}

