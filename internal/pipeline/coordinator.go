package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/iago/opportunity-radar-back/internal/domain"
	"github.com/iago/opportunity-radar-back/internal/enrich"
	"github.com/iago/opportunity-radar-back/internal/plan"
)

// GapPlanner proposes follow-up lookups for the weaknesses of a draft.
type GapPlanner interface {
	Plan(idea domain.Idea, draft *domain.Report, constraints plan.Constraints) ([]domain.WorkItem, error)
}

// WorkExecutor resolves planned lookups, one result slot per item.
type WorkExecutor interface {
	Execute(ctx context.Context, items []domain.WorkItem) ([]domain.TaskResult, error)
}

// SectionWriter is the generation collaborator. Draft and revision
// failures are absorbed by the coordinator, never propagated.
type SectionWriter interface {
	DraftSection(ctx context.Context, idea domain.Idea, category domain.SectionCategory, summary domain.EnrichmentSummary) (domain.Section, error)
	ReviseSection(ctx context.Context, idea domain.Idea, section domain.Section, notes []string, summary domain.EnrichmentSummary) (domain.Section, error)
	ModelID() string
}

// QualityEvaluator scores a report and selects revision candidates.
type QualityEvaluator interface {
	Evaluate(report *domain.Report) domain.QualityAssessment
	SectionsBelowThreshold(assessment domain.QualityAssessment) []domain.SectionCategory
}

type Config struct {
	// MaxRevisions bounds the regeneration loop. Zero means 2.
	MaxRevisions int
	// MaxWorkItems caps the gap plan. Zero means 8.
	MaxWorkItems int
	// CostPerLookup is the estimate attached to planned items.
	CostPerLookup float64
	Language      string
	Region        string
	// RunTimeout is the wall-clock budget for one run. When it expires
	// mid-phase the run finalizes with whatever artifact exists. Zero
	// means 3 minutes.
	RunTimeout time.Duration
	Events     EventSink
	Tracker    *StatusTracker
}

type Dependencies struct {
	Planner   GapPlanner
	Executor  WorkExecutor
	Writer    SectionWriter
	Evaluator QualityEvaluator
}

// Coordinator drives one run through planning, enrichment, drafting and
// the quality-gated revision loop. It owns no provider state: every
// collaborator is injected, so runs never interfere with each other.
type Coordinator struct {
	planner   GapPlanner
	executor  WorkExecutor
	writer    SectionWriter
	evaluator QualityEvaluator

	maxRevisions  int
	maxWorkItems  int
	costPerLookup float64
	language      string
	region        string
	runTimeout    time.Duration
	events        EventSink
	tracker       *StatusTracker

	now func() time.Time
}

func NewCoordinator(deps Dependencies, config Config) *Coordinator {
	if config.MaxRevisions <= 0 {
		config.MaxRevisions = 2
	}
	if config.MaxWorkItems <= 0 {
		config.MaxWorkItems = 8
	}
	if config.CostPerLookup <= 0 {
		config.CostPerLookup = 10
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 3 * time.Minute
	}
	if config.Events == nil {
		config.Events = &LogSink{}
	}
	if config.Tracker == nil {
		config.Tracker = NewStatusTracker()
	}

	return &Coordinator{
		planner:       deps.Planner,
		executor:      deps.Executor,
		writer:        deps.Writer,
		evaluator:     deps.Evaluator,
		maxRevisions:  config.MaxRevisions,
		maxWorkItems:  config.MaxWorkItems,
		costPerLookup: config.CostPerLookup,
		language:      config.Language,
		region:        config.Region,
		runTimeout:    config.RunTimeout,
		events:        config.Events,
		tracker:       config.Tracker,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Tracker exposes the status map for polling handlers.
func (c *Coordinator) Tracker() *StatusTracker {
	return c.tracker
}

// Run executes the full pipeline for one idea. Lookup failures, budget
// refusals and unmet thresholds come back as data on the outcome; the
// only fatal planning error is a dependency cycle, surfaced before any
// paid call is issued.
func (c *Coordinator) Run(ctx context.Context, runID string, idea domain.Idea) (domain.RunOutcome, error) {
	if runID == "" {
		runID = uuid.NewString()
	}
	started := c.now()
	deadline := started.Add(c.runTimeout)
	timeBounded := false

	c.setPhase(runID, domain.PhasePlanning, 0.1)
	items, err := c.planner.Plan(idea, nil, plan.Constraints{
		MaxItems:      c.maxWorkItems,
		CostPerLookup: c.costPerLookup,
		Language:      c.language,
		Region:        c.region,
	})
	if err != nil {
		c.setPhase(runID, domain.PhaseFailed, 0.1)
		c.emit(runID, domain.PhasePlanning, "planning aborted", map[string]any{"error": err.Error()})
		return domain.RunOutcome{}, err
	}
	c.emit(runID, domain.PhasePlanning, "gap plan ready", map[string]any{"items": len(items)})

	c.setPhase(runID, domain.PhaseEnriching, 0.3)
	var results []domain.TaskResult
	if c.expired(ctx, deadline) {
		timeBounded = true
	} else {
		results, err = c.executor.Execute(ctx, items)
		if err != nil {
			// Degraded overflow and cancellations are absorbed: the run
			// proceeds with whatever partial data came back.
			c.emit(runID, domain.PhaseEnriching, "enrichment degraded", map[string]any{
				"error":   err.Error(),
				"results": len(results),
			})
		}
	}
	summary := enrich.Merge(results)
	c.emit(runID, domain.PhaseEnriching, "enrichment merged", map[string]any{
		"findings":   summary.TotalFindings,
		"cache_hits": summary.CacheHits,
		"degraded":   summary.DegradedItems,
		"cost":       summary.TotalCost,
	})

	c.setPhase(runID, domain.PhaseDrafting, 0.5)
	report := domain.Report{
		ID:          uuid.NewString(),
		IdeaTitle:   idea.Title,
		ModelID:     c.writer.ModelID(),
		GeneratedAt: c.now(),
	}
	for _, category := range domain.SectionCategories() {
		if c.expired(ctx, deadline) {
			timeBounded = true
			report.Sections = append(report.Sections, c.fallbackSection(category))
			continue
		}
		section, draftErr := c.writer.DraftSection(ctx, idea, category, summary)
		if draftErr != nil {
			c.emit(runID, domain.PhaseDrafting, "section draft failed", map[string]any{
				"section": string(category),
				"error":   draftErr.Error(),
			})
			section = c.fallbackSection(category)
		}
		report.Sections = append(report.Sections, section)
	}

	c.setPhase(runID, domain.PhaseEvaluating, 0.7)
	assessment := c.evaluator.Evaluate(&report)
	revisions := make([]domain.RevisionRecord, 0, c.maxRevisions)

	// Once an evaluation passes the loop is terminal, even with revision
	// rounds still available.
	for !assessment.Passed && len(revisions) < c.maxRevisions {
		if c.expired(ctx, deadline) {
			timeBounded = true
			break
		}

		c.setPhase(runID, domain.PhaseRevising, 0.8)
		record := c.reviseOnce(ctx, runID, idea, &report, assessment, summary, len(revisions)+1)

		c.setPhase(runID, domain.PhaseEvaluating, 0.9)
		assessment = c.evaluator.Evaluate(&report)
		record.ScoreAfter = assessment.OverallScore
		revisions = append(revisions, record)
	}

	c.setPhase(runID, domain.PhaseFinalized, 1)
	outcome := domain.RunOutcome{
		Report:     report,
		Assessment: assessment,
		Revisions:  revisions,
		Statistics: domain.RunStatistics{
			WorkItemsPlanned:  len(items),
			WorkItemsExecuted: len(results),
			CacheHits:         summary.CacheHits,
			DegradedItems:     summary.DegradedItems,
			SpendTotal:        summary.TotalCost,
			Revisions:         len(revisions),
			FinalScore:        assessment.OverallScore,
			DurationMS:        c.now().Sub(started).Milliseconds(),
			TimeBounded:       timeBounded,
		},
		MeetsThreshold: assessment.Passed,
	}
	c.emit(runID, domain.PhaseFinalized, "run finalized", map[string]any{
		"score":           assessment.OverallScore,
		"meets_threshold": assessment.Passed,
		"revisions":       len(revisions),
		"time_bounded":    timeBounded,
	})
	return outcome, nil
}

// reviseOnce regenerates the weakest sections in place and returns the
// revision record with ScoreAfter still unset.
func (c *Coordinator) reviseOnce(
	ctx context.Context,
	runID string,
	idea domain.Idea,
	report *domain.Report,
	assessment domain.QualityAssessment,
	summary domain.EnrichmentSummary,
	revision int,
) domain.RevisionRecord {
	targets := c.evaluator.SectionsBelowThreshold(assessment)
	if len(targets) == 0 {
		// Aggregate failed with every section above the per-section bar:
		// regenerate the single weakest section.
		if weakest, ok := lowestScoring(assessment); ok {
			targets = []domain.SectionCategory{weakest}
		}
	}

	record := domain.RevisionRecord{
		Revision:        revision,
		Trigger:         "quality_below_threshold",
		SectionsTouched: targets,
		ScoreBefore:     assessment.OverallScore,
		RevisedAt:       c.now(),
	}

	for _, category := range targets {
		section := report.SectionByCategory(category)
		if section == nil {
			continue
		}
		revised, err := c.writer.ReviseSection(ctx, idea, *section, assessment.ImprovementNotes, summary)
		if err != nil {
			c.emit(runID, domain.PhaseRevising, "section revision failed", map[string]any{
				"section": string(category),
				"error":   err.Error(),
			})
			record.ChangeLog = append(record.ChangeLog, string(category)+": revision failed, previous content kept")
			continue
		}
		revised.Category = category
		revised.UpdatedAt = c.now()
		*section = revised
		record.ChangeLog = append(record.ChangeLog, string(category)+": regenerated")
	}
	return record
}

func (c *Coordinator) expired(ctx context.Context, deadline time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	return c.now().After(deadline)
}

func (c *Coordinator) fallbackSection(category domain.SectionCategory) domain.Section {
	return domain.Section{
		ID:           uuid.NewString(),
		Category:     category,
		Heading:      headingFor(category),
		Content:      "This section could not be generated; treat the report as preliminary.",
		Completeness: 0.2,
		Confidence:   0.1,
		UpdatedAt:    c.now(),
	}
}

func (c *Coordinator) setPhase(runID string, phase domain.RunPhase, progress float64) {
	c.tracker.Set(runID, phase, progress)
}

func (c *Coordinator) emit(runID string, phase domain.RunPhase, message string, fields map[string]any) {
	c.events.Emit(Event{
		RunID:   runID,
		Phase:   string(phase),
		Message: message,
		Fields:  fields,
		At:      c.now(),
	})
}

func lowestScoring(assessment domain.QualityAssessment) (domain.SectionCategory, bool) {
	var (
		weakest domain.SectionCategory
		lowest  float64
		found   bool
	)
	for _, category := range domain.SectionCategories() {
		score, ok := assessment.SectionScores[category]
		if !ok {
			continue
		}
		if !found || score < lowest {
			weakest = category
			lowest = score
			found = true
		}
	}
	return weakest, found
}

func headingFor(category domain.SectionCategory) string {
	switch category {
	case domain.SectionMarketAnalysis:
		return "Market Analysis"
	case domain.SectionCompetitorLandscape:
		return "Competitor Landscape"
	case domain.SectionCustomerProfile:
		return "Customer Profile"
	case domain.SectionBusinessModel:
		return "Business Model"
	case domain.SectionRiskAssessment:
		return "Risk Assessment"
	case domain.SectionRegulatoryOutlook:
		return "Regulatory Outlook"
	case domain.SectionGoToMarket:
		return "Go To Market"
	default:
		return string(category)
	}
}
