package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
	"github.com/iago/opportunity-radar-back/internal/plan"
)

type stubPlanner struct {
	items []domain.WorkItem
	err   error
	calls int
}

func (p *stubPlanner) Plan(_ domain.Idea, _ *domain.Report, _ plan.Constraints) ([]domain.WorkItem, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.items, nil
}

type stubExecutor struct {
	results []domain.TaskResult
	err     error
	calls   int
}

func (e *stubExecutor) Execute(_ context.Context, items []domain.WorkItem) ([]domain.TaskResult, error) {
	e.calls++
	if e.results != nil {
		return e.results, e.err
	}
	results := make([]domain.TaskResult, 0, len(items))
	for _, item := range items {
		results = append(results, domain.TaskResult{
			ItemID:   item.ID,
			Category: item.Category,
			Query:    item.Query,
			Findings: []domain.Finding{{Title: "finding for " + item.Query, Score: 0.8}},
		})
	}
	return results, nil
}

type stubWriter struct {
	drafts    int
	revisions int
	draftErr  error
}

func (w *stubWriter) DraftSection(_ context.Context, idea domain.Idea, category domain.SectionCategory, _ domain.EnrichmentSummary) (domain.Section, error) {
	w.drafts++
	if w.draftErr != nil {
		return domain.Section{}, w.draftErr
	}
	return domain.Section{
		ID:           fmt.Sprintf("section-%d", w.drafts),
		Category:     category,
		Heading:      string(category),
		Content:      "Draft content for " + idea.Title,
		Completeness: 0.8,
		Confidence:   0.8,
	}, nil
}

func (w *stubWriter) ReviseSection(_ context.Context, _ domain.Idea, section domain.Section, _ []string, _ domain.EnrichmentSummary) (domain.Section, error) {
	w.revisions++
	section.Content = section.Content + " (revised)"
	return section, nil
}

func (w *stubWriter) ModelID() string { return "stub-model" }

// scriptedEvaluator returns one fixed score set per evaluation pass and
// keeps returning the last set when the script runs out.
type scriptedEvaluator struct {
	scores    [][]float64
	threshold float64
	calls     int
}

func (e *scriptedEvaluator) Evaluate(report *domain.Report) domain.QualityAssessment {
	index := e.calls
	if index >= len(e.scores) {
		index = len(e.scores) - 1
	}
	e.calls++

	scores := e.scores[index]
	assessment := domain.QualityAssessment{
		SectionScores: make(map[domain.SectionCategory]float64, len(scores)),
		EvaluatedAt:   time.Now(),
	}
	total := 0.0
	for position, category := range domain.SectionCategories() {
		score := scores[position%len(scores)]
		assessment.SectionScores[category] = score
		total += score
	}
	assessment.OverallScore = total / float64(len(domain.SectionCategories()))
	assessment.Passed = assessment.OverallScore >= e.threshold
	return assessment
}

func (e *scriptedEvaluator) SectionsBelowThreshold(assessment domain.QualityAssessment) []domain.SectionCategory {
	below := make([]domain.SectionCategory, 0)
	for _, category := range domain.SectionCategories() {
		if assessment.SectionScores[category] < e.threshold {
			below = append(below, category)
		}
	}
	return below
}

func newTestCoordinator(writer *stubWriter, evaluator QualityEvaluator, config Config) *Coordinator {
	return NewCoordinator(Dependencies{
		Planner: &stubPlanner{items: []domain.WorkItem{
			{ID: "item-1", Category: domain.CategoryMarketData, Query: "market size"},
			{ID: "item-2", Category: domain.CategoryCompetitor, Query: "top competitors"},
		}},
		Executor:  &stubExecutor{},
		Writer:    writer,
		Evaluator: evaluator,
	}, config)
}

func TestRunPassesOnAggregateWithoutRevisions(t *testing.T) {
	// Section scores 60 and 70 sit below the bar but the mean clears it.
	evaluator := &scriptedEvaluator{
		scores:    [][]float64{{60, 90, 85, 70, 95, 88, 92}},
		threshold: 80,
	}
	writer := &stubWriter{}
	coordinator := newTestCoordinator(writer, evaluator, Config{MaxRevisions: 2})

	outcome, err := coordinator.Run(context.Background(), "run-b", domain.Idea{Title: "Fintech for freelancers"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !outcome.MeetsThreshold {
		t.Fatalf("expected run to pass on the aggregate score")
	}
	if len(outcome.Revisions) != 0 {
		t.Fatalf("expected zero revisions, got %d", len(outcome.Revisions))
	}
	if writer.revisions != 0 {
		t.Fatalf("expected no section regeneration, got %d", writer.revisions)
	}
	if len(outcome.Report.Sections) != len(domain.SectionCategories()) {
		t.Fatalf("expected %d sections, got %d", len(domain.SectionCategories()), len(outcome.Report.Sections))
	}
	if outcome.Statistics.FinalScore < 82 || outcome.Statistics.FinalScore > 84 {
		t.Fatalf("unexpected final score %f", outcome.Statistics.FinalScore)
	}
}

func TestRunStopsRevisingTheMomentEvaluationPasses(t *testing.T) {
	evaluator := &scriptedEvaluator{
		scores: [][]float64{
			{50, 50, 50, 50, 50, 50, 50},
			{90, 90, 90, 90, 90, 90, 90},
		},
		threshold: 80,
	}
	writer := &stubWriter{}
	coordinator := newTestCoordinator(writer, evaluator, Config{MaxRevisions: 5})

	outcome, err := coordinator.Run(context.Background(), "run-pass", domain.Idea{Title: "Idea"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !outcome.MeetsThreshold {
		t.Fatalf("expected run to pass after one revision")
	}
	if len(outcome.Revisions) != 1 {
		t.Fatalf("expected exactly one revision, got %d", len(outcome.Revisions))
	}
	record := outcome.Revisions[0]
	if record.Revision != 1 {
		t.Fatalf("unexpected revision number %d", record.Revision)
	}
	if record.ScoreBefore >= record.ScoreAfter {
		t.Fatalf("expected score to improve, before %f after %f", record.ScoreBefore, record.ScoreAfter)
	}
	if len(record.SectionsTouched) != len(domain.SectionCategories()) {
		t.Fatalf("expected every section below threshold to be touched, got %d", len(record.SectionsTouched))
	}
}

func TestRunFinalizesBestEffortAfterMaxRevisions(t *testing.T) {
	evaluator := &scriptedEvaluator{
		scores:    [][]float64{{40, 40, 40, 40, 40, 40, 40}},
		threshold: 80,
	}
	writer := &stubWriter{}
	coordinator := newTestCoordinator(writer, evaluator, Config{MaxRevisions: 2})

	outcome, err := coordinator.Run(context.Background(), "run-fail", domain.Idea{Title: "Idea"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.MeetsThreshold {
		t.Fatalf("expected run to finish below threshold")
	}
	if len(outcome.Revisions) != 2 {
		t.Fatalf("expected exactly max revisions, got %d", len(outcome.Revisions))
	}
	if outcome.Statistics.Revisions != 2 {
		t.Fatalf("statistics out of sync: %d", outcome.Statistics.Revisions)
	}
	status, ok := coordinator.Tracker().Get("run-fail")
	if !ok {
		t.Fatalf("expected run status to be tracked")
	}
	if status.Phase != domain.PhaseFinalized || status.Progress != 1 {
		t.Fatalf("unexpected terminal status %+v", status)
	}
}

func TestRunAbortsOnPlanningError(t *testing.T) {
	coordinator := NewCoordinator(Dependencies{
		Planner:   &stubPlanner{err: plan.ErrDependencyCycle},
		Executor:  &stubExecutor{},
		Writer:    &stubWriter{},
		Evaluator: &scriptedEvaluator{scores: [][]float64{{90}}, threshold: 80},
	}, Config{})

	_, err := coordinator.Run(context.Background(), "run-cycle", domain.Idea{Title: "Idea"})
	if !errors.Is(err, plan.ErrDependencyCycle) {
		t.Fatalf("expected dependency cycle error, got %v", err)
	}
	status, ok := coordinator.Tracker().Get("run-cycle")
	if !ok || status.Phase != domain.PhaseFailed {
		t.Fatalf("expected failed status, got %+v", status)
	}
}

func TestRunAbsorbsDegradedEnrichment(t *testing.T) {
	executor := &stubExecutor{
		results: []domain.TaskResult{
			{ItemID: "item-1", Category: domain.CategoryMarketData, Degraded: true, FailureNote: "provider down", Findings: []domain.Finding{}},
			{ItemID: "item-2", Category: domain.CategoryCompetitor, Degraded: true, FailureNote: "provider down", Findings: []domain.Finding{}},
		},
		err: errors.New("degraded results exceed the allowed fraction: 2 of 2 items degraded"),
	}
	coordinator := NewCoordinator(Dependencies{
		Planner:   &stubPlanner{items: []domain.WorkItem{{ID: "item-1"}, {ID: "item-2"}}},
		Executor:  executor,
		Writer:    &stubWriter{},
		Evaluator: &scriptedEvaluator{scores: [][]float64{{90, 90, 90, 90, 90, 90, 90}}, threshold: 80},
	}, Config{})

	outcome, err := coordinator.Run(context.Background(), "run-degraded", domain.Idea{Title: "Idea"})
	if err != nil {
		t.Fatalf("degraded enrichment should not fail the run: %v", err)
	}
	if outcome.Statistics.DegradedItems != 2 {
		t.Fatalf("expected 2 degraded items in statistics, got %d", outcome.Statistics.DegradedItems)
	}
	if len(outcome.Report.Sections) != len(domain.SectionCategories()) {
		t.Fatalf("expected a full report despite degraded enrichment")
	}
}

func TestRunFinalizesTimeBoundedWhenDeadlineExpires(t *testing.T) {
	evaluator := &scriptedEvaluator{
		scores:    [][]float64{{40, 40, 40, 40, 40, 40, 40}},
		threshold: 80,
	}
	writer := &stubWriter{}
	coordinator := newTestCoordinator(writer, evaluator, Config{
		MaxRevisions: 5,
		RunTimeout:   time.Nanosecond,
	})

	outcome, err := coordinator.Run(context.Background(), "run-deadline", domain.Idea{Title: "Idea"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !outcome.Statistics.TimeBounded {
		t.Fatalf("expected time-bounded outcome")
	}
	if len(outcome.Revisions) != 0 {
		t.Fatalf("expected no revisions past the deadline, got %d", len(outcome.Revisions))
	}
	if len(outcome.Report.Sections) != len(domain.SectionCategories()) {
		t.Fatalf("expected placeholder sections to preserve report shape")
	}
	if outcome.MeetsThreshold {
		t.Fatalf("time-bounded run with failing scores should not meet the threshold")
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evaluator := &scriptedEvaluator{
		scores:    [][]float64{{40, 40, 40, 40, 40, 40, 40}},
		threshold: 80,
	}
	coordinator := newTestCoordinator(&stubWriter{}, evaluator, Config{})

	outcome, err := coordinator.Run(ctx, "run-cancelled", domain.Idea{Title: "Idea"})
	if err != nil {
		t.Fatalf("cancellation should finalize, not fail: %v", err)
	}
	if !outcome.Statistics.TimeBounded {
		t.Fatalf("expected cancelled run to be marked time bounded")
	}
}
