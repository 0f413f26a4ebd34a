package plan

import (
	"testing"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

func testIdea() domain.Idea {
	return domain.Idea{
		Title:            "Instant invoice factoring",
		TargetMarket:     "small businesses in Brazil",
		ProblemStatement: "long receivable cycles starve working capital",
		ProposedSolution: "same-day invoice advance",
		BusinessModel:    "fee per advanced invoice",
	}
}

func weakDraft() *domain.Report {
	sections := make([]domain.Section, 0, len(domain.SectionCategories()))
	for _, category := range domain.SectionCategories() {
		sections = append(sections, domain.Section{
			Category:     category,
			Heading:      string(category),
			Content:      "Strong demand of 12% annual growth with $4 billion addressable spend.",
			Completeness: 0.9,
			Confidence:   0.9,
		})
	}
	report := &domain.Report{Sections: sections}
	report.SectionByCategory(domain.SectionMarketAnalysis).Confidence = 0.2
	report.SectionByCategory(domain.SectionCompetitorLandscape).Content = "OnlyCompetitorCo"
	return report
}

func TestPlanSeedsAllCategoriesWithoutDraft(t *testing.T) {
	planner := NewPlanner()

	items, err := planner.Plan(testIdea(), nil, Constraints{MaxItems: 10})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("expected one seed item per category, got %d", len(items))
	}

	seen := make(map[domain.ResearchCategory]bool)
	for _, item := range items {
		seen[item.Category] = true
		if item.Status != domain.WorkItemPending {
			t.Fatalf("expected pending status, got %s", item.Status)
		}
		if item.ID == "" || item.Query == "" {
			t.Fatalf("expected populated item, got %+v", item)
		}
	}
	for _, category := range domain.ResearchCategories() {
		if !seen[category] {
			t.Fatalf("expected a seed item for category %s", category)
		}
	}
}

func TestPlanTargetsDraftWeaknesses(t *testing.T) {
	planner := NewPlanner()

	items, err := planner.Plan(testIdea(), weakDraft(), Constraints{MaxItems: 20})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(items) == 0 {
		t.Fatalf("expected items for a weak draft")
	}

	var sawMarketData, sawCompetitor bool
	for _, item := range items {
		if item.Category == domain.CategoryMarketData {
			sawMarketData = true
		}
		if item.Category == domain.CategoryCompetitor {
			sawCompetitor = true
		}
	}
	if !sawMarketData {
		t.Fatalf("expected a lookup for the low-confidence market section")
	}
	if !sawCompetitor {
		t.Fatalf("expected a lookup for the thin competitor section")
	}
}

func TestPlanRespectsCapAndPriorityOrder(t *testing.T) {
	planner := NewPlanner()

	items, err := planner.Plan(testIdea(), weakDraft(), Constraints{MaxItems: 3})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected plan trimmed to cap of 3, got %d", len(items))
	}
	for index := 1; index < len(items); index++ {
		if items[index-1].Priority.Tier() < items[index].Priority.Tier() {
			t.Fatalf("expected non-increasing priority order, got %s before %s",
				items[index-1].Priority, items[index].Priority)
		}
	}
}

func TestPlanIsDeterministicForIdenticalInputs(t *testing.T) {
	planner := NewPlanner()

	first, err := planner.Plan(testIdea(), weakDraft(), Constraints{MaxItems: 6})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	second, err := planner.Plan(testIdea(), weakDraft(), Constraints{MaxItems: 6})
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("expected identical plan sizes, got %d vs %d", len(first), len(second))
	}
	for index := range first {
		if first[index].Category != second[index].Category ||
			first[index].Query != second[index].Query ||
			first[index].Priority != second[index].Priority {
			t.Fatalf("expected identical plans at index %d: %+v vs %+v",
				index, first[index], second[index])
		}
	}
}

func TestCheckCyclesDetectsLoop(t *testing.T) {
	candidates := []candidate{
		{category: domain.CategoryMarketData, query: "a", dependsOn: "b"},
		{category: domain.CategoryMarketData, query: "b", dependsOn: "a"},
	}
	if err := checkCycles(candidates); err != ErrDependencyCycle {
		t.Fatalf("expected ErrDependencyCycle, got %v", err)
	}

	acyclic := []candidate{
		{category: domain.CategoryMarketData, query: "a", dependsOn: "b"},
		{category: domain.CategoryMarketData, query: "b"},
	}
	if err := checkCycles(acyclic); err != nil {
		t.Fatalf("expected no cycle, got %v", err)
	}
}

func TestContainsFigures(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"Growth of 12% per year", true},
		{"Roughly $4 billion market", true},
		{"A promising market with many buyers", false},
	}
	for _, tc := range cases {
		if got := containsFigures(tc.content); got != tc.want {
			t.Fatalf("containsFigures(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}
