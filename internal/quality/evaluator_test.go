package quality

import (
	"testing"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

func strongSection(category domain.SectionCategory) domain.Section {
	return domain.Section{
		Category: category,
		Heading:  string(category),
		Content: "Target the 4.2 million small businesses in Brazil reported by the 2025 SEBRAE survey. " +
			"Launch with a 1.5% fee per advanced invoice and prioritize distributors with 30% gross margin. " +
			"According to central bank data, receivable cycles average 54 days, so we should price for urgency.",
	}
}

func weakSection(category domain.SectionCategory) domain.Section {
	return domain.Section{
		Category: category,
		Heading:  string(category),
		Content:  "TBD",
	}
}

func buildReport(sections ...domain.Section) *domain.Report {
	return &domain.Report{ID: "r1", Sections: sections}
}

func TestNewEvaluatorValidatesWeights(t *testing.T) {
	_, err := NewEvaluator(Config{Weights: map[Criterion]float64{
		CriterionConsistency: 0.5,
		CriterionClarity:     0.2,
	}})
	if err == nil {
		t.Fatalf("expected weights not summing to 1 to be rejected")
	}

	_, err = NewEvaluator(Config{Weights: map[Criterion]float64{
		CriterionConsistency: -0.5,
		CriterionClarity:     1.5,
	}})
	if err == nil {
		t.Fatalf("expected negative weight to be rejected")
	}

	if _, err := NewEvaluator(Config{}); err != nil {
		t.Fatalf("expected default equal weights to be accepted: %v", err)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	evaluator, err := NewEvaluator(Config{PassingThreshold: 80})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	report := buildReport(
		strongSection(domain.SectionMarketAnalysis),
		weakSection(domain.SectionRiskAssessment),
	)

	first := evaluator.Evaluate(report)
	second := evaluator.Evaluate(report)

	if first.OverallScore != second.OverallScore {
		t.Fatalf("expected identical overall scores, got %.2f vs %.2f", first.OverallScore, second.OverallScore)
	}
	if first.Passed != second.Passed {
		t.Fatalf("expected identical pass outcome")
	}
	for category, score := range first.SectionScores {
		if second.SectionScores[category] != score {
			t.Fatalf("expected identical section score for %s", category)
		}
	}
}

func TestEvaluateSeparatesStrongFromWeakSections(t *testing.T) {
	evaluator, err := NewEvaluator(Config{PassingThreshold: 80})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	report := buildReport(
		strongSection(domain.SectionMarketAnalysis),
		weakSection(domain.SectionRiskAssessment),
	)
	assessment := evaluator.Evaluate(report)

	strong := assessment.SectionScores[domain.SectionMarketAnalysis]
	weak := assessment.SectionScores[domain.SectionRiskAssessment]
	if strong <= weak {
		t.Fatalf("expected strong section (%.2f) to outscore weak section (%.2f)", strong, weak)
	}
	if weak >= 50 {
		t.Fatalf("expected a placeholder section to score poorly, got %.2f", weak)
	}
	if len(assessment.ImprovementNotes) == 0 {
		t.Fatalf("expected improvement notes for the weak section")
	}
}

func TestSectionsBelowThresholdUsesFixedOrder(t *testing.T) {
	evaluator, err := NewEvaluator(Config{PassingThreshold: 80, SectionThreshold: 80})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	assessment := domain.QualityAssessment{SectionScores: map[domain.SectionCategory]float64{
		domain.SectionGoToMarket:     60,
		domain.SectionMarketAnalysis: 70,
		domain.SectionBusinessModel:  90,
	}}

	below := evaluator.SectionsBelowThreshold(assessment)
	if len(below) != 2 {
		t.Fatalf("expected 2 sections below threshold, got %d", len(below))
	}
	if below[0] != domain.SectionMarketAnalysis || below[1] != domain.SectionGoToMarket {
		t.Fatalf("expected fixed category ordering, got %v", below)
	}
}

func TestDataSupportCountsUppercaseCurrencyFigures(t *testing.T) {
	bare := scoreDataSupport("Distributors advance invoices to small businesses across the region.")
	priced := scoreDataSupport("Distributors advance invoices averaging R$ 1.200 to small businesses across the region.")
	if priced <= bare {
		t.Fatalf("expected R$ figure to raise data support, got %.2f vs %.2f", priced, bare)
	}
}

func TestPassGateUsesAggregateNotPerSectionScores(t *testing.T) {
	evaluator, err := NewEvaluator(Config{PassingThreshold: 60})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	// One weak section pulls its own score down, but the aggregate of the
	// remaining strong sections still clears the configured bar.
	report := buildReport(
		strongSection(domain.SectionMarketAnalysis),
		strongSection(domain.SectionCompetitorLandscape),
		strongSection(domain.SectionCustomerProfile),
		strongSection(domain.SectionBusinessModel),
		weakSection(domain.SectionRiskAssessment),
	)
	assessment := evaluator.Evaluate(report)

	if weak := assessment.SectionScores[domain.SectionRiskAssessment]; weak >= 60 {
		t.Fatalf("expected the weak section to sit below the bar, got %.2f", weak)
	}
	if !assessment.Passed {
		t.Fatalf("expected aggregate score %.2f to pass the 60 bar despite one weak section", assessment.OverallScore)
	}
}
