package contextbuilder

import (
	"context"
	"strings"
	"testing"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

func sampleFindings() map[domain.ResearchCategory][]domain.Finding {
	return map[domain.ResearchCategory][]domain.Finding{
		domain.CategoryMarketData: {
			{Title: "Market sized at 2.4B EUR in 2025", Snippet: "Annual growth of 11%.", URL: "https://example.com/market", Source: "example.com", Score: 0.9},
			{Title: "Market sized at 2.4B EUR in 2025", Snippet: "Annual growth of 11%.", URL: "https://example.com/market", Source: "example.com", Score: 0.9},
		},
		domain.CategoryCompetitor: {
			{Title: "Acme leads with 30% share", Snippet: "Followed by Beta and Gamma.", URL: "https://example.com/acme", Source: "example.com", Score: 0.8},
		},
		domain.CategoryRegulatory: {
			{Title: "New licensing rule effective 2027", Snippet: "Applies to all installers.", URL: "https://example.com/reg", Source: "example.com", Score: 0.7},
		},
	}
}

func TestBuilderDedupesAndCapsChunks(t *testing.T) {
	builder := NewBuilder(NewFindingsRetriever())

	result, err := builder.Build(context.Background(), BuildInput{
		Section:   domain.SectionMarketAnalysis,
		Idea:      domain.Idea{Title: "Solar installer marketplace", TargetMarket: "Portugal"},
		Findings:  sampleFindings(),
		MaxChunks: 4,
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(result.Chunks) == 0 {
		t.Fatalf("expected at least one chunk")
	}
	if len(result.Chunks) > 4 {
		t.Fatalf("expected chunk cap to be applied, got %d chunks", len(result.Chunks))
	}

	seen := make(map[string]struct{}, len(result.Chunks))
	for _, chunk := range result.Chunks {
		key := strings.ToLower(strings.Join(strings.Fields(chunk.Text), " "))
		if _, exists := seen[key]; exists {
			t.Fatalf("expected deduped chunks, duplicate found: %q", chunk.Text)
		}
		seen[key] = struct{}{}
	}
}

func TestBuilderFiltersIrrelevantCategories(t *testing.T) {
	builder := NewBuilder(NewFindingsRetriever())

	result, err := builder.Build(context.Background(), BuildInput{
		Section:  domain.SectionRegulatoryOutlook,
		Idea:     domain.Idea{Title: "Solar installer marketplace"},
		Findings: sampleFindings(),
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	for _, chunk := range result.Chunks {
		if strings.Contains(chunk.Text, "Acme leads") {
			t.Fatalf("competitor finding leaked into regulatory context: %q", chunk.Text)
		}
	}
	if !strings.Contains(result.ContextText, "licensing rule") {
		t.Fatalf("expected regulatory finding in context, got %q", result.ContextText)
	}
}

func TestBuilderRespectsTokenBudget(t *testing.T) {
	builder := NewBuilder(NewFindingsRetriever())

	result, err := builder.Build(context.Background(), BuildInput{
		Section:        domain.SectionMarketAnalysis,
		Idea:           domain.Idea{Title: "Solar installer marketplace"},
		Findings:       sampleFindings(),
		MaxInputTokens: 18,
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if result.TokenCount > 18 && len(result.Chunks) > 1 {
		t.Fatalf("token budget exceeded: %d tokens in %d chunks", result.TokenCount, len(result.Chunks))
	}
}

func TestBuilderFallsBackWithoutFindings(t *testing.T) {
	builder := NewBuilder(NewFindingsRetriever())

	result, err := builder.Build(context.Background(), BuildInput{
		Section: domain.SectionCustomerProfile,
		Idea:    domain.Idea{Title: "Solar installer marketplace"},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if len(result.Chunks) != 1 || result.Chunks[0].ID != "fallback" {
		t.Fatalf("expected single fallback chunk, got %+v", result.Chunks)
	}
	if !strings.Contains(result.ContextText, "low confidence") {
		t.Fatalf("fallback text missing, got %q", result.ContextText)
	}
}

func TestBuilderReturnsStableOutputForRepeatedInputs(t *testing.T) {
	builder := NewBuilder(NewFindingsRetriever())

	input := BuildInput{
		Section:        domain.SectionCompetitorLandscape,
		Idea:           domain.Idea{Title: "Solar installer marketplace", TargetMarket: "Portugal"},
		Findings:       sampleFindings(),
		MaxInputTokens: 2400,
	}

	first, err := builder.Build(context.Background(), input)
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	second, err := builder.Build(context.Background(), input)
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}

	if first.ContextText != second.ContextText {
		t.Fatalf("expected stable context text across repeated builds")
	}
	if first.TokenCount != second.TokenCount {
		t.Fatalf("expected stable token count across repeated builds")
	}
}
