package contextbuilder

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

type RetrievalInput struct {
	Section  domain.SectionCategory
	Idea     domain.Idea
	Findings map[domain.ResearchCategory][]domain.Finding
	Limit    int
}

type Chunk struct {
	ID    string
	Text  string
	Score float64
}

type Retriever interface {
	Retrieve(ctx context.Context, input RetrievalInput) ([]Chunk, error)
}

// FindingsRetriever turns research findings into scored context chunks,
// weighting the categories each report section draws from.
type FindingsRetriever struct{}

func NewFindingsRetriever() *FindingsRetriever {
	return &FindingsRetriever{}
}

func (r *FindingsRetriever) Retrieve(_ context.Context, input RetrievalInput) ([]Chunk, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 24
	}

	weights := categoryWeightsFor(input.Section)
	chunks := make([]Chunk, 0, limit)
	index := 0
	for _, category := range domain.ResearchCategories() {
		weight, relevant := weights[category]
		if !relevant {
			continue
		}
		for _, finding := range input.Findings[category] {
			text := renderFinding(category, finding)
			if text == "" {
				continue
			}
			index++
			chunks = append(chunks, Chunk{
				ID:    fmt.Sprintf("%s-%d", category, index),
				Text:  text,
				Score: computeScore(input.Idea, finding, weight, index),
			})
		}
	}
	return chunks, nil
}

// categoryWeightsFor maps a report section to the research categories it
// draws from. A missing category means its findings are skipped entirely.
func categoryWeightsFor(section domain.SectionCategory) map[domain.ResearchCategory]float64 {
	switch section {
	case domain.SectionMarketAnalysis:
		return map[domain.ResearchCategory]float64{
			domain.CategoryMarketData:   1.0,
			domain.CategoryMarketTrends: 0.8,
		}
	case domain.SectionCompetitorLandscape:
		return map[domain.ResearchCategory]float64{
			domain.CategoryCompetitor: 1.0,
			domain.CategoryMarketData: 0.4,
		}
	case domain.SectionCustomerProfile:
		return map[domain.ResearchCategory]float64{
			domain.CategoryCustomer:     1.0,
			domain.CategoryMarketTrends: 0.4,
		}
	case domain.SectionBusinessModel:
		return map[domain.ResearchCategory]float64{
			domain.CategoryMarketData: 0.8,
			domain.CategoryCustomer:   0.7,
			domain.CategoryCompetitor: 0.4,
		}
	case domain.SectionRiskAssessment:
		return map[domain.ResearchCategory]float64{
			domain.CategoryRegulatory:   1.0,
			domain.CategoryMarketTrends: 0.6,
			domain.CategoryCompetitor:   0.4,
		}
	case domain.SectionRegulatoryOutlook:
		return map[domain.ResearchCategory]float64{
			domain.CategoryRegulatory: 1.0,
		}
	case domain.SectionGoToMarket:
		return map[domain.ResearchCategory]float64{
			domain.CategoryCustomer:     0.9,
			domain.CategoryCompetitor:   0.7,
			domain.CategoryMarketTrends: 0.5,
		}
	default:
		weights := make(map[domain.ResearchCategory]float64)
		for _, category := range domain.ResearchCategories() {
			weights[category] = 0.5
		}
		return weights
	}
}

func renderFinding(category domain.ResearchCategory, finding domain.Finding) string {
	title := strings.TrimSpace(finding.Title)
	snippet := strings.TrimSpace(finding.Snippet)
	if title == "" && snippet == "" {
		return ""
	}

	parts := make([]string, 0, 3)
	if title != "" {
		parts = append(parts, title)
	}
	if snippet != "" {
		if len(snippet) > 520 {
			snippet = snippet[:520]
		}
		parts = append(parts, snippet)
	}
	if strings.TrimSpace(finding.Source) != "" {
		parts = append(parts, "fonte: "+strings.TrimSpace(finding.Source))
	}
	return fmt.Sprintf("(%s) %s", category, strings.Join(parts, " | "))
}

func computeScore(idea domain.Idea, finding domain.Finding, weight float64, index int) float64 {
	score := finding.Score*100*weight - float64(index)*0.5
	normalized := strings.ToLower(finding.Title + " " + finding.Snippet)

	for _, term := range ideaTerms(idea) {
		if strings.Contains(normalized, term) {
			score += 6
		}
	}
	if containsNumber(normalized) {
		score += 4
	}

	if score < 1 {
		score = 1
	}
	return score
}

func ideaTerms(idea domain.Idea) []string {
	raw := strings.ToLower(idea.Title + " " + idea.TargetMarket)
	fields := strings.Fields(raw)
	terms := make([]string, 0, len(fields))
	for _, field := range fields {
		if len([]rune(field)) < 4 {
			continue
		}
		terms = append(terms, field)
	}
	return terms
}

var numberPattern = regexp.MustCompile(`\d`)

func containsNumber(text string) bool {
	return numberPattern.MatchString(text)
}
