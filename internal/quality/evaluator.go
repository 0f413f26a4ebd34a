package quality

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

var ErrInvalidWeights = errors.New("criteria weights must be positive and sum to 1")

// Criterion is one scored dimension of a report section.
type Criterion string

const (
	CriterionConsistency Criterion = "logical_consistency"
	CriterionSpecificity Criterion = "actionable_specificity"
	CriterionDataSupport Criterion = "data_support"
	CriterionClarity     Criterion = "clarity"
)

func Criteria() []Criterion {
	return []Criterion{
		CriterionConsistency,
		CriterionSpecificity,
		CriterionDataSupport,
		CriterionClarity,
	}
}

type Config struct {
	// Weights per criterion; must sum to 1. Empty means equal weights.
	Weights map[Criterion]float64
	// PassingThreshold is the minimum overall score (0-100) for a pass.
	PassingThreshold float64
	// SectionThreshold marks individual sections as revision candidates.
	// The pass gate itself is judged on the aggregate score alone.
	SectionThreshold float64
}

// Evaluator scores a report deterministically: identical content and
// identical weights always produce the same assessment.
type Evaluator struct {
	weights          map[Criterion]float64
	passingThreshold float64
	sectionThreshold float64

	now func() time.Time
}

func NewEvaluator(config Config) (*Evaluator, error) {
	weights := config.Weights
	if len(weights) == 0 {
		weights = map[Criterion]float64{
			CriterionConsistency: 0.25,
			CriterionSpecificity: 0.25,
			CriterionDataSupport: 0.25,
			CriterionClarity:     0.25,
		}
	}
	total := 0.0
	for criterion, weight := range weights {
		if weight <= 0 {
			return nil, fmt.Errorf("%w: %s is %.3f", ErrInvalidWeights, criterion, weight)
		}
		total += weight
	}
	if math.Abs(total-1) > 0.001 {
		return nil, fmt.Errorf("%w: sum is %.3f", ErrInvalidWeights, total)
	}

	if config.PassingThreshold <= 0 {
		config.PassingThreshold = 80
	}
	if config.SectionThreshold <= 0 {
		config.SectionThreshold = config.PassingThreshold
	}

	return &Evaluator{
		weights:          weights,
		passingThreshold: config.PassingThreshold,
		sectionThreshold: config.SectionThreshold,
		now:              func() time.Time { return time.Now().UTC() },
	}, nil
}

func (e *Evaluator) PassingThreshold() float64 {
	return e.passingThreshold
}

// Evaluate scores every section and aggregates. The pass decision uses the
// overall weighted mean only; per-section scores feed the revision loop.
func (e *Evaluator) Evaluate(report *domain.Report) domain.QualityAssessment {
	assessment := domain.QualityAssessment{
		SectionScores: make(map[domain.SectionCategory]float64, len(report.Sections)),
		EvaluatedAt:   e.now(),
	}
	if len(report.Sections) == 0 {
		return assessment
	}

	total := 0.0
	notes := make([]string, 0)
	for _, section := range report.Sections {
		score, sectionNotes := e.scoreSection(section)
		assessment.SectionScores[section.Category] = score
		total += score
		notes = append(notes, sectionNotes...)
	}

	assessment.OverallScore = round2(total / float64(len(report.Sections)))
	assessment.Passed = assessment.OverallScore >= e.passingThreshold
	sort.Strings(notes)
	assessment.ImprovementNotes = notes
	return assessment
}

// SectionsBelowThreshold lists revision candidates in the fixed section
// order so the revision loop is deterministic.
func (e *Evaluator) SectionsBelowThreshold(assessment domain.QualityAssessment) []domain.SectionCategory {
	below := make([]domain.SectionCategory, 0)
	for _, category := range domain.SectionCategories() {
		score, ok := assessment.SectionScores[category]
		if ok && score < e.sectionThreshold {
			below = append(below, category)
		}
	}
	return below
}

func (e *Evaluator) scoreSection(section domain.Section) (float64, []string) {
	content := normalizeText(section.Content)
	scores := map[Criterion]float64{
		CriterionConsistency: scoreConsistency(content),
		CriterionSpecificity: scoreSpecificity(content),
		CriterionDataSupport: scoreDataSupport(content),
		CriterionClarity:     scoreClarity(content),
	}

	weighted := 0.0
	notes := make([]string, 0)
	// Fixed criterion order keeps float accumulation identical across runs.
	for _, criterion := range Criteria() {
		weight, ok := e.weights[criterion]
		if !ok {
			continue
		}
		score := scores[criterion]
		weighted += score * weight
		if score < 50 {
			notes = append(notes, fmt.Sprintf("%s: weak %s (%.0f)", section.Category, criterion, score))
		}
	}
	return round2(weighted), notes
}

// scoreConsistency penalizes placeholders, contradiction markers and
// sections too short to carry an argument.
func scoreConsistency(content string) float64 {
	if content == "" {
		return 0
	}
	score := 80.0
	lowered := strings.ToLower(content)

	for _, placeholder := range []string{"tbd", "to be determined", "n/a", "unknown", "lorem ipsum"} {
		if strings.Contains(lowered, placeholder) {
			score -= 25
		}
	}
	if strings.Contains(lowered, "however") && strings.Contains(lowered, "on the other hand") {
		score -= 10
	}
	sentences := countSentences(content)
	if sentences >= 3 {
		score += 15
	} else if sentences <= 1 {
		score -= 20
	}
	return clampScore(score)
}

var actionVerbPattern = regexp.MustCompile(`\b(launch|target|price|partner|focus|prioritize|validate|acquire|expand|invest|build|offer|reduce|charge)\b`)

// scoreSpecificity rewards concrete recommendations over generic prose.
func scoreSpecificity(content string) float64 {
	if content == "" {
		return 0
	}
	score := 50.0
	lowered := strings.ToLower(content)

	verbs := len(actionVerbPattern.FindAllString(lowered, -1))
	score += math.Min(float64(verbs)*10, 30)

	for _, vague := range []string{"various", "several factors", "many options", "it depends", "and so on"} {
		if strings.Contains(lowered, vague) {
			score -= 10
		}
	}
	if strings.Contains(content, ":") || strings.Contains(content, "1.") || strings.Contains(content, "- ") {
		score += 10
	}
	return clampScore(score)
}

// Matched against lowered content; `\$\s?\d` also covers r$ amounts.
var figurePattern = regexp.MustCompile(`\d+([.,]\d+)?\s*(%|million|billion|thousand|usd|eur|brl)|\$\s?\d`)

// scoreDataSupport rewards figures and named sources.
func scoreDataSupport(content string) float64 {
	if content == "" {
		return 0
	}
	score := 40.0
	lowered := strings.ToLower(content)

	figures := len(figurePattern.FindAllString(lowered, -1))
	score += math.Min(float64(figures)*15, 45)

	for _, marker := range []string{"according to", "reported", "survey", "study", "source:"} {
		if strings.Contains(lowered, marker) {
			score += 5
		}
	}
	return clampScore(score)
}

// scoreClarity checks sentence length and basic mechanics.
func scoreClarity(content string) float64 {
	if content == "" {
		return 0
	}
	score := 70.0

	sentences := countSentences(content)
	if sentences == 0 {
		return 20
	}
	words := len(strings.Fields(content))
	average := float64(words) / float64(sentences)
	switch {
	case average >= 8 && average <= 28:
		score += 20
	case average > 40:
		score -= 25
	case average < 5:
		score -= 15
	}
	if !hasTerminalPunctuation(content) {
		score -= 10
	}
	return clampScore(score)
}

func countSentences(content string) int {
	count := 0
	for _, r := range content {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	return count
}

func normalizeText(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	return strings.Join(strings.Fields(trimmed), " ")
}

func hasTerminalPunctuation(value string) bool {
	if value == "" {
		return false
	}
	last := value[len(value)-1]
	return last == '.' || last == '!' || last == '?'
}

func clampScore(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
