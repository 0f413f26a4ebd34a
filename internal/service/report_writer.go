package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/iago/opportunity-radar-back/internal/ai"
	"github.com/iago/opportunity-radar-back/internal/budget"
	contextbuilder "github.com/iago/opportunity-radar-back/internal/context"
	"github.com/iago/opportunity-radar-back/internal/domain"
	"github.com/iago/opportunity-radar-back/internal/policy"
)

// generationLedgerCategory keys generation spend in the ledger's category
// breakdown, alongside the research categories.
var generationLedgerCategory = domain.ResearchCategory(budget.SourceGeneration)

type ReportWriterDependencies struct {
	Router     *ai.ModelRouter
	Client     ai.TextGenerator
	Builder    *contextbuilder.Builder
	Ledger     *budget.Ledger
	PromptsDir string
	Logger     *log.Logger
}

// ReportWriterService turns research findings into report sections. It
// renders a prompt per section, calls the generation provider with a
// model fallback, and decodes the structured output; malformed output
// degrades to a plain-text section instead of failing the run.
type ReportWriterService struct {
	router     *ai.ModelRouter
	client     ai.TextGenerator
	builder    *contextbuilder.Builder
	ledger     *budget.Ledger
	promptsDir string
	logger     *log.Logger

	tmplMu    sync.RWMutex
	templates map[string]*template.Template
}

func NewReportWriterService(deps ReportWriterDependencies) *ReportWriterService {
	promptsDir := strings.TrimSpace(deps.PromptsDir)
	if promptsDir == "" {
		promptsDir = "prompts"
	}
	if deps.Router == nil {
		deps.Router = ai.NewModelRouter(ai.ModelRouterConfig{})
	}
	if deps.Builder == nil {
		deps.Builder = contextbuilder.NewBuilder(contextbuilder.NewFindingsRetriever())
	}

	return &ReportWriterService{
		router:     deps.Router,
		client:     deps.Client,
		builder:    deps.Builder,
		ledger:     deps.Ledger,
		promptsDir: promptsDir,
		logger:     deps.Logger,
		templates:  make(map[string]*template.Template),
	}
}

func (s *ReportWriterService) ModelID() string {
	return s.router.Select(ai.TaskSection).PrimaryModel
}

type sectionPayload struct {
	Heading      string  `json:"heading"`
	Content      string  `json:"content"`
	Completeness float64 `json:"completeness"`
	Confidence   float64 `json:"confidence"`
}

func (s *ReportWriterService) DraftSection(
	ctx context.Context,
	idea domain.Idea,
	category domain.SectionCategory,
	summary domain.EnrichmentSummary,
) (domain.Section, error) {
	contextOut, err := s.builder.Build(ctx, contextbuilder.BuildInput{
		Section:  category,
		Idea:     idea,
		Findings: summary.ByCategory,
	})
	if err != nil {
		return domain.Section{}, fmt.Errorf("build section context: %w", err)
	}

	prompt, err := s.renderPrompt("section_v1.tmpl", map[string]any{
		"SectionName":      sectionHeading(category),
		"Title":            idea.Title,
		"TargetMarket":     idea.TargetMarket,
		"ProblemStatement": idea.ProblemStatement,
		"ProposedSolution": idea.ProposedSolution,
		"BusinessModel":    idea.BusinessModel,
		"Language":         idea.Language,
		"Context":          contextOut.ContextText,
	})
	if err != nil {
		return domain.Section{}, fmt.Errorf("render section prompt: %w", err)
	}

	text, modelID, err := s.generateText(ctx, s.router.Select(ai.TaskSection), prompt)
	if err != nil {
		return domain.Section{}, err
	}

	return s.sectionFromModelText(category, text, modelID), nil
}

func (s *ReportWriterService) ReviseSection(
	ctx context.Context,
	idea domain.Idea,
	section domain.Section,
	notes []string,
	summary domain.EnrichmentSummary,
) (domain.Section, error) {
	contextOut, err := s.builder.Build(ctx, contextbuilder.BuildInput{
		Section:  section.Category,
		Idea:     idea,
		Findings: summary.ByCategory,
	})
	if err != nil {
		return domain.Section{}, fmt.Errorf("build revision context: %w", err)
	}

	prompt, err := s.renderPrompt("revise_v1.tmpl", map[string]any{
		"SectionName":     sectionHeading(section.Category),
		"Title":           idea.Title,
		"Language":        idea.Language,
		"PreviousContent": section.Content,
		"Notes":           strings.Join(relevantNotes(section.Category, notes), "\n"),
		"Context":         contextOut.ContextText,
	})
	if err != nil {
		return domain.Section{}, fmt.Errorf("render revision prompt: %w", err)
	}

	text, modelID, err := s.generateText(ctx, s.router.Select(ai.TaskSection), prompt)
	if err != nil {
		return domain.Section{}, err
	}

	revised := s.sectionFromModelText(section.Category, text, modelID)
	revised.ID = section.ID
	return revised, nil
}

// sectionFromModelText decodes the structured payload; when the model
// returned prose instead of JSON the raw text becomes the content with
// reduced confidence.
func (s *ReportWriterService) sectionFromModelText(
	category domain.SectionCategory,
	text string,
	modelID string,
) domain.Section {
	section := domain.Section{
		ID:        uuid.NewString(),
		Category:  category,
		Heading:   sectionHeading(category),
		UpdatedAt: time.Now().UTC(),
	}

	var payload sectionPayload
	if err := ai.DecodeStructured(text, &payload); err != nil {
		s.logf("section %s from model %s: %v; using raw text", category, modelID, err)
		section.Content = policy.MaskPIIString(strings.TrimSpace(text))
		section.Completeness = 0.5
		section.Confidence = 0.3
		return section
	}

	if heading := strings.TrimSpace(payload.Heading); heading != "" {
		section.Heading = heading
	}
	section.Content = policy.MaskPIIString(strings.TrimSpace(payload.Content))
	section.Completeness = clamp01(payload.Completeness, 0.7)
	section.Confidence = clamp01(payload.Confidence, 0.6)
	if section.Content == "" {
		section.Content = "No content was produced for this section."
		section.Completeness = 0.2
		section.Confidence = 0.1
	}
	return section
}

// generateText issues one budgeted generation call with a model fallback.
// A budget refusal surfaces as an unavailable generator, so callers degrade
// the same way they do when no client is configured.
func (s *ReportWriterService) generateText(
	ctx context.Context,
	profile ai.ModelProfile,
	prompt string,
) (string, string, error) {
	if s.client == nil || !s.client.Available() {
		return "", "", ai.ErrGeneratorUnavailable
	}
	if s.ledger != nil {
		if decision := s.ledger.CanAfford(budget.SourceGeneration, 1); !decision.Allowed {
			s.logf("budget refused generation: %s", decision.Reason)
			return "", "", fmt.Errorf("%w: %s", ai.ErrGeneratorUnavailable, decision.Reason)
		}
	}

	instructions := "Return only valid JSON with the fields heading, content, completeness and confidence. Do not use markdown code fences."

	primaryResult, err := s.client.Generate(ctx, ai.GenerateRequest{
		Model:           profile.PrimaryModel,
		Instructions:    instructions,
		Input:           prompt,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
	})
	if err == nil {
		s.recordGenerationSpend()
		return primaryResult.Text, firstNonEmpty(primaryResult.ModelID, profile.PrimaryModel), nil
	}

	if strings.TrimSpace(profile.FallbackModel) == "" || profile.FallbackModel == profile.PrimaryModel {
		return "", "", err
	}

	fallbackResult, fallbackErr := s.client.Generate(ctx, ai.GenerateRequest{
		Model:           profile.FallbackModel,
		Instructions:    instructions,
		Input:           prompt,
		Temperature:     profile.Temperature,
		MaxOutputTokens: profile.MaxOutputTokens,
	})
	if fallbackErr != nil {
		return "", "", fmt.Errorf("primary model failed: %v; fallback failed: %w", err, fallbackErr)
	}
	s.recordGenerationSpend()
	return fallbackResult.Text, firstNonEmpty(fallbackResult.ModelID, profile.FallbackModel), nil
}

// recordGenerationSpend charges one generation unit after a successful call.
// A refusal here means the pre-check raced another worker past the limit;
// the generated text is kept and the ledger alert carries the signal.
func (s *ReportWriterService) recordGenerationSpend() {
	if s.ledger == nil {
		return
	}
	if _, err := s.ledger.RecordUsage(budget.SourceGeneration, 1, generationLedgerCategory); err != nil {
		s.logf("generation spend record refused: %v", err)
	}
}

func (s *ReportWriterService) renderPrompt(fileName string, data any) (string, error) {
	tmpl, err := s.loadTemplate(fileName)
	if err != nil {
		return "", err
	}

	buffer := bytes.NewBuffer(nil)
	if err := tmpl.Execute(buffer, data); err != nil {
		return "", fmt.Errorf("execute template %s: %w", fileName, err)
	}
	return buffer.String(), nil
}

// loadTemplate prefers an on-disk override in the prompts directory and
// falls back to the built-in default.
func (s *ReportWriterService) loadTemplate(fileName string) (*template.Template, error) {
	s.tmplMu.RLock()
	if tmpl, ok := s.templates[fileName]; ok {
		s.tmplMu.RUnlock()
		return tmpl, nil
	}
	s.tmplMu.RUnlock()

	source := defaultPrompts[fileName]
	absolute := filepath.Join(s.promptsDir, fileName)
	if content, err := os.ReadFile(absolute); err == nil {
		source = string(content)
	} else if source == "" {
		return nil, fmt.Errorf("read prompt template %s: %w", absolute, err)
	}

	tmpl, err := template.New(fileName).Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", fileName, err)
	}

	s.tmplMu.Lock()
	s.templates[fileName] = tmpl
	s.tmplMu.Unlock()

	return tmpl, nil
}

// relevantNotes keeps only improvement notes that mention the section
// being revised, so the prompt does not drown in unrelated critique.
func relevantNotes(category domain.SectionCategory, notes []string) []string {
	marker := string(category)
	filtered := make([]string, 0, len(notes))
	for _, note := range notes {
		if strings.Contains(strings.ToLower(note), marker) {
			filtered = append(filtered, note)
		}
	}
	if len(filtered) == 0 {
		return notes
	}
	return filtered
}

func sectionHeading(category domain.SectionCategory) string {
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

func clamp01(value, fallback float64) float64 {
	if value <= 0 || value > 1 {
		return fallback
	}
	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func (s *ReportWriterService) logf(format string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.Printf(format, args...)
}
