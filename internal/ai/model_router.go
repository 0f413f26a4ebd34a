package ai

import "strings"

type TaskKind string

const (
	// TaskAnalysis covers the market, competitor and risk analysis calls.
	TaskAnalysis TaskKind = "analysis"
	// TaskSection writes or rewrites one report section.
	TaskSection TaskKind = "section"
	// TaskCritique reviews a draft and proposes improvements.
	TaskCritique TaskKind = "critique"
)

type ModelProfile struct {
	PrimaryModel    string
	FallbackModel   string
	Temperature     float64
	MaxOutputTokens int
}

type ModelRouterConfig struct {
	AnalysisPrimary  string
	AnalysisFallback string

	SectionPrimary  string
	SectionFallback string

	CritiquePrimary  string
	CritiqueFallback string
}

// ModelRouter picks a model profile per task kind: heavier models for
// section writing, cheaper ones for critique passes.
type ModelRouter struct {
	config ModelRouterConfig
}

func NewModelRouter(config ModelRouterConfig) *ModelRouter {
	if strings.TrimSpace(config.AnalysisPrimary) == "" {
		config.AnalysisPrimary = "gpt-4.1-mini"
	}
	if strings.TrimSpace(config.AnalysisFallback) == "" {
		config.AnalysisFallback = "gpt-4.1-nano"
	}
	if strings.TrimSpace(config.SectionPrimary) == "" {
		config.SectionPrimary = "gpt-4.1"
	}
	if strings.TrimSpace(config.SectionFallback) == "" {
		config.SectionFallback = "gpt-4.1-mini"
	}
	if strings.TrimSpace(config.CritiquePrimary) == "" {
		config.CritiquePrimary = "gpt-4.1-mini"
	}
	if strings.TrimSpace(config.CritiqueFallback) == "" {
		config.CritiqueFallback = "gpt-4.1-nano"
	}

	return &ModelRouter{config: config}
}

func (r *ModelRouter) Select(task TaskKind) ModelProfile {
	switch task {
	case TaskSection:
		return ModelProfile{
			PrimaryModel:    r.config.SectionPrimary,
			FallbackModel:   r.config.SectionFallback,
			Temperature:     0.3,
			MaxOutputTokens: 1600,
		}
	case TaskCritique:
		return ModelProfile{
			PrimaryModel:    r.config.CritiquePrimary,
			FallbackModel:   r.config.CritiqueFallback,
			Temperature:     0.2,
			MaxOutputTokens: 700,
		}
	default:
		return ModelProfile{
			PrimaryModel:    r.config.AnalysisPrimary,
			FallbackModel:   r.config.AnalysisFallback,
			Temperature:     0.2,
			MaxOutputTokens: 900,
		}
	}
}
