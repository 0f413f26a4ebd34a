package domain

import "time"

// SectionCategory labels one report section. The set is fixed: the
// evaluator and the revision loop both iterate over SectionCategories().
type SectionCategory string

const (
	SectionMarketAnalysis      SectionCategory = "market_analysis"
	SectionCompetitorLandscape SectionCategory = "competitor_landscape"
	SectionCustomerProfile     SectionCategory = "customer_profile"
	SectionBusinessModel       SectionCategory = "business_model"
	SectionRiskAssessment      SectionCategory = "risk_assessment"
	SectionRegulatoryOutlook   SectionCategory = "regulatory_outlook"
	SectionGoToMarket          SectionCategory = "go_to_market"
)

func SectionCategories() []SectionCategory {
	return []SectionCategory{
		SectionMarketAnalysis,
		SectionCompetitorLandscape,
		SectionCustomerProfile,
		SectionBusinessModel,
		SectionRiskAssessment,
		SectionRegulatoryOutlook,
		SectionGoToMarket,
	}
}

// Section is one generated report section. Replaced wholesale when the
// revision controller regenerates it.
type Section struct {
	ID           string          `json:"id"`
	Category     SectionCategory `json:"category"`
	Heading      string          `json:"heading"`
	Content      string          `json:"content"`
	Completeness float64         `json:"completeness"`
	Confidence   float64         `json:"confidence"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Report is the artifact the pipeline converges on.
type Report struct {
	ID          string    `json:"id"`
	IdeaTitle   string    `json:"idea_title"`
	Sections    []Section `json:"sections"`
	ModelID     string    `json:"model_id"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SectionByCategory returns a pointer into Sections, or nil.
func (r *Report) SectionByCategory(category SectionCategory) *Section {
	for index := range r.Sections {
		if r.Sections[index].Category == category {
			return &r.Sections[index]
		}
	}
	return nil
}

// QualityAssessment is one evaluation pass. Immutable once produced.
type QualityAssessment struct {
	OverallScore     float64                     `json:"overall_score"`
	SectionScores    map[SectionCategory]float64 `json:"section_scores"`
	ImprovementNotes []string                    `json:"improvement_notes,omitempty"`
	Passed           bool                        `json:"passed"`
	EvaluatedAt      time.Time                   `json:"evaluated_at"`
}

// RevisionRecord is one entry in the append-only revision history.
type RevisionRecord struct {
	Revision        int               `json:"revision"`
	Trigger         string            `json:"trigger"`
	SectionsTouched []SectionCategory `json:"sections_touched"`
	ScoreBefore     float64           `json:"score_before"`
	ScoreAfter      float64           `json:"score_after"`
	ChangeLog       []string          `json:"change_log,omitempty"`
	RevisedAt       time.Time         `json:"revised_at"`
}

// RunStatistics summarizes resource usage of one pipeline run.
type RunStatistics struct {
	WorkItemsPlanned  int     `json:"work_items_planned"`
	WorkItemsExecuted int     `json:"work_items_executed"`
	CacheHits         int     `json:"cache_hits"`
	DegradedItems     int     `json:"degraded_items"`
	SpendTotal        float64 `json:"spend_total"`
	Revisions         int     `json:"revisions"`
	FinalScore        float64 `json:"final_score"`
	DurationMS        int64   `json:"duration_ms"`
	TimeBounded       bool    `json:"time_bounded,omitempty"`
}

// RunOutcome is the externally visible result of a finished run.
type RunOutcome struct {
	Report         Report            `json:"report"`
	Assessment     QualityAssessment `json:"assessment"`
	Revisions      []RevisionRecord  `json:"revisions,omitempty"`
	Statistics     RunStatistics     `json:"statistics"`
	MeetsThreshold bool              `json:"meets_threshold"`
}
