package domain

import "strings"

// Idea is the fixed-shape input supplied by the upstream intake stage.
type Idea struct {
	Title            string `json:"title"`
	TargetMarket     string `json:"target_market"`
	ProblemStatement string `json:"problem_statement"`
	ProposedSolution string `json:"proposed_solution"`
	BusinessModel    string `json:"business_model"`
	Language         string `json:"language,omitempty"`
	Region           string `json:"region,omitempty"`
}

func (i Idea) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return ErrInvalidIdea
	}
	if strings.TrimSpace(i.TargetMarket) == "" {
		return ErrInvalidIdea
	}
	if strings.TrimSpace(i.ProblemStatement) == "" {
		return ErrInvalidIdea
	}
	return nil
}
