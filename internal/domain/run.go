package domain

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrInvalidIdea = errors.New("idea is missing required fields")
)

// RunPhase tracks where a pipeline run currently is. DRAFTING through
// FINALIZED mirror the convergence state machine; queued/planning/enriching
// cover the phases before the first draft exists.
type RunPhase string

const (
	PhaseQueued     RunPhase = "queued"
	PhasePlanning   RunPhase = "planning"
	PhaseEnriching  RunPhase = "enriching"
	PhaseDrafting   RunPhase = "drafting"
	PhaseEvaluating RunPhase = "evaluating"
	PhaseRevising   RunPhase = "revising"
	PhaseFinalized  RunPhase = "finalized"
	PhaseFailed     RunPhase = "failed"
)

func (p RunPhase) Terminal() bool {
	return p == PhaseFinalized || p == PhaseFailed
}

// Run is the canonical persisted record of one pipeline execution.
type Run struct {
	ID             string
	TenantID       string
	Idea           Idea
	Phase          RunPhase
	Progress       float64
	Result         json.RawMessage
	MeetsThreshold bool
	ErrorMessage   string
	Attempts       int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// QueueMessage is the transport format sent to queue backends.
type QueueMessage struct {
	RunID       string    `json:"run_id"`
	TenantID    string    `json:"tenant_id"`
	Idea        Idea      `json:"idea"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}

type ReportListItem struct {
	RunID     string
	TenantID  string
	Phase     RunPhase
	Title     string
	CreatedAt time.Time
}

type ReportListFilter struct {
	TenantID string
	Page     int
	PageSize int
	From     *time.Time
	To       *time.Time
	Topic    string
}
