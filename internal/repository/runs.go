package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

var ErrNotFound = errors.New("resource not found")

// RunsRepository abstracts run persistence and report queries.
type RunsRepository interface {
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, runID string) (*domain.Run, error)
	ListReports(ctx context.Context, filter domain.ReportListFilter) ([]domain.ReportListItem, int, error)
}

// MemoryRunsRepository stores runs in memory for local development.
type MemoryRunsRepository struct {
	mu   sync.RWMutex
	runs map[string]*domain.Run
}

func NewMemoryRunsRepository() *MemoryRunsRepository {
	return &MemoryRunsRepository{
		runs: make(map[string]*domain.Run),
	}
}

func (r *MemoryRunsRepository) CreateRun(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[run.ID] = cloneRun(run)
	return nil
}

func (r *MemoryRunsRepository) UpdateRun(_ context.Context, run *domain.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.runs[run.ID]; !ok {
		return ErrNotFound
	}
	r.runs[run.ID] = cloneRun(run)
	return nil
}

func (r *MemoryRunsRepository) GetRun(_ context.Context, runID string) (*domain.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRun(run), nil
}

func (r *MemoryRunsRepository) ListReports(
	_ context.Context,
	filter domain.ReportListFilter,
) ([]domain.ReportListItem, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	items := make([]domain.ReportListItem, 0)
	for _, run := range r.runs {
		if filter.TenantID != "" && run.TenantID != filter.TenantID {
			continue
		}
		if filter.From != nil && run.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && run.CreatedAt.After(*filter.To) {
			continue
		}
		if filter.Topic != "" && !ideaMatchesTopic(run.Idea, filter.Topic) {
			continue
		}

		items = append(items, domain.ReportListItem{
			RunID:     run.ID,
			TenantID:  run.TenantID,
			Phase:     run.Phase,
			Title:     run.Idea.Title,
			CreatedAt: run.CreatedAt,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	total := len(items)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []domain.ReportListItem{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}

	return items[start:end], total, nil
}

func ideaMatchesTopic(idea domain.Idea, topic string) bool {
	encoded, err := json.Marshal(idea)
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(encoded)), strings.ToLower(topic))
}

func cloneRun(run *domain.Run) *domain.Run {
	if run == nil {
		return nil
	}
	clone := *run
	clone.Result = append(json.RawMessage(nil), run.Result...)
	return &clone
}
