package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iago/opportunity-radar-back/internal/domain"
	"github.com/iago/opportunity-radar-back/internal/pipeline"
	"github.com/iago/opportunity-radar-back/internal/policy"
	"github.com/iago/opportunity-radar-back/internal/queue"
	"github.com/iago/opportunity-radar-back/internal/repository"
)

// RunsService accepts run requests, persists them and hands them to the
// queue. Reads merge the persisted record with the live status tracker.
type RunsService struct {
	repo     repository.RunsRepository
	producer queue.Producer
	tracker  *pipeline.StatusTracker
}

func NewRunsService(repo repository.RunsRepository, producer queue.Producer, tracker *pipeline.StatusTracker) *RunsService {
	return &RunsService{repo: repo, producer: producer, tracker: tracker}
}

// EnqueueRun validates and screens the idea, then persists the run as
// queued and publishes the request. Paid research only starts once a
// worker picks the message up.
func (s *RunsService) EnqueueRun(ctx context.Context, tenantID string, idea domain.Idea) (*domain.Run, error) {
	if err := idea.Validate(); err != nil {
		return nil, err
	}
	if err := policy.EnforceIdeaPolicy(idea); err != nil {
		return nil, err
	}
	idea = policy.MaskIdea(idea)

	now := time.Now().UTC()
	run := &domain.Run{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Idea:      idea,
		Phase:     domain.PhaseQueued,
		Attempts:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	message := domain.QueueMessage{
		RunID:       run.ID,
		TenantID:    tenantID,
		Idea:        idea,
		Attempt:     0,
		RequestedAt: now,
	}

	if err := s.producer.Enqueue(ctx, message); err != nil {
		run.Phase = domain.PhaseFailed
		run.ErrorMessage = err.Error()
		run.UpdatedAt = time.Now().UTC()
		_ = s.repo.UpdateRun(ctx, run)
		return nil, fmt.Errorf("enqueue run: %w", err)
	}

	return run, nil
}

// GetRun returns the persisted run overlaid with the in-process phase
// when the worker has progressed past what is stored.
func (s *RunsService) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	run, err := s.repo.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	if s.tracker != nil && !run.Phase.Terminal() {
		if status, ok := s.tracker.Get(runID); ok {
			run.Phase = status.Phase
			run.Progress = status.Progress
		}
	}
	return run, nil
}

func (s *RunsService) ListReports(
	ctx context.Context,
	filter domain.ReportListFilter,
) ([]domain.ReportListItem, int, error) {
	return s.repo.ListReports(ctx, filter)
}
