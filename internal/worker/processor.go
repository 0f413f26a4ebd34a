package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
	"github.com/iago/opportunity-radar-back/internal/policy"
	"github.com/iago/opportunity-radar-back/internal/queue"
	"github.com/iago/opportunity-radar-back/internal/repository"
)

// RunPipeline produces a finished report for one idea.
type RunPipeline interface {
	Run(ctx context.Context, runID string, idea domain.Idea) (domain.RunOutcome, error)
}

// Processor consumes run requests and drives the pipeline, persisting
// status transitions around each run.
type Processor struct {
	consumer    queue.Consumer
	repo        repository.RunsRepository
	coordinator RunPipeline
	logger      *log.Logger
}

func NewProcessor(
	consumer queue.Consumer,
	repo repository.RunsRepository,
	coordinator RunPipeline,
	logger *log.Logger,
) *Processor {
	return &Processor{
		consumer:    consumer,
		repo:        repo,
		coordinator: coordinator,
		logger:      logger,
	}
}

func (p *Processor) Start(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		err := p.consumer.Consume(ctx, p.processMessage)
		if err == nil || ctx.Err() != nil {
			return
		}
		if p.logger != nil {
			p.logger.Printf("worker consume loop error: %v", err)
		}

		timer := time.NewTimer(2 * time.Second)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Processor) processMessage(ctx context.Context, message domain.QueueMessage) error {
	run, err := p.repo.GetRun(ctx, message.RunID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", message.RunID, err)
	}
	if run.Phase.Terminal() {
		// Requeued duplicate of an already finished run.
		return nil
	}

	run.Phase = domain.PhasePlanning
	run.Attempts = message.Attempt + 1
	run.UpdatedAt = time.Now().UTC()
	if err := p.repo.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("mark planning: %w", err)
	}

	if p.coordinator == nil {
		run.Phase = domain.PhaseFailed
		run.ErrorMessage = "pipeline is not configured"
		run.UpdatedAt = time.Now().UTC()
		_ = p.repo.UpdateRun(ctx, run)
		return fmt.Errorf("pipeline is not configured")
	}

	outcome, runErr := p.coordinator.Run(ctx, run.ID, message.Idea)
	if runErr != nil {
		run.Phase = domain.PhaseFailed
		run.ErrorMessage = runErr.Error()
		run.UpdatedAt = time.Now().UTC()
		_ = p.repo.UpdateRun(ctx, run)
		return runErr
	}

	result, err := json.Marshal(outcome)
	if err != nil {
		run.Phase = domain.PhaseFailed
		run.ErrorMessage = fmt.Sprintf("encode outcome: %v", err)
		run.UpdatedAt = time.Now().UTC()
		_ = p.repo.UpdateRun(ctx, run)
		return fmt.Errorf("encode outcome: %w", err)
	}

	run.Phase = domain.PhaseFinalized
	run.Progress = 1
	run.ErrorMessage = ""
	run.Result = policy.MaskPIIJSON(result)
	run.MeetsThreshold = outcome.MeetsThreshold
	run.UpdatedAt = time.Now().UTC()
	if err := p.repo.UpdateRun(ctx, run); err != nil {
		return fmt.Errorf("mark finalized: %w", err)
	}

	if p.logger != nil {
		p.logger.Printf(
			"run processed run_id=%s score=%.2f meets_threshold=%t revisions=%d",
			run.ID,
			outcome.Statistics.FinalScore,
			outcome.MeetsThreshold,
			outcome.Statistics.Revisions,
		)
	}

	return nil
}
