package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
	"github.com/iago/opportunity-radar-back/internal/repository"
)

type stubPipeline struct {
	outcome domain.RunOutcome
	err     error
	calls   int
}

func (s *stubPipeline) Run(ctx context.Context, runID string, idea domain.Idea) (domain.RunOutcome, error) {
	s.calls++
	return s.outcome, s.err
}

func seedRun(t *testing.T, repo *repository.MemoryRunsRepository, id string) domain.Run {
	t.Helper()

	run := domain.Run{
		ID:       id,
		TenantID: "tenant-1",
		Idea: domain.Idea{
			Title:            "Bike courier network",
			TargetMarket:     "urban deliveries in Lisbon",
			ProblemStatement: "same-day delivery is expensive for small shops",
		},
		Phase:     domain.PhaseQueued,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := repo.CreateRun(context.Background(), &run); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	return run
}

func TestProcessMessagePersistsOutcome(t *testing.T) {
	repo := repository.NewMemoryRunsRepository()
	run := seedRun(t, repo, "run-1")

	pipeline := &stubPipeline{
		outcome: domain.RunOutcome{
			MeetsThreshold: true,
			Statistics: domain.RunStatistics{
				FinalScore: 86.5,
				Revisions:  1,
			},
		},
	}
	processor := NewProcessor(nil, repo, pipeline, nil)

	err := processor.processMessage(context.Background(), domain.QueueMessage{
		RunID:   run.ID,
		Idea:    run.Idea,
		Attempt: 0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, err := repo.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if stored.Phase != domain.PhaseFinalized {
		t.Fatalf("expected finalized phase, got %s", stored.Phase)
	}
	if !stored.MeetsThreshold {
		t.Fatalf("expected meets_threshold to be recorded")
	}
	if stored.Attempts != 1 {
		t.Fatalf("expected attempts 1, got %d", stored.Attempts)
	}
	if stored.Progress != 1 {
		t.Fatalf("expected progress 1, got %v", stored.Progress)
	}
	if !strings.Contains(string(stored.Result), "\"final_score\":86.5") {
		t.Fatalf("expected outcome in result, got %s", stored.Result)
	}
}

func TestProcessMessageMarksFailureAndReturnsError(t *testing.T) {
	repo := repository.NewMemoryRunsRepository()
	run := seedRun(t, repo, "run-2")

	pipeline := &stubPipeline{err: errors.New("planner found a dependency cycle")}
	processor := NewProcessor(nil, repo, pipeline, nil)

	err := processor.processMessage(context.Background(), domain.QueueMessage{
		RunID:   run.ID,
		Idea:    run.Idea,
		Attempt: 1,
	})
	if err == nil {
		t.Fatalf("expected pipeline error to propagate for requeue")
	}

	stored, err := repo.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if stored.Phase != domain.PhaseFailed {
		t.Fatalf("expected failed phase, got %s", stored.Phase)
	}
	if stored.ErrorMessage == "" {
		t.Fatalf("expected error message on failed run")
	}
	if stored.Attempts != 2 {
		t.Fatalf("expected attempts 2, got %d", stored.Attempts)
	}
}

func TestProcessMessageSkipsTerminalRun(t *testing.T) {
	repo := repository.NewMemoryRunsRepository()
	run := seedRun(t, repo, "run-3")
	run.Phase = domain.PhaseFinalized
	if err := repo.UpdateRun(context.Background(), &run); err != nil {
		t.Fatalf("update run: %v", err)
	}

	pipeline := &stubPipeline{}
	processor := NewProcessor(nil, repo, pipeline, nil)

	err := processor.processMessage(context.Background(), domain.QueueMessage{RunID: run.ID, Idea: run.Idea})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pipeline.calls != 0 {
		t.Fatalf("expected pipeline to be skipped for terminal run, got %d calls", pipeline.calls)
	}
}

func TestProcessMessageUnknownRun(t *testing.T) {
	repo := repository.NewMemoryRunsRepository()
	processor := NewProcessor(nil, repo, &stubPipeline{}, nil)

	err := processor.processMessage(context.Background(), domain.QueueMessage{RunID: "missing"})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}
