package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

func storedRun(id, tenant, title string, createdAt time.Time) *domain.Run {
	return &domain.Run{
		ID:       id,
		TenantID: tenant,
		Idea: domain.Idea{
			Title:            title,
			TargetMarket:     "mid-size cities",
			ProblemStatement: "delivery costs",
		},
		Phase:     domain.PhaseFinalized,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryRunsRepository()
	ctx := context.Background()

	run := storedRun("run-1", "t1", "Bike courier network", time.Now().UTC())
	run.Result = []byte(`{"report":{}}`)
	if err := repo.CreateRun(ctx, run); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Mutating the caller's copy must not leak into the store.
	run.Phase = domain.PhaseFailed
	run.Result[2] = 'x'

	stored, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Phase != domain.PhaseFinalized {
		t.Fatalf("expected stored phase to be isolated from caller mutation, got %s", stored.Phase)
	}
	if string(stored.Result) != `{"report":{}}` {
		t.Fatalf("expected stored result to be isolated, got %s", stored.Result)
	}
}

func TestMemoryRepositoryUpdateUnknownRun(t *testing.T) {
	repo := NewMemoryRunsRepository()

	err := repo.UpdateRun(context.Background(), storedRun("ghost", "t1", "x", time.Now()))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetRun(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on get, got %v", err)
	}
}

func TestMemoryRepositoryListReportsFiltersAndPaginates(t *testing.T) {
	repo := NewMemoryRunsRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tenant := "t1"
		title := fmt.Sprintf("Courier idea %d", i)
		if i == 4 {
			tenant = "t2"
			title = "Vertical farming platform"
		}
		run := storedRun(fmt.Sprintf("run-%d", i), tenant, title, base.Add(time.Duration(i)*time.Hour))
		if err := repo.CreateRun(ctx, run); err != nil {
			t.Fatalf("create run %d: %v", i, err)
		}
	}

	items, total, err := repo.ListReports(ctx, domain.ReportListFilter{TenantID: "t1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 4 || len(items) != 4 {
		t.Fatalf("expected 4 tenant runs, got total=%d len=%d", total, len(items))
	}
	if items[0].RunID != "run-3" {
		t.Fatalf("expected newest run first, got %s", items[0].RunID)
	}

	items, total, err = repo.ListReports(ctx, domain.ReportListFilter{
		TenantID: "t1",
		Page:     2,
		PageSize: 3,
	})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if total != 4 || len(items) != 1 {
		t.Fatalf("expected 1 item on page 2, got total=%d len=%d", total, len(items))
	}

	items, total, err = repo.ListReports(ctx, domain.ReportListFilter{Topic: "farming"})
	if err != nil {
		t.Fatalf("list by topic: %v", err)
	}
	if total != 1 || items[0].Title != "Vertical farming platform" {
		t.Fatalf("expected topic filter to match one run, got %+v", items)
	}

	from := base.Add(2*time.Hour + time.Minute)
	items, _, err = repo.ListReports(ctx, domain.ReportListFilter{TenantID: "t1", From: &from})
	if err != nil {
		t.Fatalf("list from: %v", err)
	}
	if len(items) != 1 || items[0].RunID != "run-3" {
		t.Fatalf("expected only run-3 after cutoff, got %+v", items)
	}
}
