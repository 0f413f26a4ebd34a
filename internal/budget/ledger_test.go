package budget

import (
	"testing"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

func newTestLedger(t *testing.T, limit float64, unitCost float64) *Ledger {
	t.Helper()
	ledger, err := NewLedger(Config{
		MonthlyLimit: limit,
		UnitCosts:    map[SourceKind]float64{SourceWebSearch: unitCost},
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	return ledger
}

func TestNewLedgerRejectsNonPositiveLimit(t *testing.T) {
	if _, err := NewLedger(Config{MonthlyLimit: 0}); err != ErrInvalidLimit {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := NewLedger(Config{MonthlyLimit: -5}); err != ErrInvalidLimit {
		t.Fatalf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestBudgetConservation(t *testing.T) {
	ledger := newTestLedger(t, 500, 7)

	total := 0.0
	for i := 0; i < 20; i++ {
		charged, err := ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryCompetitor)
		if err != nil {
			t.Fatalf("record usage %d: %v", i, err)
		}
		total += charged
	}

	snapshot := ledger.Snapshot()
	if snapshot.Spend != total {
		t.Fatalf("expected cumulative spend %.2f to equal recorded sum %.2f", snapshot.Spend, total)
	}
	if snapshot.ByCategory[domain.CategoryCompetitor] != total {
		t.Fatalf("expected category breakdown to track spend")
	}
}

func TestHardLimitRefusesTwoHundredFirstCharge(t *testing.T) {
	ledger := newTestLedger(t, 2000, 10)

	for i := 0; i < 200; i++ {
		if _, err := ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryMarketData); err != nil {
			t.Fatalf("usage %d unexpectedly refused: %v", i+1, err)
		}
	}

	snapshot := ledger.Snapshot()
	if snapshot.Spend != 2000 {
		t.Fatalf("expected spend of 2000 after 200 usages, got %.2f", snapshot.Spend)
	}

	decision := ledger.CanAfford(SourceWebSearch, 1)
	if decision.Allowed {
		t.Fatalf("expected the 201st affordability check to refuse")
	}
	if decision.Reason == "" {
		t.Fatalf("expected a refusal reason")
	}

	if _, err := ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryMarketData); err != ErrOverBudget {
		t.Fatalf("expected ErrOverBudget on charge past the limit, got %v", err)
	}
	if snapshot := ledger.Snapshot(); snapshot.Spend != 2000 {
		t.Fatalf("refused charge must not change spend, got %.2f", snapshot.Spend)
	}
}

func TestCanAffordRefusesChargeCrossingLimit(t *testing.T) {
	ledger := newTestLedger(t, 100, 30)

	for i := 0; i < 3; i++ {
		if _, err := ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryCustomer); err != nil {
			t.Fatalf("record usage: %v", err)
		}
	}

	// Spend is 90; one more unit of 30 would cross 100.
	decision := ledger.CanAfford(SourceWebSearch, 1)
	if decision.Allowed {
		t.Fatalf("expected refusal for a charge crossing the limit")
	}
	if decision.EstimatedCost != 30 {
		t.Fatalf("expected estimated cost of 30, got %.2f", decision.EstimatedCost)
	}
}

func TestFreeSourceIsAlwaysAllowed(t *testing.T) {
	ledger := newTestLedger(t, 10, 10)
	if _, err := ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryCustomer); err != nil {
		t.Fatalf("record usage: %v", err)
	}

	decision := ledger.CanAfford(SourceFreeTier, 5)
	if !decision.Allowed || decision.EstimatedCost != 0 {
		t.Fatalf("expected free source to be allowed at zero cost, got %+v", decision)
	}
	if charged, err := ledger.RecordUsage(SourceFreeTier, 5, domain.CategoryCustomer); err != nil || charged != 0 {
		t.Fatalf("expected free usage to record at zero cost, got %.2f err=%v", charged, err)
	}
}

func TestAlertTiersFireOncePerRollingHour(t *testing.T) {
	ledger := newTestLedger(t, 100, 45)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return base }
	ledger.periodStart = monthStart(base)

	if _, err := ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryMarketData); err != nil {
		t.Fatalf("record usage: %v", err)
	}
	if _, err := ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryMarketData); err != nil {
		t.Fatalf("record usage: %v", err)
	}

	first := len(ledger.Snapshot().Alerts)
	if first == 0 {
		t.Fatalf("expected at least one alert at 90%% spend")
	}

	// Same tier again inside the hour stays quiet.
	ledger.now = func() time.Time { return base.Add(30 * time.Minute) }
	_, _ = ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryMarketData)
	if got := len(ledger.Snapshot().Alerts); got != first {
		t.Fatalf("expected no duplicate alerts inside the hour, got %d vs %d", got, first)
	}

	// After the rolling hour the tier may fire again.
	ledger.now = func() time.Time { return base.Add(2 * time.Hour) }
	_, _ = ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryMarketData)
	if got := len(ledger.Snapshot().Alerts); got <= first {
		t.Fatalf("expected a fresh alert after the rolling hour, got %d", got)
	}
}

func TestPeriodRolloverArchivesAndResets(t *testing.T) {
	ledger := newTestLedger(t, 1000, 10)
	march := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	ledger.now = func() time.Time { return march }
	ledger.periodStart = monthStart(march)

	for i := 0; i < 5; i++ {
		if _, err := ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryRegulatory); err != nil {
			t.Fatalf("record usage: %v", err)
		}
	}

	ledger.now = func() time.Time { return time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC) }
	snapshot := ledger.Snapshot()
	if snapshot.Spend != 0 {
		t.Fatalf("expected spend reset after rollover, got %.2f", snapshot.Spend)
	}
	if len(snapshot.ByCategory) != 0 {
		t.Fatalf("expected breakdown reset after rollover")
	}
	if len(snapshot.Alerts) != 0 {
		t.Fatalf("expected alert history reset after rollover")
	}

	history := ledger.History()
	if len(history) != 1 {
		t.Fatalf("expected one archived period, got %d", len(history))
	}
	if history[0].Spend != 50 {
		t.Fatalf("expected archived spend of 50, got %.2f", history[0].Spend)
	}
}

func TestProjectedTotalExtrapolatesFromElapsedDays(t *testing.T) {
	ledger := newTestLedger(t, 10000, 10)
	// Ten days into a 31-day month, spend of 100 projects to 310.
	ledger.now = func() time.Time { return time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC) }
	ledger.periodStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		if _, err := ledger.RecordUsage(SourceWebSearch, 1, domain.CategoryMarketData); err != nil {
			t.Fatalf("record usage: %v", err)
		}
	}

	snapshot := ledger.Snapshot()
	if snapshot.ProjectedTotal < 309 || snapshot.ProjectedTotal > 311 {
		t.Fatalf("expected projected total near 310, got %.2f", snapshot.ProjectedTotal)
	}
}
