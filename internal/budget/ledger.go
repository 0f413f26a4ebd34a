package budget

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

var (
	ErrInvalidLimit = errors.New("monthly budget limit must be positive")
	ErrOverBudget   = errors.New("budget limit reached")
)

// SourceKind identifies one paid (or free) data source.
type SourceKind string

const (
	SourceWebSearch  SourceKind = "web_search"
	SourceGeneration SourceKind = "generation"
	SourceFreeTier   SourceKind = "free_tier"
)

type Decision struct {
	Allowed       bool
	EstimatedCost float64
	Reason        string
}

type Alert struct {
	Tier     float64
	Spend    float64
	Limit    float64
	Message  string
	RaisedAt time.Time
}

// PeriodUsage is one archived accounting period, kept for trend queries.
type PeriodUsage struct {
	Start      time.Time
	End        time.Time
	Spend      float64
	ByCategory map[domain.ResearchCategory]float64
}

type Snapshot struct {
	PeriodStart    time.Time
	Limit          float64
	Spend          float64
	ByCategory     map[domain.ResearchCategory]float64
	ProjectedTotal float64
	OverBudget     bool
	Alerts         []Alert
}

type Config struct {
	// MonthlyLimit is the hard period ceiling. Must be positive.
	MonthlyLimit float64
	// UnitCosts maps each source to its per-unit price. Sources absent from
	// the map are free.
	UnitCosts map[SourceKind]float64
	// AlertTiers are spend fractions (e.g. 0.8, 0.9, 1.0) at which a
	// warning is raised, once per tier per rolling hour.
	AlertTiers  []float64
	PeriodStart time.Time
	Logger      *log.Logger
}

// Ledger tracks spend against a period limit. All mutation happens under a
// single mutex because executor workers share one instance.
type Ledger struct {
	mu sync.Mutex

	limit       float64
	unitCosts   map[SourceKind]float64
	alertTiers  []float64
	periodStart time.Time
	spend       float64
	byCategory  map[domain.ResearchCategory]float64
	alerts      []Alert
	lastAlertAt map[float64]time.Time
	history     []PeriodUsage
	logger      *log.Logger

	now func() time.Time
}

func NewLedger(config Config) (*Ledger, error) {
	if config.MonthlyLimit <= 0 {
		return nil, ErrInvalidLimit
	}
	if len(config.AlertTiers) == 0 {
		config.AlertTiers = []float64{0.8, 0.9, 1.0}
	}
	now := func() time.Time { return time.Now().UTC() }
	start := config.PeriodStart
	if start.IsZero() {
		start = monthStart(now())
	}

	unitCosts := make(map[SourceKind]float64, len(config.UnitCosts))
	for source, cost := range config.UnitCosts {
		if cost > 0 {
			unitCosts[source] = cost
		}
	}

	return &Ledger{
		limit:       config.MonthlyLimit,
		unitCosts:   unitCosts,
		alertTiers:  config.AlertTiers,
		periodStart: start,
		byCategory:  make(map[domain.ResearchCategory]float64),
		lastAlertAt: make(map[float64]time.Time),
		logger:      config.Logger,
		now:         now,
	}, nil
}

// CanAfford is the check-then-allow decision issued before any paid call.
// It refuses when the ledger is already over budget or the hypothetical
// charge would cross the limit.
func (l *Ledger) CanAfford(source SourceKind, quantity int) Decision {
	if quantity <= 0 {
		quantity = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	estimated := l.unitCosts[source] * float64(quantity)
	if estimated == 0 {
		return Decision{Allowed: true}
	}
	if l.spend >= l.limit {
		return Decision{
			EstimatedCost: estimated,
			Reason:        "budget exhausted for the current period",
		}
	}
	if l.spend+estimated > l.limit {
		return Decision{
			EstimatedCost: estimated,
			Reason:        fmt.Sprintf("charge of %.2f would cross the %.2f limit", estimated, l.limit),
		}
	}
	return Decision{Allowed: true, EstimatedCost: estimated}
}

// RecordUsage charges quantity units of source against category and returns
// the amount charged. Charges that would cross the limit are refused with
// ErrOverBudget; callers must fall back to a free source or skip.
func (l *Ledger) RecordUsage(source SourceKind, quantity int, category domain.ResearchCategory) (float64, error) {
	if quantity <= 0 {
		quantity = 1
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	amount := l.unitCosts[source] * float64(quantity)
	if amount == 0 {
		return 0, nil
	}
	if l.spend+amount > l.limit {
		l.raiseAlertLocked(1.0)
		return 0, ErrOverBudget
	}

	l.spend += amount
	l.byCategory[category] += amount
	l.checkTiersLocked()
	return amount, nil
}

// Snapshot returns the current period state including the extrapolated
// projected total, computed from the elapsed-day ratio.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	byCategory := make(map[domain.ResearchCategory]float64, len(l.byCategory))
	for category, amount := range l.byCategory {
		byCategory[category] = amount
	}
	return Snapshot{
		PeriodStart:    l.periodStart,
		Limit:          l.limit,
		Spend:          l.spend,
		ByCategory:     byCategory,
		ProjectedTotal: l.projectedLocked(),
		OverBudget:     l.spend >= l.limit,
		Alerts:         append([]Alert(nil), l.alerts...),
	}
}

// History returns archived usage for prior periods, oldest first.
func (l *Ledger) History() []PeriodUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]PeriodUsage(nil), l.history...)
}

func (l *Ledger) projectedLocked() float64 {
	now := l.now()
	elapsed := now.Sub(l.periodStart).Hours() / 24
	if elapsed < 1 {
		elapsed = 1
	}
	totalDays := float64(daysInMonth(l.periodStart))
	return l.spend / elapsed * totalDays
}

func (l *Ledger) checkTiersLocked() {
	ratio := l.spend / l.limit
	projected := l.projectedLocked() / l.limit
	for _, tier := range l.alertTiers {
		if ratio >= tier || projected >= tier {
			l.raiseAlertLocked(tier)
		}
	}
}

// raiseAlertLocked fires at most once per tier per rolling hour.
func (l *Ledger) raiseAlertLocked(tier float64) {
	now := l.now()
	if last, ok := l.lastAlertAt[tier]; ok && now.Sub(last) < time.Hour {
		return
	}
	l.lastAlertAt[tier] = now

	alert := Alert{
		Tier:     tier,
		Spend:    l.spend,
		Limit:    l.limit,
		Message:  fmt.Sprintf("budget at %.0f%% tier: spend %.2f of %.2f", tier*100, l.spend, l.limit),
		RaisedAt: now,
	}
	l.alerts = append(l.alerts, alert)
	if l.logger != nil {
		l.logger.Printf("budget alert tier=%.2f spend=%.2f limit=%.2f", tier, l.spend, l.limit)
	}
}

// rolloverLocked archives and resets the period when the month boundary has
// passed. Reset is all-or-nothing: spend, breakdown, and alert history go
// together.
func (l *Ledger) rolloverLocked() {
	now := l.now()
	currentStart := monthStart(now)
	if !currentStart.After(l.periodStart) {
		return
	}

	archived := PeriodUsage{
		Start:      l.periodStart,
		End:        currentStart,
		Spend:      l.spend,
		ByCategory: l.byCategory,
	}
	l.history = append(l.history, archived)

	l.periodStart = currentStart
	l.spend = 0
	l.byCategory = make(map[domain.ResearchCategory]float64)
	l.alerts = nil
	l.lastAlertAt = make(map[float64]time.Time)
	if l.logger != nil {
		l.logger.Printf("budget period rolled over, archived spend=%.2f", archived.Spend)
	}
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(t time.Time) int {
	first := monthStart(t)
	return first.AddDate(0, 1, -1).Day()
}
