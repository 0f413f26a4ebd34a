package pipeline

import (
	"sync"
	"time"

	"github.com/iago/opportunity-radar-back/internal/domain"
)

// RunStatus is the polling view of one in-flight or finished run.
type RunStatus struct {
	RunID     string          `json:"run_id"`
	Phase     domain.RunPhase `json:"phase"`
	Progress  float64         `json:"progress"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StatusTracker keeps the current phase of every run this process has
// seen. Reads are concurrent; writes serialize on the mutex.
type StatusTracker struct {
	mu       sync.RWMutex
	statuses map[string]RunStatus
	now      func() time.Time
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		statuses: make(map[string]RunStatus),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (t *StatusTracker) Set(runID string, phase domain.RunPhase, progress float64) {
	if runID == "" {
		return
	}
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}

	t.mu.Lock()
	t.statuses[runID] = RunStatus{
		RunID:     runID,
		Phase:     phase,
		Progress:  progress,
		UpdatedAt: t.now(),
	}
	t.mu.Unlock()
}

func (t *StatusTracker) Get(runID string) (RunStatus, bool) {
	t.mu.RLock()
	status, exists := t.statuses[runID]
	t.mu.RUnlock()
	return status, exists
}

// Forget drops terminal runs so the map does not grow without bound.
func (t *StatusTracker) Forget(runID string) {
	t.mu.Lock()
	delete(t.statuses, runID)
	t.mu.Unlock()
}
