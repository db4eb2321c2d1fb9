package progress

import (
	"sync"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/models"
)

// TotalSteps is the number of fixed milestones in one enrichment analysis.
const TotalSteps = 6

type entry struct {
	state      models.AnalysisProgress
	terminalAt time.Time
}

// Store tracks per-run analysis progress. Concurrent reads and writes are
// keyed by run identifier with last-writer-wins semantics. Terminal entries
// are kept for a grace period so clients can poll the final state, then
// evicted lazily on the next access.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	grace   time.Duration
	now     func() time.Time
}

func NewStore(grace time.Duration) *Store {
	return &Store{
		entries: make(map[string]*entry),
		grace:   grace,
		now:     time.Now,
	}
}

// Set records the current step for a run. Completed and error states start
// the eviction grace period.
func (s *Store) Set(runID string, step int, message, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()

	e := &entry{state: models.AnalysisProgress{
		Status:     status,
		Step:       step,
		TotalSteps: TotalSteps,
		Message:    message,
	}}
	if status == models.ProgressCompleted || status == models.ProgressError {
		e.terminalAt = s.now()
	}
	s.entries[runID] = e
}

// Get returns the current progress for a run. Unknown or evicted runs read
// as not started.
func (s *Store) Get(runID string) models.AnalysisProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictExpiredLocked()

	if e, ok := s.entries[runID]; ok {
		return e.state
	}
	return models.AnalysisProgress{
		Status:     models.ProgressNotStarted,
		Step:       0,
		TotalSteps: TotalSteps,
		Message:    "Analysis not started",
	}
}

// Clear drops a run's progress immediately.
func (s *Store) Clear(runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, runID)
}

func (s *Store) evictExpiredLocked() {
	now := s.now()
	for runID, e := range s.entries {
		if !e.terminalAt.IsZero() && now.Sub(e.terminalAt) >= s.grace {
			delete(s.entries, runID)
		}
	}
}
