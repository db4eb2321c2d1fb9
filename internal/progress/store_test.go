package progress

import (
	"sync"
	"testing"
	"time"

	"github.com/lakewatch/lakewatch-rca/internal/models"
)

func newClockedStore(grace time.Duration) (*Store, *time.Time) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewStore(grace)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestGetUnknownRunReadsNotStarted(t *testing.T) {
	s, _ := newClockedStore(30 * time.Second)

	got := s.Get("missing")
	if got.Status != models.ProgressNotStarted {
		t.Errorf("status = %s", got.Status)
	}
	if got.Step != 0 || got.TotalSteps != TotalSteps {
		t.Errorf("steps = %d/%d", got.Step, got.TotalSteps)
	}
}

func TestSetAndGet(t *testing.T) {
	s, _ := newClockedStore(30 * time.Second)

	s.Set("9001", 3, "Searching for platform outages and known issues...", models.ProgressInProgress)
	got := s.Get("9001")
	if got.Status != models.ProgressInProgress || got.Step != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestLastWriterWins(t *testing.T) {
	s, _ := newClockedStore(30 * time.Second)

	s.Set("9001", 2, "first", models.ProgressInProgress)
	s.Set("9001", 4, "second", models.ProgressInProgress)
	if got := s.Get("9001"); got.Step != 4 || got.Message != "second" {
		t.Errorf("got %+v", got)
	}
}

func TestTerminalStateEvictedAfterGrace(t *testing.T) {
	s, now := newClockedStore(30 * time.Second)

	s.Set("9001", TotalSteps, "Analysis complete", models.ProgressCompleted)

	// Still visible just before the grace period elapses.
	*now = now.Add(29 * time.Second)
	if got := s.Get("9001"); got.Status != models.ProgressCompleted {
		t.Errorf("status before grace = %s", got.Status)
	}

	*now = now.Add(2 * time.Second)
	if got := s.Get("9001"); got.Status != models.ProgressNotStarted {
		t.Errorf("status after grace = %s", got.Status)
	}
}

func TestErrorStateAlsoEvicted(t *testing.T) {
	s, now := newClockedStore(30 * time.Second)

	s.Set("9001", TotalSteps, "Analysis failed - parsing error", models.ProgressError)
	*now = now.Add(time.Minute)
	if got := s.Get("9001"); got.Status != models.ProgressNotStarted {
		t.Errorf("status = %s", got.Status)
	}
}

func TestInProgressNeverEvicted(t *testing.T) {
	s, now := newClockedStore(30 * time.Second)

	s.Set("9001", 1, "Analyzing job failure details...", models.ProgressInProgress)
	*now = now.Add(time.Hour)
	if got := s.Get("9001"); got.Status != models.ProgressInProgress {
		t.Errorf("status = %s", got.Status)
	}
}

func TestClear(t *testing.T) {
	s, _ := newClockedStore(30 * time.Second)

	s.Set("9001", 2, "working", models.ProgressInProgress)
	s.Clear("9001")
	if got := s.Get("9001"); got.Status != models.ProgressNotStarted {
		t.Errorf("status = %s", got.Status)
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore(30 * time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(step int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Set("9001", step, "racing", models.ProgressInProgress)
				s.Get("9001")
			}
		}(i)
	}
	wg.Wait()

	if got := s.Get("9001"); got.Status != models.ProgressInProgress {
		t.Errorf("status = %s", got.Status)
	}
}
