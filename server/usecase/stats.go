package usecase

import (
	"fmt"
	"sync"
	"time"
)

// AdvisorStats tracks the observed average session duration per
// advisor, backing the queue's wait estimates. Observations persist
// through the repository; the average is cached in memory.
type AdvisorStats struct {
	repo Repository

	mu    sync.RWMutex
	cache map[string]advisorAverage
}

type advisorAverage struct {
	avgSeconds float64
	samples    int
}

func NewAdvisorStats(repo Repository) *AdvisorStats {
	return &AdvisorStats{
		repo:  repo,
		cache: make(map[string]advisorAverage),
	}
}

// AverageDuration implements domain.DurationSource.
func (a *AdvisorStats) AverageDuration(advisorID string) (time.Duration, bool) {
	a.mu.RLock()
	entry, ok := a.cache[advisorID]
	a.mu.RUnlock()

	if !ok {
		avg, samples, err := a.repo.AdvisorAverageDuration(advisorID)
		if err != nil || samples == 0 {
			return 0, false
		}
		entry = advisorAverage{avgSeconds: avg, samples: samples}
		a.mu.Lock()
		a.cache[advisorID] = entry
		a.mu.Unlock()
	}
	if entry.samples == 0 {
		return 0, false
	}
	return time.Duration(entry.avgSeconds * float64(time.Second)), true
}

// Record persists one completed-session duration and folds it into the
// cached average.
func (a *AdvisorStats) Record(advisorID string, seconds float64) error {
	if err := a.repo.RecordAdvisorDuration(advisorID, seconds); err != nil {
		return fmt.Errorf("failed to record advisor duration: %w", err)
	}
	a.mu.Lock()
	entry := a.cache[advisorID]
	entry.avgSeconds = (entry.avgSeconds*float64(entry.samples) + seconds) / float64(entry.samples+1)
	entry.samples++
	a.cache[advisorID] = entry
	a.mu.Unlock()
	return nil
}
