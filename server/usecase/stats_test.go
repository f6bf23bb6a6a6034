package usecase_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nakshatratalks/consult-engine/server/usecase"
)

func TestAdvisorStatsAverage(t *testing.T) {
	repo := newMemRepo()
	stats := usecase.NewAdvisorStats(repo)

	_, ok := stats.AverageDuration("a1")
	assert.False(t, ok, "no observations yet")

	require.NoError(t, stats.Record("a1", 120))
	require.NoError(t, stats.Record("a1", 240))

	avg, ok := stats.AverageDuration("a1")
	require.True(t, ok)
	assert.Equal(t, 3*time.Minute, avg)

	// Observations are persisted, not just cached.
	persisted, samples, err := repo.AdvisorAverageDuration("a1")
	require.NoError(t, err)
	assert.Equal(t, 2, samples)
	assert.InDelta(t, 180.0, persisted, 1e-9)
}

func TestAdvisorStatsLoadsFromRepository(t *testing.T) {
	repo := newMemRepo()
	require.NoError(t, repo.RecordAdvisorDuration("a1", 300))

	// A fresh stats instance finds history written by an earlier run.
	stats := usecase.NewAdvisorStats(repo)
	avg, ok := stats.AverageDuration("a1")
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, avg)
}
