package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssd-technologies/intelmarket/internal/commitment"
	"github.com/ssd-technologies/intelmarket/internal/config"
)

func TestSweep(t *testing.T) {
	m, clock := newTestMarket(t, Options{})
	seed(t, m)
	_, err := m.CommitReasoning("B", *testReasoning(), commitment.CommitOptions{})
	require.NoError(t, err)

	assert.Equal(t, 0, m.sweep())
	clock.Advance(25 * time.Hour)
	assert.Equal(t, 1, m.sweep())
	assert.Equal(t, 0, m.sweep())
}

func TestSaveSnapshot(t *testing.T) {
	db := testDB(t)
	m, _ := newTestMarket(t, Options{Store: db})
	seed(t, m)

	require.True(t, m.saveSnapshot())
	snap, err := db.LoadSnapshot()
	require.NoError(t, err)
	assert.Len(t, snap.Agents, 2)
	assert.Len(t, snap.Listings, 1)
	assert.NotZero(t, snap.TakenAt)
}

func TestStartWorkers(t *testing.T) {
	cfg := config.Default()
	cfg.Commitment.CleanupInterval = 10 * time.Millisecond
	cfg.Storage.SnapshotInterval = 10 * time.Millisecond
	db := testDB(t)
	m, clock := newTestMarket(t, Options{Config: cfg, Store: db})
	seed(t, m)
	_, err := m.CommitReasoning("B", *testReasoning(), commitment.CommitOptions{})
	require.NoError(t, err)
	clock.Advance(25 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartWorkers(ctx)

	assert.Eventually(t, func() bool {
		return m.TransparencyStats().Expired == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		snap, err := db.LoadSnapshot()
		return err == nil && len(snap.Agents) == 2
	}, 2*time.Second, 10*time.Millisecond)
}
