package market

import (
	"context"
	"log"
	"time"
)

// StartWorkers launches the background goroutines. Call with a cancellable
// context for graceful shutdown.
func (m *Marketplace) StartWorkers(ctx context.Context) {
	go m.runCommitmentSweep(ctx, m.cfg.Commitment.CleanupInterval)
	if m.store != nil {
		go m.runSnapshots(ctx, m.cfg.Storage.SnapshotInterval)
	}
}

// --- Commitment Sweep Worker ---

// runCommitmentSweep periodically expires overdue commitments and drops idle
// rate limiter windows.
func (m *Marketplace) runCommitmentSweep(ctx context.Context, every time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(every):
			m.sweep()
		}
	}
}

// sweep runs one pass of the commitment sweep. Returns the number of
// commitments expired.
func (m *Marketplace) sweep() int {
	n := m.CleanupExpiredCommitments()
	if n > 0 {
		log.Printf("[worker] expired %d commitments", n)
	}
	m.limiter.Cleanup()
	return n
}

// --- Snapshot Worker ---

// runSnapshots periodically writes the market to the attached store and
// once more on shutdown.
func (m *Marketplace) runSnapshots(ctx context.Context, every time.Duration) {
	for {
		select {
		case <-ctx.Done():
			m.saveSnapshot()
			return
		case <-time.After(every):
			m.saveSnapshot()
		}
	}
}

// saveSnapshot writes one snapshot, logging instead of returning failures.
func (m *Marketplace) saveSnapshot() bool {
	if err := m.SaveTo(m.store); err != nil {
		log.Printf("[worker] snapshot: %v", err)
		return false
	}
	return true
}
