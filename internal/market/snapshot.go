package market

import (
	"fmt"
	"log"

	"github.com/ssd-technologies/intelmarket/internal/marketerr"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// Snapshot copies all four entity tables at one consistent point.
func (m *Marketplace) Snapshot() *storage.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &storage.Snapshot{
		Agents:       m.agents.List(),
		Listings:     m.catalog.All(),
		Transactions: m.ledger.Transactions(),
		Commitments:  m.commitments.Export(),
		TakenAt:      m.now().UnixMilli(),
	}
}

// Restore replaces the whole market state with snap. Rate limiter windows
// are not part of the state and carry over.
func (m *Marketplace) Restore(snap *storage.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("restore: nil snapshot: %w", marketerr.ErrInvalidInput)
	}
	if err := checkSnapshot(snap); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents.Restore(snap.Agents)
	m.catalog.Restore(snap.Listings)
	m.ledger.Restore(snap.Transactions)
	m.commitments.Restore(snap.Commitments)
	return nil
}

// checkSnapshot rejects snapshots whose references do not resolve.
func checkSnapshot(snap *storage.Snapshot) error {
	agents := make(map[string]bool, len(snap.Agents))
	for _, a := range snap.Agents {
		agents[a.ID] = true
	}
	listings := make(map[string]bool, len(snap.Listings))
	for _, l := range snap.Listings {
		if !agents[l.SellerID] {
			return fmt.Errorf("restore: listing %s has unknown seller %s: %w", l.ID, l.SellerID, marketerr.ErrInvalidInput)
		}
		listings[l.ID] = true
	}
	for _, tx := range snap.Transactions {
		if !listings[tx.IntelligenceID] || !agents[tx.BuyerID] || !agents[tx.SellerID] {
			return fmt.Errorf("restore: transaction %s references unknown entities: %w", tx.ID, marketerr.ErrInvalidInput)
		}
	}
	return nil
}

// SaveTo writes a snapshot to db.
func (m *Marketplace) SaveTo(db *storage.DB) error {
	snap := m.Snapshot()
	if err := db.SaveSnapshot(snap); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadFrom restores the market from the snapshot stored in db. An empty
// database leaves the market untouched.
func (m *Marketplace) LoadFrom(db *storage.DB) error {
	snap, err := db.LoadSnapshot()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if snap.TakenAt == 0 && len(snap.Agents) == 0 {
		return nil
	}
	if err := m.Restore(snap); err != nil {
		return err
	}
	log.Printf("[market] restored %d agents, %d listings, %d transactions, %d commitments",
		len(snap.Agents), len(snap.Listings), len(snap.Transactions), len(snap.Commitments))
	return nil
}
