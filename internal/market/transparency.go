package market

import (
	"fmt"

	"github.com/ssd-technologies/intelmarket/internal/commitment"
	"github.com/ssd-technologies/intelmarket/internal/marketerr"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// CommitReasoning seals reasoning for a registered agent outside of a
// purchase.
func (m *Marketplace) CommitReasoning(agentID string, reasoning storage.Reasoning, opts commitment.CommitOptions) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.agents.Exists(agentID) {
		return "", fmt.Errorf("agent %s: %w", agentID, marketerr.ErrAgentNotRegistered)
	}
	return m.commitments.Commit(agentID, reasoning, opts)
}

// RevealReasoning discloses a sealed commitment.
func (m *Marketplace) RevealReasoning(commitmentID, nonce string) (storage.Reasoning, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commitments.Reveal(commitmentID, nonce)
}

// GetCommitment returns a commitment with its reasoning hidden until revealed.
func (m *Marketplace) GetCommitment(commitmentID string) (storage.Commitment, error) {
	return m.commitments.Get(commitmentID)
}

// AuditTransaction reports the commitment proof for a transaction.
func (m *Marketplace) AuditTransaction(transactionID string) commitment.Audit {
	return m.commitments.Audit(transactionID)
}

// CleanupExpiredCommitments expires overdue commitments and returns how many
// it changed.
func (m *Marketplace) CleanupExpiredCommitments() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commitments.CleanupExpired()
}

// TransparencyStats summarizes the commitment ledger.
func (m *Marketplace) TransparencyStats() commitment.Stats {
	return m.commitments.Stats()
}
