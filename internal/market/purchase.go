package market

import (
	"context"
	"fmt"
	"log"

	"github.com/ssd-technologies/intelmarket/internal/commitment"
	"github.com/ssd-technologies/intelmarket/internal/marketerr"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// PurchaseResult is what a successful purchase hands back to the buyer.
type PurchaseResult struct {
	Success      bool                `json:"success"`
	Transaction  storage.Transaction `json:"transaction"`
	Data         map[string]any      `json:"data"`
	ShieldedTxID string              `json:"shielded_tx_id,omitempty"`
	CommitmentID string              `json:"commitment_id,omitempty"`
}

// PurchaseIntelligence buys intelligenceID for buyerID. When reasoning is
// given it is committed before the purchase and revealed right after it, so
// the transaction carries an auditable pre-commitment. Shielding is applied
// when the privacy collaborator recommends it.
//
// Every check runs before any state changes. After the ledger records the
// purchase, the remaining steps (link, reveal, privacy reveal, history) are
// best effort: failures are logged and the purchase stands.
func (m *Marketplace) PurchaseIntelligence(ctx context.Context, buyerID, intelligenceID string, reasoning *storage.Reasoning) (*PurchaseResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	listing, err := m.ledger.CheckPurchase(buyerID, intelligenceID)
	if err != nil {
		return nil, err
	}
	buyer, err := m.agents.Get(buyerID)
	if err != nil {
		return nil, err
	}
	// Only attempts that pass the purchase checks spend quota.
	if !m.limiter.Allow(buyerID) {
		return nil, fmt.Errorf("buyer %s: %w", buyerID, marketerr.ErrRateLimited)
	}

	var commitmentID string
	if reasoning != nil {
		commitmentID, err = m.commitments.Commit(buyerID, *reasoning, commitment.CommitOptions{
			Context: map[string]any{
				"action":          "purchase",
				"intelligence_id": listing.ID,
				"seller_id":       listing.SellerID,
				"price":           listing.Price,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("commit reasoning: %w", err)
		}
	}

	var shieldedTxID string
	if m.privacy != nil && m.privacy.IsShieldingRecommended(listing.Price, buyer.Reputation) {
		shieldedTxID, err = m.privacy.Shield(ctx, ShieldRequest{
			BuyerID:        buyerID,
			SellerID:       listing.SellerID,
			IntelligenceID: listing.ID,
			Amount:         listing.Price,
		})
		if err != nil {
			return nil, fmt.Errorf("shield purchase: %w", err)
		}
	}

	res, err := m.ledger.Purchase(buyerID, intelligenceID)
	if err != nil {
		return nil, err
	}
	tx := res.Transaction

	if commitmentID != "" {
		if err := m.commitments.LinkToTransaction(commitmentID, tx.ID); err != nil {
			log.Printf("[market] link commitment %s to %s: %v", commitmentID, tx.ID, err)
		}
	}
	if commitmentID != "" || shieldedTxID != "" {
		if err := m.ledger.Annotate(tx.ID, shieldedTxID, commitmentID); err != nil {
			log.Printf("[market] annotate %s: %v", tx.ID, err)
		} else {
			tx.ShieldedTxID, tx.CommitmentID = shieldedTxID, commitmentID
		}
	}
	if commitmentID != "" {
		if _, err := m.commitments.Reveal(commitmentID, ""); err != nil {
			log.Printf("[market] auto-reveal %s: %v", commitmentID, err)
		}
	}
	if shieldedTxID != "" {
		if _, err := m.privacy.Reveal(ctx, shieldedTxID); err != nil {
			log.Printf("[market] privacy reveal %s: %v", shieldedTxID, err)
		}
	}
	if m.history != nil {
		if err := m.history.RecordTransaction(ctx, tx, listing, true); err != nil {
			log.Printf("[market] record history %s: %v", tx.ID, err)
		}
	}

	return &PurchaseResult{
		Success:      true,
		Transaction:  tx,
		Data:         res.Data,
		ShieldedTxID: shieldedTxID,
		CommitmentID: commitmentID,
	}, nil
}

// RateIntelligence rates buyerID's purchase of intelligenceID. Each purchase
// can be rated once.
func (m *Marketplace) RateIntelligence(buyerID, intelligenceID string, rating int, review string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledger.Rate(buyerID, intelligenceID, rating, review)
}
