package market

import (
	"context"

	"github.com/ssd-technologies/intelmarket/internal/config"
	"github.com/ssd-technologies/intelmarket/internal/history"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// Privacy is the external amount-shielding service. The marketplace treats
// the handle it returns as opaque.
type Privacy interface {
	IsShieldingRecommended(price float64, buyerReputation int) bool
	Shield(ctx context.Context, req ShieldRequest) (string, error)
	Reveal(ctx context.Context, handle string) (float64, error)
}

// ShieldRequest describes the purchase a Privacy service is asked to shield.
type ShieldRequest struct {
	BuyerID        string
	SellerID       string
	IntelligenceID string
	Amount         float64
}

// History is the external transaction memory. *history.Store satisfies it.
type History interface {
	RecordTransaction(ctx context.Context, tx storage.Transaction, listing storage.IntelligenceListing, success bool) error
	SearchSimilar(ctx context.Context, agentID, query string, limit int) ([]history.Record, error)
}

var _ History = (*history.Store)(nil)

// ThresholdPolicy recommends shielding when the price reaches PriceThreshold
// or the buyer's reputation is below MinBuyerReputation. A zero
// PriceThreshold disables the price rule. Privacy implementations can embed
// it to get IsShieldingRecommended.
type ThresholdPolicy struct {
	PriceThreshold     float64
	MinBuyerReputation int
}

// NewThresholdPolicy builds a policy from the shielding config section.
func NewThresholdPolicy(cfg config.ShieldingConfig) ThresholdPolicy {
	return ThresholdPolicy{
		PriceThreshold:     cfg.PriceThreshold,
		MinBuyerReputation: cfg.MinBuyerReputation,
	}
}

// IsShieldingRecommended implements the threshold rule.
func (p ThresholdPolicy) IsShieldingRecommended(price float64, buyerReputation int) bool {
	if p.PriceThreshold > 0 && price >= p.PriceThreshold {
		return true
	}
	return buyerReputation < p.MinBuyerReputation
}
