// Package ledger records completed purchases and their ratings, and keeps
// seller stats and listing counters consistent with them.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/ssd-technologies/intelmarket/internal/catalog"
	"github.com/ssd-technologies/intelmarket/internal/marketerr"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// AgentStore is the part of the agent registry the ledger mutates.
type AgentStore interface {
	Get(id string) (storage.AgentProfile, error)
	UpdateStats(id string, earningsDelta float64) error
	RecomputeReputation(txs []storage.Transaction)
}

// ListingStore is the part of the catalog the ledger mutates.
type ListingStore interface {
	Get(id string) (storage.IntelligenceListing, error)
	IncrementSales(id string) error
	ApplyRating(id string, txs []storage.Transaction) error
}

// Options configures a Ledger. Zero fields take defaults.
type Options struct {
	MinRating int
	MaxRating int
	Now       func() time.Time
}

// PurchaseResult is a recorded purchase plus the delivered content.
type PurchaseResult struct {
	Transaction storage.Transaction
	Data        map[string]any
}

// Ledger is the append-only list of transactions. One mutex serializes every
// purchase and rating so the transaction append, listing counters and seller
// stats move together.
type Ledger struct {
	mu        sync.Mutex
	agents    AgentStore
	listings  ListingStore
	minRating int
	maxRating int
	now       func() time.Time
	txs       []*storage.Transaction
	byID      map[string]*storage.Transaction
}

// New creates an empty ledger over agents and listings.
func New(agents AgentStore, listings ListingStore, opts Options) *Ledger {
	if opts.MinRating == 0 && opts.MaxRating == 0 {
		opts.MinRating, opts.MaxRating = 1, 5
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		agents:    agents,
		listings:  listings,
		minRating: opts.MinRating,
		maxRating: opts.MaxRating,
		now:       opts.Now,
		byID:      make(map[string]*storage.Transaction),
	}
}

// CheckPurchase runs every purchase precondition without touching state and
// returns the listing that would be bought.
func (l *Ledger) CheckPurchase(buyerID, intelligenceID string) (storage.IntelligenceListing, error) {
	if _, err := l.agents.Get(buyerID); err != nil {
		return storage.IntelligenceListing{}, fmt.Errorf("buyer: %w", err)
	}
	listing, err := l.listings.Get(intelligenceID)
	if err != nil {
		return storage.IntelligenceListing{}, err
	}
	if _, err := l.agents.Get(listing.SellerID); err != nil {
		return storage.IntelligenceListing{}, fmt.Errorf("seller: %w", err)
	}
	if listing.SellerID == buyerID {
		return storage.IntelligenceListing{}, fmt.Errorf("agent %s cannot buy its own listing: %w", buyerID, marketerr.ErrInvalidTransaction)
	}
	if listing.Price <= 0 {
		return storage.IntelligenceListing{}, fmt.Errorf("listing %s has non-positive price: %w", intelligenceID, marketerr.ErrInvalidInput)
	}
	return listing, nil
}

// Purchase records buyerID buying intelligenceID at the listing's current
// price. The transaction append, sales count increment and seller stats
// update happen in one critical section.
func (l *Ledger) Purchase(buyerID, intelligenceID string) (*PurchaseResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	listing, err := l.CheckPurchase(buyerID, intelligenceID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	tx := &storage.Transaction{
		ID:             storage.NewID(storage.PrefixTransaction, now),
		BuyerID:        buyerID,
		SellerID:       listing.SellerID,
		IntelligenceID: listing.ID,
		Price:          listing.Price,
		Timestamp:      now.UnixMilli(),
	}

	// Neither call can fail after CheckPurchase: agents and listings are
	// never deleted and the price is positive.
	if err := l.listings.IncrementSales(listing.ID); err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}
	if err := l.agents.UpdateStats(listing.SellerID, listing.Price); err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	l.txs = append(l.txs, tx)
	l.byID[tx.ID] = tx

	return &PurchaseResult{
		Transaction: *tx,
		Data:        catalog.SamplePayload(listing.Category),
	}, nil
}

// Rate attaches rating and review to buyerID's oldest unrated purchase of
// intelligenceID, then refreshes the listing rating and seller reputation
// from the full history. A buyer that never bought the listing gets
// ErrUnauthorized; one whose purchases are all rated gets
// ErrInvalidTransaction. Both match ErrInvalidTransaction.
func (l *Ledger) Rate(buyerID, intelligenceID string, rating int, review string) error {
	if rating < l.minRating || rating > l.maxRating {
		return fmt.Errorf("rating %d outside [%d, %d]: %w", rating, l.minRating, l.maxRating, marketerr.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var target *storage.Transaction
	purchased := false
	for _, tx := range l.txs {
		if tx.BuyerID != buyerID || tx.IntelligenceID != intelligenceID {
			continue
		}
		purchased = true
		if !tx.Rated() {
			target = tx
			break
		}
	}
	if !purchased {
		return fmt.Errorf("%s has not purchased %s: %w: %w",
			buyerID, intelligenceID, marketerr.ErrUnauthorized, marketerr.ErrInvalidTransaction)
	}
	if target == nil {
		return fmt.Errorf("no unrated purchase of %s by %s: %w", intelligenceID, buyerID, marketerr.ErrInvalidTransaction)
	}

	r := rating
	target.Rating = &r
	target.Review = review

	history := l.snapshotLocked()
	if err := l.listings.ApplyRating(intelligenceID, history); err != nil {
		return fmt.Errorf("apply rating: %w", err)
	}
	l.agents.RecomputeReputation(history)
	return nil
}

func copyTx(tx *storage.Transaction) storage.Transaction {
	c := *tx
	if tx.Rating != nil {
		r := *tx.Rating
		c.Rating = &r
	}
	return c
}

func (l *Ledger) snapshotLocked() []storage.Transaction {
	out := make([]storage.Transaction, len(l.txs))
	for i, tx := range l.txs {
		out[i] = copyTx(tx)
	}
	return out
}

func (l *Ledger) filter(keep func(*storage.Transaction) bool) []storage.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []storage.Transaction
	for _, tx := range l.txs {
		if keep(tx) {
			out = append(out, copyTx(tx))
		}
	}
	return out
}

// Transactions returns a copy of the whole ledger in append order.
func (l *Ledger) Transactions() []storage.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Get returns a copy of one transaction.
func (l *Ledger) Get(id string) (storage.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.byID[id]
	if !ok {
		return storage.Transaction{}, false
	}
	return copyTx(tx), true
}

// ByAgent returns the transactions where agentID is buyer or seller.
func (l *Ledger) ByAgent(agentID string) []storage.Transaction {
	return l.filter(func(tx *storage.Transaction) bool {
		return tx.BuyerID == agentID || tx.SellerID == agentID
	})
}

// ForIntelligence returns the transactions that bought intelligenceID.
func (l *Ledger) ForIntelligence(intelligenceID string) []storage.Transaction {
	return l.filter(func(tx *storage.Transaction) bool {
		return tx.IntelligenceID == intelligenceID
	})
}

// Annotate records the shielded transaction handle and commitment id linked
// to a transaction. Empty arguments leave the existing value.
func (l *Ledger) Annotate(id, shieldedTxID, commitmentID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	tx, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("transaction %s not found: %w", id, marketerr.ErrInvalidInput)
	}
	if shieldedTxID != "" {
		tx.ShieldedTxID = shieldedTxID
	}
	if commitmentID != "" {
		tx.CommitmentID = commitmentID
	}
	return nil
}

// Count returns the number of transactions.
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs)
}

// TotalVolume is the sum of all transaction prices.
func (l *Ledger) TotalVolume() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.volumeLocked()
}

func (l *Ledger) volumeLocked() float64 {
	total := 0.0
	for _, tx := range l.txs {
		total += tx.Price
	}
	return total
}

// AveragePrice is TotalVolume / Count, or 0 for an empty ledger.
func (l *Ledger) AveragePrice() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.txs) == 0 {
		return 0
	}
	return l.volumeLocked() / float64(len(l.txs))
}

// Restore replaces the ledger contents with txs in the given order.
func (l *Ledger) Restore(txs []storage.Transaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.txs = make([]*storage.Transaction, 0, len(txs))
	l.byID = make(map[string]*storage.Transaction, len(txs))
	for i := range txs {
		tx := copyTx(&txs[i])
		l.txs = append(l.txs, &tx)
		l.byID[tx.ID] = &tx
	}
}
