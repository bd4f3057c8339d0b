// Package catalog owns intelligence listings and orders search results with
// the discovery ranking.
package catalog

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ssd-technologies/intelmarket/internal/marketerr"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// SellerLookup resolves a seller id to its current profile.
type SellerLookup interface {
	Get(id string) (storage.AgentProfile, error)
}

// Bounds limits listing input.
type Bounds struct {
	MinPrice             float64
	MaxPrice             float64
	MaxTitleLength       int
	MaxDescriptionLength int
}

// DefaultBounds returns the stock listing bounds.
func DefaultBounds() Bounds {
	return Bounds{
		MinPrice:             0.001,
		MaxPrice:             1000,
		MaxTitleLength:       200,
		MaxDescriptionLength: 1000,
	}
}

// Options configures a Catalog. Zero fields take defaults.
type Options struct {
	Bounds  Bounds
	Ranking Ranking
	Now     func() time.Time
}

// Spec is the caller-supplied part of a new listing.
type Spec struct {
	Title       string
	Description string
	Category    string
	Price       float64
}

// Filters narrows a search. Zero values mean "no filter"; set filters combine
// conjunctively.
type Filters struct {
	Category   string
	MaxPrice   float64
	MinQuality float64
	SellerID   string
	Limit      int
}

func (f Filters) match(l *storage.IntelligenceListing) bool {
	if f.Category != "" && l.Category != f.Category {
		return false
	}
	if f.MaxPrice > 0 && l.Price > f.MaxPrice {
		return false
	}
	if l.QualityScore < f.MinQuality {
		return false
	}
	if f.SellerID != "" && l.SellerID != f.SellerID {
		return false
	}
	return true
}

// Catalog stores listings keyed by id. It is safe for concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	sellers  SellerLookup
	bounds   Bounds
	ranking  Ranking
	now      func() time.Time
	listings map[string]*storage.IntelligenceListing
	order    []string
}

// New creates an empty catalog that validates sellers against sellers.
func New(sellers SellerLookup, opts Options) *Catalog {
	if opts.Bounds == (Bounds{}) {
		opts.Bounds = DefaultBounds()
	}
	if opts.Ranking == (Ranking{}) {
		opts.Ranking = DefaultRanking()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Catalog{
		sellers:  sellers,
		bounds:   opts.Bounds,
		ranking:  opts.Ranking,
		now:      opts.Now,
		listings: make(map[string]*storage.IntelligenceListing),
	}
}

// ValidCategory reports whether c is one of storage.Categories.
func ValidCategory(c string) bool {
	return slices.Contains(storage.Categories, c)
}

// QualityFromReputation derives a listing quality score: min(100, rep/10).
func QualityFromReputation(reputation int) float64 {
	return math.Min(100, float64(reputation)/10)
}

// List validates spec and stores a new listing for sellerID, returning its id.
// The quality score is a snapshot of the seller's reputation at this moment.
func (c *Catalog) List(sellerID string, spec Spec) (string, error) {
	seller, err := c.sellers.Get(sellerID)
	if err != nil {
		return "", fmt.Errorf("list intelligence: %w", err)
	}
	if strings.TrimSpace(spec.Title) == "" {
		return "", fmt.Errorf("listing title: %w", marketerr.ErrMissingField)
	}
	if strings.TrimSpace(spec.Category) == "" {
		return "", fmt.Errorf("listing category: %w", marketerr.ErrMissingField)
	}
	if len(spec.Title) > c.bounds.MaxTitleLength {
		return "", fmt.Errorf("title exceeds %d characters: %w", c.bounds.MaxTitleLength, marketerr.ErrInvalidInput)
	}
	if len(spec.Description) > c.bounds.MaxDescriptionLength {
		return "", fmt.Errorf("description exceeds %d characters: %w", c.bounds.MaxDescriptionLength, marketerr.ErrInvalidInput)
	}
	if !ValidCategory(spec.Category) {
		return "", fmt.Errorf("unknown category %q: %w", spec.Category, marketerr.ErrInvalidInput)
	}
	if math.IsNaN(spec.Price) || spec.Price < c.bounds.MinPrice || spec.Price > c.bounds.MaxPrice {
		return "", fmt.Errorf("price %v outside [%v, %v]: %w",
			spec.Price, c.bounds.MinPrice, c.bounds.MaxPrice, marketerr.ErrInvalidInput)
	}

	now := c.now()
	l := &storage.IntelligenceListing{
		ID:           storage.NewID(storage.PrefixIntelligence, now),
		SellerID:     sellerID,
		Title:        spec.Title,
		Description:  spec.Description,
		Category:     spec.Category,
		Price:        spec.Price,
		QualityScore: QualityFromReputation(seller.Reputation),
		CreatedAt:    now.UnixMilli(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings[l.ID] = l
	c.order = append(c.order, l.ID)
	return l.ID, nil
}

// Get returns a copy of the listing.
func (c *Catalog) Get(id string) (storage.IntelligenceListing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l, ok := c.listings[id]
	if !ok {
		return storage.IntelligenceListing{}, fmt.Errorf("intelligence %s: %w", id, marketerr.ErrIntelligenceNotFound)
	}
	return *l, nil
}

// Search returns the listings matching f, best ranked first.
func (c *Catalog) Search(f Filters) []storage.IntelligenceListing {
	c.mu.RLock()
	var out []storage.IntelligenceListing
	for _, id := range c.order {
		if l := c.listings[id]; f.match(l) {
			out = append(out, *l)
		}
	}
	c.mu.RUnlock()

	c.ranking.Rank(out, c.now())
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// BySeller returns the seller's listings in creation order.
func (c *Catalog) BySeller(sellerID string) []storage.IntelligenceListing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []storage.IntelligenceListing
	for _, id := range c.order {
		if l := c.listings[id]; l.SellerID == sellerID {
			out = append(out, *l)
		}
	}
	return out
}

// IncrementSales bumps the sales count of a listing by one.
func (c *Catalog) IncrementSales(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listings[id]
	if !ok {
		return fmt.Errorf("increment sales for %s: %w", id, marketerr.ErrIntelligenceNotFound)
	}
	l.SalesCount++
	return nil
}

// ApplyRating recomputes the listing's mean rating from every rated
// transaction in txs that references it. Other transactions are ignored.
func (c *Catalog) ApplyRating(id string, txs []storage.Transaction) error {
	sum, n := 0, 0
	for i := range txs {
		if txs[i].IntelligenceID == id && txs[i].Rated() {
			sum += *txs[i].Rating
			n++
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.listings[id]
	if !ok {
		return fmt.Errorf("apply rating to %s: %w", id, marketerr.ErrIntelligenceNotFound)
	}
	if n > 0 {
		l.Rating = float64(sum) / float64(n)
	}
	return nil
}

// CategoryCounts maps each category present in the catalog to its number of
// listings.
func (c *Catalog) CategoryCounts() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	counts := make(map[string]int)
	for _, l := range c.listings {
		counts[l.Category]++
	}
	return counts
}

// Count returns the number of listings.
func (c *Catalog) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listings)
}

// All returns copies of every listing in creation order.
func (c *Catalog) All() []storage.IntelligenceListing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]storage.IntelligenceListing, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.listings[id])
	}
	return out
}

// Restore replaces the catalog contents, keeping the given order.
func (c *Catalog) Restore(listings []storage.IntelligenceListing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listings = make(map[string]*storage.IntelligenceListing, len(listings))
	c.order = c.order[:0]
	for i := range listings {
		l := listings[i]
		if _, dup := c.listings[l.ID]; !dup {
			c.order = append(c.order, l.ID)
		}
		c.listings[l.ID] = &l
	}
}
