// Package market composes the registry, catalog, ledger and commitment
// ledger behind a single marketplace API and coordinates the purchase flow
// with the optional privacy and history collaborators.
package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ssd-technologies/intelmarket/internal/agent"
	"github.com/ssd-technologies/intelmarket/internal/catalog"
	"github.com/ssd-technologies/intelmarket/internal/commitment"
	"github.com/ssd-technologies/intelmarket/internal/config"
	"github.com/ssd-technologies/intelmarket/internal/history"
	"github.com/ssd-technologies/intelmarket/internal/ledger"
	"github.com/ssd-technologies/intelmarket/internal/marketerr"
	"github.com/ssd-technologies/intelmarket/internal/ratelimit"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// Options wires a Marketplace. Only Config is required; nil collaborators
// disable the corresponding step.
type Options struct {
	Config  *config.Config
	Privacy Privacy
	History History
	// Store receives periodic snapshots from StartWorkers.
	Store *storage.DB
	Now   func() time.Time
}

// Marketplace is the public surface of the intelligence market.
type Marketplace struct {
	// mu lets Snapshot and Restore see a quiescent market: every mutating
	// call holds it shared, Snapshot and Restore hold it exclusively.
	mu sync.RWMutex

	cfg         *config.Config
	agents      *agent.Registry
	catalog     *catalog.Catalog
	ledger      *ledger.Ledger
	commitments *commitment.Ledger
	limiter     *ratelimit.Keyed
	privacy     Privacy
	history     History
	store       *storage.DB
	now         func() time.Time
	closers     []io.Closer
}

// MarketStats is the aggregate view returned by GetMarketStats.
type MarketStats struct {
	TotalIntelligence int            `json:"total_intelligence"`
	TotalAgents       int            `json:"total_agents"`
	TotalTransactions int            `json:"total_transactions"`
	TotalVolume       float64        `json:"total_volume"`
	AvgPrice          float64        `json:"avg_price"`
	Categories        map[string]int `json:"categories"`
}

// New builds a marketplace from opts. The config is validated first.
func New(opts Options) (*Marketplace, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	mc := cfg.Market
	agents := agent.NewRegistry(agent.Limits{
		MaxNameLength:        mc.MaxNameLength,
		MaxDescriptionLength: mc.MaxDescriptionLength,
		InitialReputation:    mc.InitialReputation,
		MaxReputation:        mc.MaxReputation,
		MaxRating:            mc.MaxRating,
		AllowReregistration:  mc.AllowReregistration,
	})
	cat := catalog.New(agents, catalog.Options{
		Bounds: catalog.Bounds{
			MinPrice:             mc.MinPrice,
			MaxPrice:             mc.MaxPrice,
			MaxTitleLength:       mc.MaxTitleLength,
			MaxDescriptionLength: mc.MaxListingDescriptionLength,
		},
		Ranking: catalog.Ranking{
			QualityWeight: cfg.Ranking.QualityWeight,
			AgeWeight:     cfg.Ranking.AgeWeight,
		},
		Now: now,
	})
	led := ledger.New(agents, cat, ledger.Options{
		MinRating: mc.MinRating,
		MaxRating: mc.MaxRating,
		Now:       now,
	})
	commitments, err := commitment.New(commitment.Options{
		TTL:    cfg.Commitment.TTL,
		Digest: cfg.Commitment.Digest,
		Now:    now,
	})
	if err != nil {
		return nil, err
	}

	return &Marketplace{
		cfg:         cfg,
		agents:      agents,
		catalog:     cat,
		ledger:      led,
		commitments: commitments,
		limiter:     ratelimit.NewKeyed(cfg.RateLimit.Purchases, cfg.RateLimit.Window, now),
		privacy:     opts.Privacy,
		history:     opts.History,
		store:       opts.Store,
		now:         now,
	}, nil
}

// Open builds a marketplace and the backends named in cfg: a SQLite store
// when storage.path is set (its last snapshot is loaded) and a Redis history
// when history.addr is set. Close releases them.
func Open(ctx context.Context, cfg *config.Config, privacy Privacy) (*Marketplace, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	opts := Options{Config: cfg, Privacy: privacy}
	var closers []io.Closer
	fail := func(err error) (*Marketplace, error) {
		for _, c := range closers {
			c.Close()
		}
		return nil, err
	}

	if cfg.Storage.Path != "" {
		db, err := storage.NewDB(cfg.Storage.Path)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db)
		opts.Store = db
	}
	if cfg.History.Addr != "" {
		hs, err := history.NewStore(&redis.Options{Addr: cfg.History.Addr}, cfg.History.Namespace, cfg.History.MaxRecords)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, hs)
		if err := hs.Ping(ctx); err != nil {
			return fail(fmt.Errorf("history ping: %w", err))
		}
		opts.History = hs
	}

	m, err := New(opts)
	if err != nil {
		return fail(err)
	}
	m.closers = closers
	if m.store != nil {
		if err := m.LoadFrom(m.store); err != nil {
			return fail(err)
		}
	}
	log.Printf("[market] opened (store=%t history=%t privacy=%t)", m.store != nil, m.history != nil, m.privacy != nil)
	return m, nil
}

// Close releases backends created by Open.
func (m *Marketplace) Close() error {
	var errs []error
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.closers = nil
	return errors.Join(errs...)
}

// RegisterAgent adds an agent profile.
func (m *Marketplace) RegisterAgent(id string, p agent.Profile) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.agents.Register(id, p)
}

// GetAgent returns a registered agent.
func (m *Marketplace) GetAgent(id string) (storage.AgentProfile, error) {
	return m.agents.Get(id)
}

// ListIntelligence publishes a listing for sellerID and returns its id.
func (m *Marketplace) ListIntelligence(sellerID string, spec catalog.Spec) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.catalog.List(sellerID, spec)
}

// GetIntelligence returns a listing.
func (m *Marketplace) GetIntelligence(id string) (storage.IntelligenceListing, error) {
	return m.catalog.Get(id)
}

// SearchIntelligence returns listings matching every set filter, best first.
func (m *Marketplace) SearchIntelligence(f catalog.Filters) []storage.IntelligenceListing {
	return m.catalog.Search(f)
}

// GetTopAgents returns the highest-reputation agents.
func (m *Marketplace) GetTopAgents(limit int) []storage.AgentProfile {
	return m.agents.TopAgents(limit)
}

// GetAgentTransactions returns every transaction agentID took part in.
func (m *Marketplace) GetAgentTransactions(agentID string) ([]storage.Transaction, error) {
	if !m.agents.Exists(agentID) {
		return nil, fmt.Errorf("agent %s: %w", agentID, marketerr.ErrAgentNotRegistered)
	}
	return m.ledger.ByAgent(agentID), nil
}

// GetMarketStats reports catalog, agent and volume totals.
func (m *Marketplace) GetMarketStats() MarketStats {
	return MarketStats{
		TotalIntelligence: m.catalog.Count(),
		TotalAgents:       m.agents.Count(),
		TotalTransactions: m.ledger.Count(),
		TotalVolume:       m.ledger.TotalVolume(),
		AvgPrice:          m.ledger.AveragePrice(),
		Categories:        m.catalog.CategoryCounts(),
	}
}

// SimilarPurchases searches agentID's transaction history. Without a history
// backend it returns nothing.
func (m *Marketplace) SimilarPurchases(ctx context.Context, agentID, query string, limit int) ([]history.Record, error) {
	if m.history == nil {
		return nil, nil
	}
	if !m.agents.Exists(agentID) {
		return nil, fmt.Errorf("agent %s: %w", agentID, marketerr.ErrAgentNotRegistered)
	}
	return m.history.SearchSimilar(ctx, agentID, query, limit)
}
