package market

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssd-technologies/intelmarket/internal/agent"
	"github.com/ssd-technologies/intelmarket/internal/catalog"
	"github.com/ssd-technologies/intelmarket/internal/commitment"
	"github.com/ssd-technologies/intelmarket/internal/config"
	"github.com/ssd-technologies/intelmarket/internal/history"
	"github.com/ssd-technologies/intelmarket/internal/marketerr"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakePrivacy struct {
	ThresholdPolicy

	mu        sync.Mutex
	shielded  []ShieldRequest
	revealed  []string
	shieldErr error
	revealErr error
}

func (p *fakePrivacy) Shield(_ context.Context, req ShieldRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shieldErr != nil {
		return "", p.shieldErr
	}
	p.shielded = append(p.shielded, req)
	return "shielded_" + req.IntelligenceID, nil
}

func (p *fakePrivacy) Reveal(_ context.Context, handle string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.revealErr != nil {
		return 0, p.revealErr
	}
	p.revealed = append(p.revealed, handle)
	return 0, nil
}

type failingHistory struct{}

func (failingHistory) RecordTransaction(context.Context, storage.Transaction, storage.IntelligenceListing, bool) error {
	return errors.New("history unavailable")
}

func (failingHistory) SearchSimilar(context.Context, string, string, int) ([]history.Record, error) {
	return nil, errors.New("history unavailable")
}

func newTestMarket(t *testing.T, opts Options) (*Marketplace, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	m, err := New(opts)
	require.NoError(t, err)
	return m, clock
}

func profile(name string) agent.Profile {
	return agent.Profile{
		Name:            name,
		Description:     name + " trading agent",
		Specializations: []string{"crypto"},
	}
}

// seed registers seller S and buyer B and lists "Q4 Outlook" at 0.5.
func seed(t *testing.T, m *Marketplace) string {
	t.Helper()
	require.NoError(t, m.RegisterAgent("S", profile("Seller")))
	require.NoError(t, m.RegisterAgent("B", profile("Buyer")))
	id, err := m.ListIntelligence("S", catalog.Spec{
		Title:       "Q4 Outlook",
		Description: "Quarterly market view",
		Category:    storage.CategoryMarketAnalysis,
		Price:       0.5,
	})
	require.NoError(t, err)
	return id
}

func testReasoning() *storage.Reasoning {
	return &storage.Reasoning{
		Decision:   "buy Q4 Outlook",
		Factors:    []string{"seller track record"},
		Confidence: 0.9,
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Commitment.Digest = "md5"
	_, err := New(Options{Config: cfg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestScenario_PurchaseAndRate(t *testing.T) {
	m, _ := newTestMarket(t, Options{})
	intel := seed(t, m)

	seller, err := m.GetAgent("S")
	require.NoError(t, err)
	assert.Equal(t, 100, seller.Reputation)

	res, err := m.PurchaseIntelligence(context.Background(), "B", intel, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Data)
	assert.Empty(t, res.CommitmentID)
	assert.Empty(t, res.ShieldedTxID)
	assert.Equal(t, 0.5, res.Transaction.Price)

	seller, _ = m.GetAgent("S")
	assert.Equal(t, 1, seller.TotalSales)
	assert.Equal(t, 0.5, seller.TotalEarnings)
	listing, err := m.GetIntelligence(intel)
	require.NoError(t, err)
	assert.Equal(t, 1, listing.SalesCount)

	require.NoError(t, m.RateIntelligence("B", intel, 5, "spot on"))

	listing, _ = m.GetIntelligence(intel)
	assert.Equal(t, 5.0, listing.Rating)
	seller, _ = m.GetAgent("S")
	assert.Equal(t, 1000, seller.Reputation)

	err = m.RateIntelligence("B", intel, 4, "")
	assert.ErrorIs(t, err, marketerr.ErrInvalidTransaction)
}

func TestPurchase_Rejections(t *testing.T) {
	m, _ := newTestMarket(t, Options{})
	intel := seed(t, m)
	ctx := context.Background()

	_, err := m.PurchaseIntelligence(ctx, "ghost", intel, nil)
	assert.ErrorIs(t, err, marketerr.ErrAgentNotRegistered)

	_, err = m.PurchaseIntelligence(ctx, "B", "intel_missing", nil)
	assert.ErrorIs(t, err, marketerr.ErrIntelligenceNotFound)

	_, err = m.PurchaseIntelligence(ctx, "S", intel, nil)
	assert.ErrorIs(t, err, marketerr.ErrInvalidTransaction)

	bad := testReasoning()
	bad.Factors = nil
	_, err = m.PurchaseIntelligence(ctx, "B", intel, bad)
	assert.ErrorIs(t, err, marketerr.ErrMissingField)

	assert.Zero(t, m.GetMarketStats().TotalTransactions)
	assert.Zero(t, m.TransparencyStats().Total, "failed checks must not leave commitments")
}

func TestPurchase_WithReasoningIsAuditable(t *testing.T) {
	m, _ := newTestMarket(t, Options{})
	intel := seed(t, m)

	res, err := m.PurchaseIntelligence(context.Background(), "B", intel, testReasoning())
	require.NoError(t, err)
	require.NotEmpty(t, res.CommitmentID)
	assert.Equal(t, res.CommitmentID, res.Transaction.CommitmentID)

	audit := m.AuditTransaction(res.Transaction.ID)
	assert.True(t, audit.HasCommitment)
	assert.True(t, audit.IsRevealed)
	assert.True(t, audit.VerificationPassed)
	require.NotNil(t, audit.Reasoning)
	assert.Equal(t, *testReasoning(), *audit.Reasoning)

	rec, err := m.GetCommitment(res.CommitmentID)
	require.NoError(t, err)
	assert.Equal(t, "purchase", rec.Context["action"])
	assert.Equal(t, intel, rec.Context["intelligence_id"])

	stats := m.TransparencyStats()
	assert.Equal(t, 1, stats.Revealed)
	assert.Equal(t, 100.0, stats.TransparencyScore)

	plain, err := m.PurchaseIntelligence(context.Background(), "B", intel, nil)
	require.NoError(t, err)
	assert.False(t, m.AuditTransaction(plain.Transaction.ID).HasCommitment)
}

func TestPurchase_Shielding(t *testing.T) {
	privacy := &fakePrivacy{ThresholdPolicy: ThresholdPolicy{PriceThreshold: 10}}
	m, _ := newTestMarket(t, Options{Privacy: privacy})
	cheap := seed(t, m)
	pricey, err := m.ListIntelligence("S", catalog.Spec{
		Title:    "Whale alerts",
		Category: storage.CategoryOnChainAnalytics,
		Price:    25,
	})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := m.PurchaseIntelligence(ctx, "B", cheap, nil)
	require.NoError(t, err)
	assert.Empty(t, res.ShieldedTxID)

	res, err = m.PurchaseIntelligence(ctx, "B", pricey, nil)
	require.NoError(t, err)
	assert.Equal(t, "shielded_"+pricey, res.ShieldedTxID)

	tx, err := m.GetAgentTransactions("B")
	require.NoError(t, err)
	require.Len(t, tx, 2)
	assert.Equal(t, res.ShieldedTxID, tx[1].ShieldedTxID)

	require.Len(t, privacy.shielded, 1)
	assert.Equal(t, ShieldRequest{BuyerID: "B", SellerID: "S", IntelligenceID: pricey, Amount: 25}, privacy.shielded[0])
	assert.Equal(t, []string{res.ShieldedTxID}, privacy.revealed)
}

func TestPurchase_ShieldFailureAborts(t *testing.T) {
	privacy := &fakePrivacy{
		ThresholdPolicy: ThresholdPolicy{MinBuyerReputation: 500},
		shieldErr:       errors.New("relay down"),
	}
	m, _ := newTestMarket(t, Options{Privacy: privacy})
	intel := seed(t, m)

	_, err := m.PurchaseIntelligence(context.Background(), "B", intel, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relay down")
	assert.Zero(t, m.GetMarketStats().TotalTransactions)
}

func TestPurchase_BestEffortStepsDoNotFail(t *testing.T) {
	privacy := &fakePrivacy{
		ThresholdPolicy: ThresholdPolicy{MinBuyerReputation: 500},
		revealErr:       errors.New("reveal timeout"),
	}
	m, _ := newTestMarket(t, Options{Privacy: privacy, History: failingHistory{}})
	intel := seed(t, m)

	res, err := m.PurchaseIntelligence(context.Background(), "B", intel, testReasoning())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.ShieldedTxID)
	assert.Equal(t, 1, m.GetMarketStats().TotalTransactions)

	_, err = m.SimilarPurchases(context.Background(), "B", "outlook", 5)
	assert.Error(t, err)
}

func TestPurchase_RateLimited(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.Purchases = 2
	cfg.RateLimit.Window = time.Hour
	m, clock := newTestMarket(t, Options{Config: cfg})
	intel := seed(t, m)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := m.PurchaseIntelligence(ctx, "B", intel, nil)
		require.NoError(t, err)
	}
	_, err := m.PurchaseIntelligence(ctx, "B", intel, nil)
	assert.ErrorIs(t, err, marketerr.ErrRateLimited)
	assert.Equal(t, 2, m.GetMarketStats().TotalTransactions)

	clock.Advance(time.Hour + time.Second)
	_, err = m.PurchaseIntelligence(ctx, "B", intel, nil)
	assert.NoError(t, err)
}

func TestPurchase_RejectedAttemptsSpendNoQuota(t *testing.T) {
	cfg := config.Default()
	cfg.RateLimit.Purchases = 1
	cfg.RateLimit.Window = time.Hour
	m, _ := newTestMarket(t, Options{Config: cfg})
	intel := seed(t, m)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.PurchaseIntelligence(ctx, "B", "intel_missing", nil)
		assert.ErrorIs(t, err, marketerr.ErrIntelligenceNotFound)
		_, err = m.PurchaseIntelligence(ctx, "S", intel, nil)
		assert.ErrorIs(t, err, marketerr.ErrInvalidTransaction)
	}

	_, err := m.PurchaseIntelligence(ctx, "B", intel, nil)
	require.NoError(t, err)
	_, err = m.PurchaseIntelligence(ctx, "B", intel, nil)
	assert.ErrorIs(t, err, marketerr.ErrRateLimited)
}

func TestConcurrentPurchasesConserveCounters(t *testing.T) {
	m, _ := newTestMarket(t, Options{})
	intel := seed(t, m)
	for _, id := range []string{"B1", "B2", "B3", "B4"} {
		require.NoError(t, m.RegisterAgent(id, profile(id)))
	}

	var wg sync.WaitGroup
	for _, id := range []string{"B", "B1", "B2", "B3", "B4"} {
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(buyer string) {
				defer wg.Done()
				_, err := m.PurchaseIntelligence(context.Background(), buyer, intel, testReasoning())
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	seller, _ := m.GetAgent("S")
	listing, _ := m.GetIntelligence(intel)
	assert.Equal(t, 50, seller.TotalSales)
	assert.Equal(t, 50, listing.SalesCount)
	assert.InDelta(t, 25.0, seller.TotalEarnings, 1e-9)
	assert.Equal(t, 50, m.TransparencyStats().Revealed)
}

func TestSearchAndStats(t *testing.T) {
	m, clock := newTestMarket(t, Options{})
	intel := seed(t, m)
	clock.Advance(48 * time.Hour)
	_, err := m.ListIntelligence("S", catalog.Spec{Title: "BTC 24h", Category: storage.CategoryPricePrediction, Price: 2})
	require.NoError(t, err)

	got := m.SearchIntelligence(catalog.Filters{Category: storage.CategoryMarketAnalysis, MaxPrice: 1})
	require.Len(t, got, 1)
	assert.Equal(t, intel, got[0].ID)

	all := m.SearchIntelligence(catalog.Filters{})
	require.Len(t, all, 2)
	assert.Equal(t, intel, all[0].ID, "older listing scores higher at equal quality")

	_, err = m.PurchaseIntelligence(context.Background(), "B", intel, nil)
	require.NoError(t, err)

	stats := m.GetMarketStats()
	assert.Equal(t, 2, stats.TotalIntelligence)
	assert.Equal(t, 2, stats.TotalAgents)
	assert.Equal(t, 1, stats.TotalTransactions)
	assert.Equal(t, 0.5, stats.TotalVolume)
	assert.Equal(t, 0.5, stats.AvgPrice)
	assert.Equal(t, map[string]int{
		storage.CategoryMarketAnalysis:  1,
		storage.CategoryPricePrediction: 1,
	}, stats.Categories)

	top := m.GetTopAgents(1)
	require.Len(t, top, 1)
	assert.Equal(t, "S", top[0].ID, "ties keep registration order")

	_, err = m.GetAgentTransactions("ghost")
	assert.ErrorIs(t, err, marketerr.ErrAgentNotRegistered)
}

func TestCommitRevealThroughFacade(t *testing.T) {
	m, clock := newTestMarket(t, Options{})
	seed(t, m)

	_, err := m.CommitReasoning("ghost", *testReasoning(), commitment.CommitOptions{})
	assert.ErrorIs(t, err, marketerr.ErrAgentNotRegistered)

	id, err := m.CommitReasoning("B", *testReasoning(), commitment.CommitOptions{Nonce: "n1"})
	require.NoError(t, err)
	late, err := m.CommitReasoning("B", *testReasoning(), commitment.CommitOptions{})
	require.NoError(t, err)

	_, err = m.RevealReasoning(id, "other")
	assert.ErrorIs(t, err, commitment.ErrHashMismatch)
	r, err := m.RevealReasoning(id, "n1")
	require.NoError(t, err)
	assert.Equal(t, *testReasoning(), r)

	clock.Advance(25 * time.Hour)
	assert.Equal(t, 1, m.CleanupExpiredCommitments())
	_, err = m.RevealReasoning(late, "")
	assert.ErrorIs(t, err, commitment.ErrExpired)

	stats := m.TransparencyStats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 50.0, stats.TransparencyScore)
}

func TestSimilarPurchasesWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.History.Addr = mr.Addr()
	cfg.History.Namespace = "market-test"

	m, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })

	intel := seed(t, m)
	_, err = m.PurchaseIntelligence(context.Background(), "B", intel, nil)
	require.NoError(t, err)

	assert.True(t, mr.Exists(history.AgentKey("market-test", "B")))

	got, err := m.SimilarPurchases(context.Background(), "B", "q4 outlook", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, intel, got[0].IntelligenceID)
	assert.Equal(t, history.RoleBuyer, got[0].Role)

	_, err = m.SimilarPurchases(context.Background(), "ghost", "q4", 5)
	assert.ErrorIs(t, err, marketerr.ErrAgentNotRegistered)
}

func TestSimilarPurchasesWithoutHistory(t *testing.T) {
	m, _ := newTestMarket(t, Options{})
	got, err := m.SimilarPurchases(context.Background(), "anyone", "q4", 5)
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpen_HistoryUnreachable(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	addr := mr.Addr()
	mr.Close()

	cfg := config.Default()
	cfg.History.Addr = addr
	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history ping")
}

func testDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSnapshotRoundTrip(t *testing.T) {
	m, _ := newTestMarket(t, Options{})
	intel := seed(t, m)
	res, err := m.PurchaseIntelligence(context.Background(), "B", intel, testReasoning())
	require.NoError(t, err)
	require.NoError(t, m.RateIntelligence("B", intel, 4, "good"))
	pending, err := m.CommitReasoning("S", *testReasoning(), commitment.CommitOptions{Nonce: "later"})
	require.NoError(t, err)

	db := testDB(t)
	require.NoError(t, m.SaveTo(db))

	restored, _ := newTestMarket(t, Options{})
	require.NoError(t, restored.LoadFrom(db))

	assert.Equal(t, m.GetMarketStats(), restored.GetMarketStats())
	assert.Equal(t, m.GetTopAgents(10), restored.GetTopAgents(10))
	assert.Equal(t, m.TransparencyStats(), restored.TransparencyStats())

	audit := restored.AuditTransaction(res.Transaction.ID)
	assert.True(t, audit.VerificationPassed)

	err = restored.RateIntelligence("B", intel, 5, "")
	assert.ErrorIs(t, err, marketerr.ErrInvalidTransaction, "ratings survive a restore")

	_, err = restored.RevealReasoning(pending, "later")
	assert.NoError(t, err)
}

func TestSnapshotRoundTrip_LargeIntegerDataPoint(t *testing.T) {
	m, _ := newTestMarket(t, Options{})
	intel := seed(t, m)
	big := func() *storage.Reasoning {
		r := testReasoning()
		r.DataPoints = map[string]any{"block": int64(9007199254740993)}
		return r
	}

	pending, err := m.CommitReasoning("S", *big(), commitment.CommitOptions{Nonce: "n"})
	require.NoError(t, err)
	res, err := m.PurchaseIntelligence(context.Background(), "B", intel, big())
	require.NoError(t, err)

	db := testDB(t)
	require.NoError(t, m.SaveTo(db))
	restored, _ := newTestMarket(t, Options{})
	require.NoError(t, restored.LoadFrom(db))

	audit := restored.AuditTransaction(res.Transaction.ID)
	assert.True(t, audit.IsRevealed)
	assert.True(t, audit.VerificationPassed)

	out, err := restored.RevealReasoning(pending, "n")
	require.NoError(t, err)
	assert.Equal(t, json.Number("9007199254740993"), out.DataPoints["block"])
}

func TestLoadFrom_EmptyStoreKeepsState(t *testing.T) {
	m, _ := newTestMarket(t, Options{})
	seed(t, m)
	require.NoError(t, m.LoadFrom(testDB(t)))
	assert.Equal(t, 2, m.GetMarketStats().TotalAgents)
}

func TestRestore_RejectsDanglingReferences(t *testing.T) {
	m, _ := newTestMarket(t, Options{})
	seed(t, m)

	snap := m.Snapshot()
	snap.Agents = snap.Agents[1:]
	err := m.Restore(snap)
	assert.ErrorIs(t, err, marketerr.ErrInvalidInput)
	assert.Equal(t, 2, m.GetMarketStats().TotalAgents, "failed restore leaves state alone")

	assert.ErrorIs(t, m.Restore(nil), marketerr.ErrInvalidInput)
}

func TestOpen_ReloadsStore(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "market.db")

	m, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	intel := seed(t, m)
	_, err = m.PurchaseIntelligence(context.Background(), "B", intel, nil)
	require.NoError(t, err)
	require.NoError(t, m.SaveTo(m.store))
	require.NoError(t, m.Close())

	reopened, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()

	stats := reopened.GetMarketStats()
	assert.Equal(t, 2, stats.TotalAgents)
	assert.Equal(t, 1, stats.TotalTransactions)
	listing, err := reopened.GetIntelligence(intel)
	require.NoError(t, err)
	assert.Equal(t, 1, listing.SalesCount)
}

func TestThresholdPolicy(t *testing.T) {
	p := NewThresholdPolicy(config.ShieldingConfig{PriceThreshold: 10, MinBuyerReputation: 200})

	assert.True(t, p.IsShieldingRecommended(10, 900))
	assert.True(t, p.IsShieldingRecommended(1, 100))
	assert.False(t, p.IsShieldingRecommended(1, 200))

	off := ThresholdPolicy{}
	assert.False(t, off.IsShieldingRecommended(999, 0))
}
