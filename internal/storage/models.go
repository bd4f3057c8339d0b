// Package storage holds the marketplace entity models and the SQLite store
// used to snapshot and restore them.
package storage

// Intelligence categories. The set is closed.
const (
	CategoryMarketAnalysis    = "market-analysis"
	CategoryPricePrediction   = "price-prediction"
	CategorySentimentAnalysis = "sentiment-analysis"
	CategoryRiskAssessment    = "risk-assessment"
	CategoryTradingSignals    = "trading-signals"
	CategoryOnChainAnalytics  = "on-chain-analytics"
	CategoryResearchReport    = "research-report"
)

// Categories lists every valid intelligence category in display order.
var Categories = []string{
	CategoryMarketAnalysis,
	CategoryPricePrediction,
	CategorySentimentAnalysis,
	CategoryRiskAssessment,
	CategoryTradingSignals,
	CategoryOnChainAnalytics,
	CategoryResearchReport,
}

// Commitment statuses.
const (
	CommitmentCommitted = "committed"
	CommitmentRevealed  = "revealed"
	CommitmentExpired   = "expired"
)

// AgentProfile is a registered marketplace participant. Timestamps are unix
// milliseconds throughout this package.
type AgentProfile struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Specializations []string `json:"specializations"`
	Reputation      int      `json:"reputation"`
	TotalSales      int      `json:"total_sales"`
	TotalEarnings   float64  `json:"total_earnings"`
	Verified        bool     `json:"verified"`
	CreatedAt       int64    `json:"created_at"`
}

// IntelligenceListing is a priced, categorized unit of information offered by
// a seller. QualityScore is frozen when the listing is created.
type IntelligenceListing struct {
	ID           string  `json:"id"`
	SellerID     string  `json:"seller_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Category     string  `json:"category"`
	Price        float64 `json:"price"`
	QualityScore float64 `json:"quality_score"`
	SalesCount   int     `json:"sales_count"`
	Rating       float64 `json:"rating"`
	CreatedAt    int64   `json:"created_at"`
}

// Transaction is a completed purchase. Rating and Review are set at most once.
type Transaction struct {
	ID             string  `json:"id"`
	BuyerID        string  `json:"buyer_id"`
	SellerID       string  `json:"seller_id"`
	IntelligenceID string  `json:"intelligence_id"`
	Price          float64 `json:"price"`
	Timestamp      int64   `json:"timestamp"`
	Rating         *int    `json:"rating,omitempty"`
	Review         string  `json:"review,omitempty"`
	ShieldedTxID   string  `json:"shielded_tx_id,omitempty"`
	CommitmentID   string  `json:"commitment_id,omitempty"`
}

// Rated reports whether the transaction has received its rating.
func (t *Transaction) Rated() bool {
	return t.Rating != nil
}

// Reasoning is the decision rationale an agent commits to before acting.
type Reasoning struct {
	Decision    string         `json:"decision"`
	Factors     []string       `json:"factors"`
	Confidence  float64        `json:"confidence"`
	DataPoints  map[string]any `json:"data_points,omitempty"`
	Methodology string         `json:"methodology,omitempty"`
}

// Commitment is a hash-sealed, time-boxed pledge to a Reasoning.
type Commitment struct {
	ID             string         `json:"id"`
	AgentID        string         `json:"agent_id"`
	TransactionID  string         `json:"transaction_id,omitempty"`
	Hash           string         `json:"hash"`
	Algorithm      string         `json:"algorithm"`
	Reasoning      *Reasoning     `json:"reasoning,omitempty"`
	// Sealed is the canonical encoding the hash was computed over.
	Sealed         []byte         `json:"sealed,omitempty"`
	Nonce          string         `json:"nonce,omitempty"`
	Context        map[string]any `json:"context,omitempty"`
	Status         string         `json:"status"`
	CreatedAt      int64          `json:"created_at"`
	RevealDeadline int64          `json:"reveal_deadline"`
	RevealedAt     int64          `json:"revealed_at,omitempty"`
}

// Snapshot is a point-in-time copy of the four marketplace tables.
type Snapshot struct {
	Agents       []AgentProfile        `json:"agents"`
	Listings     []IntelligenceListing `json:"listings"`
	Transactions []Transaction         `json:"transactions"`
	Commitments  []Commitment          `json:"commitments"`
	TakenAt      int64                 `json:"taken_at"`
}
