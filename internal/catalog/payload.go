package catalog

import "github.com/ssd-technologies/intelmarket/internal/storage"

// SamplePayload returns the representative content delivered on purchase for
// a category. The result is freshly allocated and deterministic per category.
func SamplePayload(category string) map[string]any {
	switch category {
	case storage.CategoryPricePrediction:
		return map[string]any{
			"current":        1.0,
			"prediction_24h": map[string]any{"price": 1.04, "confidence": 0.72},
			"prediction_7d":  map[string]any{"price": 1.11, "confidence": 0.58},
		}
	case storage.CategoryMarketAnalysis:
		return map[string]any{
			"trend":      "bullish",
			"support":    0.92,
			"resistance": 1.18,
			"volume":     "increasing",
			"summary":    "Accumulation phase with rising volume near support.",
		}
	case storage.CategorySentimentAnalysis:
		return map[string]any{
			"score":    0.64,
			"label":    "positive",
			"sources":  []string{"social", "news", "forums"},
			"mentions": 1280,
		}
	case storage.CategoryRiskAssessment:
		return map[string]any{
			"risk_level":   "medium",
			"volatility":   0.34,
			"max_drawdown": 0.21,
			"factors":      []string{"liquidity", "concentration"},
		}
	case storage.CategoryTradingSignals:
		return map[string]any{
			"signal":      "buy",
			"entry":       1.00,
			"take_profit": 1.12,
			"stop_loss":   0.95,
			"timeframe":   "4h",
		}
	case storage.CategoryOnChainAnalytics:
		return map[string]any{
			"active_addresses": 48210,
			"net_flow":         -1250.5,
			"whale_moves":      3,
		}
	case storage.CategoryResearchReport:
		return map[string]any{
			"title":    "Sector overview",
			"sections": []string{"thesis", "risks", "catalysts"},
			"rating":   "overweight",
		}
	default:
		return map[string]any{"category": category, "content": "intelligence payload"}
	}
}
