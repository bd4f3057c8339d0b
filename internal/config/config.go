// Package config loads the marketplace configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable that points at the config file.
const EnvPath = "INTELMARKET_CONFIG"

// Config represents the top-level intelmarket.yml configuration
type Config struct {
	Market     MarketConfig     `yaml:"market"`
	Ranking    RankingConfig    `yaml:"ranking"`
	Commitment CommitmentConfig `yaml:"commitment"`
	Shielding  ShieldingConfig  `yaml:"shielding"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit"`
	Storage    StorageConfig    `yaml:"storage"`
	History    HistoryConfig    `yaml:"history"`
}

// MarketConfig holds listing bounds and reputation constants
type MarketConfig struct {
	MinPrice                    float64 `yaml:"min_price"`
	MaxPrice                    float64 `yaml:"max_price"`
	MaxNameLength               int     `yaml:"max_name_length"`
	MaxDescriptionLength        int     `yaml:"max_description_length"`
	MaxTitleLength              int     `yaml:"max_title_length"`
	MaxListingDescriptionLength int     `yaml:"max_listing_description_length"`
	InitialReputation           int     `yaml:"initial_reputation"`
	MaxReputation               int     `yaml:"max_reputation"`
	MinRating                   int     `yaml:"min_rating"`
	MaxRating                   int     `yaml:"max_rating"`
	AllowReregistration         bool    `yaml:"allow_reregistration"`
}

// RankingConfig weights the discovery score
type RankingConfig struct {
	QualityWeight float64 `yaml:"quality_weight"`
	AgeWeight     float64 `yaml:"age_weight"`
}

// CommitmentConfig controls the commit-reveal ledger
type CommitmentConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	Digest          string        `yaml:"digest"` // sha256 or sha3-256
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// ShieldingConfig is the threshold policy for shielded purchases
type ShieldingConfig struct {
	PriceThreshold     float64 `yaml:"price_threshold"`
	MinBuyerReputation int     `yaml:"min_buyer_reputation"`
}

// RateLimitConfig limits purchases per buyer (0 = unlimited)
type RateLimitConfig struct {
	Purchases int           `yaml:"purchases"`
	Window    time.Duration `yaml:"window"`
}

// StorageConfig points at the SQLite snapshot store (empty path = none)
type StorageConfig struct {
	Path             string        `yaml:"path"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// HistoryConfig points at the Redis history store (empty addr = none)
type HistoryConfig struct {
	Addr       string `yaml:"addr"`
	Namespace  string `yaml:"namespace"`
	MaxRecords int    `yaml:"max_records"`
}

// Default returns a configuration with every value set.
func Default() *Config {
	return &Config{
		Market: MarketConfig{
			MinPrice:                    0.001,
			MaxPrice:                    1000,
			MaxNameLength:               100,
			MaxDescriptionLength:        1000,
			MaxTitleLength:              200,
			MaxListingDescriptionLength: 1000,
			InitialReputation:           100,
			MaxReputation:               1000,
			MinRating:                   1,
			MaxRating:                   5,
		},
		Ranking: RankingConfig{
			QualityWeight: 0.7,
			AgeWeight:     0.3,
		},
		Commitment: CommitmentConfig{
			TTL:             24 * time.Hour,
			Digest:          "sha256",
			CleanupInterval: 5 * time.Minute,
		},
		Shielding: ShieldingConfig{
			PriceThreshold:     10,
			MinBuyerReputation: 200,
		},
		RateLimit: RateLimitConfig{
			Window: time.Minute,
		},
		Storage: StorageConfig{
			SnapshotInterval: 10 * time.Minute,
		},
		History: HistoryConfig{
			Namespace:  "default",
			MaxRecords: 500,
		},
	}
}

// Validate performs strict validation on the configuration
func (c *Config) Validate() error {
	m := c.Market
	if m.MinPrice <= 0 {
		return fmt.Errorf("market.min_price must be > 0, got %v", m.MinPrice)
	}
	if m.MaxPrice < m.MinPrice {
		return fmt.Errorf("market.max_price (%v) must be >= market.min_price (%v)", m.MaxPrice, m.MinPrice)
	}
	for name, v := range map[string]int{
		"max_name_length":                m.MaxNameLength,
		"max_description_length":         m.MaxDescriptionLength,
		"max_title_length":               m.MaxTitleLength,
		"max_listing_description_length": m.MaxListingDescriptionLength,
		"max_reputation":                 m.MaxReputation,
	} {
		if v <= 0 {
			return fmt.Errorf("market.%s must be > 0, got %d", name, v)
		}
	}
	if m.InitialReputation < 0 || m.InitialReputation > m.MaxReputation {
		return fmt.Errorf("market.initial_reputation must be in [0, %d], got %d", m.MaxReputation, m.InitialReputation)
	}
	if m.MinRating < 1 || m.MaxRating < m.MinRating {
		return fmt.Errorf("invalid rating range [%d, %d]", m.MinRating, m.MaxRating)
	}

	if c.Ranking.QualityWeight < 0 || c.Ranking.AgeWeight < 0 {
		return fmt.Errorf("ranking weights must be >= 0")
	}
	if c.Ranking.QualityWeight == 0 && c.Ranking.AgeWeight == 0 {
		return fmt.Errorf("at least one ranking weight must be > 0")
	}

	if c.Commitment.TTL <= 0 {
		return fmt.Errorf("commitment.ttl must be > 0, got %v", c.Commitment.TTL)
	}
	if c.Commitment.Digest != "sha256" && c.Commitment.Digest != "sha3-256" {
		return fmt.Errorf("invalid commitment.digest: %s (must be 'sha256' or 'sha3-256')", c.Commitment.Digest)
	}
	if c.Commitment.CleanupInterval <= 0 {
		return fmt.Errorf("commitment.cleanup_interval must be > 0, got %v", c.Commitment.CleanupInterval)
	}

	if c.Shielding.PriceThreshold < 0 || c.Shielding.MinBuyerReputation < 0 {
		return fmt.Errorf("shielding thresholds must be >= 0")
	}

	if c.RateLimit.Purchases < 0 {
		return fmt.Errorf("ratelimit.purchases must be >= 0 (0 = unlimited), got %d", c.RateLimit.Purchases)
	}
	if c.RateLimit.Purchases > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be > 0 when ratelimit.purchases is set")
	}

	if c.Storage.Path != "" && c.Storage.SnapshotInterval <= 0 {
		return fmt.Errorf("storage.snapshot_interval must be > 0 when storage.path is set")
	}

	if c.History.Addr != "" {
		if c.History.Namespace == "" {
			return fmt.Errorf("history.namespace is required when history.addr is set")
		}
		if c.History.MaxRecords <= 0 {
			return fmt.Errorf("history.max_records must be > 0, got %d", c.History.MaxRecords)
		}
	}
	return nil
}

// Load reads the YAML file at path over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv loads the file named by INTELMARKET_CONFIG, or returns Default
// when the variable is unset.
func FromEnv() (*Config, error) {
	path := os.Getenv(EnvPath)
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
