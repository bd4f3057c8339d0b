// Package history keeps a per-agent record of marketplace transactions in
// Redis and answers "what did I buy that looks like this" queries.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/redis/go-redis/v9"

	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// Agent roles in a Record.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

const defaultMaxRecords = 500

// Record is one transaction as seen by one of its parties.
type Record struct {
	TransactionID  string  `json:"transaction_id"`
	AgentID        string  `json:"agent_id"`
	Role           string  `json:"role"`
	CounterpartyID string  `json:"counterparty_id"`
	IntelligenceID string  `json:"intelligence_id"`
	Title          string  `json:"title"`
	Category       string  `json:"category"`
	Description    string  `json:"description,omitempty"`
	Price          float64 `json:"price"`
	Success        bool    `json:"success"`
	Timestamp      int64   `json:"timestamp"`
	Score          int     `json:"score,omitempty"`
}

// Store records transactions in namespaced Redis lists, one per agent.
// It is safe for concurrent use.
type Store struct {
	rdb        *redis.Client
	namespace  string
	maxRecords int
}

// NewStore creates a history store. maxRecords caps each agent's list; zero
// uses the default.
func NewStore(redisOpts *redis.Options, namespace string, maxRecords int) (*Store, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	if maxRecords < 0 {
		return nil, fmt.Errorf("max records must be >= 0, got %d", maxRecords)
	}
	if maxRecords == 0 {
		maxRecords = defaultMaxRecords
	}
	return &Store{
		rdb:        redis.NewClient(redisOpts),
		namespace:  namespace,
		maxRecords: maxRecords,
	}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// RecordTransaction appends tx to the buyer's and the seller's history and
// publishes it on the events channel. Each list is trimmed to the newest
// maxRecords entries.
func (s *Store) RecordTransaction(ctx context.Context, tx storage.Transaction, listing storage.IntelligenceListing, success bool) error {
	if tx.ID == "" || tx.BuyerID == "" {
		return fmt.Errorf("transaction id and buyer are required")
	}
	base := Record{
		TransactionID:  tx.ID,
		IntelligenceID: tx.IntelligenceID,
		Title:          listing.Title,
		Category:       listing.Category,
		Description:    listing.Description,
		Price:          tx.Price,
		Success:        success,
		Timestamp:      tx.Timestamp,
	}

	buyer := base
	buyer.AgentID, buyer.Role, buyer.CounterpartyID = tx.BuyerID, RoleBuyer, tx.SellerID
	records := []Record{buyer}
	if tx.SellerID != "" {
		seller := base
		seller.AgentID, seller.Role, seller.CounterpartyID = tx.SellerID, RoleSeller, tx.BuyerID
		records = append(records, seller)
	}

	pipe := s.rdb.TxPipeline()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal history record: %w", err)
		}
		key := AgentKey(s.namespace, r.AgentID)
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, int64(-s.maxRecords), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write history to Redis: %w", err)
	}

	event, err := json.Marshal(buyer)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction event: %w", err)
	}
	if err := s.rdb.Publish(ctx, EventsChannel(s.namespace), event).Err(); err != nil {
		return fmt.Errorf("failed to publish transaction event: %w", err)
	}
	return nil
}

// Recent returns up to limit of agentID's records, newest first. A limit of
// zero or less returns all of them.
func (s *Store) Recent(ctx context.Context, agentID string, limit int) ([]Record, error) {
	records, err := s.load(ctx, agentID)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// SearchSimilar ranks agentID's records by how many query tokens appear in
// their title, category and description. Records sharing no token are
// dropped. Ties favour the newer record. An empty query behaves like Recent.
func (s *Store) SearchSimilar(ctx context.Context, agentID, query string, limit int) ([]Record, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return s.Recent(ctx, agentID, limit)
	}
	records, err := s.load(ctx, agentID)
	if err != nil {
		return nil, err
	}

	var matches []Record
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		words := make(map[string]struct{})
		for w := range tokenize(r.Title + " " + r.Category + " " + r.Description) {
			words[w] = struct{}{}
		}
		for t := range terms {
			if _, ok := words[t]; ok {
				r.Score++
			}
		}
		if r.Score > 0 {
			matches = append(matches, r)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) load(ctx context.Context, agentID string) ([]Record, error) {
	raw, err := s.rdb.LRange(ctx, AgentKey(s.namespace, agentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history from Redis: %w", err)
	}
	records := make([]Record, 0, len(raw))
	for _, item := range raw {
		var r Record
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history record: %w", err)
		}
		records = append(records, r)
	}
	return records, nil
}

// tokenize lower-cases text and splits it on anything that is not a letter
// or digit, returning the distinct words.
func tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[f] = struct{}{}
	}
	return out
}
