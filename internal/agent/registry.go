// Package agent owns marketplace participant identities and derives seller
// reputation from buyer ratings.
package agent

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ssd-technologies/intelmarket/internal/marketerr"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// Limits bounds registration input and the reputation scale.
type Limits struct {
	MaxNameLength        int
	MaxDescriptionLength int
	InitialReputation    int
	MaxReputation        int
	MaxRating            int
	// AllowReregistration lets Register overwrite the descriptive fields of an
	// existing agent. Counters and reputation are always preserved.
	AllowReregistration bool
}

// DefaultLimits returns the stock marketplace bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxNameLength:        100,
		MaxDescriptionLength: 1000,
		InitialReputation:    100,
		MaxReputation:        1000,
		MaxRating:            5,
	}
}

// Profile is the caller-supplied part of an AgentProfile.
type Profile struct {
	Name            string
	Description     string
	Specializations []string
	Verified        bool
}

// Registry is the identity map of registered agents. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	limits Limits
	agents map[string]*storage.AgentProfile
	order  []string // registration order, used for tie breaks
}

// NewRegistry creates an empty registry.
func NewRegistry(limits Limits) *Registry {
	return &Registry{
		limits: limits,
		agents: make(map[string]*storage.AgentProfile),
	}
}

// Limits returns the bounds the registry was created with.
func (r *Registry) Limits() Limits {
	return r.limits
}

func (r *Registry) validate(id string, p Profile) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("agent id: %w", marketerr.ErrMissingField)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("agent name: %w", marketerr.ErrMissingField)
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("agent description: %w", marketerr.ErrMissingField)
	}
	if len(p.Specializations) == 0 {
		return fmt.Errorf("agent specializations: %w", marketerr.ErrMissingField)
	}
	if len(p.Name) > r.limits.MaxNameLength {
		return fmt.Errorf("name exceeds %d characters: %w", r.limits.MaxNameLength, marketerr.ErrInvalidInput)
	}
	if len(p.Description) > r.limits.MaxDescriptionLength {
		return fmt.Errorf("description exceeds %d characters: %w", r.limits.MaxDescriptionLength, marketerr.ErrInvalidInput)
	}
	for _, s := range p.Specializations {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("empty specialization tag: %w", marketerr.ErrInvalidInput)
		}
	}
	return nil
}

// Register adds a new agent with zeroed counters and the initial reputation.
// Registering a known id fails with ErrAgentExists unless
// Limits.AllowReregistration is set.
func (r *Registry) Register(id string, p Profile) error {
	if err := r.validate(id, p); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.agents[id]; ok {
		if !r.limits.AllowReregistration {
			return fmt.Errorf("register %s: %w", id, marketerr.ErrAgentExists)
		}
		existing.Name = p.Name
		existing.Description = p.Description
		existing.Specializations = slices.Clone(p.Specializations)
		existing.Verified = p.Verified
		return nil
	}

	r.agents[id] = &storage.AgentProfile{
		ID:              id,
		Name:            p.Name,
		Description:     p.Description,
		Specializations: slices.Clone(p.Specializations),
		Reputation:      r.limits.InitialReputation,
		Verified:        p.Verified,
		CreatedAt:       time.Now().UnixMilli(),
	}
	r.order = append(r.order, id)
	return nil
}

func cloneProfile(a *storage.AgentProfile) storage.AgentProfile {
	c := *a
	c.Specializations = slices.Clone(a.Specializations)
	return c
}

// Get returns a copy of the agent's profile.
func (r *Registry) Get(id string) (storage.AgentProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return storage.AgentProfile{}, fmt.Errorf("agent %s: %w", id, marketerr.ErrAgentNotRegistered)
	}
	return cloneProfile(a), nil
}

// Exists reports whether id is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[id]
	return ok
}

// UpdateStats records one sale for id worth earningsDelta.
func (r *Registry) UpdateStats(id string, earningsDelta float64) error {
	if earningsDelta < 0 {
		return fmt.Errorf("negative earnings delta %v: %w", earningsDelta, marketerr.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("update stats for %s: %w", id, marketerr.ErrAgentNotRegistered)
	}
	a.TotalSales++
	a.TotalEarnings += earningsDelta
	return nil
}

// RecomputeReputation rebuilds the reputation of every seller that has at
// least one rated sale in txs. Agents without rated sales keep their score.
func (r *Registry) RecomputeReputation(txs []storage.Transaction) {
	ratings := make(map[string][]int)
	for i := range txs {
		if txs[i].Rated() {
			ratings[txs[i].SellerID] = append(ratings[txs[i].SellerID], *txs[i].Rating)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.agents {
		score, ok := ComputeReputation(ratings[id], r.limits.MaxRating, r.limits.MaxReputation)
		if ok {
			a.Reputation = score
		}
	}
}

// SetVerified flips the verified flag on an agent.
func (r *Registry) SetVerified(id string, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("verify %s: %w", id, marketerr.ErrAgentNotRegistered)
	}
	a.Verified = verified
	return nil
}

// TopAgents returns up to limit agents by descending reputation. Ties keep
// registration order. limit is clamped to [1, 100].
func (r *Registry) TopAgents(limit int) []storage.AgentProfile {
	limit = max(1, min(limit, 100))

	out := r.List()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Reputation > out[j].Reputation
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// List returns copies of every agent in registration order.
func (r *Registry) List() []storage.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]storage.AgentProfile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, cloneProfile(r.agents[id]))
	}
	return out
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// Restore replaces the registry contents with profiles, keeping their order.
func (r *Registry) Restore(profiles []storage.AgentProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*storage.AgentProfile, len(profiles))
	r.order = r.order[:0]
	for i := range profiles {
		p := cloneProfile(&profiles[i])
		if _, dup := r.agents[p.ID]; !dup {
			r.order = append(r.order, p.ID)
		}
		r.agents[p.ID] = &p
	}
}
