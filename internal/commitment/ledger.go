// Package commitment implements the commit-reveal transparency protocol: an
// agent seals a decision rationale with a digest before acting and discloses
// it afterwards so anyone can audit that the decision was pre-committed.
//
// A record moves committed -> revealed or committed -> expired. Both targets
// are terminal.
package commitment

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ssd-technologies/intelmarket/internal/marketerr"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

const defaultTTL = 24 * time.Hour

// Commitment errors. Each also matches a marketerr kind via errors.Is.
var (
	ErrCommitmentNotFound = fmt.Errorf("commitment not found: %w", marketerr.ErrInvalidInput)
	ErrAlreadyProcessed   = fmt.Errorf("commitment already processed: %w", marketerr.ErrInvalidTransaction)
	ErrExpired            = fmt.Errorf("commitment expired: %w", ErrAlreadyProcessed)
	ErrHashMismatch       = fmt.Errorf("commitment hash mismatch: %w", marketerr.ErrInvalidTransaction)
)

// Options configures a Ledger. Zero fields take defaults.
type Options struct {
	TTL    time.Duration
	Digest string
	Now    func() time.Time
}

// CommitOptions carries the optional parts of a commitment.
type CommitOptions struct {
	// Nonce is mixed into the digest and must be presented again on reveal.
	Nonce string
	// Context is free-form metadata stored alongside the record.
	Context map[string]any
}

// Audit is the public proof for one transaction.
type Audit struct {
	TransactionID      string             `json:"transaction_id"`
	CommitmentID       string             `json:"commitment_id,omitempty"`
	HasCommitment      bool               `json:"has_commitment"`
	IsRevealed         bool               `json:"is_revealed"`
	Status             string             `json:"status,omitempty"`
	Reasoning          *storage.Reasoning `json:"reasoning,omitempty"`
	CreatedAt          int64              `json:"created_at,omitempty"`
	RevealDeadline     int64              `json:"reveal_deadline,omitempty"`
	RevealedAt         int64              `json:"revealed_at,omitempty"`
	VerificationPassed bool               `json:"verification_passed"`
}

// Stats summarizes the ledger.
type Stats struct {
	Total             int     `json:"total"`
	Committed         int     `json:"committed"`
	Revealed          int     `json:"revealed"`
	Expired           int     `json:"expired"`
	TransparencyScore float64 `json:"transparency_score"`
}

// Ledger holds commitment records. Every status transition happens under mu,
// so a racing reveal and cleanup sweep cannot both apply.
type Ledger struct {
	mu       sync.Mutex
	ttl      time.Duration
	digest   string
	now      func() time.Time
	records  map[string]*storage.Commitment
	order    []string
	byTx     map[string]string             // transaction id -> commitment id
	revealed map[string]*storage.Reasoning // commitment id -> disclosed reasoning
}

// New creates an empty commitment ledger.
func New(opts Options) (*Ledger, error) {
	if opts.TTL == 0 {
		opts.TTL = defaultTTL
	}
	if opts.TTL < 0 {
		return nil, fmt.Errorf("negative commitment ttl %v: %w", opts.TTL, marketerr.ErrInvalidInput)
	}
	if opts.Digest == "" {
		opts.Digest = DigestSHA256
	}
	if !ValidDigest(opts.Digest) {
		return nil, fmt.Errorf("unknown digest %q: %w", opts.Digest, marketerr.ErrInvalidInput)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		ttl:      opts.TTL,
		digest:   opts.Digest,
		now:      opts.Now,
		records:  make(map[string]*storage.Commitment),
		byTx:     make(map[string]string),
		revealed: make(map[string]*storage.Reasoning),
	}, nil
}

// validateReasoning enforces a non-empty decision, at least one factor and a
// confidence in [0, 1].
func validateReasoning(r *storage.Reasoning) error {
	if strings.TrimSpace(r.Decision) == "" {
		return fmt.Errorf("reasoning decision: %w", marketerr.ErrMissingField)
	}
	if len(r.Factors) == 0 {
		return fmt.Errorf("reasoning factors: %w", marketerr.ErrMissingField)
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v outside [0, 1]: %w", r.Confidence, marketerr.ErrInvalidInput)
	}
	return nil
}

// Commit seals reasoning for agentID and returns the new commitment id. The
// plaintext is retained for the later reveal but no read method exposes it
// until then.
func (l *Ledger) Commit(agentID string, reasoning storage.Reasoning, opts CommitOptions) (string, error) {
	if strings.TrimSpace(agentID) == "" {
		return "", fmt.Errorf("commitment agent id: %w", marketerr.ErrMissingField)
	}
	if err := validateReasoning(&reasoning); err != nil {
		return "", err
	}
	canonical, err := Canonical(&reasoning)
	if err != nil {
		return "", err
	}
	digest, err := DigestCanonical(l.digest, canonical, agentID, opts.Nonce)
	if err != nil {
		return "", err
	}

	now := l.now()
	rec := &storage.Commitment{
		ID:             storage.NewID(storage.PrefixCommitment, now),
		AgentID:        agentID,
		Hash:           digest,
		Algorithm:      l.digest,
		Reasoning:      cloneReasoning(&reasoning),
		Sealed:         canonical,
		Context:        cloneContext(opts.Context),
		Status:         storage.CommitmentCommitted,
		CreatedAt:      now.UnixMilli(),
		RevealDeadline: now.Add(l.ttl).UnixMilli(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.ID] = rec
	l.order = append(l.order, rec.ID)
	return rec.ID, nil
}

// LinkToTransaction attaches a transaction id to a commitment. Linking the
// same pair again is a no-op; re-linking to a different transaction fails.
func (l *Ledger) LinkToTransaction(commitmentID, transactionID string) error {
	if transactionID == "" {
		return fmt.Errorf("transaction id: %w", marketerr.ErrMissingField)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[commitmentID]
	if !ok {
		return fmt.Errorf("link %s: %w", commitmentID, ErrCommitmentNotFound)
	}
	if rec.TransactionID != "" && rec.TransactionID != transactionID {
		return fmt.Errorf("commitment %s already linked to %s: %w", commitmentID, rec.TransactionID, marketerr.ErrInvalidInput)
	}
	rec.TransactionID = transactionID
	l.byTx[transactionID] = commitmentID
	return nil
}

// Reveal discloses the sealed reasoning after re-verifying the digest with
// nonce. A reveal past the deadline flips the record to expired and fails
// with ErrExpired. A wrong nonce fails with ErrHashMismatch and leaves the
// record committed.
func (l *Ledger) Reveal(commitmentID, nonce string) (storage.Reasoning, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[commitmentID]
	if !ok {
		return storage.Reasoning{}, fmt.Errorf("reveal %s: %w", commitmentID, ErrCommitmentNotFound)
	}
	switch rec.Status {
	case storage.CommitmentCommitted:
	case storage.CommitmentExpired:
		return storage.Reasoning{}, fmt.Errorf("reveal %s: %w", commitmentID, ErrExpired)
	default:
		return storage.Reasoning{}, fmt.Errorf("reveal %s (status %s): %w", commitmentID, rec.Status, ErrAlreadyProcessed)
	}

	now := l.now()
	if now.UnixMilli() > rec.RevealDeadline {
		rec.Status = storage.CommitmentExpired
		return storage.Reasoning{}, fmt.Errorf("reveal %s: %w", commitmentID, ErrExpired)
	}

	sealed, err := sealedBytes(rec)
	if err != nil {
		return storage.Reasoning{}, err
	}
	digest, err := DigestCanonical(rec.Algorithm, sealed, rec.AgentID, nonce)
	if err != nil {
		return storage.Reasoning{}, err
	}
	if digest != rec.Hash {
		return storage.Reasoning{}, fmt.Errorf("reveal %s: %w", commitmentID, ErrHashMismatch)
	}

	rec.Status = storage.CommitmentRevealed
	rec.RevealedAt = now.UnixMilli()
	rec.Nonce = nonce
	l.revealed[commitmentID] = cloneReasoning(rec.Reasoning)
	return *cloneReasoning(rec.Reasoning), nil
}

// Audit reports whether transactionID was preceded by a commitment and, once
// revealed, whether the disclosed reasoning still matches the sealed digest.
func (l *Ledger) Audit(transactionID string) Audit {
	l.mu.Lock()
	defer l.mu.Unlock()

	a := Audit{TransactionID: transactionID}
	id, ok := l.byTx[transactionID]
	if !ok {
		return a
	}
	rec := l.records[id]
	a.CommitmentID = rec.ID
	a.HasCommitment = true
	a.Status = rec.Status
	a.CreatedAt = rec.CreatedAt
	a.RevealDeadline = rec.RevealDeadline
	a.RevealedAt = rec.RevealedAt

	disclosed, ok := l.revealed[id]
	if !ok || rec.Status != storage.CommitmentRevealed {
		return a
	}
	a.IsRevealed = true
	a.Reasoning = cloneReasoning(disclosed)
	a.VerificationPassed = verify(rec, disclosed)
	return a
}

// sealedBytes returns the canonical encoding the digest was computed over.
// Records without one are re-encoded from their reasoning.
func sealedBytes(rec *storage.Commitment) ([]byte, error) {
	if len(rec.Sealed) > 0 {
		return rec.Sealed, nil
	}
	return Canonical(rec.Reasoning)
}

// verify checks the sealed bytes against the digest and the disclosed
// reasoning against the sealed bytes.
func verify(rec *storage.Commitment, disclosed *storage.Reasoning) bool {
	sealed, err := sealedBytes(rec)
	if err != nil {
		return false
	}
	digest, err := DigestCanonical(rec.Algorithm, sealed, rec.AgentID, rec.Nonce)
	if err != nil || digest != rec.Hash {
		return false
	}
	shown, err := Canonical(disclosed)
	return err == nil && bytes.Equal(shown, sealed)
}

// CleanupExpired flips every committed record past its deadline to expired
// and returns how many it changed.
func (l *Ledger) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now().UnixMilli()
	n := 0
	for _, rec := range l.records {
		if rec.Status == storage.CommitmentCommitted && now > rec.RevealDeadline {
			rec.Status = storage.CommitmentExpired
			n++
		}
	}
	return n
}

// Stats counts records by status. TransparencyScore is revealed/total*100.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var s Stats
	for _, rec := range l.records {
		s.Total++
		switch rec.Status {
		case storage.CommitmentCommitted:
			s.Committed++
		case storage.CommitmentRevealed:
			s.Revealed++
		case storage.CommitmentExpired:
			s.Expired++
		}
	}
	if s.Total > 0 {
		s.TransparencyScore = float64(s.Revealed) / float64(s.Total) * 100
	}
	return s
}

// redacted copies rec, hiding the reasoning unless it has been revealed.
func redacted(rec *storage.Commitment) storage.Commitment {
	c := *rec
	c.Sealed = nil
	c.Context = cloneContext(rec.Context)
	if rec.Status == storage.CommitmentRevealed {
		c.Reasoning = cloneReasoning(rec.Reasoning)
	} else {
		c.Reasoning = nil
	}
	return c
}

// Get returns a commitment with its reasoning hidden until revealed.
func (l *Ledger) Get(commitmentID string) (storage.Commitment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[commitmentID]
	if !ok {
		return storage.Commitment{}, fmt.Errorf("get %s: %w", commitmentID, ErrCommitmentNotFound)
	}
	return redacted(rec), nil
}

// ByAgent returns agentID's commitments in creation order, redacted like Get.
func (l *Ledger) ByAgent(agentID string) []storage.Commitment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []storage.Commitment
	for _, id := range l.order {
		if rec := l.records[id]; rec.AgentID == agentID {
			out = append(out, redacted(rec))
		}
	}
	return out
}

// Export returns every record including sealed reasoning. It exists for
// persistence and must not back any caller-facing read path.
func (l *Ledger) Export() []storage.Commitment {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]storage.Commitment, 0, len(l.order))
	for _, id := range l.order {
		c := *l.records[id]
		c.Reasoning = cloneReasoning(c.Reasoning)
		c.Sealed = slices.Clone(c.Sealed)
		c.Context = cloneContext(c.Context)
		out = append(out, c)
	}
	return out
}

// Restore replaces the ledger contents with records from Export.
func (l *Ledger) Restore(records []storage.Commitment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = make(map[string]*storage.Commitment, len(records))
	l.byTx = make(map[string]string)
	l.revealed = make(map[string]*storage.Reasoning)
	l.order = l.order[:0]
	for i := range records {
		rec := records[i]
		rec.Reasoning = cloneReasoning(rec.Reasoning)
		rec.Sealed = slices.Clone(rec.Sealed)
		rec.Context = cloneContext(rec.Context)
		if _, dup := l.records[rec.ID]; !dup {
			l.order = append(l.order, rec.ID)
		}
		l.records[rec.ID] = &rec
		if rec.TransactionID != "" {
			l.byTx[rec.TransactionID] = rec.ID
		}
		if rec.Status == storage.CommitmentRevealed {
			l.revealed[rec.ID] = cloneReasoning(rec.Reasoning)
		}
	}
}
