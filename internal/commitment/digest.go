package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/ssd-technologies/intelmarket/internal/marketerr"
	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// Supported digest algorithms.
const (
	DigestSHA256  = "sha256"
	DigestSHA3256 = "sha3-256"
)

// ValidDigest reports whether name is a supported digest algorithm.
func ValidDigest(name string) bool {
	return name == DigestSHA256 || name == DigestSHA3256
}

func newHash(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case DigestSHA256:
		return sha256.New(), nil
	case DigestSHA3256:
		return sha3.New256(), nil
	default:
		return nil, fmt.Errorf("unknown digest %q: %w", algorithm, marketerr.ErrInvalidInput)
	}
}

// Canonical serializes reasoning deterministically. Struct fields keep their
// declared order and encoding/json sorts map keys.
func Canonical(r *storage.Reasoning) ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("serialize reasoning: %v: %w", err, marketerr.ErrInvalidInput)
	}
	return b, nil
}

// Digest returns hex(H(canonical(r) || 0x00 || agentID || 0x00 || nonce)).
// The separators keep agentID and nonce from sliding into each other.
func Digest(algorithm string, r *storage.Reasoning, agentID, nonce string) (string, error) {
	payload, err := Canonical(r)
	if err != nil {
		return "", err
	}
	return DigestCanonical(algorithm, payload, agentID, nonce)
}

// DigestCanonical is Digest over reasoning that is already canonical bytes.
func DigestCanonical(algorithm string, payload []byte, agentID, nonce string) (string, error) {
	h, err := newHash(algorithm)
	if err != nil {
		return "", err
	}
	h.Write(payload)
	h.Write([]byte{0})
	h.Write([]byte(agentID))
	h.Write([]byte{0})
	h.Write([]byte(nonce))
	return hex.EncodeToString(h.Sum(nil)), nil
}
