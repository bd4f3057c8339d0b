package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generated id prefixes.
const (
	PrefixIntelligence = "intel"
	PrefixTransaction  = "tx"
	PrefixCommitment   = "commit"
)

// NewID returns a prefix-tagged id of the form prefix_<unixmilli>_<random>.
func NewID(prefix string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), suffix)
}
