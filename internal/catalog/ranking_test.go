package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ssd-technologies/intelmarket/internal/storage"
)

func TestScore(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	r := DefaultRanking()

	fresh := &storage.IntelligenceListing{QualityScore: 50, CreatedAt: now.UnixMilli()}
	assert.InDelta(t, 35.0, r.Score(fresh, now), 1e-9)

	// 10 whole days and some hours: only whole days count.
	aged := &storage.IntelligenceListing{QualityScore: 50, CreatedAt: now.Add(-(10*24 + 7) * time.Hour).UnixMilli()}
	assert.InDelta(t, 38.0, r.Score(aged, now), 1e-9)

	future := &storage.IntelligenceListing{QualityScore: 10, CreatedAt: now.Add(time.Hour).UnixMilli()}
	assert.InDelta(t, 7.0, r.Score(future, now), 1e-9)
}

func TestRank_CustomWeights(t *testing.T) {
	now := time.Now()
	listings := []storage.IntelligenceListing{
		{ID: "quality", QualityScore: 90, CreatedAt: now.UnixMilli()},
		{ID: "old", QualityScore: 10, CreatedAt: now.Add(-30 * 24 * time.Hour).UnixMilli()},
	}

	Ranking{QualityWeight: 0, AgeWeight: 1}.Rank(listings, now)
	assert.Equal(t, "old", listings[0].ID)

	DefaultRanking().Rank(listings, now)
	assert.Equal(t, "quality", listings[0].ID)
}
