package catalog

import (
	"sort"
	"time"

	"github.com/ssd-technologies/intelmarket/internal/storage"
)

// Ranking blends authority (the reputation-derived quality score) with the
// listing's age in whole days. Both weights are tunable.
type Ranking struct {
	QualityWeight float64
	AgeWeight     float64
}

// DefaultRanking returns the stock weights: quality 0.7, age 0.3.
func DefaultRanking() Ranking {
	return Ranking{QualityWeight: 0.7, AgeWeight: 0.3}
}

// Score computes quality*QualityWeight + ageDays*AgeWeight at time now.
// Listings created in the future count as zero days old.
func (r Ranking) Score(l *storage.IntelligenceListing, now time.Time) float64 {
	ageDays := (now.UnixMilli() - l.CreatedAt) / int64(24*time.Hour/time.Millisecond)
	if ageDays < 0 {
		ageDays = 0
	}
	return l.QualityScore*r.QualityWeight + float64(ageDays)*r.AgeWeight
}

// Rank sorts listings in place by descending score. Equal scores keep their
// input order.
func (r Ranking) Rank(listings []storage.IntelligenceListing, now time.Time) {
	sortByScore(listings, func(l *storage.IntelligenceListing) float64 {
		return r.Score(l, now)
	})
}

func sortByScore(listings []storage.IntelligenceListing, score func(*storage.IntelligenceListing) float64) {
	scores := make(map[string]float64, len(listings))
	for i := range listings {
		scores[listings[i].ID] = score(&listings[i])
	}
	sort.SliceStable(listings, func(i, j int) bool {
		return scores[listings[i].ID] > scores[listings[j].ID]
	})
}
