package agent

import "math"

// ComputeReputation maps a seller's complete rating history onto the
// reputation scale: round(mean(ratings) / maxRating * maxReputation).
// It reports false when there are no ratings, in which case the caller keeps
// the previous score.
func ComputeReputation(ratings []int, maxRating, maxReputation int) (int, bool) {
	if len(ratings) == 0 || maxRating <= 0 {
		return 0, false
	}
	sum := 0
	for _, r := range ratings {
		sum += r
	}
	mean := float64(sum) / float64(len(ratings))
	score := int(math.Round(mean / float64(maxRating) * float64(maxReputation)))
	return max(0, min(score, maxReputation)), true
}
