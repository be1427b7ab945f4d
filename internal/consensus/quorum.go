package consensus

import (
	"sort"

	"github.com/pulsemesh/pulsemesh/internal/db"
)

// checkVerdict is the per-check-type outcome of a quorum vote.
type checkVerdict struct {
	IsUp           bool
	ResponseTimeMs float64
	Voters         int
}

// tally votes the latest per-region results for one check type. Up requires a
// strict majority; an even split resolves to down. A site is never declared
// healthy on ambiguous evidence.
func tally(results []*db.CheckResult) checkVerdict {
	if len(results) == 0 {
		return checkVerdict{}
	}

	up := 0
	times := make([]float64, 0, len(results))
	for _, r := range results {
		if r.IsUp {
			up++
		}
		times = append(times, r.ResponseTimeMs)
	}

	return checkVerdict{
		IsUp:           up*2 > len(results),
		ResponseTimeMs: median(times),
		Voters:         len(results),
	}
}

// median is the headline response time across regions. It resists one slow
// region skewing the number the way a mean would.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// minExpiry picks the most pessimistic days-until-expiry across regions.
// Negative values pass through: imminent or lapsed expiry must stay visible
// even when the check itself reports up.
func minExpiry(results []*db.CheckResult) *int {
	var min *int
	for _, r := range results {
		if r.DaysUntilExpiry == nil {
			continue
		}
		if min == nil || *r.DaysUntilExpiry < *min {
			v := *r.DaysUntilExpiry
			min = &v
		}
	}
	return min
}
