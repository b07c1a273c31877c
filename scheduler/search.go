package scheduler

import (
	"math"
	"sort"

	"fleet/formulas"
	"fleet/target"
)

// maxExtractUnits scans down from ceiling for the largest unit count that
// leaves the target with positive yield and that sensible accepts. Zero means
// no count qualifies.
func maxExtractUnits(ceiling int, fraction, available float64, sensible func(units int, remaining float64) bool) int {
	for u := ceiling; u > 0; u-- {
		remaining := available - fraction*float64(u)*available
		if remaining > 0 && sensible(u, remaining) {
			return u
		}
	}
	return 0
}

// extractStaysAhead reports whether, after units extract units land, a single
// extract unit still out-earns a single replenish unit.
func extractStaysAhead(p formulas.Profile, t target.Target) func(int, float64) bool {
	return func(units int, remaining float64) bool {
		d := formulas.DifficultyAfterExtract(t.Difficulty, units)
		return target.RateAt(p, t, d, remaining) >= target.ReplenishRateAt(p, t, d, remaining)
	}
}

// minUnitsToReach is the smallest unit count in [1, ceiling] whose grown
// yield reaches goal. Growth is non-decreasing in units, so this is a binary
// search. ok is false when ceiling units are not enough.
func minUnitsToReach(ceiling int, goal float64, grown func(units int) float64) (units int, ok bool) {
	if ceiling <= 0 {
		return 0, false
	}
	i := sort.Search(ceiling, func(i int) bool {
		return grown(i+1) >= goal
	})
	if i == ceiling {
		return 0, false
	}
	return i + 1, true
}

// breakEvenYield is the yield a replenish-then-extract cycle has to reach to
// match extracting right away.
func breakEvenYield(available, extractMs, replenishMs float64) float64 {
	if extractMs <= 0 {
		return math.Inf(1)
	}
	return available * (extractMs + replenishMs) / extractMs
}
