package scheduler

import (
	"math"

	log "github.com/sirupsen/logrus"

	"fleet/formulas"
	"fleet/ledger"
	"fleet/target"
)

var _ Scheduler = &Greedy{}

// Greedy picks, for every target, the single action with the highest
// projected rate, then fills the fleet in rate order. It does not backtrack:
// an early pick can starve a later one.
type Greedy struct {
	Name   string
	Config Config
}

func (g *Greedy) SelectCandidates(p formulas.Profile, targets []target.Target) []target.Target {
	return selectEligible(p, targets)
}

func (g *Greedy) Score(p formulas.Profile, snaps []target.Snapshot, l *ledger.Ledger) ([]Candidate, error) {
	ceil, err := ceilings(g.Config, l)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, s := range snaps {
		best, ok := g.best(p, s, ceil)
		if !ok {
			log.WithField("target", s.Name).Debug("no viable action")
			continue
		}
		candidates = append(candidates, best)
	}

	return candidates, nil
}

func (g *Greedy) Pick(candidates []Candidate, l *ledger.Ledger) error {
	return pickGreedy(g.Config, candidates, l)
}

// best evaluates every action on s in order and keeps the highest rate. A
// later action has to beat the current best outright, so equal rates go to
// Extract, then Replenish, then Stabilize.
func (g *Greedy) best(p formulas.Profile, s target.Snapshot, ceil map[target.Action]int) (Candidate, bool) {
	var best Candidate
	found := false

	if c, ok := evaluateExtract(p, s, ceil[target.Extract]); ok {
		best, found = c, true
	}

	if c, ok := evaluateReplenish(p, s, ceil[target.Replenish], g.Config.Cores); ok && outranks(c, best, found) {
		best, found = c, true
	}

	baseline := s.ExtractRate
	if found {
		baseline = best.Rate
	}
	if c, ok := evaluateStabilize(p, s, ceil[target.Stabilize], baseline); ok && outranks(c, best, found) {
		best, found = c, true
	}

	return best, found
}

// outranks reports whether c should replace best.
func outranks(c, best Candidate, found bool) bool {
	return !found || c.Rate > best.Rate
}

func evaluateExtract(p formulas.Profile, s target.Snapshot, ceiling int) (Candidate, bool) {
	if ceiling <= 0 || s.ExtractRate <= 0 {
		return Candidate{}, false
	}

	maxUnits := maxExtractUnits(ceiling, s.YieldFraction, s.AvailableYield, extractStaysAhead(p, s.Target))
	if maxUnits == 0 {
		return Candidate{}, false
	}

	return Candidate{
		Target:   s.Name,
		Action:   target.Extract,
		Rate:     s.ExtractRate,
		MinUnits: 1,
		MaxUnits: maxUnits,
		Chance:   s.Chance,
	}, true
}

// evaluateReplenish considers growing the target before extracting from it.
// Its rate is the single-unit extract rate at the grown yield, spread over the
// replenish and extract durations together.
func evaluateReplenish(p formulas.Profile, s target.Snapshot, ceiling, cores int) (Candidate, bool) {
	if ceiling <= 0 {
		return Candidate{}, false
	}

	goal := breakEvenYield(s.AvailableYield, s.ExtractMs, s.ReplenishMs)
	if !(goal < s.MaxYield) {
		return Candidate{}, false
	}

	grown := func(units int) float64 {
		return s.AvailableYield * formulas.GrowthMultiplier(s.Difficulty, s.Growth, units, p, cores)
	}

	minUnits, ok := minUnitsToReach(ceiling, goal, grown)
	if !ok {
		return Candidate{}, false
	}

	maxUnits, ok := minUnitsToReach(ceiling, s.MaxYield, grown)
	if !ok {
		maxUnits = ceiling
	}

	projected := math.Min(grown(maxUnits), s.MaxYield)
	rate := formulas.Rate(projected*s.YieldFraction*s.Chance, s.ReplenishMs+s.ExtractMs)

	return Candidate{
		Target:   s.Name,
		Action:   target.Replenish,
		Rate:     rate,
		MinUnits: minUnits,
		MaxUnits: maxUnits,
		Chance:   1,
	}, true
}

// evaluateStabilize looks for the fewest stabilize units after which a
// single extract unit, at the lowered difficulty, beats baseline.
func evaluateStabilize(p formulas.Profile, s target.Snapshot, ceiling int, baseline float64) (Candidate, bool) {
	bound := formulas.StabilizeUnitsToFloor(s.Difficulty, s.MinDifficulty)
	if ceiling < bound {
		bound = ceiling
	}

	for u := 1; u <= bound; u++ {
		d := formulas.DifficultyAfterStabilize(s.Difficulty, s.MinDifficulty, u)
		rate := target.RateAt(p, s.Target, d, s.AvailableYield)

		if rate > baseline {
			return Candidate{
				Target:   s.Name,
				Action:   target.Stabilize,
				Rate:     rate,
				MinUnits: u,
				MaxUnits: bound,
				Chance:   1,
			}, true
		}
	}

	return Candidate{}, false
}
