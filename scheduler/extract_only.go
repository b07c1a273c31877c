package scheduler

import (
	"fleet/formulas"
	"fleet/ledger"
	"fleet/target"
)

var _ Scheduler = &ExtractOnly{}

// ExtractOnly commits extract units and nothing else. It is the strategy the
// fleet ran before replenish and stabilize were modeled, and remains useful
// when targets are replenished by someone else.
type ExtractOnly struct {
	Name   string
	Config Config
}

func (e *ExtractOnly) SelectCandidates(p formulas.Profile, targets []target.Target) []target.Target {
	return selectEligible(p, targets)
}

func (e *ExtractOnly) Score(p formulas.Profile, snaps []target.Snapshot, l *ledger.Ledger) ([]Candidate, error) {
	ceiling, err := l.AvailableCapacity(e.Config.Footprints.Extract)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for _, s := range snaps {
		if c, ok := evaluateExtract(p, s, ceiling); ok {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

func (e *ExtractOnly) Pick(candidates []Candidate, l *ledger.Ledger) error {
	return pickGreedy(e.Config, candidates, l)
}
