package scheduler

import (
	"sort"

	"github.com/pkg/errors"

	"fleet/formulas"
	"fleet/ledger"
	"fleet/node"
	"fleet/target"
)

// Scheduler turns a cycle's targets into commitments on a ledger. Strategies
// differ in which actions they consider and how they bound unit counts.
type Scheduler interface {
	SelectCandidates(p formulas.Profile, targets []target.Target) []target.Target
	Score(p formulas.Profile, snaps []target.Snapshot, l *ledger.Ledger) ([]Candidate, error)
	Pick(candidates []Candidate, l *ledger.Ledger) error
}

type Config struct {
	Footprints target.Footprints `json:"footprints" yaml:"footprints"`
	// Cores is the core count growth projections assume.
	Cores int `json:"cores" yaml:"cores"`
}

func DefaultConfig() Config {
	return Config{Footprints: target.DefaultFootprints(), Cores: 1}
}

func (c Config) Validate() error {
	if err := c.Footprints.Validate(); err != nil {
		return err
	}
	if c.Cores < 1 {
		return errors.Errorf("cores must be at least 1, got %d", c.Cores)
	}
	return nil
}

// Candidate is the best action found for one target.
type Candidate struct {
	Target   string        `json:"target"`
	Action   target.Action `json:"action"`
	Rate     float64       `json:"rate"`
	MinUnits int           `json:"minUnits"`
	MaxUnits int           `json:"maxUnits"`
	Chance   float64       `json:"chance"`
}

// Plan is the outcome of one decision pass.
type Plan struct {
	Candidates  []Candidate          `json:"candidates"`
	Allocations []ledger.Allocation `json:"allocations"`
	// Free is the room each worker has left after allocation.
	Free map[string]float64 `json:"free"`
}

// Rank orders candidates by projected rate, highest first. Equal rates keep
// their input order.
func Rank(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Rate > candidates[j].Rate
	})
}

// Run performs one full decision pass against a fresh ledger built from
// workers. Neither targets nor workers are modified.
func Run(s Scheduler, p formulas.Profile, targets []target.Target, workers []*node.Node) (*Plan, error) {
	l := ledger.New(workers)

	selected := s.SelectCandidates(p, targets)
	snaps := target.SnapAll(p, selected)

	candidates, err := s.Score(p, snaps, l)
	if err != nil {
		return nil, errors.Wrap(err, "scoring targets")
	}
	Rank(candidates)

	if err := s.Pick(candidates, l); err != nil {
		return nil, errors.Wrap(err, "allocating candidates")
	}

	free := make(map[string]float64, len(workers))
	for _, w := range workers {
		if room, ok := l.Free(w.Name); ok {
			free[w.Name] = room
		}
	}

	return &Plan{Candidates: candidates, Allocations: l.Allocations(), Free: free}, nil
}

// ComputeAllocations is Run without the intermediate candidates.
func ComputeAllocations(
	s Scheduler, p formulas.Profile, targets []target.Target, workers []*node.Node,
) ([]ledger.Allocation, error) {
	plan, err := Run(s, p, targets, workers)
	if err != nil {
		return nil, err
	}
	return plan.Allocations, nil
}

// New returns the strategy registered under name. Unknown names fall back to
// the greedy strategy.
func New(name string, c Config) (Scheduler, error) {
	if err := c.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid scheduler config")
	}

	switch name {
	case "extract-only":
		return &ExtractOnly{Name: name, Config: c}, nil
	case "greedy":
		return &Greedy{Name: name, Config: c}, nil
	default:
		return &Greedy{Name: "greedy", Config: c}, nil
	}
}

func selectEligible(p formulas.Profile, targets []target.Target) []target.Target {
	var eligible []target.Target
	for _, t := range targets {
		if t.Eligible(p) {
			eligible = append(eligible, t)
		}
	}
	return eligible
}

// pickGreedy walks ranked candidates once and commits each one that can still
// get its minimum unit count.
func pickGreedy(c Config, candidates []Candidate, l *ledger.Ledger) error {
	for _, cand := range candidates {
		footprint := c.Footprints.Of(cand.Action)
		available, err := l.AvailableCapacity(footprint)
		if err != nil {
			return err
		}

		if available <= 0 || available < cand.MinUnits {
			continue
		}

		units := available
		if cand.MaxUnits < units {
			units = cand.MaxUnits
		}

		if _, err := l.Allocate(cand.Action, footprint, units, cand.Target, cand.Chance); err != nil {
			return err
		}
	}
	return nil
}

// ceilings is the fleet's unit capacity for every action at the start of a
// pass.
func ceilings(c Config, l *ledger.Ledger) (map[target.Action]int, error) {
	out := make(map[target.Action]int, len(target.Actions))
	for _, a := range target.Actions {
		n, err := l.AvailableCapacity(c.Footprints.Of(a))
		if err != nil {
			return nil, err
		}
		out[a] = n
	}
	return out, nil
}
