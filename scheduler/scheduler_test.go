package scheduler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet/formulas"
	"fleet/ledger"
	"fleet/node"
	"fleet/target"
)

func testProfile() formulas.Profile {
	p := formulas.DefaultProfile()
	p.Capability = 100
	return p
}

// steady sits at its floor with negligible growth: extracting is best.
var steady = target.Target{
	Name: "steady", RequiredLevel: 1, Difficulty: 5, MinDifficulty: 5,
	AvailableYield: 1e6, MaxYield: 1e6, Growth: 1,
}

// drained holds a sliver of its max yield and grows fast.
var drained = target.Target{
	Name: "drained", RequiredLevel: 1, Difficulty: 5, MinDifficulty: 5,
	AvailableYield: 1e4, MaxYield: 1e7, Growth: 3000,
}

// hardened is far above its difficulty floor.
var hardened = target.Target{
	Name: "hardened", RequiredLevel: 1, Difficulty: 90, MinDifficulty: 5,
	AvailableYield: 1e6, MaxYield: 1e6, Growth: 1,
}

var gated = target.Target{
	Name: "gated", RequiredLevel: 500, Difficulty: 5, MinDifficulty: 5,
	AvailableYield: 1e6, MaxYield: 1e6, Growth: 1,
}

var empty = target.Target{
	Name: "empty", RequiredLevel: 1, Difficulty: 5, MinDifficulty: 5,
	AvailableYield: 0, MaxYield: 1e6, Growth: 1,
}

func fleet(capacities ...float64) []*node.Node {
	var nodes []*node.Node
	for i, c := range capacities {
		n := node.New(string(rune('a'+i)), "", "worker")
		n.Capacity = c
		nodes = append(nodes, n)
	}
	return nodes
}

func greedy(t *testing.T) Scheduler {
	t.Helper()
	s, err := New("greedy", DefaultConfig())
	require.NoError(t, err)
	return s
}

func TestMaxExtractUnits(t *testing.T) {
	always := func(int, float64) bool { return true }

	assert.Equal(t, 99, maxExtractUnits(100, 0.01, 100, always))
	assert.Equal(t, 99, maxExtractUnits(1000, 0.01, 100, always))
	assert.Equal(t, 50, maxExtractUnits(50, 0.01, 100, always))
	assert.Equal(t, 0, maxExtractUnits(0, 0.01, 100, always))
	assert.Equal(t, 0, maxExtractUnits(10, 0.01, 0, always))

	upToTen := func(u int, _ float64) bool { return u <= 10 }
	assert.Equal(t, 10, maxExtractUnits(1000, 0.01, 100, upToTen))

	never := func(int, float64) bool { return false }
	assert.Equal(t, 0, maxExtractUnits(1000, 0.01, 100, never))
}

func TestMinUnitsToReach(t *testing.T) {
	linear := func(u int) float64 { return float64(u) }

	u, ok := minUnitsToReach(10, 5.5, linear)
	require.True(t, ok)
	assert.Equal(t, 6, u)

	u, ok = minUnitsToReach(10, 1, linear)
	require.True(t, ok)
	assert.Equal(t, 1, u)

	_, ok = minUnitsToReach(10, 11, linear)
	assert.False(t, ok)

	_, ok = minUnitsToReach(0, 1, linear)
	assert.False(t, ok)
}

func TestBreakEvenYield(t *testing.T) {
	assert.Equal(t, 420.0, breakEvenYield(100, 1000, 3200))
	assert.True(t, breakEvenYield(100, 0, 3200) > 1e300)
}

func TestGreedyPicksActionPerTarget(t *testing.T) {
	p := testProfile()
	s := greedy(t)

	tests := []struct {
		name     string
		target   target.Target
		capacity float64
		action   target.Action
		minUnits int
		maxUnits int
	}{
		{name: "steady target is extracted", target: steady, capacity: 32,
			action: target.Extract, minUnits: 1, maxUnits: 18},
		{name: "drained target is replenished", target: drained, capacity: 32,
			action: target.Replenish, minUnits: 16, maxUnits: 18},
		{name: "hardened target is stabilized", target: hardened, capacity: 4096,
			action: target.Stabilize, minUnits: 1, maxUnits: 1700},
		{name: "hardened target is stabilized on a small fleet", target: hardened, capacity: 32,
			action: target.Stabilize, minUnits: 1, maxUnits: 18},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Run(s, p, []target.Target{tc.target}, fleet(tc.capacity))
			require.NoError(t, err)
			require.Len(t, plan.Candidates, 1)

			c := plan.Candidates[0]
			assert.Equal(t, tc.action, c.Action)
			assert.Equal(t, tc.minUnits, c.MinUnits)
			assert.Equal(t, tc.maxUnits, c.MaxUnits)
			assert.Greater(t, c.Rate, 0.0)

			require.Len(t, plan.Allocations, 1)
			assert.Equal(t, tc.action, plan.Allocations[0].Action)
			assert.Equal(t, tc.maxUnits, plan.Allocations[0].Units)
		})
	}
}

func TestStabilizeComparesPostStabilizeExtractRate(t *testing.T) {
	p := testProfile()
	snap := target.Snap(p, hardened)

	c, ok := evaluateStabilize(p, snap, 18, snap.ExtractRate)
	require.True(t, ok)
	assert.Equal(t, 1, c.MinUnits)
	assert.Equal(t, 18, c.MaxUnits)

	lowered := formulas.DifficultyAfterStabilize(hardened.Difficulty, hardened.MinDifficulty, 1)
	assert.Equal(t, target.RateAt(p, hardened, lowered, hardened.AvailableYield), c.Rate)
	assert.Greater(t, c.Rate, snap.ExtractRate)
}

func TestStabilizeNeedsToBeatBaselineOutright(t *testing.T) {
	p := testProfile()
	snap := target.Snap(p, hardened)

	oneUnit := formulas.DifficultyAfterStabilize(hardened.Difficulty, hardened.MinDifficulty, 1)
	baseline := target.RateAt(p, hardened, oneUnit, hardened.AvailableYield)

	c, ok := evaluateStabilize(p, snap, 18, baseline)
	require.True(t, ok)
	assert.Equal(t, 2, c.MinUnits, "matching the baseline at one unit is not enough")

	_, ok = evaluateStabilize(p, snap, 18, 1e12)
	assert.False(t, ok)
}

func TestEqualRatesKeepEarlierAction(t *testing.T) {
	extract := Candidate{Target: "x", Action: target.Extract, Rate: 2}
	replenish := Candidate{Target: "x", Action: target.Replenish, Rate: 2}
	stabilize := Candidate{Target: "x", Action: target.Stabilize, Rate: 2.0000001}

	assert.True(t, outranks(replenish, Candidate{}, false))
	assert.False(t, outranks(replenish, extract, true))
	assert.False(t, outranks(extract, replenish, true))
	assert.True(t, outranks(stabilize, extract, true))
}

func TestExtractStopsWhereReplenishOvertakes(t *testing.T) {
	// Growth is tuned so a single replenish unit overtakes a single extract
	// unit once 33 extract units have raised the difficulty.
	crossing := target.Target{
		Name: "crossing", RequiredLevel: 1, Difficulty: 5, MinDifficulty: 5,
		AvailableYield: 1e6, MaxYield: 1e6, Growth: 396.5,
	}
	p := testProfile()

	ahead := extractStaysAhead(p, crossing)
	fraction := formulas.YieldFractionPerUnit(crossing.Difficulty, crossing.RequiredLevel, p)
	remaining := func(u int) float64 { return crossing.AvailableYield - fraction*float64(u)*crossing.AvailableYield }
	assert.True(t, ahead(32, remaining(32)))
	assert.False(t, ahead(33, remaining(33)))

	plan, err := Run(greedy(t), p, []target.Target{crossing}, fleet(4096))
	require.NoError(t, err)
	require.Len(t, plan.Candidates, 1)

	c := plan.Candidates[0]
	assert.Equal(t, target.Extract, c.Action)
	assert.Equal(t, 1, c.MinUnits)
	assert.Equal(t, 32, c.MaxUnits, "well below the fleet ceiling")

	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, 32, plan.Allocations[0].Units)
}

func TestGreedySkipsIneligibleTargets(t *testing.T) {
	allocs, err := ComputeAllocations(greedy(t), testProfile(), []target.Target{gated, empty}, fleet(64))
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestGreedyNoWorkers(t *testing.T) {
	allocs, err := ComputeAllocations(greedy(t), testProfile(), []target.Target{steady, drained}, nil)
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestGreedyRankedPickCanStarveLaterCandidates(t *testing.T) {
	targets := []target.Target{drained, steady, gated, empty}

	plan, err := Run(greedy(t), testProfile(), targets, fleet(32))
	require.NoError(t, err)

	require.Len(t, plan.Candidates, 2)
	assert.Equal(t, "steady", plan.Candidates[0].Target)
	assert.Equal(t, "drained", plan.Candidates[1].Target)
	assert.GreaterOrEqual(t, plan.Candidates[0].Rate, plan.Candidates[1].Rate)

	// 18 extract units use 30.6 of 32; replenish needs 16 units and gets none.
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, ledger.Allocation{
		Worker:    "a",
		Target:    "steady",
		Action:    target.Extract,
		Footprint: 1.7,
		Units:     18,
		Chance:    formulas.SuccessProbability(5, 1, testProfile()),
	}, plan.Allocations[0])
	require.Contains(t, plan.Free, "a")
	assert.InDelta(t, 1.4, plan.Free["a"], 1e-9)
}

func TestGreedyNeverOverbooksWorkers(t *testing.T) {
	workers := fleet(32, 7, 128, 3.5)
	targets := []target.Target{steady, drained, hardened, gated, empty}

	allocs, err := ComputeAllocations(greedy(t), testProfile(), targets, workers)
	require.NoError(t, err)
	require.NotEmpty(t, allocs)

	used := map[string]float64{}
	for _, a := range allocs {
		assert.Greater(t, a.Units, 0)
		used[a.Worker] += a.Capacity()
	}
	for _, w := range workers {
		assert.LessOrEqual(t, used[w.Name], w.Capacity+1e-6, w.Name)
		assert.Equal(t, 0.0, w.CapacityUsed, "input workers are not mutated")
	}
}

func TestComputeAllocationsIsDeterministic(t *testing.T) {
	targets := []target.Target{hardened, drained, steady, gated, empty}

	first, err := ComputeAllocations(greedy(t), testProfile(), targets, fleet(32, 64, 16))
	require.NoError(t, err)
	second, err := ComputeAllocations(greedy(t), testProfile(), targets, fleet(32, 64, 16))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRankIsStable(t *testing.T) {
	candidates := []Candidate{
		{Target: "a", Rate: 1},
		{Target: "b", Rate: 3},
		{Target: "c", Rate: 1},
		{Target: "d", Rate: 2},
	}
	Rank(candidates)

	var order []string
	for _, c := range candidates {
		order = append(order, c.Target)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, order)
}

func TestPickHonorsMinimumUnits(t *testing.T) {
	l := ledger.New(fleet(10))
	candidates := []Candidate{
		{Target: "big", Action: target.Replenish, Rate: 9, MinUnits: 100, MaxUnits: 200, Chance: 1},
		{Target: "small", Action: target.Extract, Rate: 1, MinUnits: 1, MaxUnits: 2, Chance: 0.5},
	}

	require.NoError(t, pickGreedy(DefaultConfig(), candidates, l))

	allocs := l.Allocations()
	require.Len(t, allocs, 1)
	assert.Equal(t, "small", allocs[0].Target)
	assert.Equal(t, 2, allocs[0].Units)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	c := DefaultConfig()
	c.Footprints.Extract = 0
	_, err := New("greedy", c)
	require.Error(t, err)
	assert.True(t, errors.Is(err, target.ErrInvalidFootprint))

	c = DefaultConfig()
	c.Cores = 0
	_, err = New("greedy", c)
	assert.Error(t, err)
}

func TestNewSelectsStrategy(t *testing.T) {
	s, err := New("extract-only", DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &ExtractOnly{}, s)

	s, err = New("unknown", DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &Greedy{}, s)
}

func TestExtractOnlyNeverReplenishes(t *testing.T) {
	s, err := New("extract-only", DefaultConfig())
	require.NoError(t, err)

	allocs, err := ComputeAllocations(s, testProfile(), []target.Target{drained, steady, hardened}, fleet(4096))
	require.NoError(t, err)
	require.NotEmpty(t, allocs)
	for _, a := range allocs {
		assert.Equal(t, target.Extract, a.Action)
	}
}
