// Package formulas holds the closed-form performance model used to project
// how fast an action turns a target's yield into value. Every function is
// total over finite inputs and has no side effects.
package formulas

import (
	"math"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

const (
	SkillFactor   = 1.75
	BalanceFactor = 240

	BaseGrowthRate        = 1.03
	MaxAdjustedGrowthRate = 1.003

	ExtractDifficultyDelta   = 0.002
	StabilizeDifficultyDelta = 0.05
	MaxDifficulty            = 100

	GrowTimeMultiplier   = 3.2
	WeakenTimeMultiplier = 4

	// MsPerSecond converts the millisecond durations returned here into the
	// per-second rates the scheduler ranks by.
	MsPerSecond = 1000
)

// Profile is the operator's capability for one scheduling cycle.
type Profile struct {
	Capability   float64 `json:"capability" yaml:"capability"`
	Intelligence float64 `json:"intelligence" yaml:"intelligence"`
	SpeedMult    float64 `json:"speedMult" yaml:"speedMult"`
	ChanceMult   float64 `json:"chanceMult" yaml:"chanceMult"`
	YieldMult    float64 `json:"yieldMult" yaml:"yieldMult"`
	GrowthMult   float64 `json:"growthMult" yaml:"growthMult"`
}

// DefaultProfile is a level-1 operator with neutral multipliers.
func DefaultProfile() Profile {
	return Profile{
		Capability: 1,
		SpeedMult:  1,
		ChanceMult: 1,
		YieldMult:  1,
		GrowthMult: 1,
	}
}

// Validate reports every field that would make the model degenerate.
func (p Profile) Validate() error {
	var result *multierror.Error
	if p.Capability <= 0 {
		result = multierror.Append(result, errors.Errorf("capability must be positive, got %v", p.Capability))
	}
	if p.Intelligence < 0 {
		result = multierror.Append(result, errors.Errorf("intelligence must not be negative, got %v", p.Intelligence))
	}
	mults := []struct {
		name string
		v    float64
	}{
		{"speedMult", p.SpeedMult},
		{"chanceMult", p.ChanceMult},
		{"yieldMult", p.YieldMult},
		{"growthMult", p.GrowthMult},
	}
	for _, m := range mults {
		if m.v <= 0 {
			result = multierror.Append(result, errors.Errorf("%s must be positive, got %v", m.name, m.v))
		}
	}
	return result.ErrorOrNil()
}

func IntelligenceBonus(intelligence, weight float64) float64 {
	return 1 + (weight*math.Pow(math.Max(intelligence, 0), 0.8))/600
}

// SuccessProbability is the chance a single extract unit succeeds.
func SuccessProbability(difficulty, requiredLevel float64, p Profile) float64 {
	skillMult := SkillFactor * p.Capability
	if skillMult <= 0 {
		return 0
	}
	skillChance := (skillMult - requiredLevel) / skillMult
	difficultyMult := (100 - difficulty) / 100
	chance := skillChance * difficultyMult * p.ChanceMult * IntelligenceBonus(p.Intelligence, 1)
	return clamp(chance, 0, 1)
}

// YieldFractionPerUnit is the share of a target's available yield one
// successful extract unit takes.
func YieldFractionPerUnit(difficulty, requiredLevel float64, p Profile) float64 {
	if p.Capability <= 0 {
		return 0
	}
	difficultyMult := (100 - difficulty) / 100
	skillMult := (p.Capability - (requiredLevel - 1)) / p.Capability
	return clamp(difficultyMult*skillMult*p.YieldMult/BalanceFactor, 0, 1)
}

// ActionDuration is the extract duration in milliseconds. The reference model
// is expressed in seconds; it is scaled by MsPerSecond here and nowhere else.
func ActionDuration(difficulty, requiredLevel float64, p Profile) float64 {
	const (
		baseDiff       = 500
		baseSkill      = 50
		diffFactor     = 2.5
		timeMultiplier = 5
	)
	skillFactor := (diffFactor*requiredLevel*difficulty + baseDiff) / (p.Capability + baseSkill)
	speed := p.SpeedMult * IntelligenceBonus(p.Intelligence, 1)
	if speed <= 0 || skillFactor <= 0 {
		return 0
	}
	return timeMultiplier * skillFactor / speed * MsPerSecond
}

func ReplenishDuration(difficulty, requiredLevel float64, p Profile) float64 {
	return ActionDuration(difficulty, requiredLevel, p) * GrowTimeMultiplier
}

func StabilizeDuration(difficulty, requiredLevel float64, p Profile) float64 {
	return ActionDuration(difficulty, requiredLevel, p) * WeakenTimeMultiplier
}

// AdjustedGrowthRate is the per-cycle growth base at a difficulty, bounded to
// [1, MaxAdjustedGrowthRate].
func AdjustedGrowthRate(difficulty float64) float64 {
	if difficulty <= 0 {
		return MaxAdjustedGrowthRate
	}
	return clamp(1+(BaseGrowthRate-1)/difficulty, 1, MaxAdjustedGrowthRate)
}

// GrowthMultiplier is the factor a target's available yield is multiplied by
// when units replenish units run against it.
func GrowthMultiplier(difficulty, growth float64, units int, p Profile, cores int) float64 {
	cycles := math.Max(float64(units), 0) * (growth / 100)
	coreBonus := 1 + float64(cores-1)/16
	if cores < 1 {
		coreBonus = 1
	}
	return math.Pow(AdjustedGrowthRate(difficulty), cycles*p.GrowthMult*coreBonus)
}

func DifficultyAfterExtract(difficulty float64, units int) float64 {
	return math.Min(difficulty+ExtractDifficultyDelta*math.Max(float64(units), 0), MaxDifficulty)
}

func DifficultyAfterStabilize(difficulty, floor float64, units int) float64 {
	return math.Max(difficulty-StabilizeDifficultyDelta*math.Max(float64(units), 0), floor)
}

// StabilizeUnitsToFloor is how many stabilize units bring difficulty down to
// its floor.
func StabilizeUnitsToFloor(difficulty, floor float64) int {
	if difficulty <= floor {
		return 0
	}
	return int(math.Ceil((difficulty-floor)/StabilizeDifficultyDelta - 1e-9))
}

// Rate converts an amount produced over durationMs into a per-second rate.
func Rate(amount, durationMs float64) float64 {
	if durationMs <= 0 {
		return 0
	}
	return amount / (durationMs / MsPerSecond)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}
