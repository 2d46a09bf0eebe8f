package progression

import (
	"math"

	"github.com/skillforge/skillforge-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REWARD CALCULATOR
// Base amount from kind/difficulty/score/duration, then a compounding
// multiplier stack. All factors multiply; the final amount is floored and
// never drops below 1 XP.
// ══════════════════════════════════════════════════════════════════════════════

// TaskKind classifies a rewardable unit of work.
type TaskKind string

const (
	KindReading   TaskKind = "reading"
	KindQuiz      TaskKind = "quiz"
	KindExercise  TaskKind = "exercise"
	KindChallenge TaskKind = "challenge"
	KindProject   TaskKind = "project"
)

// baseXPByKind is the fixed base award table per task kind.
var baseXPByKind = map[TaskKind]int{
	KindReading:   10,
	KindQuiz:      25,
	KindExercise:  40,
	KindChallenge: 60,
	KindProject:   100,
}

// BaseXP returns the base award for a task kind, or the reading base for
// unknown kinds.
func (k TaskKind) BaseXP() int {
	if base, ok := baseXPByKind[k]; ok {
		return base
	}
	return baseXPByKind[KindReading]
}

// IsValid checks if the kind is a known task kind.
func (k TaskKind) IsValid() bool {
	_, ok := baseXPByKind[k]
	return ok
}

// Difficulty classifies content difficulty.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "beginner"
	DifficultyIntermediate Difficulty = "intermediate"
	DifficultyAdvanced     Difficulty = "advanced"
	DifficultyExpert       Difficulty = "expert"
)

// multiplierByDifficulty scales the base award by content difficulty.
var multiplierByDifficulty = map[Difficulty]float64{
	DifficultyBeginner:     1.0,
	DifficultyIntermediate: 1.25,
	DifficultyAdvanced:     1.5,
	DifficultyExpert:       2.0,
}

// Multiplier returns the difficulty factor, defaulting to beginner.
func (d Difficulty) Multiplier() float64 {
	if m, ok := multiplierByDifficulty[d]; ok {
		return m
	}
	return multiplierByDifficulty[DifficultyBeginner]
}

// IsValid checks if the difficulty is known.
func (d Difficulty) IsValid() bool {
	_, ok := multiplierByDifficulty[d]
	return ok
}

// BaseAmount computes the pre-multiplier award:
//
//	floor(kindBase * difficulty * (0.5 + score/100) + estimatedMinutes/5)
//
// The score term scales the award between 0.5x and 1.5x; every full five
// minutes of estimated duration adds one bonus point.
func BaseAmount(kind TaskKind, difficulty Difficulty, score shared.Score, estimatedMinutes int) int {
	if estimatedMinutes < 0 {
		estimatedMinutes = 0
	}
	scoreScale := 0.5 + float64(score.Int())/100.0
	timeBonus := estimatedMinutes / 5
	return int(math.Floor(float64(kind.BaseXP())*difficulty.Multiplier()*scoreScale + float64(timeBonus)))
}

// ══════════════════════════════════════════════════════════════════════════════
// MULTIPLIER STACK
// ══════════════════════════════════════════════════════════════════════════════

// MultiplierKind identifies one bonus factor in the stack.
type MultiplierKind string

const (
	MultiplierStreak       MultiplierKind = "streak"
	MultiplierPerfectScore MultiplierKind = "perfect_score"
	MultiplierFirstAttempt MultiplierKind = "first_attempt"
	MultiplierSpeed        MultiplierKind = "speed"
)

// AppliedMultiplier records one factor applied to an award, for audit.
type AppliedMultiplier struct {
	Kind   MultiplierKind `json:"kind"`
	Factor float64        `json:"factor"`
	Reason string         `json:"reason"`
}

// MultiplierContext carries the inputs the resolver inspects.
type MultiplierContext struct {
	// CurrentStreak - the user's streak after today's activity was recorded.
	CurrentStreak int

	// Score - submission score, 0-100.
	Score shared.Score

	// Attempts - total attempts including this one.
	Attempts int

	// ActualMinutes - time the user actually spent.
	ActualMinutes int

	// EstimatedMinutes - the content's estimated duration.
	EstimatedMinutes int
}

// StreakMultiplier returns the tiered streak factor. Tiers are exclusive:
// exactly one applies for a given streak length.
func StreakMultiplier(streakDays int) float64 {
	switch {
	case streakDays >= 30:
		return 2.0
	case streakDays >= 14:
		return 1.5
	case streakDays >= 7:
		return 1.25
	case streakDays >= 3:
		return 1.1
	default:
		return 1.0
	}
}

// ResolveMultipliers computes the ordered list of applicable factors.
// Only factors above 1.0 are recorded.
func ResolveMultipliers(mc MultiplierContext) []AppliedMultiplier {
	var applied []AppliedMultiplier

	if f := StreakMultiplier(mc.CurrentStreak); f > 1.0 {
		applied = append(applied, AppliedMultiplier{
			Kind:   MultiplierStreak,
			Factor: f,
			Reason: "daily streak bonus",
		})
	}

	if mc.Score.IsPerfect() {
		applied = append(applied, AppliedMultiplier{
			Kind:   MultiplierPerfectScore,
			Factor: 1.25,
			Reason: "perfect score",
		})
	}

	if mc.Attempts == 1 {
		applied = append(applied, AppliedMultiplier{
			Kind:   MultiplierFirstAttempt,
			Factor: 1.1,
			Reason: "passed on first attempt",
		})
	}

	if mc.EstimatedMinutes > 0 && float64(mc.ActualMinutes) <= 0.75*float64(mc.EstimatedMinutes) {
		applied = append(applied, AppliedMultiplier{
			Kind:   MultiplierSpeed,
			Factor: 1.15,
			Reason: "finished ahead of estimate",
		})
	}

	return applied
}

// StreakBonusXP returns the flat bonus granted on the first streak-extending
// activity of a day. Streaks of one day (first activity, or a reset) earn
// nothing; the bonus grows with the run and caps at 50 XP.
func StreakBonusXP(streakDays int) int {
	if streakDays < 2 {
		return 0
	}
	bonus := 5 * streakDays
	if bonus > 50 {
		bonus = 50
	}
	return bonus
}

// FinalAmount compounds the multiplier stack into the base amount:
// floor(base * product of factors), floored at 1 XP.
func FinalAmount(baseAmount int, multipliers []AppliedMultiplier) int {
	product := 1.0
	for _, m := range multipliers {
		product *= m.Factor
	}
	final := int(math.Floor(float64(baseAmount) * product))
	if final < 1 {
		final = 1
	}
	return final
}
