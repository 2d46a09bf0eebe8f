package progression

import "math"

// ══════════════════════════════════════════════════════════════════════════════
// LEVEL CALCULATOR
// Pure functions of the scalar XP total. Level is never stored independently;
// every write recomputes it from totalXP.
// ══════════════════════════════════════════════════════════════════════════════

// LevelInfo describes a user's level derived from their XP total.
type LevelInfo struct {
	// Level - current level, starting at 1.
	Level int

	// XPIntoLevel - XP accumulated past the current level's threshold.
	XPIntoLevel int

	// XPToNext - XP still needed to advance to the next level.
	XPToNext int

	// ProgressFraction - XPIntoLevel / cost of the next level, in [0, 1).
	ProgressFraction float64

	// Tier - human-readable tier name for the level.
	Tier string
}

// LevelCost returns the XP needed to advance from the given level to the
// next one: floor(100 * 1.5^(level-1)). Level 1->2 costs 100, 2->3 costs 150.
func LevelCost(level int) int {
	if level < 1 {
		return 0
	}
	return int(math.Floor(100 * math.Pow(1.5, float64(level-1))))
}

// XPForLevel returns the cumulative XP required to reach the given level.
func XPForLevel(level int) int {
	total := 0
	for l := 1; l < level; l++ {
		total += LevelCost(l)
	}
	return total
}

// LevelOf derives level information from a total XP amount. Deterministic:
// identical totals produce identical output regardless of award order.
func LevelOf(totalXP int) LevelInfo {
	if totalXP < 0 {
		totalXP = 0
	}

	level := 1
	remaining := totalXP
	cost := LevelCost(level)
	for remaining >= cost {
		remaining -= cost
		level++
		cost = LevelCost(level)
	}

	return LevelInfo{
		Level:            level,
		XPIntoLevel:      remaining,
		XPToNext:         cost - remaining,
		ProgressFraction: float64(remaining) / float64(cost),
		Tier:             TierName(level),
	}
}

// TierName maps a level to its display tier.
func TierName(level int) string {
	switch {
	case level < 5:
		return "Novice"
	case level < 10:
		return "Apprentice"
	case level < 20:
		return "Adept"
	case level < 30:
		return "Specialist"
	case level < 50:
		return "Expert"
	case level < 75:
		return "Master"
	default:
		return "Grandmaster"
	}
}
