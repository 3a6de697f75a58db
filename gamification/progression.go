package gamification

import "math"

// PointsRequiredForLevel is the number of points needed to go from level-1 to level.
// It is floor(100 * level^1.5) and strictly increasing for level >= 1.
func PointsRequiredForLevel(level int) int {
	if level <= 0 {
		return 0
	}
	l := float64(level)
	// l*sqrt(l) keeps perfect squares exact.
	return int(math.Floor(100 * l * math.Sqrt(l)))
}

// RecomputeLevel derives (level, pointsInLevel) from a lifetime total.
// Users start at level 0; a non-positive total stays there.
func RecomputeLevel(total int) (level, pointsInLevel int) {
	if total <= 0 {
		return 0, 0
	}
	remaining := total
	for {
		need := PointsRequiredForLevel(level + 1)
		if remaining < need {
			return level, remaining
		}
		remaining -= need
		level++
	}
}

// ApplyPoints advances a level state by a non-negative delta, crossing as many
// levels as the delta pays for. Negative deltas are not handled here: callers
// recompute from the new total instead.
func ApplyPoints(level, pointsInLevel, delta int) (int, int) {
	pointsInLevel += delta
	for pointsInLevel >= PointsRequiredForLevel(level+1) {
		pointsInLevel -= PointsRequiredForLevel(level + 1)
		level++
	}
	return level, pointsInLevel
}

var levelTitles = map[int]string{
	1:  "Novice Learner",
	2:  "Curious Student",
	3:  "Eager Scholar",
	4:  "Dedicated Learner",
	5:  "Knowledge Seeker",
	6:  "Rising Scholar",
	7:  "Skilled Student",
	8:  "Expert Learner",
	9:  "Master Student",
	10: "Academic Champion",
	15: "Wisdom Keeper",
	20: "Grand Scholar",
}

// LevelTitle returns the display title. Levels between milestones keep the
// title of the nearest milestone below them.
func LevelTitle(level int) string {
	if level < 1 {
		return "Newcomer"
	}
	if level > 20 {
		return "Legendary Scholar"
	}
	for l := level; l >= 1; l-- {
		if t, ok := levelTitles[l]; ok {
			return t
		}
	}
	return "Newcomer"
}

// LevelProgressPercent is the share of the next level already earned, in [0,100].
func LevelProgressPercent(pointsInLevel, level int) float64 {
	need := PointsRequiredForLevel(level + 1)
	if need <= 0 {
		return 0
	}
	return clampPercent(float64(pointsInLevel) / float64(need) * 100)
}

// PointsToNextLevel is how many points are still missing for the next level.
func PointsToNextLevel(pointsInLevel, level int) int {
	left := PointsRequiredForLevel(level+1) - pointsInLevel
	if left < 0 {
		return 0
	}
	return left
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p), p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
