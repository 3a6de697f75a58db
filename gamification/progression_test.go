package gamification

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPointsRequiredForLevel(t *testing.T) {
	cases := map[int]int{0: 0, 1: 100, 2: 282, 3: 519, 4: 800, 9: 2700, 16: 6400}
	for level, want := range cases {
		require.Equal(t, want, PointsRequiredForLevel(level), "level %d", level)
	}
}

func TestPointsRequiredStrictlyIncreasing(t *testing.T) {
	prev := PointsRequiredForLevel(1)
	for l := 2; l <= 1000; l++ {
		cur := PointsRequiredForLevel(l)
		require.Greater(t, cur, prev, "level %d", l)
		prev = cur
	}
}

func TestRecomputeLevel(t *testing.T) {
	cases := []struct {
		total, level, inLevel int
	}{
		{-50, 0, 0},
		{0, 0, 0},
		{99, 0, 99},
		{100, 1, 0},
		{175, 1, 75},
		{381, 1, 281},
		{382, 2, 0},
	}
	for _, c := range cases {
		level, in := RecomputeLevel(c.total)
		require.Equal(t, c.level, level, "total %d", c.total)
		require.Equal(t, c.inLevel, in, "total %d", c.total)
	}
}

func TestIncrementalMatchesRecompute(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for run := 0; run < 50; run++ {
		level, in, total := 0, 0, 0
		for i := 0; i < 200; i++ {
			delta := r.Intn(400)
			total += delta
			level, in = ApplyPoints(level, in, delta)
			wantLevel, wantIn := RecomputeLevel(total)
			if level != wantLevel || in != wantIn {
				t.Fatalf("total=%d want=(%d,%d) got=(%d,%d)", total, wantLevel, wantIn, level, in)
			}
		}
	}
}

func TestApplyPointsCrossesSeveralLevels(t *testing.T) {
	level, in := ApplyPoints(0, 0, 100+282+519+10)
	require.Equal(t, 3, level)
	require.Equal(t, 10, in)
}

func TestLevelTitle(t *testing.T) {
	require.Equal(t, "Newcomer", LevelTitle(0))
	require.Equal(t, "Novice Learner", LevelTitle(1))
	require.Equal(t, "Academic Champion", LevelTitle(10))
	require.Equal(t, "Academic Champion", LevelTitle(12))
	require.Equal(t, "Wisdom Keeper", LevelTitle(15))
	require.Equal(t, "Wisdom Keeper", LevelTitle(19))
	require.Equal(t, "Grand Scholar", LevelTitle(20))
	require.Equal(t, "Legendary Scholar", LevelTitle(21))
}

func TestLevelProgressPercent(t *testing.T) {
	require.InDelta(t, 50.0, LevelProgressPercent(50, 0), 1e-9)
	require.InDelta(t, 75.0/282.0*100, LevelProgressPercent(75, 1), 1e-9)
	require.Equal(t, 100.0, LevelProgressPercent(10000, 0))
	require.Equal(t, 0.0, LevelProgressPercent(-5, 0))
	require.Equal(t, 207, PointsToNextLevel(75, 1))
}
