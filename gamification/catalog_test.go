package gamification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cppla/studyquest/models"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	require.NotEmpty(t, cat.Achievements)
	require.NotEmpty(t, cat.Challenges)

	for _, a := range cat.Achievements {
		require.NotEmpty(t, a.Criteria, a.Name)
		for _, c := range a.Criteria {
			require.True(t, KnownCriterion(c.Type), "%s: %s", a.Name, c.Type)
		}
	}
	for _, c := range cat.Challenges {
		require.True(t, KnownChallengeType(c.Type), c.Title)
	}
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"rarity": `
achievements:
  - name: Too Rare
    rarity_level: 5
    criteria: [{ type: total_quizzes, value: 1 }]
`,
		"duplicate": `
achievements:
  - name: Twice
    rarity_level: 1
  - name: Twice
    rarity_level: 1
`,
		"challenge type": `
challenges:
  - title: Odd
    type: trivia
`,
		"unknown field": `
achievements:
  - name: Typo
    rarity_level: 1
    pionts_reward: 10
`,
		"missing name": `
achievements:
  - rarity_level: 1
`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(raw))
			require.Error(t, err)
		})
	}
}

func TestSyncCatalogUpserts(t *testing.T) {
	db := newTestDB(t)
	eng := newTestEngine(t, db, Options{})
	ctx := context.Background()

	cat, err := LoadCatalog("")
	require.NoError(t, err)
	require.NoError(t, eng.SyncCatalog(ctx, cat))
	require.NoError(t, eng.SyncCatalog(ctx, cat))

	var n int64
	require.NoError(t, db.Model(&models.Achievement{}).Count(&n).Error)
	require.EqualValues(t, len(cat.Achievements), n)

	cat.Achievements[0].PointsReward = 999
	cat.Achievements[0].Inactive = true
	require.NoError(t, eng.SyncCatalog(ctx, cat))

	var a models.Achievement
	require.NoError(t, db.Where("name = ?", cat.Achievements[0].Name).First(&a).Error)
	require.Equal(t, 999, a.PointsReward)
	require.False(t, a.IsActive)
}

func TestGenerateDailyChallengesIdempotent(t *testing.T) {
	db := newTestDB(t)
	cat, err := LoadCatalog("")
	require.NoError(t, err)
	eng := newTestEngine(t, db, Options{Catalog: cat, DailyChallengeCount: 3})
	ctx := context.Background()

	first, err := eng.GenerateDailyChallenges(ctx, monday)
	require.NoError(t, err)
	require.Len(t, first, 3)
	for _, c := range first {
		require.Equal(t, "2025-03-10", c.ChallengeDate)
		require.True(t, c.IsActive)
	}

	again, err := eng.GenerateDailyChallenges(ctx, monday.Add(3*time.Hour))
	require.NoError(t, err)
	require.Equal(t, first, again)

	next, err := eng.GenerateDailyChallenges(ctx, day(1))
	require.NoError(t, err)
	require.Len(t, next, 3)
	require.NotEqual(t, first[0].Title, next[0].Title)

	var n int64
	require.NoError(t, db.Model(&models.DailyChallenge{}).Count(&n).Error)
	require.EqualValues(t, 6, n)
}

func TestGenerateDailyChallengesWithoutTemplates(t *testing.T) {
	db := newTestDB(t)
	eng := newTestEngine(t, db, Options{})

	out, err := eng.GenerateDailyChallenges(context.Background(), monday)
	require.NoError(t, err)
	require.Empty(t, out)
}
