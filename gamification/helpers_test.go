package gamification

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/studyquest/models"
)

// monday is 2025-03-10, a Monday.
var monday = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newTestEngine(t *testing.T, db *gorm.DB, opts Options) *Engine {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return monday }
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = time.Millisecond
	}
	return New(db, opts)
}

func createUser(t *testing.T, db *gorm.DB, name string) uint {
	t.Helper()
	u := models.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, db.Create(&u).Error)
	return u.ID
}

func createAchievement(t *testing.T, db *gorm.DB, name string, reward int, criteria ...models.Criterion) models.Achievement {
	t.Helper()
	a := models.Achievement{
		Name:         name,
		PointsReward: reward,
		RarityLevel:  1,
		IsActive:     true,
		Criteria:     datatypes.NewJSONType(models.Criteria(criteria)),
	}
	require.NoError(t, db.Create(&a).Error)
	return a
}

func createChallenge(t *testing.T, db *gorm.DB, typ models.ChallengeType, req models.ChallengeRequirements, reward int, day string) models.DailyChallenge {
	t.Helper()
	c := models.DailyChallenge{
		Title:         string(typ) + " " + uuid.NewString()[:8],
		ChallengeType: typ,
		Requirements:  datatypes.NewJSONType(req),
		PointsReward:  reward,
		ChallengeDate: day,
		IsActive:      true,
	}
	require.NoError(t, db.Create(&c).Error)
	return c
}

func insertQuizEvent(t *testing.T, db *gorm.DB, userID uint, at time.Time, pct float64) {
	t.Helper()
	ev := models.ActivityEvent{
		EventID:      uuid.NewString(),
		UserID:       userID,
		ActivityType: models.ActivityQuizCompleted,
		ActivityDay:  DayKey(at, time.UTC),
		OccurredAt:   at,
		Percentage:   pct,
	}
	require.NoError(t, db.Create(&ev).Error)
}

func loadPoints(t *testing.T, db *gorm.DB, userID uint) models.UserPoints {
	t.Helper()
	var up models.UserPoints
	require.NoError(t, db.Where("user_id = ?", userID).First(&up).Error)
	return up
}

func intp(v int) *int { return &v }

// memCache is an in-process Cache for read-model tests.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = val
}

func (m *memCache) Delete(_ context.Context, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
}
