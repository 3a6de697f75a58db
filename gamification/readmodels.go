package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/studyquest/models"
)

// Cache stores serialized read models. Misses and backend errors both report
// false so callers fall through to the database.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (NopCache) Set(context.Context, string, []byte, time.Duration) {}
func (NopCache) Delete(context.Context, ...string)                  {}

const (
	leaderboardKey  = "cache:gamify:leaderboard"
	leaderboardSize = 100
)

// ProfileKey is the cache key of a user's profile.
func ProfileKey(userID uint) string {
	return "cache:gamify:profile:" + strconv.FormatUint(uint64(userID), 10)
}

func (e *Engine) invalidateUser(ctx context.Context, userID uint) {
	e.cache.Delete(ctx, ProfileKey(userID))
}

func (e *Engine) cached(ctx context.Context, key string, dst interface{}) bool {
	raw, ok := e.cache.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		e.log.Debug("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) store(ctx context.Context, key string, v interface{}, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	e.cache.Set(ctx, key, raw, ttl)
}

// Profile is the user's progression summary.
type Profile struct {
	UserID               uint       `json:"user_id"`
	TotalPoints          int        `json:"total_points"`
	Level                int        `json:"level"`
	LevelTitle           string     `json:"level_title"`
	PointsInLevel        int        `json:"points_in_level"`
	PointsForNextLevel   int        `json:"points_for_next_level"`
	PointsToNextLevel    int        `json:"points_to_next_level"`
	ProgressPercent      float64    `json:"progress_percent"`
	DailyStreak          int        `json:"daily_streak"`
	LongestDailyStreak   int        `json:"longest_daily_streak"`
	WeeklyStreak         int        `json:"weekly_streak"`
	LastActivityDate     *time.Time `json:"last_activity_date"`
	AchievementsUnlocked int64      `json:"achievements_unlocked"`
}

// Profile returns the user's progression, served from cache when possible.
func (e *Engine) Profile(ctx context.Context, userID uint) (Profile, error) {
	var p Profile
	if e.cached(ctx, ProfileKey(userID), &p) {
		return p, nil
	}

	db := e.db.WithContext(ctx)
	var user models.User
	if err := db.Select("id").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
		}
		return p, err
	}

	var up models.UserPoints
	if err := db.Where("user_id = ?", userID).First(&up).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return p, err
	}
	var unlocked int64
	if err := db.Model(&models.UserAchievement{}).Where("user_id = ?", userID).Count(&unlocked).Error; err != nil {
		return p, err
	}

	p = Profile{
		UserID:               userID,
		TotalPoints:          up.TotalPoints,
		Level:                up.CurrentLevel,
		LevelTitle:           LevelTitle(up.CurrentLevel),
		PointsInLevel:        up.PointsInLevel,
		PointsForNextLevel:   PointsRequiredForLevel(up.CurrentLevel + 1),
		PointsToNextLevel:    PointsToNextLevel(up.PointsInLevel, up.CurrentLevel),
		ProgressPercent:      LevelProgressPercent(up.PointsInLevel, up.CurrentLevel),
		DailyStreak:          up.DailyStreak,
		LongestDailyStreak:   up.LongestDailyStreak,
		WeeklyStreak:         up.WeeklyStreak,
		LastActivityDate:     up.LastActivityDate,
		AchievementsUnlocked: unlocked,
	}
	e.store(ctx, ProfileKey(userID), p, e.opts.ProfileCacheTTL)
	return p, nil
}

// LeaderboardEntry is one ranked user.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      uint   `json:"user_id"`
	Username    string `json:"username"`
	TotalPoints int    `json:"total_points"`
	Level       int    `json:"level"`
	LevelTitle  string `json:"level_title"`
}

// Leaderboard returns the top users by total points. The top 100 are cached
// and concurrent cache fills share one query.
func (e *Engine) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > leaderboardSize {
		limit = leaderboardSize
	}

	var board []LeaderboardEntry
	if !e.cached(ctx, leaderboardKey, &board) {
		// The fill is shared, so one caller going away must not fail the others.
		fillCtx := context.WithoutCancel(ctx)
		v, err, _ := e.sf.Do(leaderboardKey, func() (interface{}, error) {
			return e.loadLeaderboard(fillCtx)
		})
		if err != nil {
			return nil, err
		}
		board = v.([]LeaderboardEntry)
	}
	if len(board) > limit {
		board = board[:limit]
	}
	return board, nil
}

func (e *Engine) loadLeaderboard(ctx context.Context) ([]LeaderboardEntry, error) {
	type row struct {
		UserID       uint
		Username     string
		TotalPoints  int
		CurrentLevel int
	}
	var rows []row
	err := e.db.WithContext(ctx).
		Table("user_points").
		Select("user_points.user_id, users.username, user_points.total_points, user_points.current_level").
		Joins("JOIN users ON users.id = user_points.user_id AND users.deleted_at IS NULL").
		Where("user_points.total_points > 0").
		Order("user_points.total_points DESC, user_points.user_id ASC").
		Limit(leaderboardSize).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}

	board := make([]LeaderboardEntry, 0, len(rows))
	for i, r := range rows {
		board = append(board, LeaderboardEntry{
			Rank:        i + 1,
			UserID:      r.UserID,
			Username:    r.Username,
			TotalPoints: r.TotalPoints,
			Level:       r.CurrentLevel,
			LevelTitle:  LevelTitle(r.CurrentLevel),
		})
	}
	e.store(ctx, leaderboardKey, board, e.opts.LeaderboardCacheTTL)
	return board, nil
}

// Transactions pages through a user's ledger, newest first.
func (e *Engine) Transactions(ctx context.Context, userID uint, page, pageSize int) ([]models.PointTransaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	db := e.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.PointTransaction{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var items []models.PointTransaction
	err := db.Where("user_id = ?", userID).
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}

// AchievementStatus is a catalog entry seen from one user.
type AchievementStatus struct {
	models.Achievement
	Rarity            string     `json:"rarity"`
	Unlocked          bool       `json:"unlocked"`
	UnlockedAt        *time.Time `json:"unlocked_at,omitempty"`
	CompletionPercent float64    `json:"completion_percent"`
}

// AchievementStatuses lists every active achievement with the user's progress.
func (e *Engine) AchievementStatuses(ctx context.Context, userID uint) ([]AchievementStatus, error) {
	db := e.db.WithContext(ctx)

	var all []models.Achievement
	if err := db.Where("is_active = ?", true).Order("category ASC, rarity_level ASC, id ASC").Find(&all).Error; err != nil {
		return nil, err
	}
	var mine []models.UserAchievement
	if err := db.Where("user_id = ?", userID).Find(&mine).Error; err != nil {
		return nil, err
	}
	unlockedAt := make(map[uint]time.Time, len(mine))
	for _, ua := range mine {
		unlockedAt[ua.AchievementID] = ua.UnlockedAt
	}

	stats, err := loadUserStats(db, e.opts.Stats, userID)
	if err != nil {
		return nil, err
	}

	out := make([]AchievementStatus, 0, len(all))
	for _, a := range all {
		st := AchievementStatus{Achievement: a, Rarity: models.RarityName(a.RarityLevel)}
		if at, ok := unlockedAt[a.ID]; ok {
			at := at
			st.Unlocked = true
			st.UnlockedAt = &at
			st.CompletionPercent = 100
		} else {
			st.CompletionPercent = completionPercent(a.Criteria.Data(), stats)
		}
		out = append(out, st)
	}
	return out, nil
}

// ChallengeStatus is one of today's challenges with the user's progress.
type ChallengeStatus struct {
	models.DailyChallenge
	Progress    models.ChallengeProgress `json:"progress"`
	Percent     float64                  `json:"percent"`
	Completed   bool                     `json:"completed"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
}

// TodayChallenges returns the challenges of the day containing date, generating
// them first when the day has none.
func (e *Engine) TodayChallenges(ctx context.Context, userID uint, date time.Time) ([]ChallengeStatus, error) {
	challenges, err := e.GenerateDailyChallenges(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(challenges) == 0 {
		return []ChallengeStatus{}, nil
	}

	ids := make([]uint, 0, len(challenges))
	for _, c := range challenges {
		ids = append(ids, c.ID)
	}
	var rows []models.UserChallengeProgress
	if err := e.db.WithContext(ctx).
		Where("user_id = ? AND daily_challenge_id IN ?", userID, ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	byChallenge := make(map[uint]models.UserChallengeProgress, len(rows))
	for _, r := range rows {
		byChallenge[r.DailyChallengeID] = r
	}

	out := make([]ChallengeStatus, 0, len(challenges))
	for _, c := range challenges {
		if !c.IsActive {
			continue
		}
		st := ChallengeStatus{DailyChallenge: c}
		if r, ok := byChallenge[c.ID]; ok {
			st.Progress = r.Progress.Data()
			st.Completed = r.Completed
			st.CompletedAt = r.CompletedAt
		}
		st.Percent = ChallengePercent(c.ChallengeType, c.Requirements.Data(), st.Progress)
		if st.Completed {
			st.Percent = 100
		}
		out = append(out, st)
	}
	return out, nil
}

// Stats are service-wide counters for administrators.
type Stats struct {
	UsersWithPoints          int64            `json:"users_with_points"`
	TotalPointsAwarded       int64            `json:"total_points_awarded"`
	AchievementsUnlocked     int64            `json:"achievements_unlocked"`
	ActiveToday              int64            `json:"active_today"`
	ChallengesCompletedToday int64            `json:"challenges_completed_today"`
	PointsByActivity         map[string]int64 `json:"points_by_activity"`
}

// Stats aggregates service-wide counters. A failing counter reports 0 rather
// than failing the whole call.
func (e *Engine) Stats(ctx context.Context) Stats {
	db := e.db.WithContext(ctx)
	today := DayKey(e.opts.Now(), e.opts.Location)
	var s Stats

	if err := db.Model(&models.UserPoints{}).Where("total_points > 0").Count(&s.UsersWithPoints).Error; err != nil {
		e.statsFailed("users_with_points", err)
	}
	if err := db.Model(&models.PointTransaction{}).
		Select("COALESCE(SUM(points_earned),0)").
		Scan(&s.TotalPointsAwarded).Error; err != nil {
		e.statsFailed("total_points_awarded", err)
	}
	if err := db.Model(&models.UserAchievement{}).Count(&s.AchievementsUnlocked).Error; err != nil {
		e.statsFailed("achievements_unlocked", err)
	}
	if err := db.Model(&models.ActivityEvent{}).
		Where("activity_day = ?", today).
		Distinct("user_id").
		Count(&s.ActiveToday).Error; err != nil {
		e.statsFailed("active_today", err)
	}
	if err := db.Model(&models.UserChallengeProgress{}).
		Joins("JOIN daily_challenges ON daily_challenges.id = user_challenge_progress.daily_challenge_id").
		Where("daily_challenges.challenge_date = ? AND user_challenge_progress.completed = ?", today, true).
		Count(&s.ChallengesCompletedToday).Error; err != nil {
		e.statsFailed("challenges_completed_today", err)
	}

	type bucket struct {
		ActivityType string
		Points       int64
	}
	var buckets []bucket
	if err := db.Model(&models.PointTransaction{}).
		Select("activity_type, COALESCE(SUM(points_earned),0) AS points").
		Group("activity_type").
		Scan(&buckets).Error; err != nil {
		e.statsFailed("points_by_activity", err)
	}
	s.PointsByActivity = make(map[string]int64, len(buckets))
	for _, b := range buckets {
		s.PointsByActivity[b.ActivityType] = b.Points
	}
	return s
}

func (e *Engine) statsFailed(counter string, err error) {
	e.log.Warn("stats counter failed", zap.String("counter", counter), zap.Error(err))
}
