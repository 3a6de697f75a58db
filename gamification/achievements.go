package gamification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/studyquest/models"
)

// MetricFunc reads the metric a criterion type is compared against.
type MetricFunc func(UserStats) int

var criterionMetrics = map[models.CriterionType]MetricFunc{
	models.CriterionTotalQuizzes:    func(s UserStats) int { return s.TotalQuizzes },
	models.CriterionPerfectScores:   func(s UserStats) int { return s.PerfectScores },
	models.CriterionDailyStreak:     func(s UserStats) int { return s.DailyStreak },
	models.CriterionWeeklyStreak:    func(s UserStats) int { return s.WeeklyStreak },
	models.CriterionTotalPoints:     func(s UserStats) int { return s.TotalPoints },
	models.CriterionLevelReached:    func(s UserStats) int { return s.Level },
	models.CriterionHabitsCompleted: func(s UserStats) int { return s.HabitsCompleted },
	models.CriterionStudyMinutes:    func(s UserStats) int { return s.StudyMinutes },
}

// KnownCriterion reports whether a criterion type has a registered metric.
func KnownCriterion(t models.CriterionType) bool {
	_, ok := criterionMetrics[t]
	return ok
}

// CriterionMet reports whether one criterion holds. Unknown types never hold.
func CriterionMet(c models.Criterion, s UserStats) bool {
	metric, ok := criterionMetrics[c.Type]
	if !ok {
		return false
	}
	return metric(s) >= c.Value
}

// criteriaMet is the AND over all criteria. An empty list is never met.
func criteriaMet(cs models.Criteria, s UserStats) bool {
	if len(cs) == 0 {
		return false
	}
	for _, c := range cs {
		if !CriterionMet(c, s) {
			return false
		}
	}
	return true
}

// AchievementUnlock describes one newly unlocked achievement.
type AchievementUnlock struct {
	AchievementID uint      `json:"achievement_id"`
	Name          string    `json:"name"`
	PointsReward  int       `json:"points_reward"`
	RarityLevel   int       `json:"rarity_level"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// AchievementEvaluator unlocks achievements whose criteria are satisfied.
type AchievementEvaluator struct {
	runner    txRunner
	ledger    *Ledger
	stats     StatsSource
	maxRounds int
	now       func() time.Time
	log       *zap.Logger
}

// Evaluate unlocks everything currently satisfied, including achievements
// reachable through points awarded by earlier unlocks.
func (e *AchievementEvaluator) Evaluate(ctx context.Context, userID uint) ([]AchievementUnlock, error) {
	var out []AchievementUnlock
	err := e.runner.runUser(ctx, "evaluate_achievements", userID, func(tx *gorm.DB) error {
		up, err := lockUserPoints(tx, userID)
		if err != nil {
			return err
		}
		out, err = e.evaluate(tx, up)
		return err
	})
	return out, err
}

func (e *AchievementEvaluator) evaluate(tx *gorm.DB, up *models.UserPoints) ([]AchievementUnlock, error) {
	var unlocked []AchievementUnlock
	for round := 0; round < e.maxRounds; round++ {
		counts, err := e.stats.Lifetime(tx, up.UserID)
		if err != nil {
			return unlocked, fmt.Errorf("load stats: %w", err)
		}

		var candidates []models.Achievement
		err = tx.Where("is_active = ?", true).
			Where("id NOT IN (?)", tx.Model(&models.UserAchievement{}).
				Select("achievement_id").
				Where("user_id = ?", up.UserID)).
			Order("id ASC").
			Find(&candidates).Error
		if err != nil {
			return unlocked, fmt.Errorf("load achievements: %w", err)
		}

		newly := 0
		for _, a := range candidates {
			criteria := a.Criteria.Data()
			for _, c := range criteria {
				if !KnownCriterion(c.Type) {
					e.log.Debug("unknown achievement criterion",
						zap.Uint("achievement_id", a.ID),
						zap.String("type", string(c.Type)))
				}
			}
			// Points awarded earlier in this round count immediately.
			if !criteriaMet(criteria, buildStats(counts, up)) {
				continue
			}

			ua := models.UserAchievement{UserID: up.UserID, AchievementID: a.ID, UnlockedAt: e.now()}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&ua)
			if res.Error != nil {
				return unlocked, fmt.Errorf("insert user achievement: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				continue
			}

			if a.PointsReward != 0 {
				_, err := e.ledger.record(tx, up, models.ActivityAchievementUnlocked, a.PointsReward,
					"Achievement unlocked: "+a.Name,
					map[string]interface{}{"achievement_id": a.ID, "achievement_name": a.Name})
				if err != nil {
					return unlocked, err
				}
			}
			unlocked = append(unlocked, AchievementUnlock{
				AchievementID: a.ID,
				Name:          a.Name,
				PointsReward:  a.PointsReward,
				RarityLevel:   a.RarityLevel,
				UnlockedAt:    ua.UnlockedAt,
			})
			newly++
		}
		if newly == 0 {
			return unlocked, nil
		}
	}
	e.log.Warn("achievement evaluation hit round limit",
		zap.Uint("user_id", up.UserID),
		zap.Int("rounds", e.maxRounds))
	return unlocked, nil
}

// CompletionPercentage is the share of criteria currently met, or 100 once unlocked.
func (e *AchievementEvaluator) CompletionPercentage(ctx context.Context, userID, achievementID uint) (float64, error) {
	db := e.runner.db.WithContext(ctx)

	var a models.Achievement
	if err := db.First(&a, achievementID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("achievement %d: %w", achievementID, ErrAchievementNotFound)
		}
		return 0, err
	}

	var unlocked int64
	if err := db.Model(&models.UserAchievement{}).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		Count(&unlocked).Error; err != nil {
		return 0, err
	}
	if unlocked > 0 {
		return 100, nil
	}

	s, err := loadUserStats(db, e.stats, userID)
	if err != nil {
		return 0, err
	}
	return completionPercent(a.Criteria.Data(), s), nil
}

func completionPercent(cs models.Criteria, s UserStats) float64 {
	if len(cs) == 0 {
		return 0
	}
	met := 0
	for _, c := range cs {
		if CriterionMet(c, s) {
			met++
		}
	}
	return float64(met) / float64(len(cs)) * 100
}

// loadUserStats reads metrics without locking; a user without an aggregate row
// has all zero aggregates.
func loadUserStats(db *gorm.DB, src StatsSource, userID uint) (UserStats, error) {
	var up models.UserPoints
	err := db.Where("user_id = ?", userID).First(&up).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return UserStats{}, err
	}
	up.UserID = userID
	counts, err := src.Lifetime(db, userID)
	if err != nil {
		return UserStats{}, err
	}
	return buildStats(counts, &up), nil
}
