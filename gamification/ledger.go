package gamification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/studyquest/models"
)

var descriptionPolicy = bluemonday.StrictPolicy()

// LevelChange reports the level before and after a write.
type LevelChange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// LeveledUp reports whether the write crossed at least one level boundary upward.
func (c LevelChange) LeveledUp() bool { return c.To > c.From }

// Ledger is the append-only point ledger plus its per-user aggregate.
type Ledger struct {
	runner txRunner
	log    *zap.Logger
}

// RecordTransaction appends one ledger entry and updates the aggregate in the
// same transaction. Negative points are deductions.
func (l *Ledger) RecordTransaction(ctx context.Context, userID uint, activityType string, points int, description string, metadata map[string]interface{}) (models.PointTransaction, LevelChange, error) {
	var (
		out    models.PointTransaction
		change LevelChange
	)
	if activityType == "" {
		return out, change, fmt.Errorf("%w: activity type is required", ErrInvalidActivity)
	}
	err := l.runner.runUser(ctx, "record_transaction", userID, func(tx *gorm.DB) error {
		up, err := lockUserPoints(tx, userID)
		if err != nil {
			return err
		}
		change.From = up.CurrentLevel
		out, err = l.record(tx, up, activityType, points, description, metadata)
		change.To = up.CurrentLevel
		return err
	})
	return out, change, err
}

// TotalPoints is the ledger sum for a user.
func (l *Ledger) TotalPoints(ctx context.Context, userID uint) (int, error) {
	return sumLedger(l.runner.db.WithContext(ctx), userID)
}

// Reconcile rebuilds the aggregate from the ledger sum. Drift is logged and repaired.
func (l *Ledger) Reconcile(ctx context.Context, userID uint) (models.UserPoints, error) {
	var out models.UserPoints
	err := l.runner.runUser(ctx, "reconcile", userID, func(tx *gorm.DB) error {
		up, err := lockUserPoints(tx, userID)
		if err != nil {
			return err
		}
		sum, err := sumLedger(tx, userID)
		if err != nil {
			return err
		}
		level, inLevel := RecomputeLevel(sum)
		if sum != up.TotalPoints || level != up.CurrentLevel || inLevel != up.PointsInLevel {
			l.log.Warn("point aggregate drift repaired",
				zap.Uint("user_id", userID),
				zap.Int("stored_total", up.TotalPoints),
				zap.Int("ledger_total", sum),
				zap.Int("stored_level", up.CurrentLevel),
				zap.Int("level", level),
			)
		}
		up.TotalPoints, up.CurrentLevel, up.PointsInLevel = sum, level, inLevel
		if err := saveAggregate(tx, up); err != nil {
			return err
		}
		out = *up
		return nil
	})
	return out, err
}

// record writes one entry using tx and applies it to the locked aggregate up.
func (l *Ledger) record(tx *gorm.DB, up *models.UserPoints, activityType string, points int, description string, metadata map[string]interface{}) (models.PointTransaction, error) {
	entry := models.PointTransaction{
		UserID:       up.UserID,
		ActivityType: activityType,
		PointsEarned: points,
		Description:  truncate(descriptionPolicy.Sanitize(description), 255),
		Metadata:     datatypes.JSONMap(metadata),
		CreatedAt:    time.Now(),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return entry, fmt.Errorf("insert point transaction: %w", err)
	}

	prev := up.TotalPoints
	up.TotalPoints += points
	// Incremental only from a non-negative total; anything else is rebuilt.
	if points >= 0 && prev >= 0 {
		up.CurrentLevel, up.PointsInLevel = ApplyPoints(up.CurrentLevel, up.PointsInLevel, points)
	} else {
		up.CurrentLevel, up.PointsInLevel = RecomputeLevel(up.TotalPoints)
	}
	if err := saveAggregate(tx, up); err != nil {
		return entry, err
	}
	return entry, nil
}

// lockUserPoints checks the user exists, creates the aggregate row on first use
// and returns it locked for the rest of the transaction.
func lockUserPoints(tx *gorm.DB, userID uint) (*models.UserPoints, error) {
	var user models.User
	if err := tx.Select("id").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, ErrUserNotFound)
		}
		return nil, err
	}

	seed := models.UserPoints{UserID: userID}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("ensure user points: %w", err)
	}

	var up models.UserPoints
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&up).Error; err != nil {
		return nil, fmt.Errorf("lock user points: %w", err)
	}
	return &up, nil
}

func saveAggregate(tx *gorm.DB, up *models.UserPoints) error {
	err := tx.Model(&models.UserPoints{}).
		Where("user_id = ?", up.UserID).
		Updates(map[string]interface{}{
			"total_points":         up.TotalPoints,
			"current_level":        up.CurrentLevel,
			"points_in_level":      up.PointsInLevel,
			"daily_streak":         up.DailyStreak,
			"longest_daily_streak": up.LongestDailyStreak,
			"weekly_streak":        up.WeeklyStreak,
			"last_activity_date":   up.LastActivityDate,
			"last_activity_week":   up.LastActivityWeek,
			"updated_at":           time.Now(),
		}).Error
	if err != nil {
		return fmt.Errorf("update user points: %w", err)
	}
	return nil
}

func sumLedger(tx *gorm.DB, userID uint) (int, error) {
	var sum int64
	err := tx.Model(&models.PointTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(points_earned), 0)").
		Scan(&sum).Error
	return int(sum), err
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
