package gamification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/studyquest/models"
)

type percentFunc func(models.ChallengeRequirements, models.ChallengeProgress) float64

var challengePercents = map[models.ChallengeType]percentFunc{
	models.ChallengeQuizCount: func(r models.ChallengeRequirements, p models.ChallengeProgress) float64 {
		return ratio(float64(intOf(p.CompletedQuizzes)), float64(r.TargetCount))
	},
	models.ChallengeQuizScore: func(r models.ChallengeRequirements, p models.ChallengeProgress) float64 {
		best := 0.0
		if p.BestScore != nil {
			best = *p.BestScore
		}
		return ratio(best, r.TargetScore)
	},
	models.ChallengeStudyTime: func(r models.ChallengeRequirements, p models.ChallengeProgress) float64 {
		return ratio(float64(intOf(p.StudyMinutes)), float64(r.TargetMinutes))
	},
	models.ChallengeStreak: func(r models.ChallengeRequirements, p models.ChallengeProgress) float64 {
		return ratio(float64(intOf(p.StreakDays)), float64(r.TargetDays))
	},
	models.ChallengePerfectScore: func(r models.ChallengeRequirements, p models.ChallengeProgress) float64 {
		return ratio(float64(intOf(p.PerfectScores)), float64(r.TargetCount))
	},
}

// KnownChallengeType reports whether progress can be measured for t.
func KnownChallengeType(t models.ChallengeType) bool {
	_, ok := challengePercents[t]
	return ok
}

// ChallengePercent is progress toward the requirements in [0,100]. Unknown types
// and zero targets yield 0.
func ChallengePercent(t models.ChallengeType, r models.ChallengeRequirements, p models.ChallengeProgress) float64 {
	fn, ok := challengePercents[t]
	if !ok {
		return 0
	}
	return fn(r, p)
}

func ratio(have, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return clampPercent(have / target * 100)
}

func intOf(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// MergeProgress overwrites the fields set on delta and keeps the rest of cur.
// Counters are replaced, not added.
func MergeProgress(cur, delta models.ChallengeProgress) models.ChallengeProgress {
	out := cur
	if delta.CompletedQuizzes != nil {
		v := *delta.CompletedQuizzes
		out.CompletedQuizzes = &v
	}
	if delta.BestScore != nil {
		v := *delta.BestScore
		out.BestScore = &v
	}
	if delta.StudyMinutes != nil {
		v := *delta.StudyMinutes
		out.StudyMinutes = &v
	}
	if delta.StreakDays != nil {
		v := *delta.StreakDays
		out.StreakDays = &v
	}
	if delta.PerfectScores != nil {
		v := *delta.PerfectScores
		out.PerfectScores = &v
	}
	return out
}

// ChallengeUpdate is the outcome of one progress update.
type ChallengeUpdate struct {
	ChallengeID   uint                     `json:"challenge_id"`
	Title         string                   `json:"title"`
	Progress      models.ChallengeProgress `json:"progress"`
	Percent       float64                  `json:"percent"`
	Completed     bool                     `json:"completed"`
	CompletedNow  bool                     `json:"completed_now"`
	PointsAwarded int                      `json:"points_awarded"`
}

// ChallengeTracker records per-user progress on daily challenges.
type ChallengeTracker struct {
	runner txRunner
	ledger *Ledger
	now    func() time.Time
	log    *zap.Logger
}

// UpdateProgress merges delta into the user's progress and completes the
// challenge when it reaches 100%.
func (c *ChallengeTracker) UpdateProgress(ctx context.Context, userID, challengeID uint, delta models.ChallengeProgress) (ChallengeUpdate, error) {
	var out ChallengeUpdate
	err := c.runner.runUser(ctx, "update_challenge_progress", userID, func(tx *gorm.DB) error {
		up, err := lockUserPoints(tx, userID)
		if err != nil {
			return err
		}
		ch, err := loadActiveChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		out, err = c.update(tx, up, ch, delta)
		return err
	})
	return out, err
}

func loadActiveChallenge(tx *gorm.DB, id uint) (*models.DailyChallenge, error) {
	var ch models.DailyChallenge
	if err := tx.Where("id = ? AND is_active = ?", id, true).First(&ch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("challenge %d: %w", id, ErrChallengeNotFound)
		}
		return nil, err
	}
	return &ch, nil
}

func (c *ChallengeTracker) update(tx *gorm.DB, up *models.UserPoints, ch *models.DailyChallenge, delta models.ChallengeProgress) (ChallengeUpdate, error) {
	seed := models.UserChallengeProgress{
		UserID:           up.UserID,
		DailyChallengeID: ch.ID,
		Progress:         datatypes.NewJSONType(models.ChallengeProgress{}),
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return ChallengeUpdate{}, fmt.Errorf("ensure challenge progress: %w", err)
	}

	var row models.UserChallengeProgress
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND daily_challenge_id = ?", up.UserID, ch.ID).
		First(&row).Error; err != nil {
		return ChallengeUpdate{}, fmt.Errorf("lock challenge progress: %w", err)
	}

	merged := MergeProgress(row.Progress.Data(), delta)
	if err := tx.Model(&models.UserChallengeProgress{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"progress":   datatypes.NewJSONType(merged),
			"updated_at": c.now(),
		}).Error; err != nil {
		return ChallengeUpdate{}, fmt.Errorf("save challenge progress: %w", err)
	}

	out := ChallengeUpdate{
		ChallengeID: ch.ID,
		Title:       ch.Title,
		Progress:    merged,
		Percent:     ChallengePercent(ch.ChallengeType, ch.Requirements.Data(), merged),
		Completed:   row.Completed,
	}
	if row.Completed || out.Percent < 100 {
		return out, nil
	}

	now := c.now()
	res := tx.Model(&models.UserChallengeProgress{}).
		Where("id = ? AND completed = ?", row.ID, false).
		Updates(map[string]interface{}{"completed": true, "completed_at": now})
	if res.Error != nil {
		return out, fmt.Errorf("complete challenge: %w", res.Error)
	}
	out.Completed = true
	if res.RowsAffected != 1 {
		return out, nil
	}

	out.CompletedNow = true
	if ch.PointsReward != 0 {
		if _, err := c.ledger.record(tx, up, models.ActivityChallengeCompleted, ch.PointsReward,
			"Challenge completed: "+ch.Title,
			map[string]interface{}{"challenge_id": ch.ID, "challenge_date": ch.ChallengeDate}); err != nil {
			return out, err
		}
		out.PointsAwarded = ch.PointsReward
	}
	c.log.Info("challenge completed",
		zap.Uint("user_id", up.UserID),
		zap.Uint("challenge_id", ch.ID),
		zap.Int("points", ch.PointsReward))
	return out, nil
}

// progressFromDay turns day aggregates into a progress snapshot for every
// counter; the streak comes from the aggregate row.
func progressFromDay(d DayCounts, streak int) models.ChallengeProgress {
	quizzes, minutes, perfect, days := d.CompletedQuizzes, d.StudyMinutes, d.PerfectScores, streak
	best := d.BestScore
	return models.ChallengeProgress{
		CompletedQuizzes: &quizzes,
		BestScore:        &best,
		StudyMinutes:     &minutes,
		StreakDays:       &days,
		PerfectScores:    &perfect,
	}
}
