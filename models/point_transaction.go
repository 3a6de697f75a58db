package models

import (
	"time"

	"gorm.io/datatypes"
)

// Activity types that earn points. The list is open: unknown types are stored as-is.
const (
	ActivityQuizCompleted       = "quiz_completed"
	ActivityPerfectScore        = "perfect_score"
	ActivityHabitsCompleted     = "habits_completed"
	ActivityStudySession        = "study_session"
	ActivityNoteCreated         = "note_created"
	ActivityDailyLogin          = "daily_login"
	ActivityStreakBonus         = "streak_bonus"
	ActivityAchievementUnlocked = "achievement_unlocked"
	ActivityChallengeCompleted  = "challenge_completed"
	ActivityManualAdjustment    = "manual_adjustment"
)

// PointTransaction is one immutable ledger entry. Rows are only ever inserted.
type PointTransaction struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UserID       uint              `gorm:"index;not null" json:"user_id"`
	ActivityType string            `gorm:"size:64;index;not null" json:"activity_type"`
	PointsEarned int               `gorm:"not null" json:"points_earned"`
	Description  string            `gorm:"size:255" json:"description"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}
