package models

import (
	"time"

	"gorm.io/datatypes"
)

// CriterionType names the aggregate a criterion is checked against.
type CriterionType string

const (
	CriterionTotalQuizzes    CriterionType = "total_quizzes"
	CriterionPerfectScores   CriterionType = "perfect_scores"
	CriterionDailyStreak     CriterionType = "daily_streak"
	CriterionWeeklyStreak    CriterionType = "weekly_streak"
	CriterionTotalPoints     CriterionType = "total_points"
	CriterionLevelReached    CriterionType = "level_reached"
	CriterionHabitsCompleted CriterionType = "habits_completed"
	CriterionStudyMinutes    CriterionType = "study_minutes"
)

// Criterion is satisfied when the named aggregate is >= Value.
type Criterion struct {
	Type  CriterionType `json:"type" yaml:"type" validate:"required"`
	Value int           `json:"value" yaml:"value" validate:"gte=0"`
}

// Criteria is the list of conditions that must all hold for an unlock.
type Criteria []Criterion

// Achievement is a static catalog entry seeded at startup.
type Achievement struct {
	ID           uint                         `gorm:"primaryKey" json:"id"`
	Name         string                       `gorm:"size:128;uniqueIndex;not null" json:"name"`
	Description  string                       `gorm:"size:512" json:"description"`
	Category     string                       `gorm:"size:64;index" json:"category"`
	Icon         string                       `gorm:"size:64" json:"icon"`
	PointsReward int                          `gorm:"not null;default:0" json:"points_reward"`
	Criteria     datatypes.JSONType[Criteria] `json:"criteria"`
	RarityLevel  int                          `gorm:"not null;default:1" json:"rarity_level"`
	IsActive     bool                         `gorm:"not null;index" json:"is_active"`
	CreatedAt    time.Time                    `json:"created_at"`
	UpdatedAt    time.Time                    `json:"updated_at"`
}

// UserAchievement records an unlock. At most one row per (user, achievement).
type UserAchievement struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"uniqueIndex:idx_user_achievement;not null" json:"user_id"`
	AchievementID uint      `gorm:"uniqueIndex:idx_user_achievement;not null" json:"achievement_id"`
	UnlockedAt    time.Time `gorm:"not null" json:"unlocked_at"`
}

// RarityName maps the 1-4 rarity scale to a label.
func RarityName(level int) string {
	switch level {
	case 1:
		return "common"
	case 2:
		return "rare"
	case 3:
		return "epic"
	case 4:
		return "legendary"
	default:
		return "common"
	}
}
