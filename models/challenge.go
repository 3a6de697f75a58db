package models

import (
	"time"

	"gorm.io/datatypes"
)

// ChallengeType selects how progress is measured against requirements.
type ChallengeType string

const (
	ChallengeQuizCount    ChallengeType = "quiz_count"
	ChallengeQuizScore    ChallengeType = "quiz_score"
	ChallengeStudyTime    ChallengeType = "study_time"
	ChallengeStreak       ChallengeType = "streak"
	ChallengePerfectScore ChallengeType = "perfect_score"
)

// ChallengeRequirements holds the targets; each challenge type reads its own field.
type ChallengeRequirements struct {
	TargetCount   int     `json:"target_count,omitempty" yaml:"target_count"`
	TargetScore   float64 `json:"target_score,omitempty" yaml:"target_score"`
	TargetMinutes int     `json:"target_minutes,omitempty" yaml:"target_minutes"`
	TargetDays    int     `json:"target_days,omitempty" yaml:"target_days"`
}

// ChallengeProgress holds counters. Nil fields are "not reported"; a merge only
// overwrites fields that are set on the incoming value.
type ChallengeProgress struct {
	CompletedQuizzes *int     `json:"completed_quizzes,omitempty"`
	BestScore        *float64 `json:"best_score,omitempty"`
	StudyMinutes     *int     `json:"study_minutes,omitempty"`
	StreakDays       *int     `json:"streak_days,omitempty"`
	PerfectScores    *int     `json:"perfect_scores,omitempty"`
}

// DailyChallenge is a goal valid for a single calendar day (YYYY-MM-DD).
type DailyChallenge struct {
	ID            uint                                      `gorm:"primaryKey" json:"id"`
	Title         string                                    `gorm:"size:128;not null;uniqueIndex:idx_challenge_day_title" json:"title"`
	Description   string                                    `gorm:"size:512" json:"description"`
	ChallengeType ChallengeType                             `gorm:"size:32;not null" json:"challenge_type"`
	Requirements  datatypes.JSONType[ChallengeRequirements] `json:"requirements"`
	PointsReward  int                                       `gorm:"not null;default:0" json:"points_reward"`
	ChallengeDate string                                    `gorm:"size:10;not null;index;uniqueIndex:idx_challenge_day_title" json:"challenge_date"`
	IsActive      bool                                      `gorm:"not null" json:"is_active"`
	CreatedAt     time.Time                                 `json:"created_at"`
}

// UserChallengeProgress tracks one user's advancement on one challenge.
// Completed flips false -> true once and never back.
type UserChallengeProgress struct {
	ID               uint                                  `gorm:"primaryKey" json:"id"`
	UserID           uint                                  `gorm:"not null;uniqueIndex:idx_user_challenge" json:"user_id"`
	DailyChallengeID uint                                  `gorm:"not null;uniqueIndex:idx_user_challenge" json:"daily_challenge_id"`
	Progress         datatypes.JSONType[ChallengeProgress] `json:"progress"`
	Completed        bool                                  `gorm:"not null;default:false" json:"completed"`
	CompletedAt      *time.Time                            `json:"completed_at"`
	CreatedAt        time.Time                             `json:"created_at"`
	UpdatedAt        time.Time                             `json:"updated_at"`
}

// TableName pins the table name used by raw joins.
func (UserChallengeProgress) TableName() string { return "user_challenge_progress" }
