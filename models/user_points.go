package models

import "time"

// UserPoints is the denormalized per-user aggregate derived from the ledger.
// TotalPoints must equal the sum of the user's PointTransaction.PointsEarned.
type UserPoints struct {
	UserID             uint       `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	TotalPoints        int        `gorm:"not null;default:0;index" json:"total_points"`
	CurrentLevel       int        `gorm:"not null;default:0" json:"current_level"`
	PointsInLevel      int        `gorm:"not null;default:0" json:"points_in_level"`
	DailyStreak        int        `gorm:"not null;default:0" json:"daily_streak"`
	LongestDailyStreak int        `gorm:"not null;default:0" json:"longest_daily_streak"`
	WeeklyStreak       int        `gorm:"not null;default:0" json:"weekly_streak"`
	LastActivityDate   *time.Time `json:"last_activity_date"`
	LastActivityWeek   *time.Time `json:"last_activity_week"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName pins the table name used by raw joins.
func (UserPoints) TableName() string { return "user_points" }
