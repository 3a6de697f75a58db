package models

import "time"

// ActivityEvent is the log of activity reported by the application (quiz submitted,
// questionnaire completed, ...). EventID makes delivery idempotent per user.
type ActivityEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          uint      `gorm:"not null;uniqueIndex:idx_user_event,priority:1;index:idx_activity_user_day" json:"user_id"`
	EventID         string    `gorm:"size:64;not null;uniqueIndex:idx_user_event,priority:2" json:"event_id"`
	ActivityType    string    `gorm:"size:64;not null;index" json:"activity_type"`
	ActivityDay     string    `gorm:"size:10;not null;index:idx_activity_user_day" json:"activity_day"`
	OccurredAt      time.Time `gorm:"not null" json:"occurred_at"`
	Percentage      float64   `json:"percentage"`
	Score           int       `json:"score"`
	TotalQuestions  int       `json:"total_questions"`
	DurationMinutes int       `json:"duration_minutes"`
	Subject         string    `gorm:"size:128" json:"subject"`
	CreatedAt       time.Time `json:"created_at"`
}

// All lists every model for migrations.
func All() []interface{} {
	return []interface{}{
		&User{},
		&PointTransaction{},
		&UserPoints{},
		&Achievement{},
		&UserAchievement{},
		&DailyChallenge{},
		&UserChallengeProgress{},
		&ActivityEvent{},
	}
}
