package gamification

import (
	"gorm.io/gorm"

	"github.com/cppla/studyquest/models"
)

// LifetimeCounts are activity aggregates across a user's whole history.
type LifetimeCounts struct {
	TotalQuizzes    int
	PerfectScores   int
	HabitsCompleted int
	StudyMinutes    int
}

// DayCounts are activity aggregates for a single calendar day.
type DayCounts struct {
	CompletedQuizzes int
	BestScore        float64
	StudyMinutes     int
	PerfectScores    int
}

// StatsSource supplies the activity metrics that criteria and challenges read.
// Implementations must only use the handle they are given so they can run inside
// the caller's transaction.
type StatsSource interface {
	Lifetime(tx *gorm.DB, userID uint) (LifetimeCounts, error)
	Day(tx *gorm.DB, userID uint, day string) (DayCounts, error)
}

// EventLogStats aggregates the activity_events table.
type EventLogStats struct{}

var _ StatsSource = EventLogStats{}

type eventAggregate struct {
	Quizzes int64
	Perfect int64
	Habits  int64
	Minutes int64
	BestPct float64
}

func (EventLogStats) aggregate(q *gorm.DB) (eventAggregate, error) {
	var agg eventAggregate
	err := q.Model(&models.ActivityEvent{}).
		Select(
			"COALESCE(SUM(CASE WHEN activity_type = ? THEN 1 ELSE 0 END), 0) AS quizzes, "+
				"COALESCE(SUM(CASE WHEN activity_type = ? AND percentage >= 100 THEN 1 ELSE 0 END), 0) AS perfect, "+
				"COALESCE(SUM(CASE WHEN activity_type = ? THEN 1 ELSE 0 END), 0) AS habits, "+
				"COALESCE(SUM(duration_minutes), 0) AS minutes, "+
				"COALESCE(MAX(CASE WHEN activity_type = ? THEN percentage ELSE 0 END), 0) AS best_pct",
			models.ActivityQuizCompleted,
			models.ActivityQuizCompleted,
			models.ActivityHabitsCompleted,
			models.ActivityQuizCompleted,
		).
		Scan(&agg).Error
	return agg, err
}

func (s EventLogStats) Lifetime(tx *gorm.DB, userID uint) (LifetimeCounts, error) {
	agg, err := s.aggregate(tx.Where("user_id = ?", userID))
	if err != nil {
		return LifetimeCounts{}, err
	}
	return LifetimeCounts{
		TotalQuizzes:    int(agg.Quizzes),
		PerfectScores:   int(agg.Perfect),
		HabitsCompleted: int(agg.Habits),
		StudyMinutes:    int(agg.Minutes),
	}, nil
}

func (s EventLogStats) Day(tx *gorm.DB, userID uint, day string) (DayCounts, error) {
	agg, err := s.aggregate(tx.Where("user_id = ? AND activity_day = ?", userID, day))
	if err != nil {
		return DayCounts{}, err
	}
	return DayCounts{
		CompletedQuizzes: int(agg.Quizzes),
		BestScore:        agg.BestPct,
		StudyMinutes:     int(agg.Minutes),
		PerfectScores:    int(agg.Perfect),
	}, nil
}

// UserStats is the full metric set a criterion can be checked against.
type UserStats struct {
	LifetimeCounts
	DailyStreak  int
	WeeklyStreak int
	TotalPoints  int
	Level        int
}

func buildStats(counts LifetimeCounts, up *models.UserPoints) UserStats {
	return UserStats{
		LifetimeCounts: counts,
		DailyStreak:    up.DailyStreak,
		WeeklyStreak:   up.WeeklyStreak,
		TotalPoints:    up.TotalPoints,
		Level:          up.CurrentLevel,
	}
}
