package gamification

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/cppla/studyquest/models"
)

// StreakOutcome describes what an activity did to a streak counter.
type StreakOutcome string

const (
	StreakStarted    StreakOutcome = "started"
	StreakSamePeriod StreakOutcome = "same_period"
	StreakExtended   StreakOutcome = "extended"
	StreakReset      StreakOutcome = "reset"
	StreakBackdated  StreakOutcome = "backdated"
)

// StreakUpdate is the state after an activity was applied.
type StreakUpdate struct {
	Daily         int           `json:"daily_streak"`
	LongestDaily  int           `json:"longest_daily_streak"`
	Weekly        int           `json:"weekly_streak"`
	DailyOutcome  StreakOutcome `json:"daily_outcome"`
	WeeklyOutcome StreakOutcome `json:"weekly_outcome"`
}

// CivilDay truncates t to its calendar day in loc, expressed as UTC midnight.
func CivilDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday of the ISO week containing day.
func WeekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// DayKey formats a calendar day as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return CivilDay(t, loc).Format("2006-01-02")
}

// AdvanceStreak moves a streak counter forward. last and period must already be
// normalized to period starts; step is the period length in days.
// Same period is a no-op, the next period extends, a gap restarts at 1 and
// an earlier period leaves the counter untouched.
func AdvanceStreak(last *time.Time, count int, period time.Time, step int) (int, StreakOutcome) {
	if last == nil || count <= 0 {
		return 1, StreakStarted
	}
	diff := int(period.Sub(last.UTC()).Hours() / 24)
	switch {
	case diff < 0:
		return count, StreakBackdated
	case diff == 0:
		return count, StreakSamePeriod
	case diff == step:
		return count + 1, StreakExtended
	default:
		return 1, StreakReset
	}
}

// applyStreak updates the streak columns of up in memory for an activity at t.
func applyStreak(up *models.UserPoints, at time.Time, loc *time.Location) StreakUpdate {
	day := CivilDay(at, loc)
	week := WeekStart(day)

	daily, dOut := AdvanceStreak(civilPtr(up.LastActivityDate), up.DailyStreak, day, 1)
	weekly, wOut := AdvanceStreak(civilPtr(up.LastActivityWeek), up.WeeklyStreak, week, 7)

	up.DailyStreak = daily
	if dOut != StreakBackdated && dOut != StreakSamePeriod {
		up.LastActivityDate = &day
	}
	if daily > up.LongestDailyStreak {
		up.LongestDailyStreak = daily
	}
	up.WeeklyStreak = weekly
	if wOut != StreakBackdated && wOut != StreakSamePeriod {
		up.LastActivityWeek = &week
	}

	return StreakUpdate{
		Daily:         up.DailyStreak,
		LongestDaily:  up.LongestDailyStreak,
		Weekly:        up.WeeklyStreak,
		DailyOutcome:  dOut,
		WeeklyOutcome: wOut,
	}
}

// civilPtr re-normalizes a stored date; some drivers hand back local times.
func civilPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// StreakTracker maintains daily and weekly streaks on the user aggregate.
type StreakTracker struct {
	runner txRunner
	loc    *time.Location
}

// RecordActivity counts activity at t toward the user's streaks.
func (s *StreakTracker) RecordActivity(ctx context.Context, userID uint, at time.Time) (StreakUpdate, error) {
	var out StreakUpdate
	err := s.runner.runUser(ctx, "record_streak", userID, func(tx *gorm.DB) error {
		up, err := lockUserPoints(tx, userID)
		if err != nil {
			return err
		}
		out = applyStreak(up, at, s.loc)
		return saveAggregate(tx, up)
	})
	return out, err
}
