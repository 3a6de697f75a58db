package gamification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/studyquest/models"
)

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	ActivityPoints      map[string]int
	PerfectScoreBonus   int
	StreakBonusPoints   int
	StreakBonusEvery    int
	MaxEvaluationRounds int
	UpdateRetries       int
	RetryBackoff        time.Duration
	DailyChallengeCount int
	ProfileCacheTTL     time.Duration
	LeaderboardCacheTTL time.Duration

	// Location decides where calendar days start. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
	Logger   *zap.Logger
	Cache    Cache
	Stats    StatsSource
	Catalog  *Catalog
}

// DefaultActivityPoints are the base awards per activity type.
func DefaultActivityPoints() map[string]int {
	return map[string]int{
		models.ActivityQuizCompleted:   25,
		models.ActivityHabitsCompleted: 20,
		models.ActivityStudySession:    10,
		models.ActivityNoteCreated:     5,
		models.ActivityDailyLogin:      5,
	}
}

func (o *Options) withDefaults() {
	if o.ActivityPoints == nil {
		o.ActivityPoints = DefaultActivityPoints()
	}
	if o.MaxEvaluationRounds <= 0 {
		o.MaxEvaluationRounds = 10
	}
	if o.UpdateRetries < 0 {
		o.UpdateRetries = 0
	}
	if o.DailyChallengeCount <= 0 {
		o.DailyChallengeCount = 3
	}
	if o.ProfileCacheTTL <= 0 {
		o.ProfileCacheTTL = 10 * time.Minute
	}
	if o.LeaderboardCacheTTL <= 0 {
		o.LeaderboardCacheTTL = time.Minute
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Cache == nil {
		o.Cache = NopCache{}
	}
	if o.Stats == nil {
		o.Stats = EventLogStats{}
	}
}

// Engine wires the ledger, streaks, achievements and challenges together.
type Engine struct {
	db      *gorm.DB
	opts    Options
	log     *zap.Logger
	cache   Cache
	catalog *Catalog
	sf      singleflight.Group

	// The trackers drop the user's cached profile after each committed write.
	Ledger       *Ledger
	Achievements *AchievementEvaluator
	Challenges   *ChallengeTracker
	Streaks      *StreakTracker
}

// New builds an engine over db.
func New(db *gorm.DB, opts Options) *Engine {
	opts.withDefaults()
	log := opts.Logger.Named("gamification")
	e := &Engine{
		db:      db,
		opts:    opts,
		log:     log,
		cache:   opts.Cache,
		catalog: opts.Catalog,
	}
	runner := txRunner{db: db, retries: opts.UpdateRetries, backoff: opts.RetryBackoff, log: log, committed: e.invalidateUser}
	e.Ledger = &Ledger{runner: runner, log: log}
	e.Achievements = &AchievementEvaluator{
		runner:    runner,
		ledger:    e.Ledger,
		stats:     opts.Stats,
		maxRounds: opts.MaxEvaluationRounds,
		now:       opts.Now,
		log:       log,
	}
	e.Challenges = &ChallengeTracker{runner: runner, ledger: e.Ledger, now: opts.Now, log: log}
	e.Streaks = &StreakTracker{runner: runner, loc: opts.Location}
	return e
}

// ActivityContext carries the activity details that feed bonuses and stats.
type ActivityContext struct {
	Percentage      float64 `json:"percentage" validate:"gte=0,lte=100"`
	Score           int     `json:"score" validate:"gte=0"`
	TotalQuestions  int     `json:"total_questions" validate:"gte=0"`
	DurationMinutes int     `json:"duration_minutes" validate:"gte=0,lte=1440"`
	Subject         string  `json:"subject" validate:"max=128"`
}

// ActivityEvent is one activity reported by the application.
type ActivityEvent struct {
	EventID      string          `json:"event_id" validate:"max=64"`
	UserID       uint            `json:"user_id" validate:"required"`
	ActivityType string          `json:"activity_type" validate:"required,max=64"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Context      ActivityContext `json:"context"`
}

// ActivityResult summarizes everything an activity caused.
type ActivityResult struct {
	EventID             string                    `json:"event_id"`
	Duplicate           bool                      `json:"duplicate"`
	Transactions        []models.PointTransaction `json:"transactions"`
	PointsEarned        int                       `json:"points_earned"`
	TotalPoints         int                       `json:"total_points"`
	Level               LevelChange               `json:"level"`
	LeveledUp           bool                      `json:"leveled_up"`
	Streak              StreakUpdate              `json:"streak"`
	Unlocked            []AchievementUnlock       `json:"unlocked_achievements"`
	CompletedChallenges []ChallengeUpdate         `json:"completed_challenges"`
}

// HandleActivity applies one activity event atomically: base points, bonuses,
// streaks, challenge progress and achievement unlocks. Redelivering an event
// with the same EventID is a no-op.
func (e *Engine) HandleActivity(ctx context.Context, ev ActivityEvent) (ActivityResult, error) {
	if err := validate.Struct(ev); err != nil {
		return ActivityResult{}, fmt.Errorf("%w: %v", ErrInvalidActivity, err)
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.opts.Now()
	}

	var res ActivityResult
	err := e.Ledger.runner.run(ctx, "handle_activity", func(tx *gorm.DB) error {
		res = ActivityResult{EventID: ev.EventID}
		up, err := lockUserPoints(tx, ev.UserID)
		if err != nil {
			return err
		}

		day := DayKey(ev.OccurredAt, e.opts.Location)
		row := models.ActivityEvent{
			EventID:         ev.EventID,
			UserID:          ev.UserID,
			ActivityType:    ev.ActivityType,
			ActivityDay:     day,
			OccurredAt:      ev.OccurredAt,
			Percentage:      ev.Context.Percentage,
			Score:           ev.Context.Score,
			TotalQuestions:  ev.Context.TotalQuestions,
			DurationMinutes: ev.Context.DurationMinutes,
			Subject:         descriptionPolicy.Sanitize(ev.Context.Subject),
		}
		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if ins.Error != nil {
			return fmt.Errorf("insert activity event: %w", ins.Error)
		}
		if ins.RowsAffected == 0 {
			res.Duplicate = true
			res.TotalPoints = up.TotalPoints
			res.Level = LevelChange{From: up.CurrentLevel, To: up.CurrentLevel}
			return nil
		}

		res.Level.From = up.CurrentLevel
		startTotal := up.TotalPoints
		award := func(activity string, points int, desc string, meta map[string]interface{}) error {
			if points == 0 {
				return nil
			}
			t, err := e.Ledger.record(tx, up, activity, points, desc, meta)
			if err != nil {
				return err
			}
			res.Transactions = append(res.Transactions, t)
			return nil
		}

		meta := map[string]interface{}{"event_id": ev.EventID}
		if ev.Context.Subject != "" {
			meta["subject"] = ev.Context.Subject
		}
		if err := award(ev.ActivityType, e.opts.ActivityPoints[ev.ActivityType], activityDescription(ev), meta); err != nil {
			return err
		}
		if ev.ActivityType == models.ActivityQuizCompleted && ev.Context.Percentage >= 100 {
			if err := award(models.ActivityPerfectScore, e.opts.PerfectScoreBonus, "Perfect score bonus", meta); err != nil {
				return err
			}
		}

		res.Streak = applyStreak(up, ev.OccurredAt, e.opts.Location)
		if err := saveAggregate(tx, up); err != nil {
			return err
		}
		grew := res.Streak.DailyOutcome == StreakExtended || res.Streak.DailyOutcome == StreakStarted
		if grew && e.opts.StreakBonusEvery > 0 && up.DailyStreak%e.opts.StreakBonusEvery == 0 {
			if err := award(models.ActivityStreakBonus, e.opts.StreakBonusPoints,
				fmt.Sprintf("%d day streak bonus", up.DailyStreak),
				map[string]interface{}{"daily_streak": up.DailyStreak}); err != nil {
				return err
			}
		}

		// Only today's challenges move; late events must not settle past days.
		if day == DayKey(e.opts.Now(), e.opts.Location) {
			completed, err := e.progressChallenges(tx, up, day)
			if err != nil {
				return err
			}
			res.CompletedChallenges = completed
		}

		unlocked, err := e.Achievements.evaluate(tx, up)
		if err != nil {
			return err
		}
		res.Unlocked = unlocked

		res.PointsEarned = up.TotalPoints - startTotal
		res.TotalPoints = up.TotalPoints
		res.Level.To = up.CurrentLevel
		res.LeveledUp = res.Level.LeveledUp()
		res.Streak.Daily, res.Streak.Weekly, res.Streak.LongestDaily = up.DailyStreak, up.WeeklyStreak, up.LongestDailyStreak
		return nil
	})
	if err != nil {
		return ActivityResult{}, err
	}

	if !res.Duplicate {
		e.invalidateUser(ctx, ev.UserID)
		e.log.Info("activity handled",
			zap.String("event_id", res.EventID),
			zap.Uint("user_id", ev.UserID),
			zap.String("activity_type", ev.ActivityType),
			zap.Int("points", res.PointsEarned),
			zap.Int("level", res.Level.To),
			zap.Int("unlocked", len(res.Unlocked)),
		)
	}
	return res, nil
}

// progressChallenges pushes the day's aggregates into every active challenge of
// that day and returns the ones completed by this write. Reward points of a
// completed challenge are part of the returned update, not of the caller's list.
func (e *Engine) progressChallenges(tx *gorm.DB, up *models.UserPoints, day string) ([]ChallengeUpdate, error) {
	var challenges []models.DailyChallenge
	if err := tx.Where("challenge_date = ? AND is_active = ?", day, true).Order("id ASC").Find(&challenges).Error; err != nil {
		return nil, fmt.Errorf("load day challenges: %w", err)
	}
	if len(challenges) == 0 {
		return nil, nil
	}
	counts, err := e.opts.Stats.Day(tx, up.UserID, day)
	if err != nil {
		return nil, fmt.Errorf("load day stats: %w", err)
	}
	delta := progressFromDay(counts, up.DailyStreak)

	var completed []ChallengeUpdate
	for i := range challenges {
		u, err := e.Challenges.update(tx, up, &challenges[i], delta)
		if err != nil {
			return nil, err
		}
		if u.CompletedNow {
			completed = append(completed, u)
		}
	}
	return completed, nil
}

// RecordTransaction is a manual ledger entry (admin awards and deductions).
// Achievements are re-evaluated in the same transaction.
func (e *Engine) RecordTransaction(ctx context.Context, userID uint, activityType string, points int, description string, metadata map[string]interface{}) (models.PointTransaction, []AchievementUnlock, error) {
	if activityType == "" {
		activityType = models.ActivityManualAdjustment
	}
	var (
		entry    models.PointTransaction
		unlocked []AchievementUnlock
	)
	err := e.Ledger.runner.run(ctx, "manual_transaction", func(tx *gorm.DB) error {
		up, err := lockUserPoints(tx, userID)
		if err != nil {
			return err
		}
		entry, err = e.Ledger.record(tx, up, activityType, points, description, metadata)
		if err != nil {
			return err
		}
		unlocked, err = e.Achievements.evaluate(tx, up)
		return err
	})
	if err != nil {
		return models.PointTransaction{}, nil, err
	}
	e.invalidateUser(ctx, userID)
	return entry, unlocked, nil
}

// UpdateChallengeProgress merges reported counters into one challenge and
// re-evaluates achievements when the completion reward lands.
func (e *Engine) UpdateChallengeProgress(ctx context.Context, userID, challengeID uint, delta models.ChallengeProgress) (ChallengeUpdate, error) {
	var out ChallengeUpdate
	err := e.Ledger.runner.run(ctx, "update_challenge_progress", func(tx *gorm.DB) error {
		up, err := lockUserPoints(tx, userID)
		if err != nil {
			return err
		}
		ch, err := loadActiveChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		out, err = e.Challenges.update(tx, up, ch, delta)
		if err != nil || !out.CompletedNow {
			return err
		}
		_, err = e.Achievements.evaluate(tx, up)
		return err
	})
	if err != nil {
		return ChallengeUpdate{}, err
	}
	if out.CompletedNow {
		e.invalidateUser(ctx, userID)
	}
	return out, nil
}

// Evaluate runs achievement evaluation for a user.
func (e *Engine) Evaluate(ctx context.Context, userID uint) ([]AchievementUnlock, error) {
	return e.Achievements.Evaluate(ctx, userID)
}

// Reconcile repairs a user's aggregate from the ledger.
func (e *Engine) Reconcile(ctx context.Context, userID uint) (models.UserPoints, error) {
	return e.Ledger.Reconcile(ctx, userID)
}

func activityDescription(ev ActivityEvent) string {
	switch ev.ActivityType {
	case models.ActivityQuizCompleted:
		if ev.Context.Subject != "" {
			return fmt.Sprintf("Completed %s quiz (%.0f%%)", ev.Context.Subject, ev.Context.Percentage)
		}
		return fmt.Sprintf("Completed quiz (%.0f%%)", ev.Context.Percentage)
	case models.ActivityHabitsCompleted:
		return "Completed study habits questionnaire"
	case models.ActivityStudySession:
		return fmt.Sprintf("Studied for %d minutes", ev.Context.DurationMinutes)
	case models.ActivityNoteCreated:
		return "Created a note"
	case models.ActivityDailyLogin:
		return "Daily login"
	default:
		return ev.ActivityType
	}
}
