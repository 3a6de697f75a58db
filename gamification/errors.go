package gamification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when activity targets a user that does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrAchievementNotFound is returned for unknown achievement ids.
	ErrAchievementNotFound = errors.New("achievement not found")
	// ErrChallengeNotFound is returned for unknown or inactive challenges.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrInvalidActivity is returned when an activity event fails validation.
	ErrInvalidActivity = errors.New("invalid activity event")
	// ErrTransient is returned once concurrent-update retries are exhausted.
	ErrTransient = errors.New("transient storage conflict")
)

// isRetryable reports whether err is a lock/serialization conflict worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1213, 1205: // deadlock, lock wait timeout
			return true
		}
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "40001", "40P01", "55P03": // serialization, deadlock, lock_not_available
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"),
		strings.Contains(msg, "sqlite_busy"),
		strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "serialization failure"):
		return true
	}
	return false
}

// txRunner runs a write inside a transaction and retries transient conflicts.
type txRunner struct {
	db      *gorm.DB
	retries int
	backoff time.Duration
	log     *zap.Logger
	// committed runs after a successful runUser commit.
	committed func(ctx context.Context, userID uint)
}

// runUser is run for a write to one user's state.
func (r txRunner) runUser(ctx context.Context, op string, userID uint, fn func(tx *gorm.DB) error) error {
	if err := r.run(ctx, op, fn); err != nil {
		return err
	}
	if r.committed != nil {
		r.committed(ctx, userID)
	}
	return nil
}

func (r txRunner) run(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	attempts := r.retries + 1
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		err = r.db.WithContext(ctx).Transaction(fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		r.log.Warn("gamification write conflict",
			zap.String("op", op),
			zap.Int("attempt", i),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff * time.Duration(i)):
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrTransient, err)
}
