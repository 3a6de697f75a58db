// Package studyplan asks the external plan generator for a study plan and
// falls back to a local rule based plan whenever the generator cannot answer.
package studyplan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

const (
	SourceGenerator = "generator"
	SourceFallback  = "fallback"
)

var (
	validate = validator.New()
	policy   = bluemonday.StrictPolicy()
)

// Profile is the questionnaire input sent to the generator.
type Profile struct {
	UserID           uint     `json:"user_id"`
	Age              int      `json:"age" validate:"gte=5,lte=120"`
	StudyHoursPerDay float64  `json:"study_hours_per_day" validate:"gte=0,lte=24"`
	StressLevel      int      `json:"stress_level" validate:"gte=1,lte=10"`
	Subjects         []string `json:"subjects" validate:"max=20,dive,max=64"`
	Goal             string   `json:"goal" validate:"max=256"`
}

// Validate checks a profile before it is sent anywhere.
func Validate(p Profile) error {
	return validate.Struct(p)
}

// Recommendation is one actionable suggestion in a plan.
type Recommendation struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
}

// Schedule is the suggested daily rhythm.
type Schedule struct {
	SessionMinutes int `json:"session_minutes"`
	BreakMinutes   int `json:"break_minutes"`
	SessionsPerDay int `json:"sessions_per_day"`
}

// Plan is a generated study plan. Source tells whether the generator or the
// local rules produced it.
type Plan struct {
	UserID          uint             `json:"user_id"`
	GeneratedAt     time.Time        `json:"generated_at"`
	DurationDays    int              `json:"duration_days"`
	UserProfile     Profile          `json:"user_profile"`
	Recommendations []Recommendation `json:"recommendations"`
	FocusAreas      []string         `json:"focus_areas"`
	Schedule        Schedule         `json:"schedule"`
	Source          string           `json:"source"`
	FallbackReason  string           `json:"fallback_reason,omitempty"`
}

// Runner executes the generator command with the payload as its only argument
// and returns stdout.
type Runner func(ctx context.Context, command, payload string) ([]byte, error)

// ExecRunner runs the command as a child process.
func ExecRunner(ctx context.Context, command, payload string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, payload)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// Generator produces study plans.
type Generator struct {
	command string
	timeout time.Duration
	run     Runner
	now     func() time.Time
	log     *zap.Logger
}

// NewGenerator builds a generator for command. An empty command always uses the fallback.
func NewGenerator(command string, timeout time.Duration, log *zap.Logger) *Generator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{command: command, timeout: timeout, run: ExecRunner, now: time.Now, log: log.Named("studyplan")}
}

// WithRunner swaps the process runner.
func (g *Generator) WithRunner(r Runner) *Generator {
	g.run = r
	return g
}

// Generate never fails: any generator problem produces the fallback plan.
func (g *Generator) Generate(ctx context.Context, p Profile) Plan {
	plan, err := g.fromGenerator(ctx, p)
	if err == nil {
		return plan
	}
	g.log.Warn("study plan generator failed, using fallback",
		zap.Uint("user_id", p.UserID),
		zap.String("command", g.command),
		zap.Error(err))
	fb := Fallback(p, g.now())
	fb.FallbackReason = err.Error()
	return fb
}

var errNoCommand = errors.New("no generator command configured")

type generatorReply struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Plan
}

func (g *Generator) fromGenerator(ctx context.Context, p Profile) (Plan, error) {
	if g.command == "" {
		return Plan{}, errNoCommand
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return Plan{}, err
	}

	runCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	out, err := g.run(runCtx, g.command, string(payload))
	if err != nil {
		return Plan{}, fmt.Errorf("run generator: %w", err)
	}

	var reply generatorReply
	if err := json.Unmarshal(bytes.TrimSpace(out), &reply); err != nil {
		return Plan{}, fmt.Errorf("decode generator output: %w", err)
	}
	if reply.Error {
		return Plan{}, fmt.Errorf("generator error: %s", reply.Message)
	}

	plan := reply.Plan
	plan.Source = SourceGenerator
	plan.UserID = p.UserID
	plan.UserProfile = p
	if plan.GeneratedAt.IsZero() {
		plan.GeneratedAt = g.now()
	}
	if plan.DurationDays <= 0 {
		plan.DurationDays = 7
	}
	for i := range plan.Recommendations {
		r := &plan.Recommendations[i]
		r.Title = policy.Sanitize(r.Title)
		r.Description = policy.Sanitize(r.Description)
	}
	for i := range plan.FocusAreas {
		plan.FocusAreas[i] = policy.Sanitize(plan.FocusAreas[i])
	}
	return plan, nil
}
