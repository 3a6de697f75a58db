package studyplan

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

func newTestGenerator(r Runner) *Generator {
	g := NewGenerator("run_python.bat", time.Second, nil).WithRunner(r)
	g.now = func() time.Time { return fixedNow }
	return g
}

func TestGenerateUsesGeneratorOutput(t *testing.T) {
	var gotCommand, gotPayload string
	g := newTestGenerator(func(ctx context.Context, command, payload string) ([]byte, error) {
		_, hasDeadline := ctx.Deadline()
		require.True(t, hasDeadline)
		gotCommand, gotPayload = command, payload
		return []byte(`{"duration_days": 10, "recommendations": [{"title": "<b>Review</b>", "description": "Flashcards", "priority": "high"}], "focus_areas": ["Algebra"]}`), nil
	})

	p := Profile{UserID: 3, Age: 20, StudyHoursPerDay: 2, StressLevel: 5, Subjects: []string{"Algebra"}}
	plan := g.Generate(context.Background(), p)

	require.Equal(t, "run_python.bat", gotCommand)
	var sent Profile
	require.NoError(t, json.Unmarshal([]byte(gotPayload), &sent))
	require.Equal(t, p, sent)

	require.Equal(t, SourceGenerator, plan.Source)
	require.Equal(t, uint(3), plan.UserID)
	require.Equal(t, 10, plan.DurationDays)
	require.Equal(t, fixedNow, plan.GeneratedAt)
	require.Equal(t, "Review", plan.Recommendations[0].Title)
	require.Equal(t, []string{"Algebra"}, plan.FocusAreas)
}

func TestGenerateFallsBack(t *testing.T) {
	cases := map[string]Runner{
		"process error": func(context.Context, string, string) ([]byte, error) {
			return nil, errors.New("exit status 1")
		},
		"not json": func(context.Context, string, string) ([]byte, error) {
			return []byte("Traceback (most recent call last):"), nil
		},
		"error flag": func(context.Context, string, string) ([]byte, error) {
			return []byte(`{"error": true, "message": "model not loaded"}`), nil
		},
		"timeout": func(ctx context.Context, _, _ string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	p := Profile{UserID: 9, Age: 30, StudyHoursPerDay: 3, StressLevel: 2}
	want := Fallback(p, fixedNow)

	for name, r := range cases {
		t.Run(name, func(t *testing.T) {
			g := newTestGenerator(r)
			g.timeout = 20 * time.Millisecond
			plan := g.Generate(context.Background(), p)
			require.Equal(t, SourceFallback, plan.Source)
			require.NotEmpty(t, plan.FallbackReason)
			plan.FallbackReason = ""
			require.Equal(t, want, plan)
		})
	}
}

func TestGenerateWithoutCommand(t *testing.T) {
	g := NewGenerator("", time.Second, nil)
	plan := g.Generate(context.Background(), Profile{Age: 16, StudyHoursPerDay: 1, StressLevel: 3})
	require.Equal(t, SourceFallback, plan.Source)
}

func TestFallbackRules(t *testing.T) {
	young := Fallback(Profile{Age: 15, StudyHoursPerDay: 0.5, StressLevel: 8, Subjects: []string{"Physics", " "}}, fixedNow)
	require.Equal(t, 7, young.DurationDays)
	require.Equal(t, "Short focused sessions", young.Recommendations[0].Title)
	require.Equal(t, "Build the habit", young.Recommendations[1].Title)
	require.Equal(t, "Manage stress", young.Recommendations[2].Title)
	require.Equal(t, []string{"Physics", "stress management"}, young.FocusAreas)
	require.Equal(t, Schedule{SessionMinutes: 25, BreakMinutes: 5, SessionsPerDay: 3}, young.Schedule)

	adult := Fallback(Profile{Age: 40, StudyHoursPerDay: 8, StressLevel: 5}, fixedNow)
	require.Equal(t, 14, adult.DurationDays)
	require.Equal(t, "Flexible schedule", adult.Recommendations[0].Title)
	require.Equal(t, "Avoid burnout", adult.Recommendations[1].Title)
	require.Equal(t, "Balance your load", adult.Recommendations[2].Title)
	require.Equal(t, []string{"time management"}, adult.FocusAreas)
	require.Equal(t, Schedule{SessionMinutes: 45, BreakMinutes: 10, SessionsPerDay: 8}, adult.Schedule)

	require.Equal(t, adult, Fallback(Profile{Age: 40, StudyHoursPerDay: 8, StressLevel: 5}, fixedNow))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(Profile{Age: 20, StudyHoursPerDay: 2, StressLevel: 5}))
	require.Error(t, Validate(Profile{Age: 20, StudyHoursPerDay: 30, StressLevel: 5}))
	require.Error(t, Validate(Profile{Age: 20, StudyHoursPerDay: 2, StressLevel: 0}))
}
