package studyplan

import (
	"math"
	"strings"
	"time"
)

const (
	priorityHigh   = "high"
	priorityMedium = "medium"
	priorityLow    = "low"
)

// Fallback builds a plan from fixed thresholds on age, daily study hours and
// stress level. The same profile always yields the same plan.
func Fallback(p Profile, now time.Time) Plan {
	plan := Plan{
		UserID:       p.UserID,
		GeneratedAt:  now,
		DurationDays: 14,
		UserProfile:  p,
		Source:       SourceFallback,
	}
	highStress := p.StressLevel >= 7

	switch {
	case p.Age < 18:
		plan.Recommendations = append(plan.Recommendations, Recommendation{
			Title:       "Short focused sessions",
			Description: "Study in 25 minute blocks with a 5 minute break between them.",
			Category:    "schedule",
			Priority:    priorityMedium,
		})
	case p.Age <= 25:
		plan.Recommendations = append(plan.Recommendations, Recommendation{
			Title:       "Structured study blocks",
			Description: "Reserve fixed study blocks at the same time every day.",
			Category:    "schedule",
			Priority:    priorityMedium,
		})
	default:
		plan.Recommendations = append(plan.Recommendations, Recommendation{
			Title:       "Flexible schedule",
			Description: "Fit study sessions around work and family commitments, even on busy days.",
			Category:    "schedule",
			Priority:    priorityMedium,
		})
	}

	switch {
	case p.StudyHoursPerDay < 1:
		plan.Recommendations = append(plan.Recommendations, Recommendation{
			Title:       "Build the habit",
			Description: "Increase study time gradually until you reach one hour a day.",
			Category:    "habits",
			Priority:    priorityHigh,
		})
	case p.StudyHoursPerDay > 6:
		plan.Recommendations = append(plan.Recommendations, Recommendation{
			Title:       "Avoid burnout",
			Description: "Cap study time at six hours a day and protect your sleep.",
			Category:    "wellbeing",
			Priority:    priorityHigh,
		})
	default:
		plan.Recommendations = append(plan.Recommendations, Recommendation{
			Title:       "Keep it consistent",
			Description: "Your daily study time is healthy; keep the streak going.",
			Category:    "habits",
			Priority:    priorityLow,
		})
	}

	switch {
	case highStress:
		plan.DurationDays = 7
		plan.Recommendations = append(plan.Recommendations, Recommendation{
			Title:       "Manage stress",
			Description: "Take regular breaks, try breathing exercises and talk to someone you trust.",
			Category:    "wellbeing",
			Priority:    priorityHigh,
		})
	case p.StressLevel >= 4:
		plan.Recommendations = append(plan.Recommendations, Recommendation{
			Title:       "Balance your load",
			Description: "Alternate difficult and easy subjects to keep stress in check.",
			Category:    "wellbeing",
			Priority:    priorityMedium,
		})
	default:
		plan.Recommendations = append(plan.Recommendations, Recommendation{
			Title:       "Challenge yourself",
			Description: "Add a harder quiz or topic each week.",
			Category:    "growth",
			Priority:    priorityLow,
		})
	}

	for _, s := range p.Subjects {
		s = strings.TrimSpace(policy.Sanitize(s))
		if s != "" {
			plan.FocusAreas = append(plan.FocusAreas, s)
		}
	}
	if len(plan.FocusAreas) == 0 {
		plan.FocusAreas = []string{"time management"}
	}
	if highStress {
		plan.FocusAreas = append(plan.FocusAreas, "stress management")
	}

	plan.Schedule = fallbackSchedule(p, highStress)
	return plan
}

func fallbackSchedule(p Profile, highStress bool) Schedule {
	s := Schedule{SessionMinutes: 45, BreakMinutes: 10}
	if p.Age < 18 || highStress {
		s = Schedule{SessionMinutes: 25, BreakMinutes: 5}
	}
	hours := math.Min(math.Max(p.StudyHoursPerDay, 1), 6)
	s.SessionsPerDay = int(math.Ceil(hours * 60 / float64(s.SessionMinutes)))
	return s
}
