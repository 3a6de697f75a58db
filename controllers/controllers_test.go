package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/studyquest/config"
	"github.com/cppla/studyquest/gamification"
	"github.com/cppla/studyquest/middleware"
	"github.com/cppla/studyquest/models"
	"github.com/cppla/studyquest/studyplan"
	"github.com/cppla/studyquest/utils"
)

const testSecret = "controller-secret"

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	db     *gorm.DB
	engine *gamification.Engine
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.Set(config.AppConfig{JWTSecret: testSecret, AdminUsernames: []string{"root"}, RateLimitPerMinute: 1000})

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, config.Migrate(db, models.All()...))

	engine := gamification.New(db, gamification.Options{RetryBackoff: time.Millisecond})
	catalog, err := gamification.LoadCatalog("")
	require.NoError(t, err)
	require.NoError(t, engine.SyncCatalog(context.Background(), catalog))

	planner := studyplan.NewGenerator("", time.Second, nil)
	gc := NewGamificationController(engine)
	sc := NewStatsController(engine)
	pc := NewStudyPlanController(planner, engine)

	r := gin.New()
	r.GET("/leaderboard", gc.Leaderboard)
	auth := r.Group("", middleware.AuthRequired())
	auth.GET("/me", gc.Me)
	auth.GET("/transactions", gc.Transactions)
	auth.POST("/activities", gc.RecordActivity)
	auth.GET("/achievements", gc.Achievements)
	auth.GET("/challenges/today", gc.TodayChallenges)
	auth.POST("/study-plan", pc.Generate)
	admin := auth.Group("/admin", middleware.AdminRequired())
	admin.GET("/stats", sc.GetStats)
	admin.POST("/transactions", sc.CreateTransaction)
	admin.POST("/users/:id/reconcile", sc.Reconcile)

	return &fixture{db: db, engine: engine, router: r}
}

func (f *fixture) user(t *testing.T, name string) (uint, string) {
	t.Helper()
	u := models.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, f.db.Create(&u).Error)
	tok, err := utils.GenerateToken(testSecret, u.ID, name, time.Hour)
	require.NoError(t, err)
	return u.ID, "Bearer " + tok
}

func (f *fixture) call(t *testing.T, method, path, auth string, body any, headers ...string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestRecordActivityIsIdempotent(t *testing.T) {
	f := newFixture(t)
	_, tok := f.user(t, "ada")

	body := gin.H{"activity_type": "quiz_completed", "context": gin.H{"percentage": 80}}
	status, env := f.call(t, http.MethodPost, "/activities", tok, body, "Idempotency-Key", "evt-1")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, 0, env.Code)

	var first gamification.ActivityResult
	require.NoError(t, json.Unmarshal(env.Data, &first))
	require.Equal(t, "evt-1", first.EventID)
	require.False(t, first.Duplicate)
	require.NotEmpty(t, first.Transactions)
	require.Equal(t, models.ActivityQuizCompleted, first.Transactions[0].ActivityType)
	require.GreaterOrEqual(t, first.TotalPoints, 25)

	status, env = f.call(t, http.MethodPost, "/activities", tok, body, "Idempotency-Key", "evt-1")
	require.Equal(t, http.StatusOK, status)
	var second gamification.ActivityResult
	require.NoError(t, json.Unmarshal(env.Data, &second))
	require.True(t, second.Duplicate)
	require.Equal(t, first.TotalPoints, second.TotalPoints)

	status, env = f.call(t, http.MethodGet, "/me", tok, nil)
	require.Equal(t, http.StatusOK, status)
	var profile gamification.Profile
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	require.Equal(t, first.TotalPoints, profile.TotalPoints)
	require.Equal(t, 1, profile.DailyStreak)
}

func TestRecordActivityValidation(t *testing.T) {
	f := newFixture(t)
	_, tok := f.user(t, "ada")

	status, env := f.call(t, http.MethodPost, "/activities", tok, gin.H{})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 40021, env.Code)

	future := time.Now().Add(time.Hour)
	status, env = f.call(t, http.MethodPost, "/activities", tok, gin.H{"activity_type": "quiz_completed", "occurred_at": future})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 40022, env.Code)

	status, env = f.call(t, http.MethodPost, "/activities", tok, gin.H{"activity_type": "quiz_completed", "context": gin.H{"percentage": 150}})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 40020, env.Code)
}

func TestUnknownUserIsNotFound(t *testing.T) {
	f := newFixture(t)
	tok, err := utils.GenerateToken(testSecret, 999, "ghost", time.Hour)
	require.NoError(t, err)

	status, env := f.call(t, http.MethodGet, "/me", "Bearer "+tok, nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, 40410, env.Code)
}

func TestTransactionsPagination(t *testing.T) {
	f := newFixture(t)
	_, tok := f.user(t, "ada")
	for i := 0; i < 3; i++ {
		status, _ := f.call(t, http.MethodPost, "/activities", tok, gin.H{"activity_type": "note_created"})
		require.Equal(t, http.StatusOK, status)
	}

	status, env := f.call(t, http.MethodGet, "/transactions?page=1&page_size=2", tok, nil)
	require.Equal(t, http.StatusOK, status)
	var page struct {
		Items    []models.PointTransaction `json:"items"`
		Total    int64                     `json:"total"`
		PageSize int                       `json:"page_size"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 2)
	require.GreaterOrEqual(t, page.Total, int64(3))
	require.Equal(t, 2, page.PageSize)
}

func TestAchievementsAndChallenges(t *testing.T) {
	f := newFixture(t)
	_, tok := f.user(t, "ada")

	status, env := f.call(t, http.MethodGet, "/achievements", tok, nil)
	require.Equal(t, http.StatusOK, status)
	var list []gamification.AchievementStatus
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.NotEmpty(t, list)
	for _, a := range list {
		require.False(t, a.Unlocked)
	}

	status, env = f.call(t, http.MethodGet, "/challenges/today", tok, nil)
	require.Equal(t, http.StatusOK, status)
	var challenges []gamification.ChallengeStatus
	require.NoError(t, json.Unmarshal(env.Data, &challenges))
	require.Len(t, challenges, 3)
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t)
	uid, userTok := f.user(t, "ada")
	_, adminTok := f.user(t, "root")

	status, env := f.call(t, http.MethodGet, "/admin/stats", userTok, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, 40301, env.Code)

	grant := gin.H{"user_id": uid, "points": 120, "description": "<b>bonus</b> for help"}
	status, env = f.call(t, http.MethodPost, "/admin/transactions", adminTok, grant)
	require.Equal(t, http.StatusOK, status, string(env.Data))
	var created struct {
		Transaction models.PointTransaction `json:"transaction"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, models.ActivityManualAdjustment, created.Transaction.ActivityType)
	require.Equal(t, "bonus for help", created.Transaction.Description)

	status, env = f.call(t, http.MethodPost, "/admin/transactions", adminTok, gin.H{"user_id": 999, "points": 5, "description": "x"})
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, 40410, env.Code)

	status, env = f.call(t, http.MethodPost, fmt.Sprintf("/admin/users/%d/reconcile", uid), adminTok, nil)
	require.Equal(t, http.StatusOK, status)
	var up models.UserPoints
	require.NoError(t, json.Unmarshal(env.Data, &up))
	require.Equal(t, 120, up.TotalPoints)

	status, env = f.call(t, http.MethodPost, "/admin/users/abc/reconcile", adminTok, nil)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 40023, env.Code)

	status, env = f.call(t, http.MethodGet, "/admin/stats", adminTok, nil)
	require.Equal(t, http.StatusOK, status)
	var stats gamification.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	require.Equal(t, int64(1), stats.UsersWithPoints)
}

func TestStudyPlanFallsBackAndRewards(t *testing.T) {
	f := newFixture(t)
	_, tok := f.user(t, "ada")

	body := gin.H{"age": 20, "study_hours_per_day": 2, "stress_level": 8, "subjects": []string{"math"}}
	status, env := f.call(t, http.MethodPost, "/study-plan", tok, body)
	require.Equal(t, http.StatusOK, status)
	var out struct {
		Plan   studyplan.Plan               `json:"plan"`
		Reward *gamification.ActivityResult `json:"reward"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, "fallback", out.Plan.Source)
	require.Equal(t, 7, out.Plan.DurationDays)
	require.NotNil(t, out.Reward)
	require.Equal(t, models.ActivityHabitsCompleted, out.Reward.Transactions[0].ActivityType)

	status, env = f.call(t, http.MethodPost, "/study-plan", tok, gin.H{"age": 1, "stress_level": 5})
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, 40031, env.Code)
}

func TestLeaderboardIsPublic(t *testing.T) {
	f := newFixture(t)
	_, tok := f.user(t, "ada")
	status, _ := f.call(t, http.MethodPost, "/activities", tok, gin.H{"activity_type": "daily_login"})
	require.Equal(t, http.StatusOK, status)

	status, env := f.call(t, http.MethodGet, "/leaderboard?limit=5", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(env.Data), `"ada"`)
}

func TestParsePagination(t *testing.T) {
	page, size := parsePagination("", "")
	require.Equal(t, 1, page)
	require.Equal(t, 20, size)

	page, size = parsePagination("3", "500")
	require.Equal(t, 3, page)
	require.Equal(t, 20, size)
}
