package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/studyquest/gamification"
	"github.com/cppla/studyquest/utils"
)

// GamificationController exposes points, levels, achievements and challenges.
type GamificationController struct {
	engine *gamification.Engine
	now    func() time.Time
}

// NewGamificationController creates a new controller instance.
func NewGamificationController(engine *gamification.Engine) *GamificationController {
	return &GamificationController{engine: engine, now: time.Now}
}

type activityRequest struct {
	EventID      string                       `json:"event_id"`
	ActivityType string                       `json:"activity_type" binding:"required"`
	OccurredAt   *time.Time                   `json:"occurred_at"`
	Context      gamification.ActivityContext `json:"context"`
}

// RecordActivity applies an activity reported by the application for the caller.
func (g *GamificationController) RecordActivity(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req activityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40021, "invalid request body")
		return
	}
	ev := gamification.ActivityEvent{
		EventID:      req.EventID,
		UserID:       userID,
		ActivityType: req.ActivityType,
		Context:      req.Context,
	}
	if ev.EventID == "" {
		ev.EventID = ctx.GetHeader("Idempotency-Key")
	}
	if req.OccurredAt != nil {
		// Future timestamps would open tomorrow's streak early.
		if req.OccurredAt.After(g.now().Add(5 * time.Minute)) {
			utils.Error(ctx, http.StatusBadRequest, 40022, "occurred_at is in the future")
			return
		}
		ev.OccurredAt = *req.OccurredAt
	}

	res, err := g.engine.HandleActivity(ctx.Request.Context(), ev)
	if err != nil {
		respondEngineError(ctx, err, 50020, "failed to record activity")
		return
	}
	utils.Success(ctx, res)
}

// Me returns the caller's progression profile.
func (g *GamificationController) Me(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	p, err := g.engine.Profile(ctx.Request.Context(), userID)
	if err != nil {
		respondEngineError(ctx, err, 50021, "failed to load profile")
		return
	}
	utils.Success(ctx, p)
}

// Transactions lists the caller's ledger, newest first.
func (g *GamificationController) Transactions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	items, total, err := g.engine.Transactions(ctx.Request.Context(), userID, page, pageSize)
	if err != nil {
		respondEngineError(ctx, err, 50022, "failed to load transactions")
		return
	}
	utils.SuccessPage(ctx, items, total, page, pageSize)
}

// Achievements lists the catalog with the caller's unlocks and progress.
func (g *GamificationController) Achievements(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	list, err := g.engine.AchievementStatuses(ctx.Request.Context(), userID)
	if err != nil {
		respondEngineError(ctx, err, 50023, "failed to load achievements")
		return
	}
	utils.Success(ctx, list)
}

// EvaluateAchievements re-checks the caller's achievements.
func (g *GamificationController) EvaluateAchievements(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	unlocked, err := g.engine.Evaluate(ctx.Request.Context(), userID)
	if err != nil {
		respondEngineError(ctx, err, 50024, "failed to evaluate achievements")
		return
	}
	if unlocked == nil {
		unlocked = []gamification.AchievementUnlock{}
	}
	utils.Success(ctx, gin.H{"unlocked": unlocked})
}

// TodayChallenges returns today's challenges with the caller's progress.
func (g *GamificationController) TodayChallenges(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	list, err := g.engine.TodayChallenges(ctx.Request.Context(), userID, g.now())
	if err != nil {
		respondEngineError(ctx, err, 50025, "failed to load challenges")
		return
	}
	utils.Success(ctx, list)
}

// Leaderboard is public.
func (g *GamificationController) Leaderboard(ctx *gin.Context) {
	limit, err := strconv.Atoi(ctx.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	board, err := g.engine.Leaderboard(ctx.Request.Context(), limit)
	if err != nil {
		respondEngineError(ctx, err, 50026, "failed to load leaderboard")
		return
	}
	utils.Success(ctx, board)
}
