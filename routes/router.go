package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cppla/studyquest/config"
	"github.com/cppla/studyquest/controllers"
	"github.com/cppla/studyquest/gamification"
	"github.com/cppla/studyquest/middleware"
	"github.com/cppla/studyquest/studyplan"
	"github.com/cppla/studyquest/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(engine *gamification.Engine, planner *studyplan.Generator) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file; fall back to stdout logging
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err != nil {
		gl = utils.Logger
	}
	r.Use(utils.Ginzap(gl, time.RFC3339, true))
	r.Use(utils.RecoveryWithZap(gl, true))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Idempotency-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	gamifyController := controllers.NewGamificationController(engine)
	planController := controllers.NewStudyPlanController(planner, engine)
	statsController := controllers.NewStatsController(engine)

	api := r.Group("/api/v1")
	api.GET("/gamification/leaderboard", middleware.RateLimitMiddleware(), gamifyController.Leaderboard)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimitMiddleware())

	gamify := protected.Group("/gamification")
	gamify.GET("/me", gamifyController.Me)
	gamify.GET("/transactions", gamifyController.Transactions)
	gamify.POST("/activities", gamifyController.RecordActivity)
	gamify.GET("/achievements", gamifyController.Achievements)
	gamify.POST("/achievements/evaluate", gamifyController.EvaluateAchievements)
	gamify.GET("/challenges/today", gamifyController.TodayChallenges)

	protected.POST("/study-plan", planController.Generate)

	admin := protected.Group("/admin")
	admin.Use(middleware.AdminRequired())
	admin.GET("/stats", statsController.GetStats)
	admin.POST("/users/:id/reconcile", statsController.Reconcile)
	admin.POST("/users/:id/challenges/:challengeId/progress", statsController.UpdateChallengeProgress)
	admin.POST("/transactions", statsController.CreateTransaction)

	r.NoRoute(func(ctx *gin.Context) {
		utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
	})

	return r
}
