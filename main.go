package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cppla/studyquest/config"
	"github.com/cppla/studyquest/gamification"
	"github.com/cppla/studyquest/models"
	"github.com/cppla/studyquest/routes"
	"github.com/cppla/studyquest/studyplan"
	"github.com/cppla/studyquest/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	db := config.InitDatabase(models.All()...)

	catalog, err := gamification.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		utils.Sugar.Fatalf("load catalog: %v", err)
	}

	engine := gamification.New(db, gamification.Options{
		ActivityPoints:      cfg.ActivityPoints,
		PerfectScoreBonus:   cfg.PerfectScoreBonus,
		StreakBonusPoints:   cfg.StreakBonusPoints,
		StreakBonusEvery:    cfg.StreakBonusEvery,
		MaxEvaluationRounds: cfg.MaxEvaluationRounds,
		UpdateRetries:       cfg.UpdateRetries,
		RetryBackoff:        time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
		DailyChallengeCount: cfg.DailyChallengeCount,
		ProfileCacheTTL:     time.Duration(cfg.ProfileCacheSec) * time.Second,
		LeaderboardCacheTTL: time.Duration(cfg.LeaderboardCacheSec) * time.Second,
		Logger:              utils.Logger,
		Cache:               utils.NewRedisCache(utils.GetRedis()),
		Catalog:             catalog,
		Location:            cfg.Location(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.SyncCatalog(ctx, catalog); err != nil {
		cancel()
		utils.Sugar.Fatalf("sync catalog: %v", err)
	}
	if _, err := engine.GenerateDailyChallenges(ctx, time.Now()); err != nil {
		utils.Logger.Warn("daily challenge generation failed", zap.Error(err))
	}
	cancel()

	planner := studyplan.NewGenerator(cfg.StudyPlanCommand, time.Duration(cfg.StudyPlanTimeoutSec)*time.Second, utils.Logger)

	r := routes.SetupRouter(engine, planner)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
