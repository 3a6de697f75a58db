package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/studyquest/gamification"
	"github.com/cppla/studyquest/middleware"
	"github.com/cppla/studyquest/models"
	"github.com/cppla/studyquest/utils"
)

// StatsController serves administrator analytics and ledger maintenance.
type StatsController struct {
	engine *gamification.Engine
}

// NewStatsController creates a new StatsController instance.
func NewStatsController(engine *gamification.Engine) *StatsController {
	return &StatsController{engine: engine}
}

// GetStats returns service-wide gamification counters.
func (s *StatsController) GetStats(ctx *gin.Context) {
	utils.Success(ctx, s.engine.Stats(ctx.Request.Context()))
}

// Reconcile rebuilds a user's aggregate from the ledger.
func (s *StatsController) Reconcile(ctx *gin.Context) {
	userID, ok := parseUintParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid user id")
		return
	}
	up, err := s.engine.Reconcile(ctx.Request.Context(), userID)
	if err != nil {
		respondEngineError(ctx, err, 50027, "failed to reconcile points")
		return
	}
	utils.Success(ctx, up)
}

type manualTransactionRequest struct {
	UserID       uint                   `json:"user_id" binding:"required"`
	Points       int                    `json:"points" binding:"required"`
	ActivityType string                 `json:"activity_type" binding:"max=64"`
	Description  string                 `json:"description" binding:"required,max=255"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// CreateTransaction records a manual award or deduction.
func (s *StatsController) CreateTransaction(ctx *gin.Context) {
	var req manualTransactionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid request body")
		return
	}
	if req.Metadata == nil {
		req.Metadata = map[string]interface{}{}
	}
	req.Metadata["granted_by"] = ctx.GetString(middleware.ContextUsernameKey)
	if req.ActivityType == "" {
		req.ActivityType = models.ActivityManualAdjustment
	}

	entry, unlocked, err := s.engine.RecordTransaction(ctx.Request.Context(), req.UserID, req.ActivityType, req.Points, req.Description, req.Metadata)
	if err != nil {
		respondEngineError(ctx, err, 50028, "failed to record transaction")
		return
	}
	utils.Success(ctx, gin.H{"transaction": entry, "unlocked": unlocked})
}

type challengeProgressRequest struct {
	Progress models.ChallengeProgress `json:"progress"`
}

// UpdateChallengeProgress overwrites reported counters of one user's challenge.
func (s *StatsController) UpdateChallengeProgress(ctx *gin.Context) {
	userID, ok := parseUintParam(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40023, "invalid user id")
		return
	}
	challengeID, ok := parseUintParam(ctx, "challengeId")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40025, "invalid challenge id")
		return
	}
	var req challengeProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40024, "invalid request body")
		return
	}
	res, err := s.engine.UpdateChallengeProgress(ctx.Request.Context(), userID, challengeID, req.Progress)
	if err != nil {
		respondEngineError(ctx, err, 50029, "failed to update challenge progress")
		return
	}
	utils.Success(ctx, res)
}
