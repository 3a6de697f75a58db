package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/cppla/studyquest/gamification"
	"github.com/cppla/studyquest/middleware"
	"github.com/cppla/studyquest/utils"
)

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 20
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}

func parseUintParam(ctx *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return uint(v), true
}

func getUserID(ctx *gin.Context) (uint, bool) {
	value, exists := ctx.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		return uint(v), true
	case int64:
		return uint(v), true
	case float64:
		return uint(v), true
	default:
		return 0, false
	}
}

// respondEngineError maps engine sentinel errors to status and business codes.
// code is used for unexpected failures.
func respondEngineError(ctx *gin.Context, err error, code int, message string) {
	switch {
	case errors.Is(err, gamification.ErrInvalidActivity):
		utils.Error(ctx, http.StatusBadRequest, 40020, err.Error())
	case errors.Is(err, gamification.ErrUserNotFound):
		utils.Error(ctx, http.StatusNotFound, 40410, "user not found")
	case errors.Is(err, gamification.ErrAchievementNotFound):
		utils.Error(ctx, http.StatusNotFound, 40411, "achievement not found")
	case errors.Is(err, gamification.ErrChallengeNotFound):
		utils.Error(ctx, http.StatusNotFound, 40412, "challenge not found")
	case errors.Is(err, gamification.ErrTransient):
		utils.Sugar.Warnf("%s: %v", message, err)
		utils.Error(ctx, http.StatusServiceUnavailable, 50310, "busy, please retry")
	default:
		utils.Sugar.Errorf("%s: %v", message, err)
		utils.Error(ctx, http.StatusInternalServerError, code, message)
	}
}
