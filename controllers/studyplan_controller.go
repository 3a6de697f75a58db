package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/studyquest/gamification"
	"github.com/cppla/studyquest/models"
	"github.com/cppla/studyquest/studyplan"
	"github.com/cppla/studyquest/utils"
)

// StudyPlanController turns the habits questionnaire into a study plan.
type StudyPlanController struct {
	generator *studyplan.Generator
	engine    *gamification.Engine
}

// NewStudyPlanController creates a new controller instance.
func NewStudyPlanController(generator *studyplan.Generator, engine *gamification.Engine) *StudyPlanController {
	return &StudyPlanController{generator: generator, engine: engine}
}

// Generate builds a plan for the caller and credits the completed questionnaire.
// A failing reward does not withhold the plan.
func (s *StudyPlanController) Generate(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var profile studyplan.Profile
	if err := ctx.ShouldBindJSON(&profile); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request body")
		return
	}
	profile.UserID = userID
	profile.Goal = utils.SanitizeText(profile.Goal)
	if err := studyplan.Validate(profile); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40031, err.Error())
		return
	}

	plan := s.generator.Generate(ctx.Request.Context(), profile)

	var reward *gamification.ActivityResult
	res, err := s.engine.HandleActivity(ctx.Request.Context(), gamification.ActivityEvent{
		EventID:      ctx.GetHeader("Idempotency-Key"),
		UserID:       userID,
		ActivityType: models.ActivityHabitsCompleted,
	})
	if err != nil {
		utils.Sugar.Warnf("habits reward failed user=%d err=%v", userID, err)
	} else {
		reward = &res
	}

	utils.Success(ctx, gin.H{"plan": plan, "reward": reward})
}
