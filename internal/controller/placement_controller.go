package controller

import (
	"errors"
	"lingo_edu_backend/internal/service"
	"lingo_edu_backend/internal/util"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type PlacementController struct {
	Service *service.PlacementService
}

func NewPlacementController(svc *service.PlacementService) *PlacementController {
	return &PlacementController{Service: svc}
}

// @Summary 开始定级测试
// @Tags 定级测试
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /placement/start [post]
func (c *PlacementController) Start(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	a, err := c.Service.Start(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{"assessmentId": a.ID})
}

type NextQuestionRequest struct {
	AssessmentID string `json:"assessmentId" binding:"required"`
	Answer       string `json:"answer"`
}

// @Summary 获取下一题或提交答案
// @Description 不带answer时幂等返回当前待答题；带answer时判分并推进，答满后返回最终成绩
// @Tags 定级测试
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param body body NextQuestionRequest true "测试ID与可选答案"
// @Success 200 {object} util.Response
// @Router /placement/next [post]
func (c *PlacementController) Next(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req NextQuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, "assessmentId is required")
		return
	}

	result, err := c.Service.Advance(ctx.Request.Context(), req.AssessmentID, user.UserID, req.Answer)
	if err != nil {
		switch {
		case errors.Is(err, util.ErrAssessmentNotFound):
			util.Error(ctx, http.StatusNotFound, "Assessment not found")
		case errors.Is(err, util.ErrNoPendingQuestion):
			util.BadRequest(ctx, err.Error())
		case errors.Is(err, util.ErrAssessmentBusy):
			util.Conflict(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}

	util.Success(ctx, result)
}

// @Summary 我的历次定级测试
// @Tags 定级测试
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response
// @Router /placement/assessments [get]
func (c *PlacementController) ListMine(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	as, err := c.Service.ListMyAssessments(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, as)
}

// @Summary 定级测试详情
// @Tags 定级测试
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "测试ID"
// @Success 200 {object} util.Response
// @Router /placement/assessments/{id} [get]
func (c *PlacementController) Get(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	a, items, err := c.Service.GetAssessment(ctx.Param("id"), user.UserID)
	if err != nil {
		if errors.Is(err, util.ErrAssessmentNotFound) {
			util.Error(ctx, http.StatusNotFound, "Assessment not found")
			return
		}
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, gin.H{
		"assessment": a,
		"items":      items,
	})
}

// @Summary 教师端：已完成的定级测试列表
// @Tags 定级测试
// @Produce json
// @Security ApiKeyAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /teacher/placement/assessments [get]
func (c *PlacementController) ListFinished(ctx *gin.Context) {
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	as, total, err := c.Service.ListFinishedAssessments(page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  as,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
