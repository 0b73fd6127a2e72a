package controller

import (
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/service"
	"course_eval_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type EvaluationController struct {
	Service *service.EvaluationService
}

func NewEvaluationController(svc *service.EvaluationService) *EvaluationController {
	return &EvaluationController{Service: svc}
}

func parseID(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid "+name)
		return 0, false
	}
	return uint(id), true
}

// @Summary 创建测评（草稿）
// @Tags 测评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.CreateEvaluationReq true "测评信息"
// @Success 201 {object} model.Evaluation
// @Failure 400 {object} util.ErrorResponse
// @Failure 404 {object} util.ErrorResponse
// @Router /evaluations [post]
func (c *EvaluationController) Create(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}

	var req service.CreateEvaluationReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	evaluation, err := c.Service.Create(ctx.Request.Context(), p.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, evaluation)
}

// @Summary 测评列表
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param status query string false "状态" Enums(DRAFT, PUBLISHED, ACTIVE, CLOSED)
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.PageResponse
// @Router /evaluations [get]
func (c *EvaluationController) List(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))

	status := model.EvaluationStatus(ctx.Query("status"))
	switch status {
	case "", model.StatusDraft, model.StatusPublished, model.StatusActive, model.StatusClosed:
	default:
		util.BadRequest(ctx, "invalid status")
		return
	}

	res, err := c.Service.List(ctx.Request.Context(), p, status, page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 测评详情（含题目）
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} model.Evaluation
// @Failure 404 {object} util.ErrorResponse
// @Failure 403 {object} util.ErrorResponse "FORBIDDEN"
// @Router /evaluations/{id} [get]
func (c *EvaluationController) Get(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	evaluation, err := c.Service.Get(ctx.Request.Context(), util.GetPrincipal(ctx), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, evaluation)
}

// @Summary 参与情况（仅计数）
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} repository.Participation
// @Failure 403 {object} util.ErrorResponse "FORBIDDEN"
// @Router /evaluations/{id}/participation [get]
func (c *EvaluationController) Participation(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	p, err := c.Service.Participation(ctx.Request.Context(), util.GetPrincipal(ctx), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, p)
}

// @Summary 添加题目（仅草稿）
// @Tags 测评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Param body body service.QuestionReq true "题目"
// @Success 201 {object} model.Question
// @Failure 400 {object} util.ErrorResponse
// @Failure 403 {object} util.ErrorResponse "FORBIDDEN"
// @Router /evaluations/{id}/questions [post]
func (c *EvaluationController) AddQuestion(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	var req service.QuestionReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q, err := c.Service.AddQuestion(ctx.Request.Context(), util.GetPrincipal(ctx), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// @Summary 发布测评
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} model.Evaluation
// @Failure 400 {object} util.ErrorResponse "NO_QUESTIONS | INVALID_STATUS"
// @Failure 403 {object} util.ErrorResponse "FORBIDDEN"
// @Router /evaluations/{id}/publish [post]
func (c *EvaluationController) Publish(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	evaluation, err := c.Service.Publish(ctx.Request.Context(), util.GetPrincipal(ctx), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, evaluation)
}

// @Summary 关闭测评
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} model.Evaluation
// @Failure 400 {object} util.ErrorResponse "ALREADY_CLOSED"
// @Failure 403 {object} util.ErrorResponse "FORBIDDEN"
// @Router /evaluations/{id}/close [post]
func (c *EvaluationController) Close(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	evaluation, err := c.Service.Close(ctx.Request.Context(), util.GetPrincipal(ctx), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, evaluation)
}

// @Summary 归档已关闭的测评
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} map[string]string
// @Failure 403 {object} util.ErrorResponse "FORBIDDEN"
// @Router /evaluations/{id}/archive [post]
func (c *EvaluationController) Archive(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := c.Service.Archive(ctx.Request.Context(), util.GetPrincipal(ctx), id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"message": "Evaluation archived"})
}

// @Summary 删除测评
// @Tags 测评
// @Produce json
// @Security BearerAuth
// @Param id path int true "测评ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} util.ErrorResponse "HAS_SUBMISSIONS"
// @Failure 403 {object} util.ErrorResponse "FORBIDDEN"
// @Router /evaluations/{id} [delete]
func (c *EvaluationController) Delete(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := c.Service.Delete(ctx.Request.Context(), util.GetPrincipal(ctx), id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"message": "Evaluation deleted"})
}
