package controller

import (
	"course_eval_backend/internal/service"
	"course_eval_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuizController struct {
	Service *service.SubmissionService
}

func NewQuizController(svc *service.SubmissionService) *QuizController {
	return &QuizController{Service: svc}
}

// @Summary 获取测评题目
// @Tags 作答
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "QuizID"
// @Success 200 {object} service.QuizView
// @Router /quizzes/{quizId} [get]
func (c *QuizController) Get(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}
	quizID, ok := parseID(ctx, "quizId")
	if !ok {
		return
	}
	view, err := c.Service.GetQuiz(ctx.Request.Context(), quizID, p.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// @Summary 提交答案
// @Description isFinal=false 保存草稿，isFinal=true 完成提交；每次提交整体替换已有答案
// @Tags 作答
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param quizId path int true "QuizID"
// @Param body body service.SubmitReq true "答案"
// @Success 201 {object} service.SubmitResult
// @Failure 400 {object} util.ErrorResponse
// @Failure 404 {object} util.ErrorResponse
// @Router /quizzes/{quizId}/submit [post]
func (c *QuizController) Submit(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}
	quizID, ok := parseID(ctx, "quizId")
	if !ok {
		return
	}

	var req service.SubmitReq
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.Service.Submit(ctx.Request.Context(), quizID, p.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, res)
}
