package controller

import (
	"course_eval_backend/internal/service"
	"course_eval_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type NotificationController struct {
	Service *service.InboxService
}

func NewNotificationController(svc *service.InboxService) *NotificationController {
	return &NotificationController{Service: svc}
}

// @Summary 站内通知列表
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "只看未读"
// @Param page query int false "页码" default(1)
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} util.PageResponse
// @Router /notifications [get]
func (c *NotificationController) List(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}
	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	unread, _ := strconv.ParseBool(ctx.DefaultQuery("unread", "false"))

	res, err := c.Service.List(ctx.Request.Context(), p.UserID, unread, page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, res)
}

// @Summary 标记已读
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Param id path int true "通知ID"
// @Success 200 {object} map[string]string
// @Router /notifications/{id}/read [post]
func (c *NotificationController) MarkRead(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		return
	}
	if err := c.Service.MarkRead(ctx.Request.Context(), p.UserID, id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"message": "Notification marked as read"})
}

// @Summary 未读数量
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64
// @Router /notifications/unread-count [get]
func (c *NotificationController) UnreadCount(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}
	n, err := c.Service.UnreadCount(ctx.Request.Context(), p.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"count": n})
}
