package controller

import (
	"course_eval_backend/internal/service"
	"course_eval_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type PushNotificationController struct {
	Devices     *service.DeviceService
	Preferences *service.PreferenceService
}

func NewPushNotificationController(devices *service.DeviceService, prefs *service.PreferenceService) *PushNotificationController {
	return &PushNotificationController{Devices: devices, Preferences: prefs}
}

// @Summary 注册推送设备
// @Tags 通知
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.RegisterDeviceRequest true "设备"
// @Success 200 {object} model.DeviceEndpoint
// @Router /push-notifications/register [post]
func (c *PushNotificationController) Register(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}
	var req service.RegisterDeviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	endpoint, err := c.Devices.Register(ctx.Request.Context(), p.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, endpoint)
}

// @Summary 注销推送设备
// @Tags 通知
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.UnregisterDeviceRequest true "设备"
// @Success 200 {object} map[string]string
// @Router /push-notifications/unregister [post]
func (c *PushNotificationController) Unregister(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}
	var req service.UnregisterDeviceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	if err := c.Devices.Unregister(ctx.Request.Context(), p.UserID, req.Token); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"message": "Device unregistered"})
}

// @Summary 获取通知偏好
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.NotificationPreference
// @Router /push-notifications/preferences [get]
func (c *PushNotificationController) GetPreferences(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}
	pref, err := c.Preferences.Get(ctx.Request.Context(), p.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, pref)
}

// @Summary 更新通知偏好
// @Tags 通知
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body service.UpdatePreferenceRequest true "偏好"
// @Success 200 {object} model.NotificationPreference
// @Router /push-notifications/preferences [put]
func (c *PushNotificationController) UpdatePreferences(ctx *gin.Context) {
	p := util.GetPrincipal(ctx)
	if p == nil {
		util.Unauthorized(ctx)
		return
	}
	var req service.UpdatePreferenceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	pref, err := c.Preferences.Update(ctx.Request.Context(), p.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, pref)
}
