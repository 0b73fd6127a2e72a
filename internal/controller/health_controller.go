package controller

import (
	"context"
	"course_eval_backend/internal/scheduler"
	"course_eval_backend/internal/util"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

type HealthController struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Scheduler *scheduler.Scheduler
}

func NewHealthController(db *gorm.DB, rdb *redis.Client, s *scheduler.Scheduler) *HealthController {
	return &HealthController{DB: db, Redis: rdb, Scheduler: s}
}

// @Summary 健康检查
// @Description 检查数据库、Redis 与定时任务状态
// @Tags 系统
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	// 检查数据库连接
	sqlDB, err := c.DB.DB()
	if err != nil {
		util.InternalServerError(ctx)
		return
	}
	if err := sqlDB.PingContext(pingCtx); err != nil {
		util.Error(ctx, http.StatusServiceUnavailable, "UNAVAILABLE", "Database unavailable")
		return
	}

	components := gin.H{"database": "up"}
	if c.Redis != nil {
		if err := c.Redis.Ping(pingCtx).Err(); err != nil {
			util.Error(ctx, http.StatusServiceUnavailable, "UNAVAILABLE", "Redis unavailable")
			return
		}
		components["redis"] = "up"
	}

	body := gin.H{
		"status":     "ok",
		"components": components,
	}
	if c.Scheduler != nil {
		body["jobs"] = c.Scheduler.Jobs()
	}
	util.Success(ctx, body)
}
