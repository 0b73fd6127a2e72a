package middleware

import (
	"course_eval_backend/internal/model"
	"course_eval_backend/internal/util"
	"course_eval_backend/pkg/logger"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthMiddleware 解析 JWT 并把调用者身份放入上下文
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if tokenString == "" {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		claims, err := util.ParseJWT(tokenString, secret)
		if err != nil {
			logger.Log.Debug("JWT parse failed", zap.Error(err))
			util.Unauthorized(c)
			c.Abort()
			return
		}

		util.SetPrincipal(c, &util.Principal{UserID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

// RoleMiddleware 管理员拥有教师权限
func RoleMiddleware(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := util.GetPrincipal(c)
		if p == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		if p.Role == model.RoleAdmin || p.Is(roles...) {
			c.Next()
			return
		}

		util.Forbidden(c)
		c.Abort()
	}
}
