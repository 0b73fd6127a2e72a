package app

import (
	"course_eval_backend/docs"
	"course_eval_backend/internal/config"
	"course_eval_backend/internal/middleware"
	"course_eval_backend/internal/model"
	"course_eval_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.GET("/health", c.health.HealthCheck)

	public := router.Group("/auth")
	{
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	auth := router.Group("/")
	auth.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		auth.GET("/auth/me", c.auth.Me)

		// 教师/管理员：测评编辑与状态流转
		a.registerEvaluationRoutes(auth, c)

		// 学生：作答
		a.registerQuizRoutes(auth, c)

		// 所有登录用户：通知与设备
		a.registerNotificationRoutes(auth, c)
	}
}

func (a *App) registerEvaluationRoutes(rg *gin.RouterGroup, c *controllers) {
	evaluations := rg.Group("/evaluations")
	evaluations.Use(middleware.RoleMiddleware(model.RoleTeacher))
	{
		evaluations.POST("", c.evaluation.Create)
		evaluations.GET("", c.evaluation.List)
		evaluations.GET("/:id", c.evaluation.Get)
		evaluations.GET("/:id/participation", c.evaluation.Participation)
		evaluations.POST("/:id/questions", c.evaluation.AddQuestion)
		evaluations.POST("/:id/publish", c.evaluation.Publish)
		evaluations.POST("/:id/close", c.evaluation.Close)
		evaluations.POST("/:id/archive", c.evaluation.Archive)
		evaluations.DELETE("/:id", c.evaluation.Delete)
	}
}

func (a *App) registerQuizRoutes(rg *gin.RouterGroup, c *controllers) {
	quizzes := rg.Group("/quizzes")
	quizzes.Use(middleware.RoleMiddleware(model.RoleStudent))
	{
		quizzes.GET("/:quizId", c.quiz.Get)
		quizzes.POST("/:quizId/submit", c.quiz.Submit)
	}
}

func (a *App) registerNotificationRoutes(rg *gin.RouterGroup, c *controllers) {
	push := rg.Group("/push-notifications")
	{
		push.POST("/register", c.pushNotification.Register)
		push.POST("/unregister", c.pushNotification.Unregister)
		push.GET("/preferences", c.pushNotification.GetPreferences)
		push.PUT("/preferences", c.pushNotification.UpdatePreferences)
	}

	notifications := rg.Group("/notifications")
	{
		notifications.GET("", c.notification.List)
		notifications.GET("/unread-count", c.notification.UnreadCount)
		notifications.POST("/:id/read", c.notification.MarkRead)
	}
}
