package app

import (
	"lingo_edu_backend/docs"
	"lingo_edu_backend/internal/config"
	"lingo_edu_backend/internal/middleware"
	"lingo_edu_backend/internal/model"
	"lingo_edu_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		placement := authGroup.Group("/placement")
		{
			placement.POST("/start", c.placement.Start)
			placement.POST("/next", c.placement.Next)
			placement.GET("/assessments", c.placement.ListMine)
			placement.GET("/assessments/:id", c.placement.Get)
		}

		// 教师相关接口
		teacher := authGroup.Group("/teacher")
		teacher.Use(middleware.RoleMiddleware(model.Teacher, model.Admin))
		{
			teacher.GET("/placement/assessments", c.placement.ListFinished)
		}
	}
}
