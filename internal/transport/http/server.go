package http

import (
	"github.com/gin-gonic/gin"

	"policymitr/internal/bootstrap"
	"policymitr/internal/transport/http/handler"
	"policymitr/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.AccessLog(app.Logger), gin.Recovery())
	router.MaxMultipartMemory = app.Config.Upload.MaxBytes

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)
	router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))

	authHandler := handler.NewAuthHandler(app.AuthService)
	policyHandler := handler.NewPolicyHandler(app.PolicyService, app.Config.Upload.MaxBytes)
	chatHandler := handler.NewChatHandler(app.ChatService)
	adminHandler := handler.NewAdminHandler(app.AdminService)
	requireAuth := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", requireAuth, authHandler.Me)
	authGroup.PUT("/profile", requireAuth, authHandler.UpdateProfile)

	policyGroup := v1.Group("/policies")
	policyGroup.Use(requireAuth)
	policyGroup.POST("", policyHandler.Upload)
	policyGroup.POST("/text", policyHandler.CreateFromText)
	policyGroup.POST("/compare", policyHandler.Compare)
	policyGroup.GET("", policyHandler.List)
	policyGroup.GET("/:id", policyHandler.Get)
	policyGroup.DELETE("/:id", policyHandler.Delete)
	policyGroup.POST("/:id/bookmark", policyHandler.ToggleBookmark)
	policyGroup.GET("/:id/recommendations", policyHandler.Recommendations)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(requireAuth)
	chatGroup.POST("/ask", chatHandler.Ask)
	chatGroup.POST("/stream", chatHandler.Stream)
	chatGroup.GET("/history", chatHandler.GetHistory)

	adminGroup := v1.Group("/admin")
	adminGroup.Use(requireAuth)
	adminGroup.GET("/analytics", adminHandler.Analytics)
	adminGroup.GET("/users", adminHandler.Users)
	adminGroup.GET("/activity", adminHandler.Activity)

	return router
}
