package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"timetrack/internal/handler"
	"timetrack/internal/middleware"
	"timetrack/internal/realtime"
	"timetrack/internal/service"
)

func New(
	authService *service.AuthService,
	authHandler *handler.AuthHandler,
	entryHandler *handler.EntryHandler,
	projectHandler *handler.ProjectHandler,
	hub *realtime.Hub,
	corsOrigins []string,
) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Logger(), gin.Recovery(), middleware.CORS(corsOrigins))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Websocket handshake carries its own bearer credential, so the route
	// sits outside the auth middleware group.
	engine.GET("/ws", gin.WrapH(hub))

	api := engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.Auth(authService))

	authed.GET("/me", authHandler.Me)
	authed.PUT("/me/settings", authHandler.UpdateSettings)

	entries := authed.Group("/time-entries")
	entries.GET("/current", entryHandler.Current)
	entries.GET("", entryHandler.List)
	entries.POST("", entryHandler.Create)
	entries.POST("/start", entryHandler.Start)
	entries.POST("/:id/stop", entryHandler.Stop)
	entries.PUT("/:id", entryHandler.Edit)
	entries.DELETE("/:id", entryHandler.Delete)

	projects := authed.Group("/projects")
	projects.GET("", projectHandler.List)
	projects.POST("", projectHandler.Create)
	projects.PUT("/:id", projectHandler.Update)
	projects.DELETE("/:id", projectHandler.Delete)
	projects.GET("/:id/tasks", projectHandler.ListTasks)
	projects.POST("/:id/tasks", projectHandler.CreateTask)

	tasks := authed.Group("/tasks")
	tasks.PUT("/:id", projectHandler.UpdateTask)
	tasks.DELETE("/:id", projectHandler.DeleteTask)

	return engine
}
