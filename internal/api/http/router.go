package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(signalController *SignalController, userController *UserController, sessionController *SessionController) *gin.Engine {
	router := gin.Default()
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	if userController != nil {
		users := api.Group("/users")
		users.POST("/create", userController.CreateUser)
		users.POST("/guest", userController.CreateGuest)
		users.GET("/:userID", userController.GetUser)
	}

	if sessionController != nil {
		sessions := api.Group("/sessions")
		sessions.GET("", sessionController.ListSessions)
		sessions.GET("/:roomID", sessionController.GetSession)
	}

	if signalController != nil {
		api.GET("/ws", signalController.Connect)
	}

	return router
}
