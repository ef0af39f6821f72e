package routes

import (
	"github.com/14kear/live-voting/internal/handlers"
	"github.com/gin-gonic/gin"
)

func RegisterAuthRoutes(rg *gin.RouterGroup, handler *handlers.AuthHandler) {
	{
		rg.POST("/signup", handler.SignUp)
		rg.POST("/login", handler.Login)
		rg.POST("/logout", handler.Logout)
	}
}

func RegisterPublicRoutes(rg *gin.RouterGroup, handler *handlers.VotingHandler) {
	{
		rg.GET("/polls", handler.GetPolls)
		rg.GET("/polls/:id", handler.GetPollByID)

		rg.GET("/logs", handler.GetLogs)
	}
}

func RegisterPrivateRoutes(rg *gin.RouterGroup, handler *handlers.VotingHandler, authHandler *handlers.AuthHandler) {
	{
		rg.POST("/polls", handler.CreatePoll)
		rg.POST("/polls/:id/vote", handler.Vote)

		rg.GET("/me", authHandler.Me)
	}
}
