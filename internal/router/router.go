package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/runledger/internal/handler"
	"github.com/runledger/internal/requestid"
	"github.com/runledger/internal/service"
)

// Options 描述路由层需要的外部配置
type Options struct {
	AllowedOrigins []string
}

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(engine *service.Engine, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), requestid.Middleware())

	// 只有配置了来源时才启用跨域
	if len(opts.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  opts.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", requestid.Header},
			ExposeHeaders: []string{"Content-Length", requestid.Header},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	api := handler.NewAPI(engine)
	group := r.Group("/api")
	{
		group.POST("/users", api.CreateUser)
		group.GET("/users/:id", api.GetUser)
		group.PUT("/users/:id/goal", api.SetUserGoal)
		group.PUT("/users/:id/name", api.RenameUser)
		group.DELETE("/users/:id", api.DeactivateUser)
		group.GET("/users/:id/runs", api.ListUserRuns)
		group.GET("/users/:id/stats", api.GetUserStats)
		group.GET("/users/:id/best", api.GetUserBest)
		group.GET("/users/:id/rank", api.GetUserRank)
		group.GET("/users/:id/profile", api.GetUserProfile)
		group.GET("/users/:id/challenges", api.ListUserChallenges)
		group.DELETE("/users/:id/challenges", api.ClearUserChallenges)
		group.GET("/users/:id/teams", api.ListUserTeams)

		group.POST("/runs", api.CreateRun)
		group.PUT("/runs/:id", api.UpdateRun)
		group.DELETE("/runs/:id", api.DeleteRun)

		group.GET("/chats", api.ListChatsRanking)
		group.GET("/chats/:id/stats", api.GetChatStats)
		group.GET("/chats/:id/top", api.GetChatTop)
		group.GET("/chats/:id/until", api.GetChatStatsUntil)
		group.GET("/chats/:id/challenge", api.GetChatChallenge)
		group.PUT("/chats/:id/challenge/goal", api.UpdateChatGoal)

		group.GET("/leaderboard", api.GetLeaderboard)
		group.GET("/leaderboard/goals", api.GetGoalLeaderboard)
		group.GET("/stats/total", api.GetTotalStats)
		group.GET("/progress", api.GetPercentage)

		group.POST("/challenges", api.CreateChallenge)
		group.GET("/challenges", api.ListActiveChallenges)
		group.GET("/challenges/:id", api.GetChallenge)
		group.PUT("/challenges/:id/goal", api.UpdateChallengeGoal)
		group.GET("/challenges/:id/participants", api.GetChallengeParticipants)
		group.POST("/challenges/:id/participants", api.JoinChallenge)
		group.DELETE("/challenges/:id/participants/:user_id", api.LeaveChallenge)
		group.GET("/challenges/:id/leaderboard", api.GetChallengeLeaderboard)

		group.POST("/teams", api.CreateTeam)
		group.GET("/teams/:id", api.GetTeam)
		group.GET("/teams/:id/stats", api.GetTeamStats)
		group.POST("/teams/:id/members", api.AddTeamMember)
		group.DELETE("/teams/:id/members/:user_id", api.RemoveTeamMember)
	}

	return r
}
