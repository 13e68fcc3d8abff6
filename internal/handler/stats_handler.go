package handler

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/runledger/internal/service"
)

// GetUserStats 返回用户的年度或月度汇总
func (a *API) GetUserStats(c *gin.Context) {
	year, month, ok := a.periodQuery(c)
	if !ok {
		return
	}

	stats, err := a.stats.UserStats(pathValue(c, "id"), year, month)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "month": month, "stats": stats})
}

// GetUserBest 返回用户历史最佳
func (a *API) GetUserBest(c *gin.Context) {
	stats, err := a.stats.BestStats(pathValue(c, "id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"best": stats})
}

// GetUserRank 返回用户的全站年度排名
func (a *API) GetUserRank(c *gin.Context) {
	year, _, ok := a.periodQuery(c)
	if !ok {
		return
	}

	rank, err := a.stats.GlobalRank(pathValue(c, "id"), year)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "rank": rank})
}

// GetUserProfile 返回个人年度详情
func (a *API) GetUserProfile(c *gin.Context) {
	year, _, ok := a.periodQuery(c)
	if !ok {
		return
	}

	stats, err := a.stats.PersonalStats(pathValue(c, "id"), year)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": stats})
}

// GetChatStats 返回聊天汇总
func (a *API) GetChatStats(c *gin.Context) {
	year, month, ok := a.periodQuery(c)
	if !ok {
		return
	}

	stats, err := a.stats.ChatStats(pathValue(c, "id"), year, month)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "month": month, "stats": stats})
}

// GetChatTop 返回聊天成员排行
func (a *API) GetChatTop(c *gin.Context) {
	year, _, ok := a.periodQuery(c)
	if !ok {
		return
	}

	runners, err := a.stats.ChatTopUsers(pathValue(c, "id"), year, limitQuery(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "runners": runners})
}

// GetChatStatsUntil 返回聊天从年初到指定日期的累计，date 缺省为今天
func (a *API) GetChatStatsUntil(c *gin.Context) {
	date := a.now()
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := parseDate(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "日期格式应为 YYYY-MM-DD")
			return
		}
		date = parsed
	}

	stats, err := a.stats.ChatStatsUntil(pathValue(c, "id"), date)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// ListChatsRanking 返回各聊天的年度排行
func (a *API) ListChatsRanking(c *gin.Context) {
	year, _, ok := a.periodQuery(c)
	if !ok {
		return
	}

	ranking, err := a.stats.ChatsRanking(year)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "chats": ranking})
}

// GetLeaderboard 返回全站年度排行
func (a *API) GetLeaderboard(c *gin.Context) {
	year, _, ok := a.periodQuery(c)
	if !ok {
		return
	}

	runners, err := a.stats.TopRunners(year, limitQuery(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "runners": runners})
}

// GetGoalLeaderboard 返回年度目标完成度排行
func (a *API) GetGoalLeaderboard(c *gin.Context) {
	year, _, ok := a.periodQuery(c)
	if !ok {
		return
	}

	rows, err := a.stats.GoalLeaderboard(year)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "goals": rows})
}

// GetTotalStats 返回全站汇总
func (a *API) GetTotalStats(c *gin.Context) {
	year, month, ok := a.periodQuery(c)
	if !ok {
		return
	}

	stats, err := a.stats.TotalStats(year, month)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"year": year, "month": month, "stats": stats})
}

// GetPercentage 计算完成百分比，供只持有总数与目标的调用方使用
func (a *API) GetPercentage(c *gin.Context) {
	total, errTotal := strconv.ParseFloat(strings.TrimSpace(c.Query("total_km")), 64)
	goal, errGoal := strconv.ParseFloat(strings.TrimSpace(c.Query("goal_km")), 64)
	if errTotal != nil || errGoal != nil || !finite(total) || !finite(goal) {
		respondError(c, http.StatusBadRequest, "total_km 与 goal_km 必须是数字")
		return
	}
	c.JSON(http.StatusOK, gin.H{"percentage": service.Percentage(total, goal)})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
