package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type teamPayload struct {
	Name      string `json:"name"`
	CreatedBy string `json:"created_by"`
}

// CreateTeam 创建小组
func (a *API) CreateTeam(c *gin.Context) {
	var payload teamPayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}

	team, err := a.teams.Create(payload.Name, payload.CreatedBy, a.now())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"team": team})
}

// GetTeam 返回小组信息
func (a *API) GetTeam(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	team, err := a.teams.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"team": team})
}

// AddTeamMember 加入小组
func (a *API) AddTeamMember(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var payload participantPayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}

	if err := a.teams.AddMember(id, payload.UserID, a.now()); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveTeamMember 移出小组
func (a *API) RemoveTeamMember(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := a.teams.RemoveMember(id, pathValue(c, "user_id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetTeamStats 返回小组最近 30 天的成绩
func (a *API) GetTeamStats(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	stats, err := a.teams.Stats(id, a.now())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListUserTeams 返回用户所在的小组
func (a *API) ListUserTeams(c *gin.Context) {
	teams, err := a.teams.UserTeams(pathValue(c, "id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams})
}
