package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/runledger/internal/db"
)

type userPayload struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	ChatType string `json:"chat_type"`
}

type goalPayload struct {
	GoalKm *float64 `json:"goal_km"`
}

func userToPayload(user *db.User) gin.H {
	payload := gin.H{
		"user_id":    user.UserID,
		"username":   user.Username,
		"is_active":  user.IsActive,
		"chat_type":  user.ChatType,
		"created_at": user.CreatedAt,
	}
	if user.YearlyGoal != nil {
		payload["yearly_goal"] = *user.YearlyGoal
	} else {
		payload["yearly_goal"] = nil
	}
	return payload
}

// CreateUser 幂等地登记用户
func (a *API) CreateUser(c *gin.Context) {
	var payload userPayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}

	user, err := a.users.GetOrCreate(payload.UserID, payload.Username, payload.ChatType)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userToPayload(user)})
}

// GetUser 返回用户资料
func (a *API) GetUser(c *gin.Context) {
	user, err := a.users.Get(pathValue(c, "id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userToPayload(user)})
}

// SetUserGoal 覆盖用户的年度目标
func (a *API) SetUserGoal(c *gin.Context) {
	var payload goalPayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}
	if payload.GoalKm == nil {
		respondError(c, http.StatusBadRequest, "goal_km 不能为空")
		return
	}

	user, err := a.users.SetGoal(pathValue(c, "id"), *payload.GoalKm)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userToPayload(user)})
}

// RenameUser 更新显示名称
func (a *API) RenameUser(c *gin.Context) {
	var payload userPayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}

	user, err := a.users.Rename(pathValue(c, "id"), payload.Username)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userToPayload(user)})
}

// DeactivateUser 软删除用户
func (a *API) DeactivateUser(c *gin.Context) {
	if err := a.users.Deactivate(pathValue(c, "id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
