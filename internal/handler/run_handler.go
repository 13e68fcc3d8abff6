package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/runledger/internal/db"
	"github.com/runledger/internal/service"
)

type runPayload struct {
	UserID     string   `json:"user_id"`
	Username   string   `json:"username"`
	DistanceKm *float64 `json:"distance_km"`
	Date       string   `json:"date"`
	Notes      string   `json:"notes"`
	ChatID     string   `json:"chat_id"`
	ChatType   string   `json:"chat_type"`
}

type runEditPayload struct {
	UserID     string   `json:"user_id"`
	DistanceKm *float64 `json:"distance_km"`
}

func runToPayload(run db.RunningLog) gin.H {
	payload := gin.H{
		"id":          run.ID,
		"user_id":     run.UserID,
		"distance_km": run.Km,
		"date":        run.Date.Format(dateFormat),
		"notes":       run.Notes,
		"chat_type":   run.ChatType,
		"chat_id":     nil,
	}
	if run.ChatID != nil {
		payload["chat_id"] = *run.ChatID
	}
	return payload
}

// CreateRun 记录一次跑步：登记用户、群聊中确保年度挑战，然后写入流水
func (a *API) CreateRun(c *gin.Context) {
	var payload runPayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}
	if payload.DistanceKm == nil {
		respondError(c, http.StatusBadRequest, "distance_km 不能为空")
		return
	}

	var date time.Time
	if strings.TrimSpace(payload.Date) != "" {
		parsed, err := parseDate(payload.Date)
		if err != nil {
			respondError(c, http.StatusBadRequest, "日期格式应为 YYYY-MM-DD")
			return
		}
		date = parsed
	}

	result, err := a.engine.RecordRun(service.RecordRunInput{
		RunInput: service.RunInput{
			UserID:     payload.UserID,
			DistanceKm: *payload.DistanceKm,
			Date:       date,
			Notes:      payload.Notes,
			ChatID:     payload.ChatID,
			ChatType:   payload.ChatType,
		},
		Username: payload.Username,
	}, a.now())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	challenges := make([]gin.H, 0, len(result.Challenges))
	for _, challenge := range result.Challenges {
		challenges = append(challenges, challengeToPayload(challenge))
	}

	c.JSON(http.StatusCreated, gin.H{
		"run":        runToPayload(*result.Run),
		"user":       userToPayload(result.User),
		"challenges": challenges,
		"year_stats": result.YearStats,
	})
}

// UpdateRun 修改记录距离，只有所有者可以操作
func (a *API) UpdateRun(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var payload runEditPayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}
	if payload.DistanceKm == nil {
		respondError(c, http.StatusBadRequest, "distance_km 不能为空")
		return
	}

	run, err := a.runs.EditEntry(id, *payload.DistanceKm, payload.UserID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run": runToPayload(*run)})
}

// DeleteRun 删除记录，请求者通过 user_id 查询参数给出
func (a *API) DeleteRun(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := a.runs.DeleteEntry(id, c.Query("user_id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListUserRuns 返回用户最近的记录
func (a *API) ListUserRuns(c *gin.Context) {
	runs, err := a.runs.ListRecent(pathValue(c, "id"), limitQuery(c))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(runs))
	for _, run := range runs {
		items = append(items, runToPayload(run))
	}
	c.JSON(http.StatusOK, gin.H{"runs": items})
}
