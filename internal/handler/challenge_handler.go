package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/runledger/internal/db"
	"github.com/runledger/internal/service"
)

type challengePayload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	GoalKm      *float64 `json:"goal_km"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	CreatedBy   string   `json:"created_by"`
}

type participantPayload struct {
	UserID string `json:"user_id"`
}

func challengeToPayload(challenge db.Challenge) gin.H {
	payload := gin.H{
		"id":          challenge.ID,
		"title":       challenge.Title,
		"description": challenge.Description,
		"goal_km":     challenge.GoalKm,
		"start_date":  challenge.StartDate.Format(dateFormat),
		"end_date":    challenge.EndDate.Format(dateFormat),
		"is_system":   challenge.IsSystem,
		"created_by":  challenge.CreatedBy,
		"chat_id":     nil,
	}
	if challenge.ChatID != nil {
		payload["chat_id"] = *challenge.ChatID
	}
	return payload
}

func summaryToPayload(summary service.ChallengeSummary) gin.H {
	return gin.H{
		"challenge":          challengeToPayload(summary.Challenge),
		"participants_count": summary.ParticipantsCount,
		"total_km":           summary.TotalKm,
		"percentage":         summary.Percentage,
		"active":             summary.Active,
	}
}

// CreateChallenge 创建个人挑战，创建者不会自动加入
func (a *API) CreateChallenge(c *gin.Context) {
	var payload challengePayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}
	if payload.GoalKm == nil {
		respondError(c, http.StatusBadRequest, "goal_km 不能为空")
		return
	}

	start, errStart := parseDate(payload.StartDate)
	end, errEnd := parseDate(payload.EndDate)
	if errStart != nil || errEnd != nil {
		respondError(c, http.StatusBadRequest, "日期格式应为 YYYY-MM-DD")
		return
	}

	challenge, err := a.challenges.CreatePersonalChallenge(service.PersonalChallengeInput{
		Title:       payload.Title,
		Description: payload.Description,
		GoalKm:      *payload.GoalKm,
		StartDate:   start,
		EndDate:     end,
		CreatedBy:   payload.CreatedBy,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"challenge": challengeToPayload(*challenge)})
}

// ListActiveChallenges 返回当前进行中的挑战
func (a *API) ListActiveChallenges(c *gin.Context) {
	summaries, err := a.challenges.ActiveChallenges(a.now())
	if err != nil {
		handleServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(summaries))
	for _, summary := range summaries {
		items = append(items, summaryToPayload(summary))
	}
	c.JSON(http.StatusOK, gin.H{"challenges": items})
}

// GetChallenge 返回挑战详情与实时进度
func (a *API) GetChallenge(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	challenge, err := a.challenges.Get(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	a.respondSummary(c, challenge)
}

// UpdateChallengeGoal 修改挑战目标
func (a *API) UpdateChallengeGoal(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var payload goalPayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}
	if payload.GoalKm == nil {
		respondError(c, http.StatusBadRequest, "goal_km 不能为空")
		return
	}

	challenge, err := a.challenges.UpdateGoal(id, *payload.GoalKm)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"challenge": challengeToPayload(*challenge)})
}

// JoinChallenge 加入个人挑战
func (a *API) JoinChallenge(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	var payload participantPayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}

	if err := a.challenges.Join(id, payload.UserID, a.now()); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LeaveChallenge 退出个人挑战
func (a *API) LeaveChallenge(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	if err := a.challenges.Leave(id, pathValue(c, "user_id")); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetChallengeParticipants 重新计算并返回参与者进度
func (a *API) GetChallengeParticipants(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	progress, err := a.challenges.ParticipantProgress(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": progress})
}

// GetChallengeLeaderboard 返回挑战期内的个人排行
func (a *API) GetChallengeLeaderboard(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}

	rows, err := a.challenges.Leaderboard(id)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}

// ListUserChallenges 返回用户参加的挑战
func (a *API) ListUserChallenges(c *gin.Context) {
	rows, err := a.challenges.UserChallenges(pathValue(c, "id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}

	items := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		items = append(items, gin.H{"challenge": challengeToPayload(row.Challenge), "user_km": row.UserKm})
	}
	c.JSON(http.StatusOK, gin.H{"challenges": items})
}

// ClearUserChallenges 删除用户创建的个人挑战
func (a *API) ClearUserChallenges(c *gin.Context) {
	deleted, err := a.challenges.ClearUserChallenges(pathValue(c, "id"))
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// GetChatChallenge 返回聊天当年（或 year 参数指定年份）的系统挑战，不存在时创建
func (a *API) GetChatChallenge(c *gin.Context) {
	year, _, ok := a.periodQuery(c)
	if !ok {
		return
	}

	challenge, err := a.challenges.EnsureYearlyChallenge(pathValue(c, "id"), year)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	a.respondSummary(c, challenge)
}

// UpdateChatGoal 修改聊天年度目标
func (a *API) UpdateChatGoal(c *gin.Context) {
	year, _, ok := a.periodQuery(c)
	if !ok {
		return
	}

	var payload goalPayload
	if !bindJSON(c, &payload, "请求参数无效") {
		return
	}
	if payload.GoalKm == nil {
		respondError(c, http.StatusBadRequest, "goal_km 不能为空")
		return
	}

	challenge, err := a.challenges.UpdateChatGoal(pathValue(c, "id"), year, *payload.GoalKm)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	a.respondSummary(c, challenge)
}

func (a *API) respondSummary(c *gin.Context, challenge *db.Challenge) {
	summary, err := a.challenges.Summary(challenge, a.now())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryToPayload(summary))
}
