package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/runledger/internal/service"
)

const dateFormat = "2006-01-02"

// API bundles the engine services shared by HTTP handlers.
type API struct {
	users      *service.UserService
	runs       *service.RunService
	challenges *service.ChallengeService
	stats      *service.StatsService
	teams      *service.TeamService
	engine     *service.Engine
	now        func() time.Time
}

// NewAPI constructs a handler set on top of the engine.
func NewAPI(engine *service.Engine) *API {
	return &API{
		users:      engine.Users,
		runs:       engine.Runs,
		challenges: engine.Challenges,
		stats:      engine.Stats,
		teams:      engine.Teams,
		engine:     engine,
		now:        time.Now,
	}
}

// handleServiceError 把服务层错误映射为 HTTP 状态码
func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		respondError(c, http.StatusForbidden, err.Error())
	default:
		log.Printf("[http] %s %s failed: %v", c.Request.Method, c.FullPath(), err)
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}

// periodQuery 读取 year 与 month 查询参数，year 缺省为当年，month 缺省为 0（整年）。
func (a *API) periodQuery(c *gin.Context) (int, int, bool) {
	year := a.now().Year()
	if raw := strings.TrimSpace(c.Query("year")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "year 参数无效")
			return 0, 0, false
		}
		year = parsed
	}

	month := 0
	if raw := strings.TrimSpace(c.Query("month")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, "month 参数无效")
			return 0, 0, false
		}
		month = parsed
	}
	return year, month, true
}

func limitQuery(c *gin.Context) int {
	limit, err := strconv.Atoi(strings.TrimSpace(c.Query("limit")))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(dateFormat, strings.TrimSpace(raw), time.UTC)
}
