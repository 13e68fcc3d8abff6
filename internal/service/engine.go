package service

import (
	"log"
	"time"

	"github.com/runledger/internal/cache"
	"github.com/runledger/internal/db"
	"gorm.io/gorm"
)

// Engine 汇总全部服务，供机器人进程或 HTTP 层直接调用。
type Engine struct {
	Users      *UserService
	Runs       *RunService
	Challenges *ChallengeService
	Stats      *StatsService
	Teams      *TeamService
}

// RecordRunInput 是一次完整的提交：提交者身份加上跑步记录。
type RecordRunInput struct {
	RunInput
	Username string
}

// RecordRunResult 是提交后的结果。YearStats 读取失败时为 nil，记录本身已经写入。
type RecordRunResult struct {
	Run        *db.RunningLog `json:"run"`
	User       *db.User       `json:"user"`
	Challenges []db.Challenge `json:"challenges"`
	YearStats  *UserStats     `json:"year_stats,omitempty"`
}

// NewEngine 使用同一个数据库与缓存构造全部服务
func NewEngine(gdb *gorm.DB, store cache.Store) *Engine {
	if store == nil {
		store = cache.Disabled{}
	}
	return &Engine{
		Users:      NewUserService(gdb, store),
		Runs:       NewRunService(gdb, store),
		Challenges: NewChallengeService(gdb),
		Stats:      NewStatsService(gdb, store),
		Teams:      NewTeamService(gdb),
	}
}

// RecordRun 登记用户、在群聊中确保年度挑战存在，最后写入记录。
// 写入放在最后，前面的步骤都是幂等的，调用方出错重试不会重复记账。
func (e *Engine) RecordRun(input RecordRunInput, now time.Time) (*RecordRunResult, error) {
	if _, err := normalizeDistance(input.DistanceKm); err != nil {
		return nil, err
	}

	user, err := e.Users.GetOrCreate(input.UserID, input.Username, input.ChatType)
	if err != nil {
		return nil, err
	}

	if input.Date.IsZero() {
		input.Date = now
	}

	chatID := db.NormalizeChatID(input.ChatID)
	var challenges []db.Challenge
	if chatID != "" && resolveChatType(input.ChatType, chatID) != db.ChatTypePrivate {
		challenges, err = e.Challenges.AutoJoin(user.UserID, chatID, now)
		if err != nil {
			return nil, err
		}
	}

	run, err := e.Runs.AddEntry(input.RunInput)
	if err != nil {
		return nil, err
	}

	result := &RecordRunResult{Run: run, User: user, Challenges: challenges}
	stats, err := e.Stats.UserStats(user.UserID, run.Date.Year(), 0)
	if err != nil {
		log.Printf("[ledger] read year stats after recording run %d failed: %v", run.ID, err)
		return result, nil
	}
	result.YearStats = &stats
	return result, nil
}
