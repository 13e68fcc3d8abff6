package service

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/runledger/internal/cache"
	"github.com/runledger/internal/db"
	"gorm.io/gorm"
)

const defaultTopLimit = 10

// StatsService 提供只读的聚合统计，所有求和结果保留两位小数。
type StatsService struct {
	db    *gorm.DB
	cache cache.Store
}

// UserStats 是用户在某个周期内的汇总
type UserStats struct {
	RunsCount int64   `json:"runs_count"`
	TotalKm   float64 `json:"total_km"`
	AvgKm     float64 `json:"avg_km"`
}

// BestStats 是用户的历史最佳，不受年份过滤
type BestStats struct {
	BestRun   float64 `json:"best_run"`
	TotalRuns int64   `json:"total_runs"`
	TotalKm   float64 `json:"total_km"`
}

// ChatStats 是聊天维度的汇总，UsersCount 与记录使用同一套成员推断规则。
type ChatStats struct {
	RunsCount  int64   `json:"runs_count"`
	TotalKm    float64 `json:"total_km"`
	AvgKm      float64 `json:"avg_km"`
	BestRun    float64 `json:"best_run"`
	UsersCount int64   `json:"users_count"`
}

// RunnerStats 是排行榜中的一行
type RunnerStats struct {
	UserID    string  `json:"user_id"`
	Username  string  `json:"username"`
	TotalKm   float64 `json:"total_km"`
	RunsCount int64   `json:"runs_count"`
	AvgKm     float64 `json:"avg_km"`
	BestRun   float64 `json:"best_run"`
}

// GlobalRank 描述用户的全站排名，Rank 为 0 表示当年没有记录。
type GlobalRank struct {
	Rank       int     `json:"rank"`
	TotalUsers int     `json:"total_users"`
	TotalKm    float64 `json:"total_km"`
}

// MonthlyTotal 月度小计
type MonthlyTotal struct {
	Month     int     `json:"month"`
	RunsCount int64   `json:"runs_count"`
	TotalKm   float64 `json:"total_km"`
}

// PersonalStats 是个人年度详情
type PersonalStats struct {
	Year        int            `json:"year"`
	RunsCount   int64          `json:"runs_count"`
	TotalKm     float64        `json:"total_km"`
	AvgKm       float64        `json:"avg_km"`
	LongestRun  float64        `json:"longest_run"`
	ShortestRun float64        `json:"shortest_run"`
	ActiveDays  int            `json:"active_days"`
	GoalKm      float64        `json:"goal_km"`
	Percentage  float64        `json:"percentage"`
	Monthly     []MonthlyTotal `json:"monthly"`
}

// ChatPeriodStats 是聊天从年初到某日（含）的累计
type ChatPeriodStats struct {
	Until      string  `json:"until"`
	RunsCount  int64   `json:"runs_count"`
	TotalKm    float64 `json:"total_km"`
	UsersCount int64   `json:"users_count"`
}

// ChatRanking 是聊天排行中的一行，只统计直接标记为该聊天的记录。
type ChatRanking struct {
	ChatID     string  `json:"chat_id"`
	RunsCount  int64   `json:"runs_count"`
	TotalKm    float64 `json:"total_km"`
	AvgKm      float64 `json:"avg_km"`
	UsersCount int64   `json:"users_count"`
}

// TotalStats 是全站汇总
type TotalStats struct {
	RunsCount  int64   `json:"runs_count"`
	UsersCount int64   `json:"users_count"`
	TotalKm    float64 `json:"total_km"`
	AvgKm      float64 `json:"avg_km"`
}

// GoalProgress 是目标榜中的一行
type GoalProgress struct {
	UserID     string  `json:"user_id"`
	Username   string  `json:"username"`
	GoalKm     float64 `json:"goal_km"`
	TotalKm    float64 `json:"total_km"`
	Percentage float64 `json:"percentage"`
}

// NewStatsService 构造 StatsService
func NewStatsService(gdb *gorm.DB, store cache.Store) *StatsService {
	if store == nil {
		store = cache.Disabled{}
	}
	return &StatsService{db: gdb, cache: store}
}

// UserStats 返回用户在指定年（month 为 0）或指定月的汇总，结果会缓存到下次写入前。
func (s *StatsService) UserStats(userID string, year, month int) (UserStats, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return UserStats{}, ErrInvalidUserID
	}
	start, end, err := periodRange(year, month)
	if err != nil {
		return UserStats{}, err
	}

	field := fmt.Sprintf("user_stats:%04d-%02d", year, month)
	if raw, ok := s.cache.Get(id, field); ok {
		var cached UserStats
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		log.Printf("[stats] discard malformed cache entry %s/%s", id, field)
	}

	// 代数必须在查库前读取，期间提交的写入会使回填失效
	gen, genErr := s.cache.Generation(id)
	if genErr != nil {
		log.Printf("[stats] skip caching for %s: %v", id, genErr)
	}

	var stats UserStats
	if err := s.db.Model(&db.RunningLog{}).
		Select("COUNT(*) AS runs_count, COALESCE(SUM(km), 0) AS total_km, COALESCE(AVG(km), 0) AS avg_km").
		Where("user_id = ? AND date >= ? AND date < ?", id, start, end).
		Scan(&stats).Error; err != nil {
		return UserStats{}, fmt.Errorf("query user stats: %w", err)
	}
	stats.TotalKm = RoundKm(stats.TotalKm)
	stats.AvgKm = RoundKm(stats.AvgKm)

	if genErr == nil {
		if raw, err := json.Marshal(stats); err == nil {
			s.cache.Set(id, field, gen, raw)
		}
	}
	return stats, nil
}

// BestStats 返回用户历史最长单次、总次数与总距离
func (s *StatsService) BestStats(userID string) (BestStats, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return BestStats{}, ErrInvalidUserID
	}

	var stats BestStats
	if err := s.db.Model(&db.RunningLog{}).
		Select("COALESCE(MAX(km), 0) AS best_run, COUNT(*) AS total_runs, COALESCE(SUM(km), 0) AS total_km").
		Where("user_id = ?", id).
		Scan(&stats).Error; err != nil {
		return BestStats{}, fmt.Errorf("query best stats: %w", err)
	}
	stats.BestRun = RoundKm(stats.BestRun)
	stats.TotalKm = RoundKm(stats.TotalKm)
	return stats, nil
}

// ChatStats 返回聊天在指定周期内的汇总，成员范围见 chatMemberScope。
func (s *StatsService) ChatStats(chatID string, year, month int) (ChatStats, error) {
	id := db.NormalizeChatID(chatID)
	if id == "" {
		return ChatStats{}, ErrInvalidChatID
	}
	start, end, err := periodRange(year, month)
	if err != nil {
		return ChatStats{}, err
	}

	var stats ChatStats
	if err := s.db.Model(&db.RunningLog{}).
		Scopes(chatMemberScope(s.db, id)).
		Select("COUNT(*) AS runs_count, COALESCE(SUM(running_logs.km), 0) AS total_km, "+
			"COALESCE(AVG(running_logs.km), 0) AS avg_km, COALESCE(MAX(running_logs.km), 0) AS best_run, "+
			"COUNT(DISTINCT running_logs.user_id) AS users_count").
		Where("running_logs.date >= ? AND running_logs.date < ?", start, end).
		Scan(&stats).Error; err != nil {
		return ChatStats{}, fmt.Errorf("query chat stats: %w", err)
	}
	stats.TotalKm = RoundKm(stats.TotalKm)
	stats.AvgKm = RoundKm(stats.AvgKm)
	stats.BestRun = RoundKm(stats.BestRun)
	return stats, nil
}

// ChatStatsUntil 返回聊天从 date 所在年份 1 月 1 日到 date（含）的累计。
func (s *StatsService) ChatStatsUntil(chatID string, date time.Time) (ChatPeriodStats, error) {
	id := db.NormalizeChatID(chatID)
	if id == "" {
		return ChatPeriodStats{}, ErrInvalidChatID
	}
	day := db.DateOnly(date)
	if !validYear(day.Year()) {
		return ChatPeriodStats{}, ErrInvalidPeriod
	}
	start, _ := yearBounds(day.Year())

	var stats ChatPeriodStats
	if err := s.db.Model(&db.RunningLog{}).
		Scopes(chatMemberScope(s.db, id)).
		Select("COUNT(*) AS runs_count, COALESCE(SUM(running_logs.km), 0) AS total_km, "+
			"COUNT(DISTINCT running_logs.user_id) AS users_count").
		Where("running_logs.date >= ? AND running_logs.date < ?", start, day.AddDate(0, 0, 1)).
		Scan(&stats).Error; err != nil {
		return ChatPeriodStats{}, fmt.Errorf("query chat stats until %s: %w", day.Format(dateLayout), err)
	}
	stats.Until = day.Format(dateLayout)
	stats.TotalKm = RoundKm(stats.TotalKm)
	return stats, nil
}

// ChatTopUsers 返回聊天成员的年度排行
func (s *StatsService) ChatTopUsers(chatID string, year, limit int) ([]RunnerStats, error) {
	id := db.NormalizeChatID(chatID)
	if id == "" {
		return nil, ErrInvalidChatID
	}
	rows, err := s.runnerTotals(year, chatMemberScope(s.db, id))
	if err != nil {
		return nil, err
	}
	return limitRunners(rows, limit), nil
}

// TopRunners 返回全站年度排行，按总距离倒序，距离相同按用户 ID 升序。
func (s *StatsService) TopRunners(year, limit int) ([]RunnerStats, error) {
	rows, err := s.runnerTotals(year, nil)
	if err != nil {
		return nil, err
	}
	return limitRunners(rows, limit), nil
}

// GlobalRank 返回用户在全站年度排行中的位置（从 1 开始）。
func (s *StatsService) GlobalRank(userID string, year int) (GlobalRank, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return GlobalRank{}, ErrInvalidUserID
	}

	rows, err := s.runnerTotals(year, nil)
	if err != nil {
		return GlobalRank{}, err
	}

	result := GlobalRank{TotalUsers: len(rows)}
	for i, row := range rows {
		if row.UserID == id {
			result.Rank = i + 1
			result.TotalKm = row.TotalKm
			break
		}
	}
	return result, nil
}

// PersonalStats 返回个人年度详情，包括最长与最短单次、活跃天数与月度小计。
func (s *StatsService) PersonalStats(userID string, year int) (PersonalStats, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return PersonalStats{}, ErrInvalidUserID
	}
	start, end, err := periodRange(year, 0)
	if err != nil {
		return PersonalStats{}, err
	}

	var runs []db.RunningLog
	if err := s.db.Select("km", "date").
		Where("user_id = ? AND date >= ? AND date < ?", id, start, end).
		Order("date ASC, id ASC").
		Find(&runs).Error; err != nil {
		return PersonalStats{}, fmt.Errorf("query personal runs: %w", err)
	}

	stats := PersonalStats{Year: year}
	monthly := make(map[int]*MonthlyTotal)
	days := make(map[string]struct{})
	var total float64
	for i, run := range runs {
		total += run.Km
		if i == 0 || run.Km > stats.LongestRun {
			stats.LongestRun = run.Km
		}
		if i == 0 || run.Km < stats.ShortestRun {
			stats.ShortestRun = run.Km
		}
		days[run.Date.Format(dateLayout)] = struct{}{}

		month := int(run.Date.Month())
		bucket, ok := monthly[month]
		if !ok {
			bucket = &MonthlyTotal{Month: month}
			monthly[month] = bucket
		}
		bucket.RunsCount++
		bucket.TotalKm += run.Km
	}

	stats.RunsCount = int64(len(runs))
	stats.TotalKm = RoundKm(total)
	if len(runs) > 0 {
		stats.AvgKm = RoundKm(total / float64(len(runs)))
	}
	stats.ActiveDays = len(days)
	stats.Monthly = make([]MonthlyTotal, 0, len(monthly))
	for month := 1; month <= 12; month++ {
		if bucket, ok := monthly[month]; ok {
			bucket.TotalKm = RoundKm(bucket.TotalKm)
			stats.Monthly = append(stats.Monthly, *bucket)
		}
	}

	var user db.User
	if err := s.db.Where("user_id = ?", id).Limit(1).Find(&user).Error; err != nil {
		return PersonalStats{}, fmt.Errorf("load user goal: %w", err)
	}
	stats.GoalKm = user.GoalKm()
	stats.Percentage = Percentage(stats.TotalKm, stats.GoalKm)
	return stats, nil
}

// ChatsRanking 返回各聊天的年度排行
func (s *StatsService) ChatsRanking(year int) ([]ChatRanking, error) {
	start, end, err := periodRange(year, 0)
	if err != nil {
		return nil, err
	}

	var rows []ChatRanking
	if err := s.db.Model(&db.RunningLog{}).
		Select("chat_id, COUNT(*) AS runs_count, COALESCE(SUM(km), 0) AS total_km, "+
			"COALESCE(AVG(km), 0) AS avg_km, COUNT(DISTINCT user_id) AS users_count").
		Where("chat_id IS NOT NULL AND date >= ? AND date < ?", start, end).
		Group("chat_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query chats ranking: %w", err)
	}

	for i := range rows {
		rows[i].TotalKm = RoundKm(rows[i].TotalKm)
		rows[i].AvgKm = RoundKm(rows[i].AvgKm)
	}
	slices.SortFunc(rows, func(a, b ChatRanking) int {
		if c := cmp.Compare(b.TotalKm, a.TotalKm); c != 0 {
			return c
		}
		return strings.Compare(a.ChatID, b.ChatID)
	})
	return rows, nil
}

// TotalStats 返回全站在指定周期内的汇总
func (s *StatsService) TotalStats(year, month int) (TotalStats, error) {
	start, end, err := periodRange(year, month)
	if err != nil {
		return TotalStats{}, err
	}

	var stats TotalStats
	if err := s.db.Model(&db.RunningLog{}).
		Select("COUNT(*) AS runs_count, COUNT(DISTINCT user_id) AS users_count, "+
			"COALESCE(SUM(km), 0) AS total_km, COALESCE(AVG(km), 0) AS avg_km").
		Where("date >= ? AND date < ?", start, end).
		Scan(&stats).Error; err != nil {
		return TotalStats{}, fmt.Errorf("query total stats: %w", err)
	}
	stats.TotalKm = RoundKm(stats.TotalKm)
	stats.AvgKm = RoundKm(stats.AvgKm)
	return stats, nil
}

// GoalLeaderboard 返回设置了年度目标的活跃用户及其完成度
func (s *StatsService) GoalLeaderboard(year int) ([]GoalProgress, error) {
	start, end, err := periodRange(year, 0)
	if err != nil {
		return nil, err
	}

	var rows []GoalProgress
	if err := s.db.Table("users").
		Select("users.user_id, users.username, users.yearly_goal AS goal_km, "+
			"COALESCE(SUM(running_logs.km), 0) AS total_km").
		Joins("LEFT JOIN running_logs ON running_logs.user_id = users.user_id "+
			"AND running_logs.date >= ? AND running_logs.date < ?", start, end).
		Where("users.yearly_goal > 0 AND users.is_active = ?", true).
		Group("users.user_id, users.username, users.yearly_goal").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query goal leaderboard: %w", err)
	}

	for i := range rows {
		rows[i].TotalKm = RoundKm(rows[i].TotalKm)
		rows[i].Percentage = Percentage(rows[i].TotalKm, rows[i].GoalKm)
	}
	slices.SortFunc(rows, func(a, b GoalProgress) int {
		if c := cmp.Compare(b.TotalKm, a.TotalKm); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return rows, nil
}

// runnerTotals 按用户汇总年度数据并排好序，scope 为 nil 时统计全站。
func (s *StatsService) runnerTotals(year int, scope func(*gorm.DB) *gorm.DB) ([]RunnerStats, error) {
	start, end, err := periodRange(year, 0)
	if err != nil {
		return nil, err
	}

	query := s.db.Model(&db.RunningLog{}).
		Select("running_logs.user_id, COALESCE(users.username, '') AS username, "+
			"COALESCE(SUM(running_logs.km), 0) AS total_km, COUNT(*) AS runs_count, "+
			"COALESCE(AVG(running_logs.km), 0) AS avg_km, COALESCE(MAX(running_logs.km), 0) AS best_run").
		Joins("LEFT JOIN users ON users.user_id = running_logs.user_id").
		Where("running_logs.date >= ? AND running_logs.date < ?", start, end)
	if scope != nil {
		query = query.Scopes(scope)
	}

	var rows []RunnerStats
	if err := query.Group("running_logs.user_id, users.username").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("query runner totals: %w", err)
	}

	for i := range rows {
		rows[i].TotalKm = RoundKm(rows[i].TotalKm)
		rows[i].AvgKm = RoundKm(rows[i].AvgKm)
		rows[i].BestRun = RoundKm(rows[i].BestRun)
	}
	slices.SortFunc(rows, func(a, b RunnerStats) int {
		if c := cmp.Compare(b.TotalKm, a.TotalKm); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return rows, nil
}

func limitRunners(rows []RunnerStats, limit int) []RunnerStats {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
