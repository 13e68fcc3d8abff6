package main

import (
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/joho/godotenv"
	"github.com/runledger/internal/cache"
	"github.com/runledger/internal/config"
	"github.com/runledger/internal/db"
	"github.com/runledger/internal/service"
	"gorm.io/gorm"
)

type demoRunner struct {
	id     string
	name   string
	chatID string
	goalKm float64
	pace   float64
}

var demoRunners = []demoRunner{
	{id: "1001", name: "晨跑小王", chatID: "-1001500", goalKm: 1200, pace: 8},
	{id: "1002", name: "夜跑阿李", chatID: "-1001500", goalKm: 800, pace: 6},
	{id: "1003", name: "周末跑者", chatID: "1500", goalKm: 0, pace: 12},
	{id: "1004", name: "越野老张", chatID: "-1002600", goalKm: 2000, pace: 15},
	{id: "1005", name: "独行侠", chatID: "", goalKm: 500, pace: 5},
}

// seedSummary 记录生成结果，便于脚本输出与测试断言
type seedSummary struct {
	Runners    int
	Runs       int
	Challenges int
	Teams      int
}

// 测试数据生成器
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	// 初始化数据库
	gdb, err := db.Open(db.Options{
		Driver:   cfg.DatabaseDriver,
		Path:     cfg.DatabasePath,
		DSN:      cfg.DatabaseDSN,
		LogLevel: cfg.DBLogLevel,
	})
	if err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	summary, err := seedDemoData(gdb, time.Now(), 42)
	if err != nil {
		log.Fatal("生成测试数据失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("跑者: %d 人\n", summary.Runners)
	fmt.Printf("跑步记录: %d 条\n", summary.Runs)
	fmt.Printf("挑战: %d 个\n", summary.Challenges)
	fmt.Printf("小组: %d 个\n", summary.Teams)
}

// seedDemoData 通过引擎写入最近 60 天的演示数据，相同 seed 生成相同的距离序列。
// 已有跑步记录时跳过，避免重复执行叠加数据。
func seedDemoData(gdb *gorm.DB, now time.Time, seed uint64) (seedSummary, error) {
	var summary seedSummary

	var existing int64
	if err := gdb.Model(&db.RunningLog{}).Count(&existing).Error; err != nil {
		return summary, fmt.Errorf("count runs: %w", err)
	}
	if existing > 0 {
		fmt.Println("跑步记录已存在，跳过创建")
		return summary, nil
	}

	engine := service.NewEngine(gdb, cache.Disabled{})
	rng := rand.New(rand.NewPCG(seed, seed^0x5eed))
	today := db.DateOnly(now)

	for _, runner := range demoRunners {
		chatType := db.ChatTypeGroup
		if runner.chatID == "" {
			chatType = db.ChatTypePrivate
		}

		for offset := 59; offset >= 0; offset-- {
			// 大约一半的日子有记录
			if rng.IntN(2) == 0 {
				continue
			}
			km := runner.pace*0.5 + rng.Float64()*runner.pace
			if _, err := engine.RecordRun(service.RecordRunInput{
				RunInput: service.RunInput{
					UserID:     runner.id,
					DistanceKm: km,
					Date:       today.AddDate(0, 0, -offset),
					ChatID:     runner.chatID,
					ChatType:   chatType,
				},
				Username: runner.name,
			}, now); err != nil {
				return summary, fmt.Errorf("record run for %s: %w", runner.id, err)
			}
			summary.Runs++
		}

		if runner.goalKm > 0 {
			if _, err := engine.Users.SetGoal(runner.id, runner.goalKm); err != nil {
				return summary, fmt.Errorf("set goal for %s: %w", runner.id, err)
			}
		}
		summary.Runners++
	}
	fmt.Println("✅ 跑者与跑步记录创建完成")

	if _, err := engine.Challenges.UpdateChatGoal("1500", now.Year(), 3000); err != nil {
		return summary, fmt.Errorf("set chat goal: %w", err)
	}

	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	challenge, err := engine.Challenges.CreatePersonalChallenge(service.PersonalChallengeInput{
		Title:       "月度 200 公里",
		Description: "本月一起跑满 200 公里",
		GoalKm:      200,
		StartDate:   monthStart,
		EndDate:     monthStart.AddDate(0, 1, -1),
		CreatedBy:   demoRunners[0].id,
	})
	if err != nil {
		return summary, fmt.Errorf("create personal challenge: %w", err)
	}
	for _, runner := range demoRunners[:3] {
		if err := engine.Challenges.Join(challenge.ID, runner.id, now); err != nil {
			return summary, fmt.Errorf("join challenge: %w", err)
		}
	}
	fmt.Println("✅ 挑战创建完成")

	team, err := engine.Teams.Create("周末长距离", demoRunners[3].id, now)
	if err != nil {
		return summary, fmt.Errorf("create team: %w", err)
	}
	if err := engine.Teams.AddMember(team.ID, demoRunners[4].id, now); err != nil {
		return summary, fmt.Errorf("add team member: %w", err)
	}
	summary.Teams = 1
	fmt.Println("✅ 小组创建完成")

	var challenges int64
	if err := gdb.Model(&db.Challenge{}).Count(&challenges).Error; err != nil {
		return summary, fmt.Errorf("count challenges: %w", err)
	}
	summary.Challenges = int(challenges)
	return summary, nil
}
