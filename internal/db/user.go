package db

import "time"

const (
	// ChatTypePrivate 表示私聊来源。
	ChatTypePrivate = "private"
	// ChatTypeGroup 表示普通群组来源。
	ChatTypeGroup = "group"
	// ChatTypeSupergroup 表示超级群来源。
	ChatTypeSupergroup = "supergroup"
)

// User 定义了跑者模型，UserID 为外部系统提供的稳定标识。
// YearlyGoal 为 nil 表示尚未设置年度目标；IsActive 仅用于软删除。
type User struct {
	UserID     string `gorm:"primaryKey;size:255"`
	Username   string `gorm:"size:255"`
	YearlyGoal *float64
	IsActive   bool   `gorm:"not null;default:true"`
	ChatType   string `gorm:"size:50;default:group"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName 固定表名。
func (User) TableName() string {
	return "users"
}

// GoalKm 返回年度目标，未设置时为 0。
func (u User) GoalKm() float64 {
	if u.YearlyGoal == nil {
		return 0
	}
	return *u.YearlyGoal
}

// IsPrivate 判断用户是否来自私聊。
func (u User) IsPrivate() bool {
	return u.ChatType == ChatTypePrivate
}
