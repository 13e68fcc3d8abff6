package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Challenge 定义了一个日期区间内的目标。
// 系统挑战（IsSystem）每个聊天每年只有一条，由 SystemKey 的唯一索引保证；
// 个人挑战的 ChatID 与 SystemKey 均为空，需要显式加入。
type Challenge struct {
	ID          uint      `gorm:"primaryKey"`
	Title       string    `gorm:"size:255;not null"`
	Description string    `gorm:"size:1000"`
	GoalKm      float64   `gorm:"not null;default:0"`
	StartDate   time.Time `gorm:"type:date;not null;index"`
	EndDate     time.Time `gorm:"type:date;not null;index"`
	ChatID      *string   `gorm:"size:255;index"`
	IsSystem    bool      `gorm:"not null;default:false"`
	SystemKey   *string   `gorm:"size:300;uniqueIndex"`
	CreatedBy   string    `gorm:"size:255"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName 固定表名。
func (Challenge) TableName() string {
	return "challenges"
}

// BeforeSave 统一日期与聊天 ID，并为系统挑战生成唯一键。
func (c *Challenge) BeforeSave(tx *gorm.DB) error {
	c.StartDate = DateOnly(c.StartDate)
	c.EndDate = DateOnly(c.EndDate)
	c.ChatID = NormalizeChatIDPtr(c.ChatID)

	if c.IsSystem && c.ChatID != nil {
		key := SystemChallengeKey(*c.ChatID, c.StartDate.Year())
		c.SystemKey = &key
	} else {
		c.SystemKey = nil
	}
	return nil
}

// IsActiveOn 判断挑战在指定日期是否处于进行中（首尾日期均包含）。
func (c Challenge) IsActiveOn(day time.Time) bool {
	d := DateOnly(day)
	return !d.Before(DateOnly(c.StartDate)) && !d.After(DateOnly(c.EndDate))
}

// SystemChallengeKey 生成系统挑战的唯一键，chatID 会先做归一化。
func SystemChallengeKey(chatID string, year int) string {
	return fmt.Sprintf("%s:%d", NormalizeChatID(chatID), year)
}

// ChallengeParticipant 记录非系统挑战的参与者。
// Progress 与 Completed 只是缓存，读取参与者进度时会从流水重新计算并回写。
type ChallengeParticipant struct {
	ChallengeID uint      `gorm:"primaryKey"`
	Challenge   Challenge `gorm:"constraint:OnDelete:CASCADE"`
	UserID      string    `gorm:"primaryKey;size:255"`
	Progress    float64   `gorm:"not null;default:0"`
	Completed   bool      `gorm:"not null;default:false"`
	JoinedAt    time.Time
}

// TableName 固定表名。
func (ChallengeParticipant) TableName() string {
	return "challenge_participants"
}
