package db

import (
	"time"

	"gorm.io/gorm"
)

// RunningLog 记录一次跑步。
// Km 写入前已按两位小数取整；Date 只保留日期部分（UTC 零点）。
// ChatID 为空表示私聊提交，非空时总是归一化后的聊天 ID。
type RunningLog struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    string    `gorm:"size:255;not null;index:idx_running_logs_user_date,priority:1"`
	Km        float64   `gorm:"not null"`
	Date      time.Time `gorm:"type:date;not null;index:idx_running_logs_user_date,priority:2;index:idx_running_logs_date"`
	Notes     string    `gorm:"size:1000"`
	ChatID    *string   `gorm:"size:255;index"`
	ChatType  string    `gorm:"size:50"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName 固定表名。
func (RunningLog) TableName() string {
	return "running_logs"
}

// BeforeSave 在写库前统一日期与聊天 ID 的格式。
func (r *RunningLog) BeforeSave(tx *gorm.DB) error {
	r.Date = DateOnly(r.Date)
	r.ChatID = NormalizeChatIDPtr(r.ChatID)
	return nil
}

// DateOnly 将时间截断为所在日历日的 UTC 零点。
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
