package service

import (
	"github.com/runledger/internal/db"
	"gorm.io/gorm"
)

// chatMemberScope 限定聊天统计的流水范围：
// 在该聊天提交的记录，加上曾在该聊天提交过记录的用户在其他地方（包括私聊）提交的记录。
// 聊天统计与聊天排行都通过这里取数，成员推断规则只在此处定义。
func chatMemberScope(gdb *gorm.DB, chatID string) func(*gorm.DB) *gorm.DB {
	members := gdb.Session(&gorm.Session{NewDB: true}).
		Model(&db.RunningLog{}).
		Select("DISTINCT user_id").
		Where("chat_id = ?", chatID)

	return func(tx *gorm.DB) *gorm.DB {
		return tx.Where("(running_logs.chat_id = ? OR running_logs.user_id IN (?))", chatID, members)
	}
}
