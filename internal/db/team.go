package db

import "time"

// Team 是一组跑者，用于统计最近一段时间的小组成绩。
type Team struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	CreatedBy string    `gorm:"size:255" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName 固定表名。
func (Team) TableName() string {
	return "teams"
}

// TeamMember 记录小组成员关系。
type TeamMember struct {
	TeamID   uint   `gorm:"primaryKey"`
	Team     Team   `gorm:"constraint:OnDelete:CASCADE"`
	UserID   string `gorm:"primaryKey;size:255"`
	JoinedAt time.Time
}

// TableName 固定表名。
func (TeamMember) TableName() string {
	return "team_members"
}
