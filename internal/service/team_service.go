package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/runledger/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const teamStatsWindowDays = 30

// TeamService 管理小组与小组近期成绩
type TeamService struct {
	db *gorm.DB
}

// TeamMemberStats 是小组成员最近一段时间的距离
type TeamMemberStats struct {
	UserID   string  `json:"user_id"`
	Username string  `json:"username"`
	TotalKm  float64 `json:"total_km"`
}

// TeamStats 汇总小组最近 30 天的成绩
type TeamStats struct {
	Team    db.Team           `json:"team"`
	Since   string            `json:"since"`
	TotalKm float64           `json:"total_km"`
	Members []TeamMemberStats `json:"members"`
}

// NewTeamService 构造 TeamService
func NewTeamService(gdb *gorm.DB) *TeamService {
	return &TeamService{db: gdb}
}

// Create 创建小组，创建者自动成为成员。
func (s *TeamService) Create(name, createdBy string, now time.Time) (*db.Team, error) {
	title := stripMarkup(name)
	if title == "" {
		return nil, fmt.Errorf("%w: team name is required", ErrValidation)
	}
	if tooLong(title, maxNameRunes) {
		return nil, fmt.Errorf("%w: team name exceeds %d characters", ErrValidation, maxNameRunes)
	}
	creator := strings.TrimSpace(createdBy)
	if creator == "" {
		return nil, ErrInvalidUserID
	}

	team := db.Team{Name: title, CreatedBy: creator}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&team).Error; err != nil {
			return err
		}
		return tx.Omit(clause.Associations).
			Create(&db.TeamMember{TeamID: team.ID, UserID: creator, JoinedAt: now}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create team: %w", err)
	}
	return &team, nil
}

// Get 根据 ID 获取小组
func (s *TeamService) Get(teamID uint) (*db.Team, error) {
	var team db.Team
	if err := s.db.First(&team, teamID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("get team: %w", err)
	}
	return &team, nil
}

// AddMember 把用户加入小组，重复加入没有副作用。
func (s *TeamService) AddMember(teamID uint, userID string, now time.Time) error {
	id := strings.TrimSpace(userID)
	if id == "" {
		return ErrInvalidUserID
	}
	if _, err := s.Get(teamID); err != nil {
		return err
	}

	member := db.TeamMember{TeamID: teamID, UserID: id, JoinedAt: now}
	if err := s.db.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&member).Error; err != nil {
		return fmt.Errorf("add team member: %w", err)
	}
	return nil
}

// RemoveMember 移出小组成员
func (s *TeamService) RemoveMember(teamID uint, userID string) error {
	id := strings.TrimSpace(userID)
	if id == "" {
		return ErrInvalidUserID
	}
	if err := s.db.Where("team_id = ? AND user_id = ?", teamID, id).
		Delete(&db.TeamMember{}).Error; err != nil {
		return fmt.Errorf("remove team member: %w", err)
	}
	return nil
}

// UserTeams 返回用户所在的小组
func (s *TeamService) UserTeams(userID string) ([]db.Team, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, ErrInvalidUserID
	}

	var teams []db.Team
	if err := s.db.Joins("JOIN team_members ON team_members.team_id = teams.id").
		Where("team_members.user_id = ?", id).
		Order("teams.id ASC").
		Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("list user teams: %w", err)
	}
	return teams, nil
}

// Stats 返回小组成员最近 30 天的距离，没有记录的成员也会列出。
func (s *TeamService) Stats(teamID uint, now time.Time) (*TeamStats, error) {
	team, err := s.Get(teamID)
	if err != nil {
		return nil, err
	}

	since := today(now).AddDate(0, 0, -teamStatsWindowDays)
	var members []TeamMemberStats
	if err := s.db.Table("team_members").
		Select("team_members.user_id, COALESCE(users.username, '') AS username, "+
			"COALESCE(SUM(running_logs.km), 0) AS total_km").
		Joins("LEFT JOIN users ON users.user_id = team_members.user_id").
		Joins("LEFT JOIN running_logs ON running_logs.user_id = team_members.user_id "+
			"AND running_logs.date >= ?", since).
		Where("team_members.team_id = ?", team.ID).
		Group("team_members.user_id, users.username").
		Order("total_km DESC, team_members.user_id ASC").
		Scan(&members).Error; err != nil {
		return nil, fmt.Errorf("query team stats: %w", err)
	}

	stats := &TeamStats{Team: *team, Since: since.Format(dateLayout), Members: members}
	var total float64
	for i := range stats.Members {
		stats.Members[i].TotalKm = RoundKm(stats.Members[i].TotalKm)
		total += stats.Members[i].TotalKm
	}
	stats.TotalKm = RoundKm(total)
	return stats, nil
}
