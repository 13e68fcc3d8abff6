package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/runledger/internal/cache"
	"github.com/runledger/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserService 负责跑者身份与年度目标
type UserService struct {
	db    *gorm.DB
	cache cache.Store
}

// NewUserService 构造 UserService
func NewUserService(gdb *gorm.DB, store cache.Store) *UserService {
	if store == nil {
		store = cache.Disabled{}
	}
	return &UserService{db: gdb, cache: store}
}

// GetOrCreate 幂等地获取或创建用户：已存在时原样返回，不覆盖用户名。
func (s *UserService) GetOrCreate(userID, username, chatType string) (*db.User, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, ErrInvalidUserID
	}

	candidate := db.User{
		UserID:   id,
		Username: sanitizeText(username, maxNameRunes),
		IsActive: true,
		ChatType: normalizeUserChatType(chatType),
	}

	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&candidate).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	var user db.User
	if err := s.db.Where("user_id = ?", id).First(&user).Error; err != nil {
		return nil, fmt.Errorf("reload user: %w", err)
	}
	return &user, nil
}

// Get 根据 ID 获取用户
func (s *UserService) Get(userID string) (*db.User, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, ErrInvalidUserID
	}

	var user db.User
	if err := s.db.Where("user_id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// SetGoal 覆盖用户的年度目标，不保留历史。负数或非有限值返回 ErrInvalidGoal。
func (s *UserService) SetGoal(userID string, goalKm float64) (*db.User, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, ErrInvalidUserID
	}
	if !validGoal(goalKm) {
		return nil, ErrInvalidGoal
	}

	goal := RoundKm(goalKm)
	var user db.User
	err := writeAndInvalidate(s.db, s.cache, id, func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", id).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		user.YearlyGoal = &goal
		return tx.Model(&user).Update("yearly_goal", goal).Error
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("set goal: %w", err)
	}

	return &user, nil
}

// Rename 更新显示名称
func (s *UserService) Rename(userID, username string) (*db.User, error) {
	user, err := s.Get(userID)
	if err != nil {
		return nil, err
	}

	name := sanitizeText(username, maxNameRunes)
	if err := s.db.Model(user).Update("username", name).Error; err != nil {
		return nil, fmt.Errorf("rename user: %w", err)
	}
	user.Username = name
	return user, nil
}

// Deactivate 软删除用户，流水与统计保持不变。
func (s *UserService) Deactivate(userID string) error {
	user, err := s.Get(userID)
	if err != nil {
		return err
	}
	if err := s.db.Model(user).Update("is_active", false).Error; err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

func normalizeUserChatType(chatType string) string {
	if strings.ToLower(strings.TrimSpace(chatType)) == db.ChatTypePrivate {
		return db.ChatTypePrivate
	}
	return db.ChatTypeGroup
}
