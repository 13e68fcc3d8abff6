package service

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/runledger/internal/cache"
	"github.com/runledger/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultRecentRunsLimit = 5

// RunService 负责跑步流水的写入、修改、删除与最近记录查询。
// 写操作成功后会同步失效该用户的统计缓存。
type RunService struct {
	db    *gorm.DB
	cache cache.Store
}

// RunInput 定义新增跑步记录时的输入。ChatID 为空表示私聊提交。
type RunInput struct {
	UserID     string
	DistanceKm float64
	Date       time.Time
	Notes      string
	ChatID     string
	ChatType   string
}

// NewRunService 构造 RunService，store 为 nil 时不使用缓存。
func NewRunService(gdb *gorm.DB, store cache.Store) *RunService {
	if store == nil {
		store = cache.Disabled{}
	}
	return &RunService{db: gdb, cache: store}
}

// AddEntry 校验并写入一条跑步记录。距离不在 (0, 100] 内时返回 ErrInvalidDistance，不会写库。
func (s *RunService) AddEntry(input RunInput) (*db.RunningLog, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	km, err := normalizeDistance(input.DistanceKm)
	if err != nil {
		log.Printf("[ledger] rejected run for user %s: %.3f km", userID, input.DistanceKm)
		return nil, err
	}

	date := input.Date
	if date.IsZero() {
		date = time.Now()
	}

	chatID := db.NormalizeChatID(input.ChatID)
	run := db.RunningLog{
		UserID:   userID,
		Km:       km,
		Date:     db.DateOnly(date),
		Notes:    sanitizeText(input.Notes, maxFreeTextRunes),
		ChatType: resolveChatType(input.ChatType, chatID),
	}
	if chatID != "" {
		run.ChatID = &chatID
	}

	if err := writeAndInvalidate(s.db, s.cache, userID, func(tx *gorm.DB) error {
		return tx.Create(&run).Error
	}); err != nil {
		return nil, fmt.Errorf("add run: %w", err)
	}

	log.Printf("[ledger] user %s logged %.2f km on %s (chat=%s)", userID, run.Km, run.Date.Format(dateLayout), chatID)
	return &run, nil
}

// Get 根据 ID 获取跑步记录
func (s *RunService) Get(logID uint) (*db.RunningLog, error) {
	var run db.RunningLog
	if err := s.db.First(&run, logID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &run, nil
}

// EditEntry 修改记录的距离，只有记录所有者可以操作，距离按新增时的规则重新校验。
func (s *RunService) EditEntry(logID uint, newKm float64, requestingUserID string) (*db.RunningLog, error) {
	requester := strings.TrimSpace(requestingUserID)
	if requester == "" {
		return nil, ErrInvalidUserID
	}

	km, err := normalizeDistance(newKm)
	if err != nil {
		return nil, err
	}

	var run db.RunningLog
	err = writeAndInvalidate(s.db, s.cache, requester, func(tx *gorm.DB) error {
		if err := lockRun(tx, logID, requester, &run); err != nil {
			return err
		}
		run.Km = km
		return tx.Save(&run).Error
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("edit run: %w", err)
	}

	return &run, nil
}

// DeleteEntry 删除一条记录，只有记录所有者可以操作。
func (s *RunService) DeleteEntry(logID uint, requestingUserID string) error {
	requester := strings.TrimSpace(requestingUserID)
	if requester == "" {
		return ErrInvalidUserID
	}

	err := writeAndInvalidate(s.db, s.cache, requester, func(tx *gorm.DB) error {
		var run db.RunningLog
		if err := lockRun(tx, logID, requester, &run); err != nil {
			return err
		}
		return tx.Delete(&run).Error
	})
	if err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("delete run: %w", err)
	}

	return nil
}

// ListRecent 返回用户最近的跑步记录，按日期倒序，同日按写入顺序倒序。
func (s *RunService) ListRecent(userID string, limit int) ([]db.RunningLog, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, ErrInvalidUserID
	}
	if limit <= 0 {
		limit = defaultRecentRunsLimit
	}

	var runs []db.RunningLog
	if err := s.db.Where("user_id = ?", id).
		Order("date DESC, id DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	return runs, nil
}

func lockRun(tx *gorm.DB, logID uint, requester string, run *db.RunningLog) error {
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(run, logID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRunNotFound
		}
		return err
	}
	if run.UserID != requester {
		return ErrNotRunOwner
	}
	return nil
}

// writeAndInvalidate 在事务内执行写操作并失效用户缓存：事务内失效失败会回滚写入，
// 提交后再失效一次，清掉事务提交前被并发读回填的旧值。
func writeAndInvalidate(gdb *gorm.DB, store cache.Store, userID string, write func(tx *gorm.DB) error) error {
	if err := gdb.Transaction(func(tx *gorm.DB) error {
		if err := write(tx); err != nil {
			return err
		}
		return store.Invalidate(userID)
	}); err != nil {
		return err
	}

	if err := store.Invalidate(userID); err != nil {
		log.Printf("[ledger] post-commit cache invalidation for user %s failed: %v", userID, err)
	}
	return nil
}

func normalizeDistance(km float64) (float64, error) {
	if !ValidDistance(km) {
		return 0, ErrInvalidDistance
	}
	rounded := RoundKm(km)
	if rounded <= 0 {
		return 0, ErrInvalidDistance
	}
	return rounded, nil
}

func resolveChatType(chatType, chatID string) string {
	switch strings.ToLower(strings.TrimSpace(chatType)) {
	case db.ChatTypePrivate:
		return db.ChatTypePrivate
	case db.ChatTypeGroup:
		return db.ChatTypeGroup
	case db.ChatTypeSupergroup:
		return db.ChatTypeSupergroup
	}
	if chatID == "" {
		return db.ChatTypePrivate
	}
	return db.ChatTypeGroup
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden)
}
