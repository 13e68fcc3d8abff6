package service

import (
	"cmp"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/runledger/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const systemCreator = "system"

// ChallengeService 管理挑战：聊天年度系统挑战与需要显式加入的个人挑战。
type ChallengeService struct {
	db *gorm.DB
}

// PersonalChallengeInput 定义创建个人挑战时的输入。
type PersonalChallengeInput struct {
	Title       string
	Description string
	GoalKm      float64
	StartDate   time.Time
	EndDate     time.Time
	CreatedBy   string
}

// ChallengeSummary 是挑战加上实时计算的参与人数与进度
type ChallengeSummary struct {
	Challenge         db.Challenge `json:"challenge"`
	ParticipantsCount int64        `json:"participants_count"`
	TotalKm           float64      `json:"total_km"`
	Percentage        float64      `json:"percentage"`
	Active            bool         `json:"active"`
}

// UserChallenge 是用户参加的挑战及其个人在挑战期内的距离
type UserChallenge struct {
	Challenge db.Challenge `json:"challenge"`
	UserKm    float64      `json:"user_km"`
}

// ChallengeStanding 是挑战排行中的一行
type ChallengeStanding struct {
	UserID     string  `json:"user_id"`
	Username   string  `json:"username"`
	TotalKm    float64 `json:"total_km"`
	ActiveDays int64   `json:"active_days"`
}

// ParticipantProgress 是参与者进度，由流水重新计算得到
type ParticipantProgress struct {
	UserID     string  `json:"user_id"`
	Progress   float64 `json:"progress"`
	Completed  bool    `json:"completed"`
	Percentage float64 `json:"percentage"`
}

// NewChallengeService 构造 ChallengeService
func NewChallengeService(gdb *gorm.DB) *ChallengeService {
	return &ChallengeService{db: gdb}
}

// EnsureYearlyChallenge 返回聊天某年的系统挑战，不存在时创建。
// 并发调用依靠 system_key 唯一索引与 ON CONFLICT DO NOTHING 收敛到同一条记录。
func (s *ChallengeService) EnsureYearlyChallenge(chatID string, year int) (*db.Challenge, error) {
	id := db.NormalizeChatID(chatID)
	if id == "" {
		return nil, ErrInvalidChatID
	}
	if !validYear(year) {
		return nil, ErrInvalidPeriod
	}

	start, end := yearBounds(year)
	candidate := db.Challenge{
		Title:     fmt.Sprintf("Yearly goal %d", year),
		StartDate: start,
		EndDate:   end,
		ChatID:    &id,
		IsSystem:  true,
		CreatedBy: systemCreator,
	}

	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "system_key"}},
		DoNothing: true,
	}).Create(&candidate)
	if result.Error != nil {
		return nil, fmt.Errorf("create yearly challenge: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		log.Printf("[challenge] created yearly challenge %d for chat %s (%d)", candidate.ID, id, year)
	}

	return s.SystemChallenge(id, year)
}

// AutoJoin 在群聊提交记录时确保当年与次年的系统挑战存在。
// 系统挑战的参与者由流水推断，不写入参与者表。
func (s *ChallengeService) AutoJoin(userID, chatID string, now time.Time) ([]db.Challenge, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}

	challenges := make([]db.Challenge, 0, 2)
	for _, year := range []int{now.Year(), now.Year() + 1} {
		challenge, err := s.EnsureYearlyChallenge(chatID, year)
		if err != nil {
			return nil, err
		}
		challenges = append(challenges, *challenge)
	}
	return challenges, nil
}

// SystemChallenge 查找聊天某年的系统挑战
func (s *ChallengeService) SystemChallenge(chatID string, year int) (*db.Challenge, error) {
	id := db.NormalizeChatID(chatID)
	if id == "" {
		return nil, ErrInvalidChatID
	}

	var challenge db.Challenge
	if err := s.db.Where("system_key = ?", db.SystemChallengeKey(id, year)).First(&challenge).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("get system challenge: %w", err)
	}
	return &challenge, nil
}

// CreatePersonalChallenge 创建一个需要显式加入的个人挑战
func (s *ChallengeService) CreatePersonalChallenge(input PersonalChallengeInput) (*db.Challenge, error) {
	title := stripMarkup(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidChallenge)
	}
	if tooLong(title, maxNameRunes) {
		return nil, fmt.Errorf("%w: title exceeds %d characters", ErrInvalidChallenge, maxNameRunes)
	}
	if !validGoal(input.GoalKm) {
		return nil, ErrInvalidGoal
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return nil, fmt.Errorf("%w: start and end dates are required", ErrInvalidChallenge)
	}
	start, end := db.DateOnly(input.StartDate), db.DateOnly(input.EndDate)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidChallenge)
	}

	challenge := db.Challenge{
		Title:       title,
		Description: sanitizeText(input.Description, maxFreeTextRunes),
		GoalKm:      RoundKm(input.GoalKm),
		StartDate:   start,
		EndDate:     end,
		CreatedBy:   strings.TrimSpace(input.CreatedBy),
	}
	if err := s.db.Create(&challenge).Error; err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}
	return &challenge, nil
}

// Get 根据 ID 获取挑战
func (s *ChallengeService) Get(challengeID uint) (*db.Challenge, error) {
	var challenge db.Challenge
	if err := s.db.First(&challenge, challengeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return &challenge, nil
}

// Join 加入个人挑战，重复加入没有副作用。系统挑战不能加入。
func (s *ChallengeService) Join(challengeID uint, userID string, now time.Time) error {
	id := strings.TrimSpace(userID)
	if id == "" {
		return ErrInvalidUserID
	}

	challenge, err := s.Get(challengeID)
	if err != nil {
		return err
	}
	if challenge.IsSystem {
		return ErrSystemChallengeMembership
	}

	participant := db.ChallengeParticipant{
		ChallengeID: challenge.ID,
		UserID:      id,
		JoinedAt:    now,
	}
	if err := s.db.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&participant).Error; err != nil {
		return fmt.Errorf("join challenge: %w", err)
	}
	return nil
}

// Leave 退出个人挑战，未参加时直接返回。
func (s *ChallengeService) Leave(challengeID uint, userID string) error {
	id := strings.TrimSpace(userID)
	if id == "" {
		return ErrInvalidUserID
	}

	challenge, err := s.Get(challengeID)
	if err != nil {
		return err
	}
	if challenge.IsSystem {
		return ErrSystemChallengeMembership
	}

	if err := s.db.Where("challenge_id = ? AND user_id = ?", challenge.ID, id).
		Delete(&db.ChallengeParticipant{}).Error; err != nil {
		return fmt.Errorf("leave challenge: %w", err)
	}
	return nil
}

// UpdateGoal 修改挑战目标
func (s *ChallengeService) UpdateGoal(challengeID uint, goalKm float64) (*db.Challenge, error) {
	if !validGoal(goalKm) {
		return nil, ErrInvalidGoal
	}

	var challenge db.Challenge
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&challenge, challengeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChallengeNotFound
			}
			return err
		}
		challenge.GoalKm = RoundKm(goalKm)
		return tx.Model(&challenge).Update("goal_km", challenge.GoalKm).Error
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("update challenge goal: %w", err)
	}
	return &challenge, nil
}

// UpdateChatGoal 修改聊天某年的系统挑战目标，挑战不存在时先创建。
func (s *ChallengeService) UpdateChatGoal(chatID string, year int, goalKm float64) (*db.Challenge, error) {
	if !validGoal(goalKm) {
		return nil, ErrInvalidGoal
	}
	challenge, err := s.EnsureYearlyChallenge(chatID, year)
	if err != nil {
		return nil, err
	}
	return s.UpdateGoal(challenge.ID, goalKm)
}

// ParticipantsCount 返回挑战的参与人数。
// 系统挑战按期间内在该聊天提交过记录的不同用户计数，个人挑战按参与者表计数。
func (s *ChallengeService) ParticipantsCount(challenge *db.Challenge) (int64, error) {
	var count int64
	var err error
	if challenge.IsSystem && challenge.ChatID != nil {
		err = s.db.Model(&db.RunningLog{}).
			Where("chat_id = ? AND date >= ? AND date <= ?", *challenge.ChatID, challenge.StartDate, challenge.EndDate).
			Distinct("user_id").
			Count(&count).Error
	} else {
		err = s.db.Model(&db.ChallengeParticipant{}).
			Where("challenge_id = ?", challenge.ID).
			Count(&count).Error
	}
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}

// TotalProgress 返回挑战期间累计的距离。
// 系统挑战统计聊天内的全部记录，个人挑战只统计参与者的记录。
func (s *ChallengeService) TotalProgress(challenge *db.Challenge) (float64, error) {
	query := s.db.Model(&db.RunningLog{}).Select("COALESCE(SUM(running_logs.km), 0)")
	if challenge.IsSystem && challenge.ChatID != nil {
		query = query.Where("running_logs.chat_id = ?", *challenge.ChatID)
	} else {
		query = query.
			Joins("JOIN challenge_participants ON challenge_participants.user_id = running_logs.user_id").
			Where("challenge_participants.challenge_id = ?", challenge.ID)
	}

	var total float64
	if err := query.
		Where("running_logs.date >= ? AND running_logs.date <= ?", challenge.StartDate, challenge.EndDate).
		Row().
		Scan(&total); err != nil {
		return 0, fmt.Errorf("sum challenge progress: %w", err)
	}
	return RoundKm(total), nil
}

// Summary 汇总挑战的参与人数、进度与是否进行中
func (s *ChallengeService) Summary(challenge *db.Challenge, now time.Time) (ChallengeSummary, error) {
	count, err := s.ParticipantsCount(challenge)
	if err != nil {
		return ChallengeSummary{}, err
	}
	total, err := s.TotalProgress(challenge)
	if err != nil {
		return ChallengeSummary{}, err
	}
	return ChallengeSummary{
		Challenge:         *challenge,
		ParticipantsCount: count,
		TotalKm:           total,
		Percentage:        Percentage(total, challenge.GoalKm),
		Active:            challenge.IsActiveOn(now),
	}, nil
}

// ActiveChallenges 返回当天处于进行中的全部挑战
func (s *ChallengeService) ActiveChallenges(now time.Time) ([]ChallengeSummary, error) {
	day := today(now)

	var challenges []db.Challenge
	if err := s.db.Where("start_date <= ? AND end_date >= ?", day, day).
		Order("start_date DESC, id DESC").
		Find(&challenges).Error; err != nil {
		return nil, fmt.Errorf("list active challenges: %w", err)
	}

	summaries := make([]ChallengeSummary, 0, len(challenges))
	for i := range challenges {
		summary, err := s.Summary(&challenges[i], now)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// UserChallenges 返回用户参加的个人挑战及其在各挑战期内的距离
func (s *ChallengeService) UserChallenges(userID string) ([]UserChallenge, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return nil, ErrInvalidUserID
	}

	var challenges []db.Challenge
	if err := s.db.Joins("JOIN challenge_participants ON challenge_participants.challenge_id = challenges.id").
		Where("challenge_participants.user_id = ?", id).
		Order("challenges.end_date DESC, challenges.id DESC").
		Find(&challenges).Error; err != nil {
		return nil, fmt.Errorf("list user challenges: %w", err)
	}

	result := make([]UserChallenge, 0, len(challenges))
	for _, challenge := range challenges {
		var total float64
		if err := s.db.Model(&db.RunningLog{}).
			Select("COALESCE(SUM(km), 0)").
			Where("user_id = ? AND date >= ? AND date <= ?", id, challenge.StartDate, challenge.EndDate).
			Row().
			Scan(&total); err != nil {
			return nil, fmt.Errorf("sum user challenge progress: %w", err)
		}
		result = append(result, UserChallenge{Challenge: challenge, UserKm: RoundKm(total)})
	}
	return result, nil
}

// Leaderboard 返回挑战期内的个人排行
func (s *ChallengeService) Leaderboard(challengeID uint) ([]ChallengeStanding, error) {
	challenge, err := s.Get(challengeID)
	if err != nil {
		return nil, err
	}

	var rows []ChallengeStanding
	if challenge.IsSystem && challenge.ChatID != nil {
		err = s.db.Table("running_logs").
			Select("running_logs.user_id, COALESCE(users.username, '') AS username, "+
				"COALESCE(SUM(running_logs.km), 0) AS total_km, COUNT(DISTINCT running_logs.date) AS active_days").
			Joins("LEFT JOIN users ON users.user_id = running_logs.user_id").
			Where("running_logs.chat_id = ? AND running_logs.date >= ? AND running_logs.date <= ?",
				*challenge.ChatID, challenge.StartDate, challenge.EndDate).
			Group("running_logs.user_id, users.username").
			Scan(&rows).Error
	} else {
		err = s.db.Table("challenge_participants").
			Select("challenge_participants.user_id, COALESCE(users.username, '') AS username, "+
				"COALESCE(SUM(running_logs.km), 0) AS total_km, COUNT(DISTINCT running_logs.date) AS active_days").
			Joins("LEFT JOIN users ON users.user_id = challenge_participants.user_id").
			Joins("LEFT JOIN running_logs ON running_logs.user_id = challenge_participants.user_id "+
				"AND running_logs.date >= ? AND running_logs.date <= ?", challenge.StartDate, challenge.EndDate).
			Where("challenge_participants.challenge_id = ?", challenge.ID).
			Group("challenge_participants.user_id, users.username").
			Scan(&rows).Error
	}
	if err != nil {
		return nil, fmt.Errorf("query challenge leaderboard: %w", err)
	}

	for i := range rows {
		rows[i].TotalKm = RoundKm(rows[i].TotalKm)
	}
	slices.SortFunc(rows, func(a, b ChallengeStanding) int {
		if c := cmp.Compare(b.TotalKm, a.TotalKm); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return rows, nil
}

// ParticipantProgress 从流水重新计算每个参与者的进度并回写参与者表。
func (s *ChallengeService) ParticipantProgress(challengeID uint) ([]ParticipantProgress, error) {
	var result []ParticipantProgress
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var challenge db.Challenge
		if err := tx.First(&challenge, challengeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChallengeNotFound
			}
			return err
		}
		if challenge.IsSystem {
			return ErrSystemChallengeMembership
		}

		var participants []db.ChallengeParticipant
		if err := tx.Where("challenge_id = ?", challenge.ID).
			Order("user_id ASC").
			Find(&participants).Error; err != nil {
			return err
		}

		result = make([]ParticipantProgress, 0, len(participants))
		for _, participant := range participants {
			var total float64
			if err := tx.Model(&db.RunningLog{}).
				Select("COALESCE(SUM(km), 0)").
				Where("user_id = ? AND date >= ? AND date <= ?", participant.UserID, challenge.StartDate, challenge.EndDate).
				Row().
				Scan(&total); err != nil {
				return err
			}

			progress := RoundKm(total)
			completed := challenge.GoalKm > 0 && progress >= challenge.GoalKm
			if err := tx.Model(&db.ChallengeParticipant{}).
				Where("challenge_id = ? AND user_id = ?", challenge.ID, participant.UserID).
				Updates(map[string]any{"progress": progress, "completed": completed}).Error; err != nil {
				return err
			}

			result = append(result, ParticipantProgress{
				UserID:     participant.UserID,
				Progress:   progress,
				Completed:  completed,
				Percentage: Percentage(progress, challenge.GoalKm),
			})
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("refresh participant progress: %w", err)
	}
	return result, nil
}

// ClearUserChallenges 删除用户创建的个人挑战及其参与者，返回删除的挑战数量。
func (s *ChallengeService) ClearUserChallenges(userID string) (int64, error) {
	id := strings.TrimSpace(userID)
	if id == "" {
		return 0, ErrInvalidUserID
	}

	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&db.Challenge{}).
			Where("created_by = ? AND is_system = ?", id, false).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("challenge_id IN ?", ids).Delete(&db.ChallengeParticipant{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", ids).Delete(&db.Challenge{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clear user challenges: %w", err)
	}

	if deleted > 0 {
		log.Printf("[challenge] removed %d challenges created by %s", deleted, id)
	}
	return deleted, nil
}
