package service

import (
	"errors"
	"fmt"
)

// 错误分为三类：校验失败、目标不存在、无权操作。
// 具体错误都包装其中一类，调用方既可以匹配具体错误，也可以只匹配类别。
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
)

var (
	// ErrInvalidDistance 距离不在 (0, 100] 公里范围内
	ErrInvalidDistance = fmt.Errorf("%w: distance must be greater than 0 and at most %.0f km", ErrValidation, MaxDistanceKm)
	// ErrInvalidGoal 目标为负数或非有限值
	ErrInvalidGoal = fmt.Errorf("%w: goal must be a finite non-negative number", ErrValidation)
	// ErrInvalidUserID 用户 ID 为空
	ErrInvalidUserID = fmt.Errorf("%w: user id is required", ErrValidation)
	// ErrInvalidChatID 聊天 ID 为空
	ErrInvalidChatID = fmt.Errorf("%w: chat id is required", ErrValidation)
	// ErrInvalidPeriod 年份或月份不合法
	ErrInvalidPeriod = fmt.Errorf("%w: invalid year or month", ErrValidation)
	// ErrInvalidChallenge 挑战标题或日期区间不合法
	ErrInvalidChallenge = fmt.Errorf("%w: invalid challenge definition", ErrValidation)
	// ErrSystemChallengeMembership 系统挑战的成员由流水推断，不能手动加入或退出
	ErrSystemChallengeMembership = fmt.Errorf("%w: system challenges infer membership from the ledger", ErrValidation)

	// ErrRunNotFound 跑步记录不存在
	ErrRunNotFound = fmt.Errorf("run %w", ErrNotFound)
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrChallengeNotFound 挑战不存在
	ErrChallengeNotFound = fmt.Errorf("challenge %w", ErrNotFound)
	// ErrTeamNotFound 小组不存在
	ErrTeamNotFound = fmt.Errorf("team %w", ErrNotFound)

	// ErrNotRunOwner 只有记录所有者可以修改或删除记录
	ErrNotRunOwner = fmt.Errorf("%w: only the owner may modify a run", ErrForbidden)
)
