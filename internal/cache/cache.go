// Package cache 为按用户划分的统计结果提供可选缓存。
// 每个用户的所有缓存字段挂在同一个键下，写入流水或目标后整体删除。
//
// 每个用户另有一个只增不减的代数，Invalidate 会把它加一。读方在查库前取代数，
// 回填时带上它；代数已变化说明期间有写入提交，回填被丢弃。
package cache

import "time"

// DefaultTTL 为缓存条目的默认存活时间，作为失效之外的第二道保障。
const DefaultTTL = 10 * time.Minute

// Store 描述统计缓存。Get/Set 的失败只会退化为未命中，Invalidate 的失败必须返回给调用方。
type Store interface {
	Get(userID, field string) ([]byte, bool)
	// Generation 返回用户当前的缓存代数，出错时调用方不应回填。
	Generation(userID string) (uint64, error)
	// Set 仅在用户代数仍等于 gen 时写入，返回是否写入。
	Set(userID, field string, gen uint64, value []byte) bool
	Invalidate(userID string) error
}

// Disabled 是不缓存任何内容的实现。
type Disabled struct{}

// Get 总是未命中。
func (Disabled) Get(string, string) ([]byte, bool) { return nil, false }

// Generation 总是 0。
func (Disabled) Generation(string) (uint64, error) { return 0, nil }

// Set 不做任何事。
func (Disabled) Set(string, string, uint64, []byte) bool { return false }

// Invalidate 不做任何事。
func (Disabled) Invalidate(string) error { return nil }
