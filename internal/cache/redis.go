package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// keyPrefix 每个用户一个 Hash：runledger:stats:<user_id>，Field 为统计维度
	keyPrefix = "runledger:stats:"
	// genPrefix 存放用户缓存代数的计数键，不设过期
	genPrefix = "runledger:stats-gen:"

	defaultOpTimeout = 2 * time.Second
)

// RedisOptions 描述 Redis 连接参数。
type RedisOptions struct {
	Address  string
	Password string
	DB       int
}

// Connect 创建 Redis 客户端并用 PING 验证连接。
func Connect(opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Address, err)
	}
	return client, nil
}

// Redis 是基于 Redis Hash 的统计缓存。
type Redis struct {
	client    *redis.Client
	ttl       time.Duration
	opTimeout time.Duration
}

// NewRedis 使用已有客户端构造缓存，ttl <= 0 时使用 DefaultTTL。
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, ttl: ttl, opTimeout: defaultOpTimeout}
}

// setIfGeneration 在代数键等于 ARGV[1] 时写入 Hash 字段并刷新过期时间。
// KEYS[1] 为用户 Hash，KEYS[2] 为代数键；ARGV: gen, field, value, ttl 毫秒。
var setIfGeneration = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

func userKey(userID string) string {
	return keyPrefix + userID
}

func genKey(userID string) string {
	return genPrefix + userID
}

// Get 读取缓存字段，Redis 不可用时视为未命中。
func (r *Redis) Get(userID, field string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	value, err := r.client.HGet(ctx, userKey(userID), field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Printf("[cache] read %s/%s failed: %v", userID, field, err)
		return nil, false
	}
	return value, true
}

// Generation 读取用户的缓存代数，键不存在时为 0。
func (r *Redis) Generation(userID string) (uint64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	gen, err := r.client.Get(ctx, genKey(userID)).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cache generation for %s: %w", userID, err)
	}
	return gen, nil
}

// Set 在代数未变时写入缓存字段并刷新整个用户键的过期时间，比较与写入在同一脚本内完成。
func (r *Redis) Set(userID, field string, gen uint64, value []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	stored, err := setIfGeneration.Run(ctx, r.client,
		[]string{userKey(userID), genKey(userID)},
		strconv.FormatUint(gen, 10), field, value, r.ttl.Milliseconds(),
	).Int()
	if err != nil {
		log.Printf("[cache] write %s/%s failed: %v", userID, field, err)
		return false
	}
	return stored == 1
}

// Invalidate 推进用户代数并删除全部缓存字段。
func (r *Redis) Invalidate(userID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, genKey(userID))
	pipe.Del(ctx, userKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate stats cache for %s: %w", userID, err)
	}
	return nil
}
