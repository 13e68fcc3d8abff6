package db

import (
	"math"
	"strconv"
	"strings"
)

// supergroupPrefix 是 Telegram 超级群 ID 的固定前缀，同一个群在不同接口中可能带或不带该前缀。
const supergroupPrefix = "-100"

// NormalizeChatID 将传入的聊天 ID 归一为唯一的规范形式：
// 去除首尾空白、把 "42.0" 这类浮点写法还原为整数，并剥离超级群前缀 -100。
// 所有存储与比较聊天 ID 的位置都必须经过该函数，调用方无需自行处理。
func NormalizeChatID(raw string) string {
	id := strings.TrimSpace(raw)
	if id == "" {
		return ""
	}

	if strings.ContainsAny(id, ".eE") {
		if f, err := strconv.ParseFloat(id, 64); err == nil && f == math.Trunc(f) && math.Abs(f) < 1e18 {
			id = strconv.FormatInt(int64(f), 10)
		}
	}

	if strings.HasPrefix(id, supergroupPrefix) && len(id) > len(supergroupPrefix) {
		id = id[len(supergroupPrefix):]
	}

	return id
}

// NormalizeChatIDPtr 与 NormalizeChatID 相同，空值统一返回 nil。
func NormalizeChatIDPtr(raw *string) *string {
	if raw == nil {
		return nil
	}
	id := NormalizeChatID(*raw)
	if id == "" {
		return nil
	}
	return &id
}
