// Package requestid 为每个请求分配一个 ID，写入响应头并附在错误响应与访问日志中。
package requestid

import (
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Header 是请求与响应中携带 ID 的头部
const Header = "X-Request-ID"

const contextKey = "__request_id"

// Middleware 沿用客户端传入的 ID，没有时生成 UUIDv7。
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(Header))
		if id == "" || len(id) > 128 {
			id = newID()
		}

		c.Set(contextKey, id)
		c.Header(Header, id)

		start := time.Now()
		c.Next()

		if c.Writer.Status() >= 500 {
			log.Printf("[http] %s %s %d %s request_id=%s", c.Request.Method, c.Request.URL.Path,
				c.Writer.Status(), time.Since(start), id)
		}
	}
}

// FromContext 返回当前请求的 ID，未经过中间件时为空。
func FromContext(c *gin.Context) string {
	value, ok := c.Get(contextKey)
	if !ok {
		return ""
	}
	id, _ := value.(string)
	return id
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
