package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/runledger/internal/requestid"
)

func respondError(c *gin.Context, status int, message string) {
	payload := gin.H{"error": message}
	if id := requestid.FromContext(c); id != "" {
		payload["request_id"] = id
	}
	c.JSON(status, payload)
}

func bindJSON(c *gin.Context, dst any, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// parseUintParam 解析路径中的数字 ID，失败时直接写回 400。
func parseUintParam(c *gin.Context, key string) (uint, bool) {
	raw := c.Param(key)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("invalid %s", key))
		return 0, false
	}
	return uint(id), true
}

// pathValue 返回去掉首尾空白的路径参数，用户 ID 与聊天 ID 都是字符串。
func pathValue(c *gin.Context, key string) string {
	return strings.TrimSpace(c.Param(key))
}
