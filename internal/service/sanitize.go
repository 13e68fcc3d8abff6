package service

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	// maxNameRunes 对应标题、用户名、小组名的 size:255 列
	maxNameRunes = 255
	// maxFreeTextRunes 对应备注与描述的 size:1000 列
	maxFreeTextRunes = 1000
)

var strictPolicy = bluemonday.StrictPolicy()

// stripMarkup 去掉自由文本中的 HTML 标签与首尾空白。
func stripMarkup(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(trimmed)))
}

// sanitizeText 去掉 HTML 标签并截断到 limit 个字符。
func sanitizeText(input string, limit int) string {
	cleaned := stripMarkup(input)
	if utf8.RuneCountInString(cleaned) > limit {
		cleaned = strings.TrimSpace(string([]rune(cleaned)[:limit]))
	}
	return cleaned
}

// tooLong 判断清理后的文本是否超过列长度。
func tooLong(text string, limit int) bool {
	return utf8.RuneCountInString(text) > limit
}
