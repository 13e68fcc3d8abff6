package service

import (
	"time"

	"github.com/runledger/internal/db"
)

const dateLayout = "2006-01-02"

// validYear 限定在 time 与 date 列都能表示的公历年份。
func validYear(year int) bool {
	return year >= 1 && year <= 9999
}

// periodRange 返回半开区间 [start, end)：month 为 0 表示整年。
func periodRange(year, month int) (time.Time, time.Time, error) {
	if !validYear(year) || month < 0 || month > 12 {
		return time.Time{}, time.Time{}, ErrInvalidPeriod
	}
	if month == 0 {
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil
	}
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// yearBounds 返回年度挑战的首尾日期（均包含）。
func yearBounds(year int) (time.Time, time.Time) {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
}

func today(now time.Time) time.Time {
	return db.DateOnly(now)
}
