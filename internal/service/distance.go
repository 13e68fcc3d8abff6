package service

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	// MaxDistanceKm 单次跑步允许记录的最大距离
	MaxDistanceKm = 100.0
	// DistancePrecision 距离统一保留的小数位数
	DistancePrecision = 2
)

// RoundKm 按两位小数对距离四舍五入。写入与所有聚合结果都经过该函数，
// 因此比较总和时只在这一精度下才有意义。
func RoundKm(km float64) float64 {
	if math.IsNaN(km) || math.IsInf(km, 0) {
		return 0
	}
	return decimal.NewFromFloat(km).Round(DistancePrecision).InexactFloat64()
}

// ValidDistance 判断距离是否落在 (0, MaxDistanceKm] 区间。
func ValidDistance(km float64) bool {
	if math.IsNaN(km) || math.IsInf(km, 0) {
		return false
	}
	return km > 0 && km <= MaxDistanceKm
}

func validGoal(goal float64) bool {
	return !math.IsNaN(goal) && !math.IsInf(goal, 0) && goal >= 0
}
