package service

// Percentage 计算完成百分比，供展示层直接使用。
// 目标未设置（goalKm <= 0）时返回 0；结果不做上限截断，超过 100 表示超额完成。
func Percentage(totalKm, goalKm float64) float64 {
	if goalKm <= 0 {
		return 0
	}
	return totalKm / goalKm * 100
}
