package models

import "math"

// Percentage returns used/total as a percentage rounded to two decimals
// and clamped to [0, 100]. A zero total yields 0.
func Percentage(used, total int64) float64 {
	if total <= 0 || used <= 0 {
		return 0
	}
	p := math.Round(float64(used)/float64(total)*10000) / 100
	if p > 100 {
		return 100
	}
	return p
}
