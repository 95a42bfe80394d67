// Package scoring turns a single answer into points.
package scoring

import (
	"math"

	"trivia-room-service/internal/domain"
)

// MaxPoints is awarded for a correct answer given instantly.
const MaxPoints = 1000

// Points returns the score for one answer. A correct answer earns half of
// MaxPoints unconditionally plus up to the other half linearly for speed.
// elapsedMs is not clamped: late answers fall below half credit and negative
// times exceed MaxPoints.
func Points(correct bool, elapsedMs int64, timeLimitSecs int) int {
	if !correct {
		return 0
	}
	if timeLimitSecs <= 0 {
		timeLimitSecs = domain.DefaultTimeLimitSecs
	}
	fraction := float64(elapsedMs) / float64(timeLimitSecs*1000)
	return int(math.Round(MaxPoints*(1-fraction)*0.5 + MaxPoints*0.5))
}

// Clamp bounds elapsedMs to [0, timeLimitSecs*1000].
func Clamp(elapsedMs int64, timeLimitSecs int) int64 {
	if timeLimitSecs <= 0 {
		timeLimitSecs = domain.DefaultTimeLimitSecs
	}
	limit := int64(timeLimitSecs) * 1000
	switch {
	case elapsedMs < 0:
		return 0
	case elapsedMs > limit:
		return limit
	}
	return elapsedMs
}
