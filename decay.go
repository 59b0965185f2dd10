package sigmatch

import (
	"math"
	"time"
)

// SalienceFloor is the lowest salience any content item can decay to.
const SalienceFloor = 0.1

// DecaySalience applies exponential daily decay to a salience score:
// max(floor, score * (1 - rate)^days). Negative elapsed time is treated as zero.
func DecaySalience(score, rate, days, floor float64) float64 {
	if days <= 0 || rate <= 0 {
		return max(floor, score)
	}
	return max(floor, score*math.Pow(1-rate, days))
}

// DaysElapsed returns the fractional number of days between two instants.
func DaysElapsed(since, now time.Time) float64 {
	return now.Sub(since).Seconds() / 86400
}
