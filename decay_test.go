package sigmatch_test

import (
	"testing"
	"time"

	"github.com/fwojciec/sigmatch"
	"github.com/stretchr/testify/assert"
)

func TestDecaySalience(t *testing.T) {
	t.Parallel()

	t.Run("applies exponential daily decay", func(t *testing.T) {
		t.Parallel()

		got := sigmatch.DecaySalience(1.0, 0.1, 2, sigmatch.SalienceFloor)
		assert.InDelta(t, 0.81, got, 1e-9)
	})

	t.Run("never drops below the floor", func(t *testing.T) {
		t.Parallel()

		scores := []float64{0.1, 0.15, 0.5, 1.0}
		rates := []float64{0.001, 0.002, 0.05, 0.5, 0.99}
		days := []float64{0, 0.5, 1, 30, 365, 10000}

		for _, score := range scores {
			for _, rate := range rates {
				for _, d := range days {
					got := sigmatch.DecaySalience(score, rate, d, sigmatch.SalienceFloor)
					assert.GreaterOrEqual(t, got, sigmatch.SalienceFloor, "score=%v rate=%v days=%v", score, rate, d)
				}
			}
		}
	})

	t.Run("strictly decreases above the floor", func(t *testing.T) {
		t.Parallel()

		for _, d := range []float64{0.25, 1, 7, 30} {
			got := sigmatch.DecaySalience(0.9, 0.002, d, sigmatch.SalienceFloor)
			assert.Less(t, got, 0.9, "days=%v", d)
		}
	})

	t.Run("leaves score unchanged for zero elapsed time", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, 0.7, sigmatch.DecaySalience(0.7, 0.2, 0, sigmatch.SalienceFloor))
		assert.Equal(t, 0.7, sigmatch.DecaySalience(0.7, 0.2, -3, sigmatch.SalienceFloor))
	})
}

func TestDaysElapsed(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 1.5, sigmatch.DaysElapsed(start, start.Add(36*time.Hour)), 1e-9)
}
