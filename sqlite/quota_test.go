package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/sigmatch/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaService_ReserveSearchCalls(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

	t.Run("grants up to the daily limit", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		svc := sqlite.NewQuotaService(setupTestDB(t))

		granted, err := svc.ReserveSearchCalls(ctx, day, 60, 100)
		require.NoError(t, err)
		assert.Equal(t, 60, granted)

		granted, err = svc.ReserveSearchCalls(ctx, day, 60, 100)
		require.NoError(t, err)
		assert.Equal(t, 40, granted)

		granted, err = svc.ReserveSearchCalls(ctx, day, 1, 100)
		require.NoError(t, err)
		assert.Equal(t, 0, granted)

		used, err := svc.SearchCallsUsed(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, 100, used)
	})

	t.Run("resets on the next UTC day", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		svc := sqlite.NewQuotaService(setupTestDB(t))

		_, err := svc.ReserveSearchCalls(ctx, day, 100, 100)
		require.NoError(t, err)

		granted, err := svc.ReserveSearchCalls(ctx, day.Add(24*time.Hour), 5, 100)
		require.NoError(t, err)
		assert.Equal(t, 5, granted)
	})

	t.Run("reports zero for an unused day", func(t *testing.T) {
		t.Parallel()

		used, err := sqlite.NewQuotaService(setupTestDB(t)).SearchCallsUsed(context.Background(), day)

		require.NoError(t, err)
		assert.Equal(t, 0, used)
	})

	t.Run("never over-grants under concurrent reservations", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		svc := sqlite.NewQuotaService(setupTestDB(t))

		var mu sync.Mutex
		var total int
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				granted, err := svc.ReserveSearchCalls(ctx, day, 3, 20)
				if err != nil {
					return
				}
				mu.Lock()
				total += granted
				mu.Unlock()
			}()
		}
		wg.Wait()

		assert.LessOrEqual(t, total, 20)
		used, err := svc.SearchCallsUsed(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, total, used)
	})
}
