package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/fwojciec/sigmatch"
)

// Compile-time interface verification.
var _ sigmatch.QuotaService = (*QuotaService)(nil)

// QuotaService implements sigmatch.QuotaService as a per-UTC-day ledger.
type QuotaService struct {
	db *DB
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(db *DB) *QuotaService {
	return &QuotaService{db: db}
}

// ReserveSearchCalls grants up to n calls against the day's limit and
// records them. Concurrent runs share the ledger, so the read and the write
// happen in one transaction.
func (s *QuotaService) ReserveSearchCalls(ctx context.Context, day time.Time, n, limit int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	key := quotaDay(day)

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO search_quota (day, calls) VALUES (?, 0)", key); err != nil {
		return 0, err
	}

	var used int
	if err := tx.QueryRowContext(ctx, "SELECT calls FROM search_quota WHERE day = ?", key).Scan(&used); err != nil {
		return 0, err
	}

	granted := min(n, max(0, limit-used))
	if granted == 0 {
		return 0, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, "UPDATE search_quota SET calls = calls + ? WHERE day = ?", granted, key); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return granted, nil
}

// SearchCallsUsed returns the number of calls recorded for the day.
func (s *QuotaService) SearchCallsUsed(ctx context.Context, day time.Time) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx, "SELECT calls FROM search_quota WHERE day = ?", quotaDay(day)).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return used, err
}

func quotaDay(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
