package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/fwojciec/sigmatch"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ sigmatch.SourceService = (*SourceService)(nil)

const sourceColumns = "id, name, url, query, tier, industry_tags, discovery_method, active, consecutive_failures, last_success_at, last_error, created_at, updated_at"

// SourceService implements sigmatch.SourceService using SQLite.
type SourceService struct {
	db *DB
}

// NewSourceService creates a new SourceService.
func NewSourceService(db *DB) *SourceService {
	return &SourceService{db: db}
}

// CreateSource creates a new source.
func (s *SourceService) CreateSource(ctx context.Context, source *sigmatch.Source) error {
	if err := source.Validate(); err != nil {
		return err
	}

	tags, err := encodeStrings(source.IndustryTags)
	if err != nil {
		return err
	}

	source.ID = uuid.New().String()
	now := time.Now().UTC()
	source.CreatedAt = now
	source.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sources (id, name, url, query, tier, industry_tags, discovery_method, active,
			consecutive_failures, last_success_at, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, source.ID, source.Name, source.URL, source.Query, source.Tier, tags, string(source.DiscoveryMethod),
		boolToInt(source.Active), source.ConsecutiveFailures, formatNullTime(source.LastSuccessAt), source.LastError,
		formatTime(source.CreatedAt), formatTime(source.UpdatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return sigmatch.Errorf(sigmatch.ECONFLICT, "source %q already exists", source.Name)
	}
	return err
}

// FindSourceByID retrieves a source by ID.
func (s *SourceService) FindSourceByID(ctx context.Context, id string) (*sigmatch.Source, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sourceColumns+" FROM sources WHERE id = ?", id)
	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, sigmatch.Errorf(sigmatch.ENOTFOUND, "source not found")
	}
	if err != nil {
		return nil, err
	}
	return source, nil
}

// FindSources retrieves sources matching the filter, ordered by tier then name.
func (s *SourceService) FindSources(ctx context.Context, filter sigmatch.SourceFilter) ([]*sigmatch.Source, error) {
	query := sq.Select(sourceColumns).From("sources")

	if filter.ID != nil {
		query = query.Where(sq.Eq{"id": *filter.ID})
	}
	if filter.Name != nil {
		query = query.Where(sq.Eq{"name": *filter.Name})
	}
	if filter.Active != nil {
		query = query.Where(sq.Eq{"active": boolToInt(*filter.Active)})
	}
	if filter.DiscoveryMethod != nil {
		query = query.Where(sq.Eq{"discovery_method": string(*filter.DiscoveryMethod)})
	}

	query = appendPagination(query.OrderBy("tier ASC", "name ASC"), filter.Limit, filter.Offset)

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*sigmatch.Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}

	return sources, rows.Err()
}

// UpdateSource updates administrator-managed fields of a source.
func (s *SourceService) UpdateSource(ctx context.Context, id string, upd sigmatch.SourceUpdate) (*sigmatch.Source, error) {
	source, err := s.FindSourceByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		source.Name = *upd.Name
	}
	if upd.URL != nil {
		source.URL = *upd.URL
	}
	if upd.Query != nil {
		source.Query = *upd.Query
	}
	if upd.Tier != nil {
		source.Tier = *upd.Tier
	}
	if upd.IndustryTags != nil {
		source.IndustryTags = *upd.IndustryTags
	}
	if upd.Active != nil {
		// Re-activation is an explicit administrator decision that
		// starts the failure count over.
		if *upd.Active && !source.Active {
			source.ConsecutiveFailures = 0
			source.LastError = ""
		}
		source.Active = *upd.Active
	}

	if err := source.Validate(); err != nil {
		return nil, err
	}

	tags, err := encodeStrings(source.IndustryTags)
	if err != nil {
		return nil, err
	}

	source.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE sources
		SET name = ?, url = ?, query = ?, tier = ?, industry_tags = ?, active = ?,
			consecutive_failures = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`, source.Name, source.URL, source.Query, source.Tier, tags, boolToInt(source.Active),
		source.ConsecutiveFailures, source.LastError, formatTime(source.UpdatedAt), id)
	if err != nil {
		return nil, err
	}

	return source, nil
}

// RecordSourceSuccess resets the failure counter and stamps last_success_at.
func (s *SourceService) RecordSourceSuccess(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sources
		SET consecutive_failures = 0, last_error = '', last_success_at = ?, updated_at = ?
		WHERE id = ?
	`, formatTime(at), formatTime(time.Now()), id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result, "source not found")
}

// RecordSourceFailure atomically increments the failure counter.
// The increment and the ceiling check happen in one statement so concurrent
// runs cannot lose updates.
func (s *SourceService) RecordSourceFailure(ctx context.Context, id string, message string, ceiling int) (bool, error) {
	var active, failures int
	err := s.db.QueryRowContext(ctx, `
		UPDATE sources
		SET consecutive_failures = consecutive_failures + 1,
			last_error = ?,
			updated_at = ?,
			active = CASE WHEN ? > 0 AND consecutive_failures + 1 >= ? THEN 0 ELSE active END
		WHERE id = ?
		RETURNING active, consecutive_failures
	`, message, formatTime(time.Now()), ceiling, ceiling, id).Scan(&active, &failures)
	if err == sql.ErrNoRows {
		return false, sigmatch.Errorf(sigmatch.ENOTFOUND, "source not found")
	}
	if err != nil {
		return false, err
	}

	disabled := ceiling > 0 && failures >= ceiling && active == 0
	return disabled, nil
}

// scanSource reads a source row selected with sourceColumns.
func scanSource(row scanner) (*sigmatch.Source, error) {
	var source sigmatch.Source
	var tags, method, createdAt, updatedAt string
	var active int
	var lastSuccessAt sql.NullString

	if err := row.Scan(&source.ID, &source.Name, &source.URL, &source.Query, &source.Tier, &tags, &method,
		&active, &source.ConsecutiveFailures, &lastSuccessAt, &source.LastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	source.DiscoveryMethod = sigmatch.DiscoveryMethod(method)
	source.Active = active != 0

	var err error
	if source.IndustryTags, err = decodeStrings(tags, "industry_tags"); err != nil {
		return nil, err
	}
	if source.LastSuccessAt, err = parseNullRFC3339(lastSuccessAt, "last_success_at"); err != nil {
		return nil, err
	}
	if source.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if source.UpdatedAt, err = parseRFC3339(updatedAt, "updated_at"); err != nil {
		return nil, err
	}

	return &source, nil
}

// requireRowsAffected returns ENOTFOUND when a statement touched no rows.
func requireRowsAffected(result sql.Result, message string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sigmatch.Errorf(sigmatch.ENOTFOUND, "%s", message)
	}
	return nil
}
