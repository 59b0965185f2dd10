package sqlite

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/fwojciec/sigmatch"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ sigmatch.ContentService = (*ContentService)(nil)

const contentColumns = "id, organization_id, content_type, title, salience_score, decay_rate, last_accessed_at, status, created_at, updated_at"

// ContentService implements sigmatch.ContentService using SQLite.
type ContentService struct {
	db *DB
}

// NewContentService creates a new ContentService.
func NewContentService(db *DB) *ContentService {
	return &ContentService{db: db}
}

// CreateContentItem creates a new decayable content item.
func (s *ContentService) CreateContentItem(ctx context.Context, item *sigmatch.ContentItem) error {
	if item.SalienceScore == 0 {
		item.SalienceScore = 1
	}
	if item.Status == "" {
		item.Status = sigmatch.ContentActive
	}
	if err := item.Validate(); err != nil {
		return err
	}

	item.ID = uuid.New().String()
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	if item.LastAccessedAt.IsZero() {
		item.LastAccessedAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO content_items (id, organization_id, content_type, title, salience_score, decay_rate,
			last_accessed_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.OrganizationID, item.ContentType, item.Title, item.SalienceScore, item.DecayRate,
		formatTime(item.LastAccessedAt), string(item.Status), formatTime(item.CreatedAt), formatTime(item.UpdatedAt))
	return err
}

// FindContentItemByID retrieves a content item by ID.
func (s *ContentService) FindContentItemByID(ctx context.Context, id string) (*sigmatch.ContentItem, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+contentColumns+" FROM content_items WHERE id = ?", id)
	item, err := scanContentItem(row)
	if err == sql.ErrNoRows {
		return nil, sigmatch.Errorf(sigmatch.ENOTFOUND, "content item not found")
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// FindDecayable returns active items whose salience is above the floor.
func (s *ContentService) FindDecayable(ctx context.Context, filter sigmatch.DecayFilter) ([]*sigmatch.ContentItem, error) {
	query := sq.Select(contentColumns).
		From("content_items").
		Where(sq.Eq{"status": string(sigmatch.ContentActive)}).
		Where(sq.Gt{"salience_score": filter.Floor})

	if filter.OrganizationID != nil {
		query = query.Where(sq.Eq{"organization_id": *filter.OrganizationID})
	}
	if filter.ContentType != nil {
		query = query.Where(sq.Eq{"content_type": *filter.ContentType})
	}

	stmt, args, err := query.OrderBy("id ASC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*sigmatch.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// UpdateSalience writes new scores in one transaction. Each write is
// conditional on the item still holding the score and last access time the
// update was computed from, so a concurrent access bump or delete wins.
func (s *ContentService) UpdateSalience(ctx context.Context, scores []sigmatch.SalienceUpdate) (int, error) {
	if len(scores) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE content_items SET salience_score = ?, updated_at = ?
		WHERE id = ? AND salience_score = ? AND last_accessed_at = ? AND status = ?
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	updatedAt := formatTime(time.Now())
	var applied int
	for _, u := range scores {
		if u.Score < sigmatch.SalienceFloor || u.Score > 1 {
			return 0, sigmatch.Errorf(sigmatch.EINVALID, "salience %.4f out of range for %s", u.Score, u.ID)
		}
		result, err := stmt.ExecContext(ctx, u.Score, updatedAt, u.ID, u.Previous,
			formatTime(u.LastAccessedAt), string(sigmatch.ContentActive))
		if err != nil {
			return 0, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		applied += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return applied, nil
}

func scanContentItem(row scanner) (*sigmatch.ContentItem, error) {
	var c sigmatch.ContentItem
	var status, lastAccessedAt, createdAt, updatedAt string

	if err := row.Scan(&c.ID, &c.OrganizationID, &c.ContentType, &c.Title, &c.SalienceScore, &c.DecayRate,
		&lastAccessedAt, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Status = sigmatch.ContentStatus(status)

	var err error
	if c.LastAccessedAt, err = parseRFC3339(lastAccessedAt, "last_accessed_at"); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseRFC3339(updatedAt, "updated_at"); err != nil {
		return nil, err
	}
	return &c, nil
}
