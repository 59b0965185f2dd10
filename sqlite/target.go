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
var _ sigmatch.TargetService = (*TargetService)(nil)

const targetColumns = "id, organization_id, name, description, target_type, priority, embedding, is_active, created_at"

// TargetService implements sigmatch.TargetService using SQLite.
type TargetService struct {
	db *DB
}

// NewTargetService creates a new TargetService.
func NewTargetService(db *DB) *TargetService {
	return &TargetService{db: db}
}

// CreateTarget creates a new intelligence target.
func (s *TargetService) CreateTarget(ctx context.Context, target *sigmatch.Target) error {
	if err := target.Validate(); err != nil {
		return err
	}

	target.ID = uuid.New().String()
	target.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO targets (id, organization_id, name, description, target_type, priority, embedding, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, target.ID, target.OrganizationID, target.Name, target.Description, string(target.TargetType),
		string(target.Priority), encodeVector(target.Embedding), boolToInt(target.IsActive), formatTime(target.CreatedAt))
	return err
}

// FindTargetByID retrieves a target by ID.
func (s *TargetService) FindTargetByID(ctx context.Context, id string) (*sigmatch.Target, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+targetColumns+" FROM targets WHERE id = ?", id)
	target, err := scanTarget(row)
	if err == sql.ErrNoRows {
		return nil, sigmatch.Errorf(sigmatch.ENOTFOUND, "target not found")
	}
	if err != nil {
		return nil, err
	}
	return target, nil
}

// FindTargets retrieves targets matching the filter.
func (s *TargetService) FindTargets(ctx context.Context, filter sigmatch.TargetFilter) ([]*sigmatch.Target, error) {
	query := sq.Select(targetColumns).From("targets")

	if filter.ID != nil {
		query = query.Where(sq.Eq{"id": *filter.ID})
	}
	if filter.OrganizationID != nil {
		query = query.Where(sq.Eq{"organization_id": *filter.OrganizationID})
	}
	if filter.Active != nil {
		query = query.Where(sq.Eq{"is_active": boolToInt(*filter.Active)})
	}
	if filter.HasEmbedding != nil {
		if *filter.HasEmbedding {
			query = query.Where("length(embedding) > 0")
		} else {
			query = query.Where("(embedding IS NULL OR length(embedding) = 0)")
		}
	}

	query = appendPagination(query.OrderBy("organization_id ASC", "created_at ASC", "id ASC"), filter.Limit, filter.Offset)

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []*sigmatch.Target
	for rows.Next() {
		target, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	return targets, rows.Err()
}

// SetTargetEmbedding stores a target's precomputed embedding.
func (s *TargetService) SetTargetEmbedding(ctx context.Context, id string, embedding []float32) error {
	if len(embedding) == 0 {
		return sigmatch.Errorf(sigmatch.EINVALID, "embedding required")
	}
	result, err := s.db.ExecContext(ctx, "UPDATE targets SET embedding = ? WHERE id = ?", encodeVector(embedding), id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result, "target not found")
}

func scanTarget(row scanner) (*sigmatch.Target, error) {
	var t sigmatch.Target
	var targetType, priority, createdAt string
	var active int
	var blob []byte

	if err := row.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.Description, &targetType, &priority,
		&blob, &active, &createdAt); err != nil {
		return nil, err
	}

	t.TargetType = sigmatch.TargetType(targetType)
	t.Priority = sigmatch.TargetPriority(priority)
	t.IsActive = active != 0

	var err error
	if t.Embedding, err = decodeVector(blob); err != nil {
		return nil, err
	}
	if t.CreatedAt, err = parseRFC3339(createdAt, "created_at"); err != nil {
		return nil, err
	}
	return &t, nil
}
