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
var _ sigmatch.MatchService = (*MatchService)(nil)

const matchColumns = `m.id, m.organization_id, m.target_id, m.article_id, m.similarity_score, m.signal_strength,
	m.signal_category, m.match_reason, m.matched_at, m.expires_at`

// MatchService implements sigmatch.MatchService using SQLite.
type MatchService struct {
	db *DB
}

// NewMatchService creates a new MatchService.
func NewMatchService(db *DB) *MatchService {
	return &MatchService{db: db}
}

// UpsertMatch writes a match keyed on (target_id, article_id). An existing
// pair keeps its ID and has every scored field overwritten.
func (s *MatchService) UpsertMatch(ctx context.Context, match *sigmatch.Match) (bool, error) {
	if err := match.Validate(); err != nil {
		return false, err
	}
	if match.MatchedAt.IsZero() {
		match.MatchedAt = time.Now().UTC()
	}
	if match.ExpiresAt.IsZero() {
		match.ExpiresAt = match.MatchedAt.Add(sigmatch.DefaultMatchTTL)
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, "SELECT id FROM matches WHERE target_id = ? AND article_id = ?",
		match.TargetID, match.ArticleID).Scan(&existingID)
	created := err == sql.ErrNoRows
	if err != nil && !created {
		return false, err
	}

	id := existingID
	if created {
		id = uuid.New().String()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (id, organization_id, target_id, article_id, similarity_score, signal_strength,
			signal_category, match_reason, matched_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (target_id, article_id) DO UPDATE SET
			similarity_score = excluded.similarity_score,
			signal_strength = excluded.signal_strength,
			signal_category = excluded.signal_category,
			match_reason = excluded.match_reason,
			matched_at = excluded.matched_at,
			expires_at = excluded.expires_at
	`, id, match.OrganizationID, match.TargetID, match.ArticleID, match.SimilarityScore,
		string(match.SignalStrength), match.SignalCategory, match.MatchReason,
		formatTime(match.MatchedAt), formatTime(match.ExpiresAt))
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	match.ID = id
	return created, nil
}

// FindMatches retrieves matches matching the filter, strongest first.
func (s *MatchService) FindMatches(ctx context.Context, filter sigmatch.MatchFilter) ([]*sigmatch.Match, error) {
	query := sq.Select(matchColumns).From("matches m")

	if filter.OrganizationID != nil {
		query = query.Where(sq.Eq{"m.organization_id": *filter.OrganizationID})
	}
	if filter.TargetID != nil {
		query = query.Where(sq.Eq{"m.target_id": *filter.TargetID})
	}
	if filter.ArticleID != nil {
		query = query.Where(sq.Eq{"m.article_id": *filter.ArticleID})
	}

	query = appendPagination(query.OrderBy("m.similarity_score DESC", "m.id ASC"), filter.Limit, filter.Offset)

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*sigmatch.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}

	return matches, rows.Err()
}

// FindCandidates returns unexpired matches for an organization joined with
// their article, source, and target, ordered by similarity descending.
func (s *MatchService) FindCandidates(ctx context.Context, filter sigmatch.CandidateFilter) ([]*sigmatch.Candidate, error) {
	if filter.OrganizationID == "" {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "organization ID required")
	}
	now := filter.Now
	if now.IsZero() {
		now = time.Now()
	}

	query := sq.Select(matchColumns + `, t.name, a.title, a.url, a.description, a.full_text, a.source_id, s.name, a.published_at`).
		From("matches m").
		Join("articles a ON a.id = m.article_id").
		Join("sources s ON s.id = a.source_id").
		Join("targets t ON t.id = m.target_id").
		Where(sq.Eq{"m.organization_id": filter.OrganizationID}).
		Where(sq.GtOrEq{"m.similarity_score": filter.MinSimilarity}).
		Where(sq.Gt{"m.expires_at": formatTime(now)})
	if !filter.Since.IsZero() {
		query = query.Where(sq.GtOrEq{"m.matched_at": formatTime(filter.Since)})
	}
	query = appendPagination(query.OrderBy("m.similarity_score DESC", "m.matched_at DESC", "m.id ASC"), filter.Limit, 0)

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []*sigmatch.Candidate
	for rows.Next() {
		var c sigmatch.Candidate
		var m sigmatch.Match
		var strength, matchedAt, expiresAt string
		var publishedAt sql.NullString

		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.TargetID, &m.ArticleID, &m.SimilarityScore, &strength,
			&m.SignalCategory, &m.MatchReason, &matchedAt, &expiresAt,
			&c.TargetName, &c.Title, &c.URL, &c.Description, &c.FullText, &c.SourceID, &c.SourceName, &publishedAt); err != nil {
			return nil, err
		}
		m.SignalStrength = sigmatch.SignalStrength(strength)
		if m.MatchedAt, err = parseRFC3339(matchedAt, "matched_at"); err != nil {
			return nil, err
		}
		if m.ExpiresAt, err = parseRFC3339(expiresAt, "expires_at"); err != nil {
			return nil, err
		}
		if c.PublishedAt, err = parseNullRFC3339(publishedAt, "published_at"); err != nil {
			return nil, err
		}
		c.Match = &m
		candidates = append(candidates, &c)
	}

	return candidates, rows.Err()
}

func scanMatch(row scanner) (*sigmatch.Match, error) {
	var m sigmatch.Match
	var strength, matchedAt, expiresAt string

	if err := row.Scan(&m.ID, &m.OrganizationID, &m.TargetID, &m.ArticleID, &m.SimilarityScore, &strength,
		&m.SignalCategory, &m.MatchReason, &matchedAt, &expiresAt); err != nil {
		return nil, err
	}
	m.SignalStrength = sigmatch.SignalStrength(strength)

	var err error
	if m.MatchedAt, err = parseRFC3339(matchedAt, "matched_at"); err != nil {
		return nil, err
	}
	if m.ExpiresAt, err = parseRFC3339(expiresAt, "expires_at"); err != nil {
		return nil, err
	}
	return &m, nil
}
