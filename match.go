package sigmatch

import (
	"context"
	"time"
)

// SignalStrength is a three-tier classification of match confidence.
type SignalStrength string

// Signal strengths.
const (
	SignalStrong   SignalStrength = "strong"
	SignalModerate SignalStrength = "moderate"
	SignalWeak     SignalStrength = "weak"
)

// Signal strength boundaries.
const (
	StrongSimilarity   = 0.50
	ModerateSimilarity = 0.40
)

// ClassifyStrength returns the signal strength for a similarity score.
func ClassifyStrength(similarity float64) SignalStrength {
	switch {
	case similarity >= StrongSimilarity:
		return SignalStrong
	case similarity >= ModerateSimilarity:
		return SignalModerate
	default:
		return SignalWeak
	}
}

// DefaultMatchTTL is how long a match stays visible after it was recorded.
const DefaultMatchTTL = 30 * 24 * time.Hour

// Match represents a target/article match.
type Match struct {
	ID              string         `json:"id"`
	OrganizationID  string         `json:"organizationId"`
	TargetID        string         `json:"targetId"`
	ArticleID       string         `json:"articleId"`
	SimilarityScore float64        `json:"similarityScore"`
	SignalStrength  SignalStrength `json:"signalStrength"`
	SignalCategory  string         `json:"signalCategory"`
	MatchReason     string         `json:"matchReason"`
	MatchedAt       time.Time      `json:"matchedAt"`
	ExpiresAt       time.Time      `json:"expiresAt"`
}

// Validate returns an error if the match contains invalid fields.
func (m *Match) Validate() error {
	if m.OrganizationID == "" {
		return Errorf(EINVALID, "match organization ID required")
	}
	if m.TargetID == "" {
		return Errorf(EINVALID, "match target ID required")
	}
	if m.ArticleID == "" {
		return Errorf(EINVALID, "match article ID required")
	}
	if m.SimilarityScore < 0 || m.SimilarityScore > 1 {
		return Errorf(EINVALID, "match similarity %.4f out of range", m.SimilarityScore)
	}
	return nil
}

// MatchService represents a service for managing matches.
type MatchService interface {
	// UpsertMatch inserts the match or overwrites the existing row for the
	// same (target_id, article_id). created is true for new rows.
	UpsertMatch(ctx context.Context, match *Match) (created bool, err error)

	// FindMatches retrieves matches matching the filter.
	FindMatches(ctx context.Context, filter MatchFilter) ([]*Match, error)

	// FindCandidates returns unexpired matches joined with their articles,
	// ordered by similarity descending.
	FindCandidates(ctx context.Context, filter CandidateFilter) ([]*Candidate, error)
}

// MatchFilter represents a filter for FindMatches.
type MatchFilter struct {
	OrganizationID *string `json:"organizationId"`
	TargetID       *string `json:"targetId"`
	ArticleID      *string `json:"articleId"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// CandidateFilter represents a filter for FindCandidates.
type CandidateFilter struct {
	OrganizationID string
	MinSimilarity  float64
	Since          time.Time // matched_at lower bound
	Now            time.Time // expiry reference
	Limit          int
}

// Candidate is a match together with the article fields selection needs.
type Candidate struct {
	Match       *Match
	TargetName  string
	Title       string
	URL         string
	Description string
	FullText    string
	SourceID    string
	SourceName  string
	PublishedAt *time.Time
}
