package sigmatch

import (
	"context"
	"time"
)

// DiscoveryMethod identifies how candidate articles are found for a source.
type DiscoveryMethod string

// Supported discovery methods.
const (
	DiscoveryFeed      DiscoveryMethod = "feed"
	DiscoverySearchAPI DiscoveryMethod = "search_api"
)

// Source tiers. Tier 1 sources are the most valuable.
const (
	TierPrimary   = 1
	TierSecondary = 2
	TierTertiary  = 3
)

// Source represents an administered content source.
type Source struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	URL                 string          `json:"url"`
	Query               string          `json:"query,omitempty"`
	Tier                int             `json:"tier"`
	IndustryTags        []string        `json:"industryTags,omitempty"`
	DiscoveryMethod     DiscoveryMethod `json:"discoveryMethod"`
	Active              bool            `json:"active"`
	ConsecutiveFailures int             `json:"consecutiveFailures"`
	LastSuccessAt       *time.Time      `json:"lastSuccessAt,omitempty"`
	LastError           string          `json:"lastError,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// Validate returns an error if the source contains invalid fields.
func (s *Source) Validate() error {
	if s.Name == "" {
		return Errorf(EINVALID, "source name required")
	}
	if s.Tier < TierPrimary || s.Tier > TierTertiary {
		return Errorf(EINVALID, "source tier must be between %d and %d", TierPrimary, TierTertiary)
	}
	switch s.DiscoveryMethod {
	case DiscoveryFeed:
		if s.URL == "" {
			return Errorf(EINVALID, "feed source %q requires a URL", s.Name)
		}
	case DiscoverySearchAPI:
		if s.Query == "" {
			return Errorf(EINVALID, "search source %q requires a query", s.Name)
		}
	default:
		return Errorf(EINVALID, "unknown discovery method %q", s.DiscoveryMethod)
	}
	return nil
}

// ScrapePriority derives an article's scrape priority from its source tier.
// Higher values are processed first, so tier 1 maps to the highest priority.
func ScrapePriority(tier int) int {
	switch {
	case tier <= TierPrimary:
		return 3
	case tier == TierSecondary:
		return 2
	default:
		return 1
	}
}

// SourceService represents a service for managing sources.
type SourceService interface {
	// CreateSource creates a new source.
	// Returns ECONFLICT if a source with the same name exists.
	CreateSource(ctx context.Context, source *Source) error

	// FindSourceByID retrieves a source by ID.
	// Returns ENOTFOUND if source does not exist.
	FindSourceByID(ctx context.Context, id string) (*Source, error)

	// FindSources retrieves sources matching the filter, ordered by tier then name.
	FindSources(ctx context.Context, filter SourceFilter) ([]*Source, error)

	// UpdateSource updates administrator-managed fields of a source.
	// Returns ENOTFOUND if source does not exist.
	UpdateSource(ctx context.Context, id string, upd SourceUpdate) (*Source, error)

	// RecordSourceSuccess resets the failure counter and stamps last_success_at.
	RecordSourceSuccess(ctx context.Context, id string, at time.Time) error

	// RecordSourceFailure atomically increments the failure counter and
	// records the error. When ceiling > 0 and the counter reaches it the
	// source is deactivated and disabled is true.
	RecordSourceFailure(ctx context.Context, id string, message string, ceiling int) (disabled bool, err error)
}

// SourceFilter represents a filter for FindSources.
type SourceFilter struct {
	ID              *string          `json:"id"`
	Name            *string          `json:"name"`
	Active          *bool            `json:"active"`
	DiscoveryMethod *DiscoveryMethod `json:"discoveryMethod"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// SourceUpdate represents fields that can be updated on a source.
// Setting Active to true also resets the failure counter.
type SourceUpdate struct {
	Name         *string   `json:"name"`
	URL          *string   `json:"url"`
	Query        *string   `json:"query"`
	Tier         *int      `json:"tier"`
	IndustryTags *[]string `json:"industryTags"`
	Active       *bool     `json:"active"`
}
