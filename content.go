package sigmatch

import (
	"context"
	"time"
)

// ContentStatus is the lifecycle state of a stored content item.
type ContentStatus string

// Content states. Only active items decay.
const (
	ContentActive   ContentStatus = "active"
	ContentArchived ContentStatus = "archived"
)

// ContentItem represents stored content carrying a decaying salience score.
type ContentItem struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organizationId"`
	ContentType    string        `json:"contentType"`
	Title          string        `json:"title"`
	SalienceScore  float64       `json:"salienceScore"`
	DecayRate      float64       `json:"decayRate"`
	LastAccessedAt time.Time     `json:"lastAccessedAt"`
	Status         ContentStatus `json:"status"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Validate returns an error if the content item contains invalid fields.
func (c *ContentItem) Validate() error {
	if c.OrganizationID == "" {
		return Errorf(EINVALID, "content organization ID required")
	}
	if c.ContentType == "" {
		return Errorf(EINVALID, "content type required")
	}
	if c.SalienceScore < SalienceFloor || c.SalienceScore > 1 {
		return Errorf(EINVALID, "salience %.4f out of range", c.SalienceScore)
	}
	if c.DecayRate < 0 || c.DecayRate >= 1 {
		return Errorf(EINVALID, "decay rate %.4f out of range", c.DecayRate)
	}
	return nil
}

// ContentService represents a service for managing decayable content.
type ContentService interface {
	// CreateContentItem creates a new content item.
	CreateContentItem(ctx context.Context, item *ContentItem) error

	// FindContentItemByID retrieves a content item by ID.
	// Returns ENOTFOUND if the item does not exist.
	FindContentItemByID(ctx context.Context, id string) (*ContentItem, error)

	// FindDecayable returns active items whose salience is above the floor.
	FindDecayable(ctx context.Context, filter DecayFilter) ([]*ContentItem, error)

	// UpdateSalience writes new salience scores in a single transaction and
	// returns how many were applied. An update only applies while the item
	// still holds the score and last access time it was computed from;
	// items touched or deleted since then are skipped.
	UpdateSalience(ctx context.Context, scores []SalienceUpdate) (int, error)
}

// DecayFilter scopes a decay run.
type DecayFilter struct {
	OrganizationID *string
	ContentType    *string
	Floor          float64
}

// SalienceUpdate is a new salience score for one item, together with the
// state it was computed from.
type SalienceUpdate struct {
	ID             string
	Score          float64
	Previous       float64
	LastAccessedAt time.Time
}
