package sigmatch

import (
	"context"
	"time"
)

// TargetType classifies an intelligence target.
type TargetType string

// Supported target types.
const (
	TargetCompetitor  TargetType = "competitor"
	TargetTopic       TargetType = "topic"
	TargetKeyword     TargetType = "keyword"
	TargetStakeholder TargetType = "stakeholder"
	TargetInfluencer  TargetType = "influencer"
	TargetRegulator   TargetType = "regulator"
	TargetCustomer    TargetType = "customer"
	TargetPartner     TargetType = "partner"
)

// TargetTypes lists every supported target type.
var TargetTypes = []TargetType{
	TargetCompetitor,
	TargetTopic,
	TargetKeyword,
	TargetStakeholder,
	TargetInfluencer,
	TargetRegulator,
	TargetCustomer,
	TargetPartner,
}

// Valid reports whether t is a supported target type.
func (t TargetType) Valid() bool {
	for _, known := range TargetTypes {
		if t == known {
			return true
		}
	}
	return false
}

// TargetPriority ranks how much an organization cares about a target.
type TargetPriority string

// Target priorities.
const (
	PriorityCritical TargetPriority = "critical"
	PriorityHigh     TargetPriority = "high"
	PriorityMedium   TargetPriority = "medium"
	PriorityLow      TargetPriority = "low"
)

// Target represents an organization-scoped intelligence target.
type Target struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	TargetType     TargetType     `json:"targetType"`
	Priority       TargetPriority `json:"priority"`
	Embedding      []float32      `json:"embedding,omitempty"`
	IsActive       bool           `json:"isActive"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Validate returns an error if the target contains invalid fields.
func (t *Target) Validate() error {
	if t.OrganizationID == "" {
		return Errorf(EINVALID, "target organization ID required")
	}
	if t.Name == "" {
		return Errorf(EINVALID, "target name required")
	}
	if !t.TargetType.Valid() {
		return Errorf(EINVALID, "unknown target type %q", t.TargetType)
	}
	switch t.Priority {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
	default:
		return Errorf(EINVALID, "unknown target priority %q", t.Priority)
	}
	return nil
}

// TargetService represents a service for managing intelligence targets.
type TargetService interface {
	// CreateTarget creates a new target.
	CreateTarget(ctx context.Context, target *Target) error

	// FindTargetByID retrieves a target by ID.
	// Returns ENOTFOUND if target does not exist.
	FindTargetByID(ctx context.Context, id string) (*Target, error)

	// FindTargets retrieves targets matching the filter.
	FindTargets(ctx context.Context, filter TargetFilter) ([]*Target, error)

	// SetTargetEmbedding stores the precomputed embedding for a target.
	// Returns ENOTFOUND if target does not exist.
	SetTargetEmbedding(ctx context.Context, id string, embedding []float32) error
}

// TargetFilter represents a filter for FindTargets.
type TargetFilter struct {
	ID             *string `json:"id"`
	OrganizationID *string `json:"organizationId"`
	Active         *bool   `json:"active"`
	HasEmbedding   *bool   `json:"hasEmbedding"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// ThresholdTable maps target types to minimum similarity thresholds.
type ThresholdTable struct {
	// Global is the lowest threshold any target type may use.
	Global float64 `yaml:"global"`

	// Default applies to target types missing from ByType.
	Default float64 `yaml:"default"`

	ByType map[TargetType]float64 `yaml:"byType"`
}

// DefaultThresholds returns the threshold table tuned for headline-heavy text.
// Named entities score lower against short text than broad categories, so
// they get a lower bar; broad categories produce many weak-but-plausible
// matches and get a higher one.
func DefaultThresholds() ThresholdTable {
	return ThresholdTable{
		Global:  0.32,
		Default: 0.40,
		ByType: map[TargetType]float64{
			TargetCompetitor:  0.35,
			TargetCustomer:    0.35,
			TargetPartner:     0.35,
			TargetStakeholder: 0.38,
			TargetInfluencer:  0.38,
			TargetRegulator:   0.38,
			TargetTopic:       0.42,
			TargetKeyword:     0.42,
		},
	}
}

// For returns the effective threshold for a target type:
// max(Global, ByType[t]), falling back to Default for unknown types.
func (tt ThresholdTable) For(t TargetType) float64 {
	threshold, ok := tt.ByType[t]
	if !ok {
		threshold = tt.Default
	}
	return max(tt.Global, threshold)
}

// signalCategories maps target types to the category recorded on matches.
var signalCategories = map[TargetType]string{
	TargetCompetitor:  "competitive_intelligence",
	TargetCustomer:    "customer_intelligence",
	TargetPartner:     "partner_intelligence",
	TargetTopic:       "industry_trends",
	TargetKeyword:     "keyword_monitoring",
	TargetRegulator:   "regulatory",
	TargetStakeholder: "stakeholder_activity",
	TargetInfluencer:  "influencer_activity",
}

// DefaultSignalCategory is recorded for target types without a mapping.
const DefaultSignalCategory = "general"

// SignalCategory returns the signal category for a target type.
func SignalCategory(t TargetType) string {
	if category, ok := signalCategories[t]; ok {
		return category
	}
	return DefaultSignalCategory
}
