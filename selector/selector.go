// Package selector builds the article list an organization's downstream
// consumer sees.
//
// Selection is read-only: it pulls unexpired matches above a floor, keeps
// one candidate per article, drops articles whose text fails the quality
// bar, and enforces a per-source cap before the overall output cap.
package selector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/sigmatch"
)

// Defaults for a selection.
const (
	DefaultCandidatePool = 200
	DefaultFloor         = 0.32
	DefaultPerSourceCap  = 8
	DefaultOutputCap     = 50
	DefaultWindow        = 24 * time.Hour
)

// Selector selects candidate articles for an organization.
type Selector struct {
	Matches sigmatch.MatchService
	Logger  *slog.Logger

	CandidatePool int
	Floor         float64
	PerSourceCap  int
	OutputCap     int
	Window        time.Duration

	Now func() time.Time
}

// Item is one selected article.
type Item struct {
	ArticleID      string                  `json:"articleId"`
	Title          string                  `json:"title"`
	URL            string                  `json:"url"`
	Description    string                  `json:"description,omitempty"`
	SourceID       string                  `json:"sourceId"`
	SourceName     string                  `json:"sourceName"`
	PublishedAt    *time.Time              `json:"publishedAt,omitempty"`
	TargetID       string                  `json:"targetId"`
	TargetName     string                  `json:"targetName"`
	Similarity     float64                 `json:"similarity"`
	SignalStrength sigmatch.SignalStrength `json:"signalStrength"`
	SignalCategory string                  `json:"signalCategory"`
	MatchReason    string                  `json:"matchReason"`
}

// Selection is the outcome of a selection.
type Selection struct {
	OrganizationID string                         `json:"organizationId"`
	Items          []*Item                        `json:"items"`
	Distribution   map[string]int                 `json:"distribution"`
	MeanSimilarity float64                        `json:"meanSimilarity"`
	Rejected       map[sigmatch.QualityReason]int `json:"rejected"`
	CandidateCount int                            `json:"candidateCount"`
	Duplicates     int                            `json:"duplicates"`
	SourceCapped   int                            `json:"sourceCapped"`
}

// Select returns the ranked, de-duplicated, quality-checked and
// source-diverse article list for an organization. A zero window uses the
// selector's default.
func (s *Selector) Select(ctx context.Context, organizationID string, window time.Duration) (*Selection, error) {
	if organizationID == "" {
		return nil, sigmatch.Errorf(sigmatch.EINVALID, "organization ID required")
	}
	if window <= 0 {
		window = s.window()
	}

	now := s.now()
	candidates, err := s.Matches.FindCandidates(ctx, sigmatch.CandidateFilter{
		OrganizationID: organizationID,
		MinSimilarity:  s.floor(),
		Since:          now.Add(-window),
		Now:            now,
		Limit:          s.candidatePool(),
	})
	if err != nil {
		return nil, fmt.Errorf("find candidates: %w", err)
	}

	sel := &Selection{
		OrganizationID: organizationID,
		Items:          []*Item{},
		Distribution:   map[string]int{},
		Rejected:       map[sigmatch.QualityReason]int{},
		CandidateCount: len(candidates),
	}

	// Candidates arrive by similarity descending, so the first candidate
	// seen for an article is its strongest match.
	seen := make(map[string]bool, len(candidates))
	perSourceCap, outputCap := s.perSourceCap(), s.outputCap()
	var total float64
	for _, c := range candidates {
		if len(sel.Items) >= outputCap {
			break
		}
		if seen[c.Match.ArticleID] {
			sel.Duplicates++
			continue
		}
		seen[c.Match.ArticleID] = true

		if reason := sigmatch.CheckQuality(c.FullText, c.Description); reason != sigmatch.QualityOK {
			sel.Rejected[reason]++
			continue
		}

		source := c.SourceName
		if source == "" {
			source = c.SourceID
		}
		if sel.Distribution[source] >= perSourceCap {
			sel.SourceCapped++
			continue
		}
		sel.Distribution[source]++

		sel.Items = append(sel.Items, newItem(c))
		total += c.Match.SimilarityScore
	}
	if len(sel.Items) > 0 {
		sel.MeanSimilarity = total / float64(len(sel.Items))
	}

	s.logger().Info("selection finished",
		"org", organizationID,
		"candidates", sel.CandidateCount,
		"selected", len(sel.Items),
		"duplicates", sel.Duplicates,
		"source_capped", sel.SourceCapped,
		"rejected", sel.Rejected,
		"mean_similarity", sel.MeanSimilarity,
	)
	return sel, nil
}

func newItem(c *sigmatch.Candidate) *Item {
	return &Item{
		ArticleID:      c.Match.ArticleID,
		Title:          c.Title,
		URL:            c.URL,
		Description:    c.Description,
		SourceID:       c.SourceID,
		SourceName:     c.SourceName,
		PublishedAt:    c.PublishedAt,
		TargetID:       c.Match.TargetID,
		TargetName:     c.TargetName,
		Similarity:     c.Match.SimilarityScore,
		SignalStrength: c.Match.SignalStrength,
		SignalCategory: c.Match.SignalCategory,
		MatchReason:    c.Match.MatchReason,
	}
}

func (s *Selector) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

func (s *Selector) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now()
}

func (s *Selector) candidatePool() int {
	if s.CandidatePool <= 0 {
		return DefaultCandidatePool
	}
	return s.CandidatePool
}

func (s *Selector) floor() float64 {
	if s.Floor <= 0 {
		return DefaultFloor
	}
	return s.Floor
}

func (s *Selector) perSourceCap() int {
	if s.PerSourceCap <= 0 {
		return DefaultPerSourceCap
	}
	return s.PerSourceCap
}

func (s *Selector) outputCap() int {
	if s.OutputCap <= 0 {
		return DefaultOutputCap
	}
	return s.OutputCap
}

func (s *Selector) window() time.Duration {
	if s.Window <= 0 {
		return DefaultWindow
	}
	return s.Window
}
