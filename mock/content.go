package mock

import (
	"context"

	"github.com/fwojciec/sigmatch"
)

var _ sigmatch.ContentService = (*ContentService)(nil)

// ContentService is a mock implementation of sigmatch.ContentService.
type ContentService struct {
	CreateContentItemFn   func(ctx context.Context, item *sigmatch.ContentItem) error
	FindContentItemByIDFn func(ctx context.Context, id string) (*sigmatch.ContentItem, error)
	FindDecayableFn       func(ctx context.Context, filter sigmatch.DecayFilter) ([]*sigmatch.ContentItem, error)
	UpdateSalienceFn      func(ctx context.Context, scores []sigmatch.SalienceUpdate) (int, error)
}

func (s *ContentService) CreateContentItem(ctx context.Context, item *sigmatch.ContentItem) error {
	return s.CreateContentItemFn(ctx, item)
}

func (s *ContentService) FindContentItemByID(ctx context.Context, id string) (*sigmatch.ContentItem, error) {
	return s.FindContentItemByIDFn(ctx, id)
}

func (s *ContentService) FindDecayable(ctx context.Context, filter sigmatch.DecayFilter) ([]*sigmatch.ContentItem, error) {
	return s.FindDecayableFn(ctx, filter)
}

func (s *ContentService) UpdateSalience(ctx context.Context, scores []sigmatch.SalienceUpdate) (int, error) {
	return s.UpdateSalienceFn(ctx, scores)
}
