package mock

import (
	"context"
	"time"

	"github.com/fwojciec/sigmatch"
)

var _ sigmatch.SourceService = (*SourceService)(nil)

// SourceService is a mock implementation of sigmatch.SourceService.
type SourceService struct {
	CreateSourceFn        func(ctx context.Context, source *sigmatch.Source) error
	FindSourceByIDFn      func(ctx context.Context, id string) (*sigmatch.Source, error)
	FindSourcesFn         func(ctx context.Context, filter sigmatch.SourceFilter) ([]*sigmatch.Source, error)
	UpdateSourceFn        func(ctx context.Context, id string, upd sigmatch.SourceUpdate) (*sigmatch.Source, error)
	RecordSourceSuccessFn func(ctx context.Context, id string, at time.Time) error
	RecordSourceFailureFn func(ctx context.Context, id string, message string, ceiling int) (bool, error)
}

func (s *SourceService) CreateSource(ctx context.Context, source *sigmatch.Source) error {
	return s.CreateSourceFn(ctx, source)
}

func (s *SourceService) FindSourceByID(ctx context.Context, id string) (*sigmatch.Source, error) {
	return s.FindSourceByIDFn(ctx, id)
}

func (s *SourceService) FindSources(ctx context.Context, filter sigmatch.SourceFilter) ([]*sigmatch.Source, error) {
	return s.FindSourcesFn(ctx, filter)
}

func (s *SourceService) UpdateSource(ctx context.Context, id string, upd sigmatch.SourceUpdate) (*sigmatch.Source, error) {
	return s.UpdateSourceFn(ctx, id, upd)
}

func (s *SourceService) RecordSourceSuccess(ctx context.Context, id string, at time.Time) error {
	return s.RecordSourceSuccessFn(ctx, id, at)
}

func (s *SourceService) RecordSourceFailure(ctx context.Context, id string, message string, ceiling int) (bool, error) {
	return s.RecordSourceFailureFn(ctx, id, message, ceiling)
}
