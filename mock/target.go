package mock

import (
	"context"

	"github.com/fwojciec/sigmatch"
)

var _ sigmatch.TargetService = (*TargetService)(nil)

// TargetService is a mock implementation of sigmatch.TargetService.
type TargetService struct {
	CreateTargetFn       func(ctx context.Context, target *sigmatch.Target) error
	FindTargetByIDFn     func(ctx context.Context, id string) (*sigmatch.Target, error)
	FindTargetsFn        func(ctx context.Context, filter sigmatch.TargetFilter) ([]*sigmatch.Target, error)
	SetTargetEmbeddingFn func(ctx context.Context, id string, embedding []float32) error
}

func (s *TargetService) CreateTarget(ctx context.Context, target *sigmatch.Target) error {
	return s.CreateTargetFn(ctx, target)
}

func (s *TargetService) FindTargetByID(ctx context.Context, id string) (*sigmatch.Target, error) {
	return s.FindTargetByIDFn(ctx, id)
}

func (s *TargetService) FindTargets(ctx context.Context, filter sigmatch.TargetFilter) ([]*sigmatch.Target, error) {
	return s.FindTargetsFn(ctx, filter)
}

func (s *TargetService) SetTargetEmbedding(ctx context.Context, id string, embedding []float32) error {
	return s.SetTargetEmbeddingFn(ctx, id, embedding)
}
