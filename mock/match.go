package mock

import (
	"context"

	"github.com/fwojciec/sigmatch"
)

var _ sigmatch.MatchService = (*MatchService)(nil)

// MatchService is a mock implementation of sigmatch.MatchService.
type MatchService struct {
	UpsertMatchFn    func(ctx context.Context, match *sigmatch.Match) (bool, error)
	FindMatchesFn    func(ctx context.Context, filter sigmatch.MatchFilter) ([]*sigmatch.Match, error)
	FindCandidatesFn func(ctx context.Context, filter sigmatch.CandidateFilter) ([]*sigmatch.Candidate, error)
}

func (s *MatchService) UpsertMatch(ctx context.Context, match *sigmatch.Match) (bool, error) {
	return s.UpsertMatchFn(ctx, match)
}

func (s *MatchService) FindMatches(ctx context.Context, filter sigmatch.MatchFilter) ([]*sigmatch.Match, error) {
	return s.FindMatchesFn(ctx, filter)
}

func (s *MatchService) FindCandidates(ctx context.Context, filter sigmatch.CandidateFilter) ([]*sigmatch.Candidate, error) {
	return s.FindCandidatesFn(ctx, filter)
}
