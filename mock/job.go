package mock

import (
	"context"
	"sync"

	"github.com/fwojciec/sigmatch"
)

var _ sigmatch.JobService = (*JobService)(nil)

// JobService is a mock implementation of sigmatch.JobService.
type JobService struct {
	CreateJobFn func(ctx context.Context, job *sigmatch.Job) error
	FinishJobFn func(ctx context.Context, id string, upd sigmatch.JobUpdate) error
	FindJobsFn  func(ctx context.Context, filter sigmatch.JobFilter) ([]*sigmatch.Job, error)
}

func (s *JobService) CreateJob(ctx context.Context, job *sigmatch.Job) error {
	return s.CreateJobFn(ctx, job)
}

func (s *JobService) FinishJob(ctx context.Context, id string, upd sigmatch.JobUpdate) error {
	return s.FinishJobFn(ctx, id, upd)
}

func (s *JobService) FindJobs(ctx context.Context, filter sigmatch.JobFilter) ([]*sigmatch.Job, error) {
	return s.FindJobsFn(ctx, filter)
}

// JobRecorder is a JobService that keeps finished jobs in memory.
// It is safe for concurrent use.
type JobRecorder struct {
	JobService

	mu       sync.Mutex
	Created  []*sigmatch.Job
	Finished []sigmatch.JobUpdate
}

// NewJobRecorder returns a JobRecorder with working CreateJob and FinishJob.
// Like a real store, FinishJob refuses a canceled context.
func NewJobRecorder() *JobRecorder {
	r := &JobRecorder{}
	r.CreateJobFn = func(_ context.Context, job *sigmatch.Job) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		if job.ID == "" {
			job.ID = "job-" + string(job.JobType)
		}
		r.Created = append(r.Created, job)
		return nil
	}
	r.FinishJobFn = func(ctx context.Context, _ string, upd sigmatch.JobUpdate) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		r.Finished = append(r.Finished, upd)
		return nil
	}
	return r
}

// Last returns the most recent finished job update.
func (r *JobRecorder) Last() (sigmatch.JobUpdate, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Finished) == 0 {
		return sigmatch.JobUpdate{}, false
	}
	return r.Finished[len(r.Finished)-1], true
}
