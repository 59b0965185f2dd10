package sigmatch

import (
	"context"
	"time"
)

// JobType identifies a batch job.
type JobType string

// Batch job types.
const (
	JobDiscovery JobType = "discovery"
	JobScrape    JobType = "scrape"
	JobEmbedding JobType = "embedding"
	JobMatching  JobType = "matching"
	JobDecay     JobType = "decay"
)

// JobStatus is the state of a job run.
type JobStatus string

// Job states.
const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is the audit record written once per batch job run.
type Job struct {
	ID             string         `json:"id"`
	JobType        JobType        `json:"jobType"`
	Status         JobStatus      `json:"status"`
	ItemsTotal     int            `json:"itemsTotal"`
	ItemsProcessed int            `json:"itemsProcessed"`
	ItemsFailed    int            `json:"itemsFailed"`
	StartedAt      time.Time      `json:"startedAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	Error          string         `json:"error,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// JobService records batch job runs.
type JobService interface {
	// CreateJob records the start of a run with status running.
	CreateJob(ctx context.Context, job *Job) error

	// FinishJob records the final state of a run.
	// Returns ENOTFOUND if job does not exist.
	FinishJob(ctx context.Context, id string, upd JobUpdate) error

	// FindJobs retrieves jobs matching the filter, newest first.
	FindJobs(ctx context.Context, filter JobFilter) ([]*Job, error)
}

// JobUpdate holds the final state of a run.
type JobUpdate struct {
	Status         JobStatus
	ItemsTotal     int
	ItemsProcessed int
	ItemsFailed    int
	CompletedAt    time.Time
	Error          string
	Metadata       map[string]any
}

// JobFilter represents a filter for FindJobs.
type JobFilter struct {
	JobType *JobType `json:"jobType"`

	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}
