package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/fwojciec/sigmatch"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ sigmatch.JobService = (*JobService)(nil)

const jobColumns = "id, job_type, status, items_total, items_processed, items_failed, started_at, completed_at, error, metadata"

// JobService implements sigmatch.JobService using SQLite.
type JobService struct {
	db *DB
}

// NewJobService creates a new JobService.
func NewJobService(db *DB) *JobService {
	return &JobService{db: db}
}

// CreateJob records the start of a run. The job is always created running.
func (s *JobService) CreateJob(ctx context.Context, job *sigmatch.Job) error {
	if job.JobType == "" {
		return sigmatch.Errorf(sigmatch.EINVALID, "job type required")
	}

	job.ID = uuid.New().String()
	job.Status = sigmatch.JobRunning
	if job.StartedAt.IsZero() {
		job.StartedAt = time.Now().UTC()
	}

	metadata, err := encodeMetadata(job.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_type, status, items_total, items_processed, items_failed, started_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, string(job.JobType), string(job.Status), job.ItemsTotal, job.ItemsProcessed, job.ItemsFailed,
		formatTime(job.StartedAt), metadata)
	return err
}

// FinishJob stores the final outcome of a run.
func (s *JobService) FinishJob(ctx context.Context, id string, upd sigmatch.JobUpdate) error {
	if upd.Status != sigmatch.JobCompleted && upd.Status != sigmatch.JobFailed {
		return sigmatch.Errorf(sigmatch.EINVALID, "invalid final job status %q", upd.Status)
	}
	completedAt := upd.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	metadata, err := encodeMetadata(upd.Metadata)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = ?, items_total = ?, items_processed = ?, items_failed = ?, completed_at = ?, error = ?, metadata = ?
		WHERE id = ?
	`, string(upd.Status), upd.ItemsTotal, upd.ItemsProcessed, upd.ItemsFailed, formatTime(completedAt),
		upd.Error, metadata, id)
	if err != nil {
		return err
	}
	return requireRowsAffected(result, "job not found")
}

// FindJobs retrieves jobs, newest first.
func (s *JobService) FindJobs(ctx context.Context, filter sigmatch.JobFilter) ([]*sigmatch.Job, error) {
	query := sq.Select(jobColumns).From("jobs")
	if filter.JobType != nil {
		query = query.Where(sq.Eq{"job_type": string(*filter.JobType)})
	}
	query = appendPagination(query.OrderBy("started_at DESC", "id ASC"), filter.Limit, filter.Offset)

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*sigmatch.Job
	for rows.Next() {
		var j sigmatch.Job
		var jobType, status, startedAt, metadata string
		var completedAt sql.NullString

		if err := rows.Scan(&j.ID, &jobType, &status, &j.ItemsTotal, &j.ItemsProcessed, &j.ItemsFailed,
			&startedAt, &completedAt, &j.Error, &metadata); err != nil {
			return nil, err
		}
		j.JobType = sigmatch.JobType(jobType)
		j.Status = sigmatch.JobStatus(status)
		if j.StartedAt, err = parseRFC3339(startedAt, "started_at"); err != nil {
			return nil, err
		}
		if j.CompletedAt, err = parseNullRFC3339(completedAt, "completed_at"); err != nil {
			return nil, err
		}
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &j.Metadata); err != nil {
				return nil, fmt.Errorf("failed to parse metadata: %w", err)
			}
		}
		jobs = append(jobs, &j)
	}

	return jobs, rows.Err()
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(b), nil
}
