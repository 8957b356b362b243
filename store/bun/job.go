package bunstore

import (
	"context"
	"fmt"

	"github.com/conducthq/conduct"
	"github.com/conducthq/conduct/id"
	"github.com/conducthq/conduct/job"
)

// CreateJob persists a new job in queued state.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	if _, err := s.db.NewInsert().Model(m).Exec(ctx); err != nil {
		if isDuplicateKey(err) {
			return conduct.ErrJobAlreadyExists
		}
		return fmt.Errorf("conduct/bun: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, conduct.ErrJobNotFound
		}
		return nil, fmt.Errorf("conduct/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().Model(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("conduct/bun: update job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return conduct.ErrJobNotFound
	}
	return nil
}

// AppendJobLog appends one line to the job's log text on the SQL side,
// so concurrent appends from the runner and the recovery path never
// read-modify-write over each other.
func (s *Store) AppendJobLog(ctx context.Context, jobID id.JobID, line string) error {
	res, err := s.db.NewUpdate().
		TableExpr("conduct_jobs").
		Set("log_text = CASE WHEN log_text = '' THEN ? ELSE log_text || ? || ? END", line, "\n", line).
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("conduct/bun: append job log: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return conduct.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job by ID.
func (s *Store) DeleteJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.NewDelete().
		TableExpr("conduct_jobs").
		Where("id = ?", jobID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("conduct/bun: delete job: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return conduct.ErrJobNotFound
	}
	return nil
}

// ListJobs returns jobs matching the given options, newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models)

	if opts.Owner != "" {
		q = q.Where("owner_id = ?", opts.Owner)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}

	q = q.Order("queued_at DESC", "id DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("conduct/bun: list jobs: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("conduct/bun: list jobs convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	q := s.db.NewSelect().TableExpr("conduct_jobs")

	if opts.Owner != "" {
		q = q.Where("owner_id = ?", opts.Owner)
	}
	if opts.Command != "" {
		q = q.Where("command = ?", opts.Command)
	}
	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if !opts.Since.IsZero() {
		q = q.Where("queued_at >= ?", opts.Since)
	}

	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("conduct/bun: count jobs: %w", err)
	}
	return int64(count), nil
}
