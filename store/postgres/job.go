package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/intake"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
)

const jobColumns = `
	id, seq, kind, payload, state, attempts, max_attempts, available_at,
	worker_id, lease_expires_at, last_error, started_at, failed_at,
	created_at, updated_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func seconds(d time.Duration) float64 { return d.Seconds() }

// PushJob persists j as waiting and assigns its sequence number.
func (s *Store) PushJob(ctx context.Context, j *job.Job) error {
	return pushJob(ctx, s.pool, j)
}

func pushJob(ctx context.Context, q querier, j *job.Job) error {
	err := q.QueryRow(ctx, `
		INSERT INTO intake_jobs (
			id, kind, payload, state, attempts, max_attempts,
			available_at, created_at, updated_at
		) VALUES ($1, $2, $3, 'waiting', 0, $4, NOW(), NOW(), NOW())
		RETURNING seq, available_at, created_at, updated_at`,
		j.ID.String(), j.Kind, j.Payload, j.MaxAttempts,
	).Scan(&j.Seq, &j.AvailableAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return wrap("push job", intake.ErrInvalidJob)
		}
		return wrap("push job", err)
	}
	j.State = job.StateWaiting
	j.Attempts = 0
	return nil
}

// ClaimJob atomically moves the next claimable job to active. SKIP LOCKED
// lets concurrent claimers pass over rows another transaction holds.
func (s *Store) ClaimJob(ctx context.Context, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE intake_jobs SET
			state = 'active',
			attempts = attempts + 1,
			worker_id = $1,
			lease_expires_at = NOW() + $2::float8 * INTERVAL '1 second',
			started_at = NOW(),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM intake_jobs
			WHERE state = 'waiting'
			   OR (state = 'failed-retryable' AND available_at <= NOW())
			ORDER BY available_at ASC, seq ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING`+jobColumns,
		workerID.String(), seconds(lease),
	)
	j, err := scanJob(row)
	if isNoRows(err) {
		return nil, nil //nolint:nilnil // empty queue is not an error
	}
	if err != nil {
		return nil, wrap("claim job", err)
	}
	return j, nil
}

// ownershipErr explains why a worker-guarded statement touched no row.
func (s *Store) ownershipErr(ctx context.Context, jobID id.JobID) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM intake_jobs WHERE id = $1)`, jobID.String(),
	).Scan(&exists)
	if err != nil {
		return wrap("check job", err)
	}
	if exists {
		return intake.ErrLeaseLost
	}
	return intake.ErrJobNotFound
}

// AckJob deletes a job held by workerID.
func (s *Store) AckJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM intake_jobs
		WHERE id = $1 AND state = 'active' AND worker_id = $2`,
		jobID.String(), workerID.String(),
	)
	if err != nil {
		return wrap("ack job", err)
	}
	if tag.RowsAffected() == 0 {
		return s.ownershipErr(ctx, jobID)
	}
	return nil
}

// NackJob records a failed attempt on a job held by workerID.
func (s *Store) NackJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, n job.Nack) error {
	state := job.StateFailedRetryable
	if n.Dead {
		state = job.StateDead
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE intake_jobs SET
			state = $3,
			last_error = $4,
			available_at = CASE WHEN $3 = 'dead' THEN available_at
			                    ELSE NOW() + $5::float8 * INTERVAL '1 second' END,
			worker_id = '',
			lease_expires_at = NULL,
			failed_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND state = 'active' AND worker_id = $2`,
		jobID.String(), workerID.String(), string(state), n.Reason, seconds(n.Delay),
	)
	if err != nil {
		return wrap("nack job", err)
	}
	if tag.RowsAffected() == 0 {
		return s.ownershipErr(ctx, jobID)
	}
	return nil
}

// ExtendLease pushes the lease of a held job to now+lease.
func (s *Store) ExtendLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE intake_jobs SET
			lease_expires_at = NOW() + $3::float8 * INTERVAL '1 second',
			updated_at = NOW()
		WHERE id = $1 AND state = 'active' AND worker_id = $2`,
		jobID.String(), workerID.String(), seconds(lease),
	)
	if err != nil {
		return wrap("extend lease", err)
	}
	if tag.RowsAffected() == 0 {
		return s.ownershipErr(ctx, jobID)
	}
	return nil
}

// RequeueExpired returns active jobs with a lapsed lease to waiting.
// Attempts and available_at are left alone, so a recovered job keeps its
// place at the head of the queue.
func (s *Store) RequeueExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE intake_jobs SET
			state = 'waiting',
			worker_id = '',
			lease_expires_at = NULL,
			updated_at = NOW()
		WHERE state = 'active' AND lease_expires_at < NOW()`)
	if err != nil {
		return 0, wrap("requeue expired", err)
	}
	return tag.RowsAffected(), nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+jobColumns+` FROM intake_jobs WHERE id = $1`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, intake.ErrJobNotFound
		}
		return nil, wrap("get job", err)
	}
	return j, nil
}

// ListJobsByState returns jobs in state ordered by (available_at, seq).
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	// LIMIT NULL means no limit.
	var limit *int
	if opts.Limit > 0 {
		limit = &opts.Limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT`+jobColumns+`
		FROM intake_jobs
		WHERE state = $1
		ORDER BY available_at ASC, seq ASC
		LIMIT $2 OFFSET $3`,
		string(state), limit, opts.Offset,
	)
	if err != nil {
		return nil, wrap("list jobs by state", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM intake_jobs
		WHERE $1 = '' OR state = $1`,
		string(opts.State),
	).Scan(&count)
	if err != nil {
		return 0, wrap("count jobs", err)
	}
	return count, nil
}

// PurgeDead deletes dead jobs last updated before the cutoff. A zero
// cutoff purges every dead job.
func (s *Store) PurgeDead(ctx context.Context, before time.Time) (int64, error) {
	var cutoff *time.Time
	if !before.IsZero() {
		cutoff = &before
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM intake_jobs
		WHERE state = 'dead'
		  AND ($1::timestamptz IS NULL OR updated_at < $1)`,
		cutoff,
	)
	if err != nil {
		return 0, wrap("purge dead", err)
	}
	return tag.RowsAffected(), nil
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		idStr     string
		stateStr  string
		workerStr string
	)
	err := row.Scan(
		&idStr, &j.Seq, &j.Kind, &j.Payload, &stateStr,
		&j.Attempts, &j.MaxAttempts, &j.AvailableAt,
		&workerStr, &j.LeaseExpiresAt, &j.LastError, &j.StartedAt, &j.FailedAt,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.State = job.State(stateStr)

	parsedID, err := id.ParseJobID(idStr)
	if err != nil {
		return nil, wrap("parse job id "+idStr, err)
	}
	j.ID = parsedID

	if workerStr != "" {
		if w, werr := id.ParseWorkerID(workerStr); werr == nil {
			j.WorkerID = w
		}
	}

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	jobs := make([]*job.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, wrap("scan job row", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate job rows", err)
	}
	return jobs, nil
}
