package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/intake"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
)

func wrap(op string, err error) error {
	return fmt.Errorf("intake/redis: %s: %w", op, err)
}

func ms(t time.Time) int64 { return t.UnixMilli() }

// ownershipErr maps a script's ownership result to the store errors.
func ownershipErr(res int64) error {
	switch res {
	case resNotFound:
		return intake.ErrJobNotFound
	case resLeaseLost:
		return intake.ErrLeaseLost
	default:
		return nil
	}
}

// PushJob stores j as waiting and assigns its sequence number. Its
// timestamps come from the Redis server clock.
func (s *Store) PushJob(ctx context.Context, j *job.Job) error {
	j.State = job.StateWaiting

	args := []any{j.ID.String()}
	for k, v := range jobToMap(j) {
		args = append(args, k, v)
	}
	res, err := pushScript.Run(ctx, s.client,
		[]string{jobKey(j.ID.String()), seqKey, readyKey}, args...).Int64Slice()
	if err != nil {
		return wrap("push job", err)
	}
	if len(res) != 2 {
		return wrap("push job", fmt.Errorf("unexpected reply %v", res))
	}
	if res[0] < 0 {
		return wrap("push job", fmt.Errorf("%w: duplicate id %s", intake.ErrInvalidJob, j.ID))
	}
	now := time.UnixMilli(res[1]).UTC()
	j.Seq = res[0]
	j.AvailableAt = now
	j.CreatedAt = now
	j.UpdatedAt = now
	return nil
}

// ClaimJob moves the next due job to active.
func (s *Store) ClaimJob(ctx context.Context, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	res, err := claimScript.Run(ctx, s.client, []string{readyKey, activeKey},
		lease.Milliseconds(), workerID.String(), jobKeyPrefix,
	).Slice()
	if errors.Is(err, goredis.Nil) {
		return nil, nil //nolint:nilnil // empty queue is not an error
	}
	if err != nil {
		return nil, wrap("claim job", err)
	}
	return mapToJob(pairsToMap(res))
}

// AckJob deletes a held job.
func (s *Store) AckJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	jID := jobID.String()
	res, err := ackScript.Run(ctx, s.client, []string{jobKey(jID), activeKey},
		workerID.String(), jID,
	).Int64()
	if err != nil {
		return wrap("ack job", err)
	}
	return ownershipErr(res)
}

// NackJob records a failed attempt on a held job.
func (s *Store) NackJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, n job.Nack) error {
	jID := jobID.String()
	dead := "0"
	if n.Dead {
		dead = "1"
	}

	res, err := nackScript.Run(ctx, s.client,
		[]string{jobKey(jID), activeKey, readyKey, deadKey},
		workerID.String(), jID, dead, n.Delay.Milliseconds(), n.Reason,
	).Int64()
	if err != nil {
		return wrap("nack job", err)
	}
	return ownershipErr(res)
}

// ExtendLease renews the lease of a held job.
func (s *Store) ExtendLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error {
	jID := jobID.String()
	res, err := extendScript.Run(ctx, s.client, []string{jobKey(jID), activeKey},
		workerID.String(), jID, lease.Milliseconds(),
	).Int64()
	if err != nil {
		return wrap("extend lease", err)
	}
	return ownershipErr(res)
}

// RequeueExpired returns lapsed active jobs to waiting.
func (s *Store) RequeueExpired(ctx context.Context) (int64, error) {
	n, err := requeueScript.Run(ctx, s.client, []string{activeKey, readyKey},
		jobKeyPrefix,
	).Int64()
	if err != nil {
		return 0, wrap("requeue expired", err)
	}
	return n, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// ListJobsByState returns jobs in state. Ready jobs come back in claim
// order, active jobs by lease expiry and dead jobs by time of death.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.idsFor(ctx, state)
	if err != nil {
		return nil, err
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // removed since the range read
		}
		if j.State != state {
			continue
		}
		jobs = append(jobs, j)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// idsFor returns the job IDs of the set that holds state.
func (s *Store) idsFor(ctx context.Context, state job.State) ([]string, error) {
	switch state {
	case job.StateWaiting, job.StateFailedRetryable:
		members, err := s.client.ZRange(ctx, readyKey, 0, -1).Result()
		if err != nil {
			return nil, wrap("list ready", err)
		}
		ids := make([]string, 0, len(members))
		for _, m := range members {
			if len(m) > 21 {
				ids = append(ids, m[21:])
			}
		}
		return ids, nil
	case job.StateActive:
		ids, err := s.client.ZRange(ctx, activeKey, 0, -1).Result()
		if err != nil {
			return nil, wrap("list active", err)
		}
		return ids, nil
	case job.StateDead:
		ids, err := s.client.ZRange(ctx, deadKey, 0, -1).Result()
		if err != nil {
			return nil, wrap("list dead", err)
		}
		return ids, nil
	default:
		// Completed jobs are deleted on ack.
		return nil, nil
	}
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	switch opts.State {
	case "":
		pipe := s.client.Pipeline()
		ready := pipe.ZCard(ctx, readyKey)
		active := pipe.ZCard(ctx, activeKey)
		dead := pipe.ZCard(ctx, deadKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, wrap("count jobs", err)
		}
		return ready.Val() + active.Val() + dead.Val(), nil
	case job.StateActive:
		n, err := s.client.ZCard(ctx, activeKey).Result()
		if err != nil {
			return 0, wrap("count active", err)
		}
		return n, nil
	case job.StateDead:
		n, err := s.client.ZCard(ctx, deadKey).Result()
		if err != nil {
			return 0, wrap("count dead", err)
		}
		return n, nil
	case job.StateWaiting, job.StateFailedRetryable:
		ids, err := s.idsFor(ctx, opts.State)
		if err != nil {
			return 0, err
		}
		pipe := s.client.Pipeline()
		cmds := make([]*goredis.StringCmd, len(ids))
		for i, jID := range ids {
			cmds[i] = pipe.HGet(ctx, jobKey(jID), "state")
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
			return 0, wrap("count ready", err)
		}
		var n int64
		for _, c := range cmds {
			if c.Val() == string(opts.State) {
				n++
			}
		}
		return n, nil
	default:
		return 0, nil
	}
}

// PurgeDead deletes dead jobs that died before the cutoff. A zero cutoff
// purges them all.
func (s *Store) PurgeDead(ctx context.Context, before time.Time) (int64, error) {
	bound := "+inf"
	if !before.IsZero() {
		bound = "(" + strconv.FormatInt(ms(before), 10)
	}
	n, err := purgeScript.Run(ctx, s.client, []string{deadKey}, bound, jobKeyPrefix).Int64()
	if err != nil {
		return 0, wrap("purge dead", err)
	}
	return n, nil
}

// ── helpers ──

func jobToMap(j *job.Job) map[string]any {
	m := map[string]any{
		"id":           j.ID.String(),
		"kind":         j.Kind,
		"payload":      string(j.Payload),
		"state":        string(j.State),
		"attempts":     strconv.Itoa(j.Attempts),
		"max_attempts": strconv.Itoa(j.MaxAttempts),
	}
	if j.LastError != "" {
		m["last_error"] = j.LastError
	}
	return m
}

func pairsToMap(pairs []any) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)   //nolint:errcheck // HGETALL replies are strings
		v, _ := pairs[i+1].(string) //nolint:errcheck // HGETALL replies are strings
		m[k] = v
	}
	return m
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, wrap("get job", err)
	}
	if len(vals) == 0 {
		return nil, intake.ErrJobNotFound
	}
	return mapToJob(vals)
}

// parseTime reads a unix-millisecond field written by the scripts.
func parseTime(m map[string]string, field string) *time.Time {
	v := m[field]
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(n).UTC()
	return &t
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, wrap("parse job id", err)
	}

	attempts, _ := strconv.Atoi(m["attempts"])        //nolint:errcheck // best-effort parse from trusted Redis data
	maxAttempts, _ := strconv.Atoi(m["max_attempts"]) //nolint:errcheck // best-effort parse from trusted Redis data
	seq, _ := strconv.ParseInt(m["seq"], 10, 64)      //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		ID:             jID,
		Kind:           m["kind"],
		Payload:        []byte(m["payload"]),
		State:          job.State(m["state"]),
		Attempts:       attempts,
		MaxAttempts:    maxAttempts,
		Seq:            seq,
		LastError:      m["last_error"],
		LeaseExpiresAt: parseTime(m, "lease_expires_at"),
		StartedAt:      parseTime(m, "started_at"),
		FailedAt:       parseTime(m, "failed_at"),
	}
	if t := parseTime(m, "available_at"); t != nil {
		j.AvailableAt = *t
	}
	if t := parseTime(m, "created_at"); t != nil {
		j.CreatedAt = *t
	}
	if t := parseTime(m, "updated_at"); t != nil {
		j.UpdatedAt = *t
	}
	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	return j, nil
}
