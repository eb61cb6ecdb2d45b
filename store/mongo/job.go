package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/intake"
	"github.com/xraph/intake/id"
	"github.com/xraph/intake/job"
)

// serverNow is the aggregation variable holding the server's clock.
// Every timestamp the store writes comes from it, so processes on
// different hosts agree on ordering and retry delays.
const serverNow = "$$NOW"

// afterNow returns an aggregation expression for server time plus d.
func afterNow(d time.Duration) bson.D {
	return bson.D{{Key: "$add", Value: bson.A{serverNow, d.Milliseconds()}}}
}

// nextSeq increments the job counter document and returns the new value
// together with the server time of the increment.
func (s *Store) nextSeq(ctx context.Context) (int64, time.Time, error) {
	var doc struct {
		Seq int64     `bson:"seq"`
		At  time.Time `bson:"at"`
	}
	update := mongod.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "seq", Value: bson.D{{Key: "$add", Value: bson.A{
			bson.D{{Key: "$ifNull", Value: bson.A{"$seq", int64(0)}}}, int64(1),
		}}}},
		{Key: "at", Value: serverNow},
	}}}}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "jobs"},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, time.Time{}, err
	}
	return doc.Seq, doc.At.UTC(), nil
}

// PushJob persists j as waiting and assigns its sequence number.
func (s *Store) PushJob(ctx context.Context, j *job.Job) error {
	seq, t, err := s.nextSeq(ctx)
	if err != nil {
		return wrap("push job seq", err)
	}

	j.Seq = seq
	j.State = job.StateWaiting
	j.Attempts = 0
	j.AvailableAt = t
	j.CreatedAt = t
	j.UpdatedAt = t

	if _, err := s.jobs.InsertOne(ctx, toJobModel(j)); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return wrap("push job", intake.ErrInvalidJob)
		}
		return wrap("push job", err)
	}
	return nil
}

// ClaimJob atomically moves the next claimable job to active.
func (s *Store) ClaimJob(ctx context.Context, workerID id.WorkerID, lease time.Duration) (*job.Job, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"state": string(job.StateWaiting)},
		bson.M{
			"state": string(job.StateFailedRetryable),
			"$expr": bson.M{"$lte": bson.A{"$available_at", serverNow}},
		},
	}}
	update := mongod.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "state", Value: string(job.StateActive)},
		{Key: "worker_id", Value: workerID.String()},
		{Key: "lease_expires_at", Value: afterNow(lease)},
		{Key: "started_at", Value: serverNow},
		{Key: "updated_at", Value: serverNow},
		{Key: "attempts", Value: bson.D{{Key: "$add", Value: bson.A{"$attempts", 1}}}},
	}}}}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{
			{Key: "available_at", Value: 1},
			{Key: "seq", Value: 1},
		})

	var m jobModel
	err := s.jobs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
	if isNoDocuments(err) {
		return nil, nil //nolint:nilnil // empty queue is not an error
	}
	if err != nil {
		return nil, wrap("claim job", err)
	}
	return fromJobModel(&m)
}

func heldFilter(jobID id.JobID, workerID id.WorkerID) bson.M {
	return bson.M{
		"_id":       jobID.String(),
		"state":     string(job.StateActive),
		"worker_id": workerID.String(),
	}
}

// ownershipErr explains why a worker-guarded write matched nothing.
func (s *Store) ownershipErr(ctx context.Context, jobID id.JobID) error {
	n, err := s.jobs.CountDocuments(ctx, bson.M{"_id": jobID.String()})
	if err != nil {
		return wrap("check job", err)
	}
	if n > 0 {
		return intake.ErrLeaseLost
	}
	return intake.ErrJobNotFound
}

// AckJob deletes a job held by workerID.
func (s *Store) AckJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	res, err := s.jobs.DeleteOne(ctx, heldFilter(jobID, workerID))
	if err != nil {
		return wrap("ack job", err)
	}
	if res.DeletedCount == 0 {
		return s.ownershipErr(ctx, jobID)
	}
	return nil
}

// NackJob records a failed attempt on a held job.
func (s *Store) NackJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, n job.Nack) error {
	set := bson.D{
		{Key: "state", Value: string(job.StateFailedRetryable)},
		{Key: "last_error", Value: bson.D{{Key: "$literal", Value: n.Reason}}},
		{Key: "worker_id", Value: ""},
		{Key: "failed_at", Value: serverNow},
		{Key: "updated_at", Value: serverNow},
	}
	if n.Dead {
		set[0].Value = string(job.StateDead)
	} else {
		set = append(set, bson.E{Key: "available_at", Value: afterNow(n.Delay)})
	}

	res, err := s.jobs.UpdateOne(ctx, heldFilter(jobID, workerID), mongod.Pipeline{
		{{Key: "$set", Value: set}},
		{{Key: "$unset", Value: "lease_expires_at"}},
	})
	if err != nil {
		return wrap("nack job", err)
	}
	if res.MatchedCount == 0 {
		return s.ownershipErr(ctx, jobID)
	}
	return nil
}

// ExtendLease pushes the lease of a held job to now+lease.
func (s *Store) ExtendLease(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error {
	res, err := s.jobs.UpdateOne(ctx, heldFilter(jobID, workerID), mongod.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "lease_expires_at", Value: afterNow(lease)},
			{Key: "updated_at", Value: serverNow},
		}}},
	})
	if err != nil {
		return wrap("extend lease", err)
	}
	if res.MatchedCount == 0 {
		return s.ownershipErr(ctx, jobID)
	}
	return nil
}

// RequeueExpired returns active jobs with a lapsed lease to waiting,
// leaving attempts and available_at unchanged.
func (s *Store) RequeueExpired(ctx context.Context) (int64, error) {
	res, err := s.jobs.UpdateMany(ctx,
		bson.M{
			"state": string(job.StateActive),
			"$expr": bson.M{"$lt": bson.A{"$lease_expires_at", serverNow}},
		},
		mongod.Pipeline{
			{{Key: "$set", Value: bson.D{
				{Key: "state", Value: string(job.StateWaiting)},
				{Key: "worker_id", Value: ""},
				{Key: "updated_at", Value: serverNow},
			}}},
			{{Key: "$unset", Value: "lease_expires_at"}},
		},
	)
	if err != nil {
		return 0, wrap("requeue expired", err)
	}
	return res.ModifiedCount, nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.jobs.FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, intake.ErrJobNotFound
		}
		return nil, wrap("get job", err)
	}
	return fromJobModel(&m)
}

// ListJobsByState returns jobs in state ordered by (available_at, seq).
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	findOpts := options.Find().SetSort(bson.D{
		{Key: "available_at", Value: 1},
		{Key: "seq", Value: 1},
	})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.jobs.Find(ctx, bson.M{"state": string(state)}, findOpts)
	if err != nil {
		return nil, wrap("list jobs by state", err)
	}
	defer cursor.Close(ctx)

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, wrap("list jobs decode", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	filter := bson.M{}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	count, err := s.jobs.CountDocuments(ctx, filter)
	if err != nil {
		return 0, wrap("count jobs", err)
	}
	return count, nil
}

// PurgeDead deletes dead jobs last updated before the cutoff. A zero
// cutoff purges every dead job.
func (s *Store) PurgeDead(ctx context.Context, before time.Time) (int64, error) {
	filter := bson.M{"state": string(job.StateDead)}
	if !before.IsZero() {
		filter["updated_at"] = bson.M{"$lt": before}
	}
	res, err := s.jobs.DeleteMany(ctx, filter)
	if err != nil {
		return 0, wrap("purge dead", err)
	}
	return res.DeletedCount, nil
}
