// Package mongo implements job.Store on MongoDB using mongo-driver/v2.
//
// Each job is one document in the intake_jobs collection. Claims use
// FindOneAndUpdate sorted by (available_at, seq), which MongoDB applies
// atomically to a single document. Writes use majority write concern so an
// acknowledged push survives a primary failover.
//
// Sequence numbers come from a counter document in intake_counters.
// BSON dates have millisecond resolution; seq orders jobs within the same
// millisecond.
//
//	client, _ := mongod.Connect(options.Client().ApplyURI(uri))
//	s := mongo.New(client.Database("intake"))
//	s.Migrate(ctx)
package mongo
