// Package postgres implements the job queue and the patient store on
// PostgreSQL using pgx/v5 with raw SQL.
//
// Claims use UPDATE ... WHERE id = (SELECT ... FOR UPDATE SKIP LOCKED), so
// concurrent workers never block on or double-claim a row. Lease deadlines
// and retry delays are computed from the database clock. Because patients
// and jobs share a database, CreatePatientWithJob commits a patient and its
// confirmation job in one transaction.
//
// The schema is managed by golang-migrate from the embedded migrations
// package; Migrate is idempotent.
package postgres
