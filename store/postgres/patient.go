package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/xraph/intake"
	"github.com/xraph/intake/job"
	"github.com/xraph/intake/patient"
)

const patientColumns = `
	id, full_name, email, country_code, phone_number, document_photo,
	created_at, updated_at`

// CreatePatient inserts p. A duplicate email returns intake.ErrDuplicateEmail.
func (s *Store) CreatePatient(ctx context.Context, p *patient.Patient) error {
	return insertPatient(ctx, s.pool, p)
}

func insertPatient(ctx context.Context, q querier, p *patient.Patient) error {
	_, err := q.Exec(ctx, `
		INSERT INTO patients (`+patientColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.FullName, p.Email, p.CountryCode, p.PhoneNumber, p.DocumentPhoto,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return intake.ErrDuplicateEmail
		}
		return wrap("create patient", err)
	}
	return nil
}

// CreatePatientWithJob inserts p and pushes j in one transaction.
func (s *Store) CreatePatientWithJob(ctx context.Context, p *patient.Patient, j *job.Job) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertPatient(ctx, tx, p); err != nil {
			return err
		}
		return pushJob(ctx, tx, j)
	})
}

// GetPatient returns a patient by id.
func (s *Store) GetPatient(ctx context.Context, patientID uuid.UUID) (*patient.Patient, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+patientColumns+` FROM patients WHERE id = $1`, patientID)
	p, err := scanPatient(row)
	if err != nil {
		if isNoRows(err) {
			return nil, intake.ErrPatientNotFound
		}
		return nil, wrap("get patient", err)
	}
	return p, nil
}

// ListPatients returns every patient, newest first.
func (s *Store) ListPatients(ctx context.Context) ([]*patient.Patient, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+patientColumns+` FROM patients ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrap("list patients", err)
	}
	defer rows.Close()

	out := make([]*patient.Patient, 0)
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, wrap("scan patient row", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("iterate patient rows", err)
	}
	return out, nil
}

func scanPatient(row pgx.Row) (*patient.Patient, error) {
	var p patient.Patient
	err := row.Scan(
		&p.ID, &p.FullName, &p.Email, &p.CountryCode, &p.PhoneNumber, &p.DocumentPhoto,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
