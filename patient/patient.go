// Package patient registers patients and triggers their confirmation
// email once the record is committed.
package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/xraph/intake/job"
)

// Patient is a registered patient record.
type Patient struct {
	ID            uuid.UUID `json:"id"`
	FullName      string    `json:"fullName"`
	Email         string    `json:"email"`
	CountryCode   string    `json:"countryCode"`
	PhoneNumber   string    `json:"phoneNumber"`
	DocumentPhoto string    `json:"documentPhoto"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Confirmation returns the job payload announcing p's registration.
func (p *Patient) Confirmation() job.ConfirmationPayload {
	return job.ConfirmationPayload{
		Recipient:      p.Email,
		DisplayName:    p.FullName,
		SourceRecordID: p.ID.String(),
	}
}
