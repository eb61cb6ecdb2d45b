package job

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xraph/intake"
)

// KindConfirmationEmail is the only job kind the queue carries.
const KindConfirmationEmail = "confirmation-email"

// ConfirmationPayload asks for a registration confirmation to be sent.
type ConfirmationPayload struct {
	Recipient      string `json:"recipient"`
	DisplayName    string `json:"displayName"`
	SourceRecordID string `json:"sourceRecordId"`
}

// Validate checks the fields a sender cannot work without.
func (p ConfirmationPayload) Validate() error {
	if strings.TrimSpace(p.Recipient) == "" {
		return fmt.Errorf("%w: recipient is empty", intake.ErrInvalidJob)
	}
	if strings.TrimSpace(p.SourceRecordID) == "" {
		return fmt.Errorf("%w: source record id is empty", intake.ErrInvalidJob)
	}
	return nil
}

// Encode validates p and returns its JSON form.
func (p ConfirmationPayload) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}
