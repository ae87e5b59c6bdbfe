package identity

import (
	"time"

	"github.com/google/uuid"
)

// Doctor is the minimal identity record the scheduling core needs: enough to
// resolve an authenticated subject to a known doctor and address messages.
type Doctor struct {
	ID             uuid.UUID `json:"id"`
	FullName       string    `json:"fullName"`
	Email          string    `json:"email"`
	Specialization string    `json:"specialization,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
