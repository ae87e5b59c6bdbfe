package availability

import "errors"

var (
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrTemplateNotFound  = errors.New("availability template not found")
	ErrExceptionNotFound = errors.New("availability exception not found")
	ErrSlotNotFound      = errors.New("slot not found")
	ErrSettingsNotFound  = errors.New("appointment settings not found")

	// ErrSlotNotAvailable is the booking conflict: the slot exists but its
	// status is no longer AVAILABLE, typically because a concurrent caller
	// booked it first.
	ErrSlotNotAvailable = errors.New("slot is not available for booking")

	ErrExceptionExists = errors.New("an exception already exists for this date")

	ErrValidation = errors.New("validation failed")
)
