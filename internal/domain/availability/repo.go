package availability

import (
	"context"

	"github.com/google/uuid"

	"github.com/medsched/medsched/pkg/dateonly"
)

type TemplateStore interface {
	Create(ctx context.Context, t *AvailabilityTemplate) error
	GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error)
	// ListByDoctor returns all templates ordered by priority descending.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityTemplate, error)
	ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityTemplate, error)
	Update(ctx context.Context, t *AvailabilityTemplate) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type ExceptionStore interface {
	Create(ctx context.Context, e *AvailabilityException) error
	GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityException, error)
	// GetByDoctorAndDate returns the single exception for the date, or
	// ErrExceptionNotFound when the date has none.
	GetByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date dateonly.Date) (*AvailabilityException, error)
	// ListByDoctor returns all exceptions ordered by date descending.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityException, error)
	Update(ctx context.Context, e *AvailabilityException) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type SlotStore interface {
	Create(ctx context.Context, s *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	// Exists reports whether a slot with these exact boundaries is already
	// present; the materializer uses it to skip duplicates on re-runs.
	Exists(ctx context.Context, doctorID uuid.UUID, date dateonly.Date, start, end dateonly.TimeOfDay) (bool, error)
	ListByDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to dateonly.Date) ([]*Slot, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date dateonly.Date) ([]*Slot, error)
	ListAvailableByDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to dateonly.Date) ([]*Slot, error)
	ListAvailableByDoctorDate(ctx context.Context, doctorID uuid.UUID, date dateonly.Date) ([]*Slot, error)
	// BookIfAvailable atomically flips AVAILABLE to BOOKED. It returns false
	// when the slot was not AVAILABLE at the moment of the update, so of two
	// concurrent bookings exactly one sees true.
	BookIfAvailable(ctx context.Context, id uuid.UUID) (bool, error)
	// UpdateStatus sets the status unconditionally. Used by release, which
	// does not validate the prior state.
	UpdateStatus(ctx context.Context, id uuid.UUID, status SlotStatus) error
	DeleteByTemplate(ctx context.Context, templateID uuid.UUID) error
	DeleteByDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to dateonly.Date) error
}

type SettingsStore interface {
	Create(ctx context.Context, s *AppointmentSettings) error
	// GetByDoctor returns ErrSettingsNotFound when the doctor has no row yet.
	GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*AppointmentSettings, error)
	Update(ctx context.Context, s *AppointmentSettings) error
}
