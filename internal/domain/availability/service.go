package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsched/medsched/pkg/dateonly"
)

// Horizon lengths for slot materialization. Targeted regeneration after a
// template change covers 30 days; bulk regeneration wipes and rebuilds 60.
// The asymmetry is intentional and matches observable behavior callers
// depend on.
const (
	targetedHorizonDays = 30
	bulkHorizonDays     = 60
)

// DoctorDirectory resolves whether a doctor id refers to a known doctor.
type DoctorDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// SlotEvent carries everything a notification layer needs about a slot
// transition.
type SlotEvent struct {
	SlotID   uuid.UUID
	DoctorID uuid.UUID
	Status   SlotStatus
	Date     dateonly.Date
	Start    dateonly.TimeOfDay
	End      dateonly.TimeOfDay
}

// Notifier receives slot transitions after they are committed. Implementations
// must not fail the calling operation; delivery is best-effort.
type Notifier interface {
	SlotStatusChanged(ctx context.Context, ev SlotEvent)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) SlotStatusChanged(context.Context, SlotEvent) {}

// TxRunner executes fn atomically. Production wiring uses db.WithTx over the
// pgx pool; tests substitute a passthrough.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// PassthroughTx runs fn directly with no transaction, for stores that are not
// transactional (in-memory test doubles).
func PassthroughTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Service struct {
	templates  TemplateStore
	exceptions ExceptionStore
	slots      SlotStore
	settings   SettingsStore
	doctors    DoctorDirectory
	notifier   Notifier
	runTx      TxRunner
	logger     zerolog.Logger
}

func NewService(
	templates TemplateStore,
	exceptions ExceptionStore,
	slots SlotStore,
	settings SettingsStore,
	doctors DoctorDirectory,
	notifier Notifier,
	runTx TxRunner,
	logger zerolog.Logger,
) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Service{
		templates:  templates,
		exceptions: exceptions,
		slots:      slots,
		settings:   settings,
		doctors:    doctors,
		notifier:   notifier,
		runTx:      runTx,
		logger:     logger,
	}
}

func (s *Service) materializer() *materializer {
	return &materializer{slots: s.slots, exceptions: s.exceptions}
}

func (s *Service) requireDoctor(ctx context.Context, doctorID uuid.UUID) error {
	exists, err := s.doctors.Exists(ctx, doctorID)
	if err != nil {
		return fmt.Errorf("look up doctor %s: %w", doctorID, err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrDoctorNotFound, doctorID)
	}
	return nil
}

// -- Templates --

func validateTemplate(t *AvailabilityTemplate) error {
	if t.TemplateName == "" {
		return fmt.Errorf("%w: template_name is required", ErrValidation)
	}
	if !t.ScheduleType.Valid() {
		return fmt.Errorf("%w: invalid schedule_type %q", ErrValidation, t.ScheduleType)
	}
	if t.StartTime.IsZero() || t.EndTime.IsZero() {
		return fmt.Errorf("%w: start_time and end_time are required", ErrValidation)
	}
	if !t.StartTime.Before(t.EndTime) {
		return fmt.Errorf("%w: start_time must be before end_time", ErrValidation)
	}
	switch t.ScheduleType {
	case ScheduleWeekly:
		if len(t.DaysOfWeek) == 0 {
			return fmt.Errorf("%w: days_of_week is required for WEEKLY templates", ErrValidation)
		}
		for _, d := range t.DaysOfWeek {
			if d < 1 || d > 7 {
				return fmt.Errorf("%w: day_of_week %d outside 1..7", ErrValidation, d)
			}
		}
	case ScheduleDateRange:
		if t.StartDate == nil || t.EndDate == nil {
			return fmt.Errorf("%w: start_date and end_date are required for DATE_RANGE templates", ErrValidation)
		}
		if t.EndDate.Before(*t.StartDate) {
			return fmt.Errorf("%w: end_date precedes start_date", ErrValidation)
		}
	case ScheduleSpecificDates:
		if len(t.SpecificDates) == 0 {
			return fmt.Errorf("%w: specific_dates is required for SPECIFIC_DATES templates", ErrValidation)
		}
	}
	return nil
}

// CreateTemplate persists the template and materializes its slots for the
// next 30 days in the same transaction.
func (s *Service) CreateTemplate(ctx context.Context, t *AvailabilityTemplate) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	if err := s.requireDoctor(ctx, t.DoctorID); err != nil {
		return err
	}
	settings, err := s.GetOrCreateSettings(ctx, t.DoctorID)
	if err != nil {
		return err
	}

	from := dateonly.Today()
	to := from.AddDays(targetedHorizonDays)
	var created int
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.templates.Create(ctx, t); err != nil {
			return fmt.Errorf("create template: %w", err)
		}
		if !t.IsActive {
			return nil
		}
		created, err = s.materializer().materialize(ctx, t, settings, from, to)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("doctor_id", t.DoctorID.String()).
		Str("template_id", t.ID.String()).
		Int("slots_created", created).
		Msg("template created and materialized")
	return nil
}

func (s *Service) ListTemplates(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityTemplate, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.templates.ListByDoctor(ctx, doctorID)
}

func (s *Service) getOwnedTemplate(ctx context.Context, doctorID, id uuid.UUID) (*AvailabilityTemplate, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.DoctorID != doctorID {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// UpdateTemplate persists the changes, removes every slot the template
// generated, and re-materializes the next 30 days, atomically.
func (s *Service) UpdateTemplate(ctx context.Context, t *AvailabilityTemplate) error {
	if err := validateTemplate(t); err != nil {
		return err
	}
	if _, err := s.getOwnedTemplate(ctx, t.DoctorID, t.ID); err != nil {
		return err
	}
	settings, err := s.GetOrCreateSettings(ctx, t.DoctorID)
	if err != nil {
		return err
	}

	from := dateonly.Today()
	to := from.AddDays(targetedHorizonDays)
	var created int
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.templates.Update(ctx, t); err != nil {
			return fmt.Errorf("update template: %w", err)
		}
		if err := s.slots.DeleteByTemplate(ctx, t.ID); err != nil {
			return fmt.Errorf("delete template slots: %w", err)
		}
		if !t.IsActive {
			return nil
		}
		created, err = s.materializer().materialize(ctx, t, settings, from, to)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info().
		Str("doctor_id", t.DoctorID.String()).
		Str("template_id", t.ID.String()).
		Int("slots_created", created).
		Msg("template updated and rematerialized")
	return nil
}

// DeleteTemplate removes the template's generated slots, then the template,
// atomically.
func (s *Service) DeleteTemplate(ctx context.Context, doctorID, id uuid.UUID) error {
	if _, err := s.getOwnedTemplate(ctx, doctorID, id); err != nil {
		return err
	}
	return s.runTx(ctx, func(ctx context.Context) error {
		if err := s.slots.DeleteByTemplate(ctx, id); err != nil {
			return fmt.Errorf("delete template slots: %w", err)
		}
		if err := s.templates.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete template: %w", err)
		}
		return nil
	})
}

// -- Exceptions --

func validateException(e *AvailabilityException) error {
	if e.ExceptionDate.IsZero() {
		return fmt.Errorf("%w: exception_date is required", ErrValidation)
	}
	if !e.ExceptionType.Valid() {
		return fmt.Errorf("%w: invalid exception_type %q", ErrValidation, e.ExceptionType)
	}
	if e.ExceptionType == ExceptionCustomHours {
		if e.StartTime == nil || e.EndTime == nil {
			return fmt.Errorf("%w: start_time and end_time are required for CUSTOM_HOURS", ErrValidation)
		}
		if !e.StartTime.Before(*e.EndTime) {
			return fmt.Errorf("%w: start_time must be before end_time", ErrValidation)
		}
	}
	return nil
}

// CreateException records a per-date override. It does not regenerate slots;
// the override applies to subsequent materializations.
func (s *Service) CreateException(ctx context.Context, e *AvailabilityException) error {
	if err := validateException(e); err != nil {
		return err
	}
	if err := s.requireDoctor(ctx, e.DoctorID); err != nil {
		return err
	}
	if _, err := s.exceptions.GetByDoctorAndDate(ctx, e.DoctorID, e.ExceptionDate); err == nil {
		return fmt.Errorf("%w: %s", ErrExceptionExists, e.ExceptionDate)
	} else if !errors.Is(err, ErrExceptionNotFound) {
		return err
	}
	return s.exceptions.Create(ctx, e)
}

func (s *Service) ListExceptions(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityException, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.exceptions.ListByDoctor(ctx, doctorID)
}

func (s *Service) getOwnedException(ctx context.Context, doctorID, id uuid.UUID) (*AvailabilityException, error) {
	e, err := s.exceptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.DoctorID != doctorID {
		return nil, fmt.Errorf("%w: %s", ErrExceptionNotFound, id)
	}
	return e, nil
}

func (s *Service) UpdateException(ctx context.Context, e *AvailabilityException) error {
	if err := validateException(e); err != nil {
		return err
	}
	existing, err := s.getOwnedException(ctx, e.DoctorID, e.ID)
	if err != nil {
		return err
	}
	if !existing.ExceptionDate.Equal(e.ExceptionDate) {
		if other, err := s.exceptions.GetByDoctorAndDate(ctx, e.DoctorID, e.ExceptionDate); err == nil && other.ID != e.ID {
			return fmt.Errorf("%w: %s", ErrExceptionExists, e.ExceptionDate)
		} else if err != nil && !errors.Is(err, ErrExceptionNotFound) {
			return err
		}
	}
	return s.exceptions.Update(ctx, e)
}

func (s *Service) DeleteException(ctx context.Context, doctorID, id uuid.UUID) error {
	if _, err := s.getOwnedException(ctx, doctorID, id); err != nil {
		return err
	}
	return s.exceptions.Delete(ctx, id)
}

// -- Slots --

func (s *Service) GetSlots(ctx context.Context, doctorID uuid.UUID, from, to dateonly.Date) ([]*Slot, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.slots.ListByDoctorRange(ctx, doctorID, from, to)
}

func (s *Service) GetSlotsForDate(ctx context.Context, doctorID uuid.UUID, date dateonly.Date) ([]*Slot, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.slots.ListByDoctorDate(ctx, doctorID, date)
}

// GetAvailableSlots serves anonymous slot discovery: only AVAILABLE slots.
func (s *Service) GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to dateonly.Date) ([]*Slot, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.slots.ListAvailableByDoctorRange(ctx, doctorID, from, to)
}

func (s *Service) GetAvailableSlotsForDate(ctx context.Context, doctorID uuid.UUID, date dateonly.Date) ([]*Slot, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.slots.ListAvailableByDoctorDate(ctx, doctorID, date)
}

func (s *Service) getOwnedSlot(ctx context.Context, doctorID, id uuid.UUID) (*Slot, error) {
	slot, err := s.slots.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if slot.DoctorID != doctorID {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, id)
	}
	return slot, nil
}

// BookSlot transitions AVAILABLE -> BOOKED. Of two concurrent calls on the
// same slot exactly one succeeds; the other observes ErrSlotNotAvailable.
func (s *Service) BookSlot(ctx context.Context, doctorID, id uuid.UUID) (*Slot, error) {
	slot, err := s.getOwnedSlot(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}

	booked, err := s.slots.BookIfAvailable(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("book slot %s: %w", id, err)
	}
	if !booked {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotAvailable, id)
	}

	slot.Status = SlotBooked
	s.notifier.SlotStatusChanged(ctx, SlotEvent{
		SlotID:   slot.ID,
		DoctorID: slot.DoctorID,
		Status:   SlotBooked,
		Date:     slot.SlotDate,
		Start:    slot.StartTime,
		End:      slot.EndTime,
	})
	return slot, nil
}

// ReleaseSlot sets the slot back to AVAILABLE regardless of its current
// status, so it also reopens BLOCKED or CANCELLED slots.
func (s *Service) ReleaseSlot(ctx context.Context, doctorID, id uuid.UUID) (*Slot, error) {
	slot, err := s.getOwnedSlot(ctx, doctorID, id)
	if err != nil {
		return nil, err
	}

	if err := s.slots.UpdateStatus(ctx, id, SlotAvailable); err != nil {
		return nil, fmt.Errorf("release slot %s: %w", id, err)
	}

	slot.Status = SlotAvailable
	s.notifier.SlotStatusChanged(ctx, SlotEvent{
		SlotID:   slot.ID,
		DoctorID: slot.DoctorID,
		Status:   SlotAvailable,
		Date:     slot.SlotDate,
		Start:    slot.StartTime,
		End:      slot.EndTime,
	})
	return slot, nil
}

// -- Settings --

func validateSettings(st *AppointmentSettings) error {
	if st.SlotDurationMinutes <= 0 {
		return fmt.Errorf("%w: slot_duration_minutes must be positive", ErrValidation)
	}
	if st.BufferTimeMinutes < 0 {
		return fmt.Errorf("%w: buffer_time_minutes must not be negative", ErrValidation)
	}
	if st.AdvanceBookingDays < 0 {
		return fmt.Errorf("%w: advance_booking_days must not be negative", ErrValidation)
	}
	return nil
}

// GetOrCreateSettings returns the doctor's settings, creating the defaults
// on first access.
func (s *Service) GetOrCreateSettings(ctx context.Context, doctorID uuid.UUID) (*AppointmentSettings, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	settings, err := s.settings.GetByDoctor(ctx, doctorID)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, ErrSettingsNotFound) {
		return nil, err
	}
	settings = DefaultSettings(doctorID)
	if err := s.settings.Create(ctx, settings); err != nil {
		return nil, fmt.Errorf("create default settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings overwrites the settings row. It does not regenerate slots:
// already-materialized slots keep their boundaries until an explicit
// regeneration.
func (s *Service) UpdateSettings(ctx context.Context, st *AppointmentSettings) (*AppointmentSettings, error) {
	if err := validateSettings(st); err != nil {
		return nil, err
	}
	existing, err := s.GetOrCreateSettings(ctx, st.DoctorID)
	if err != nil {
		return nil, err
	}
	st.ID = existing.ID
	if err := s.settings.Update(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// -- Bulk regeneration --

// RegenerateAllSlots wipes every slot the doctor has in the next 60 days,
// template-tagged or not, and rebuilds the window from all active templates.
// The wipe and the rebuild are one transaction; a failure rolls the whole
// operation back.
func (s *Service) RegenerateAllSlots(ctx context.Context, doctorID uuid.UUID) (int, error) {
	if err := s.requireDoctor(ctx, doctorID); err != nil {
		return 0, err
	}
	settings, err := s.GetOrCreateSettings(ctx, doctorID)
	if err != nil {
		return 0, err
	}
	templates, err := s.templates.ListActiveByDoctor(ctx, doctorID)
	if err != nil {
		return 0, err
	}

	from := dateonly.Today()
	to := from.AddDays(bulkHorizonDays)
	total := 0
	err = s.runTx(ctx, func(ctx context.Context) error {
		if err := s.slots.DeleteByDoctorRange(ctx, doctorID, from, to); err != nil {
			return fmt.Errorf("wipe slots: %w", err)
		}
		m := s.materializer()
		for _, t := range templates {
			created, err := m.materialize(ctx, t, settings, from, to)
			if err != nil {
				return fmt.Errorf("rematerialize template %s: %w", t.ID, err)
			}
			total += created
		}
		return nil
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("doctor_id", doctorID.String()).
			Msg("bulk slot regeneration failed")
		return 0, err
	}

	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Int("slots_created", total).
		Int("templates", len(templates)).
		Msg("bulk slot regeneration complete")
	return total, nil
}
