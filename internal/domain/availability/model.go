package availability

import (
	"time"

	"github.com/google/uuid"

	"github.com/medsched/medsched/pkg/dateonly"
)

// ScheduleType selects the recurrence rule of a template.
type ScheduleType string

const (
	ScheduleDaily         ScheduleType = "DAILY"
	ScheduleWeekly        ScheduleType = "WEEKLY"
	ScheduleDateRange     ScheduleType = "DATE_RANGE"
	ScheduleSpecificDates ScheduleType = "SPECIFIC_DATES"
)

func (s ScheduleType) Valid() bool {
	switch s {
	case ScheduleDaily, ScheduleWeekly, ScheduleDateRange, ScheduleSpecificDates:
		return true
	}
	return false
}

// ExceptionType selects how a per-date override affects that date.
type ExceptionType string

const (
	ExceptionUnavailable ExceptionType = "UNAVAILABLE"
	ExceptionCustomHours ExceptionType = "CUSTOM_HOURS"
)

func (e ExceptionType) Valid() bool {
	switch e {
	case ExceptionUnavailable, ExceptionCustomHours:
		return true
	}
	return false
}

// SlotStatus is the booking state of a materialized slot.
type SlotStatus string

const (
	SlotAvailable SlotStatus = "AVAILABLE"
	SlotBooked    SlotStatus = "BOOKED"
	SlotBlocked   SlotStatus = "BLOCKED"
	SlotCancelled SlotStatus = "CANCELLED"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotBooked, SlotBlocked, SlotCancelled:
		return true
	}
	return false
}

// AvailabilityTemplate is a recurrence rule describing when a doctor is
// nominally available. Priority is informational: listing orders by it, but
// every active applicable template materializes its own slots regardless of
// other templates matching the same date.
type AvailabilityTemplate struct {
	ID           uuid.UUID          `json:"id"`
	DoctorID     uuid.UUID          `json:"doctorId"`
	TemplateName string             `json:"templateName"`
	ScheduleType ScheduleType       `json:"scheduleType"`
	StartTime    dateonly.TimeOfDay `json:"startTime"`
	EndTime      dateonly.TimeOfDay `json:"endTime"`
	// DaysOfWeek uses ISO numbering, Monday=1 .. Sunday=7. WEEKLY only.
	DaysOfWeek    []int           `json:"daysOfWeek,omitempty"`
	StartDate     *dateonly.Date  `json:"startDate,omitempty"`
	EndDate       *dateonly.Date  `json:"endDate,omitempty"`
	SpecificDates []dateonly.Date `json:"specificDates,omitempty"`
	IsActive      bool            `json:"isActive"`
	Priority      int             `json:"priority"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// AvailabilityException is a per-date override. At most one exists per
// (doctor, date); it takes precedence over every template on that date.
type AvailabilityException struct {
	ID            uuid.UUID           `json:"id"`
	DoctorID      uuid.UUID           `json:"doctorId"`
	ExceptionDate dateonly.Date       `json:"exceptionDate"`
	ExceptionType ExceptionType       `json:"exceptionType"`
	StartTime     *dateonly.TimeOfDay `json:"startTime,omitempty"`
	EndTime       *dateonly.TimeOfDay `json:"endTime,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// Slot is a single bookable interval materialized from a template.
type Slot struct {
	ID               uuid.UUID          `json:"id"`
	DoctorID         uuid.UUID          `json:"doctorId"`
	SlotDate         dateonly.Date      `json:"slotDate"`
	StartTime        dateonly.TimeOfDay `json:"startTime"`
	EndTime          dateonly.TimeOfDay `json:"endTime"`
	Status           SlotStatus         `json:"status"`
	SourceTemplateID *uuid.UUID         `json:"generatedFromTemplateId,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// AppointmentSettings holds per-doctor slot generation and booking policy.
// BufferTimeMinutes is stored and returned but the materializer does not
// insert gaps between slots; generated slots are back-to-back.
type AppointmentSettings struct {
	ID                  uuid.UUID `json:"id"`
	DoctorID            uuid.UUID `json:"doctorId"`
	SlotDurationMinutes int       `json:"slotDurationMinutes"`
	BufferTimeMinutes   int       `json:"bufferTimeMinutes"`
	AdvanceBookingDays  int       `json:"advanceBookingDays"`
	AutoApprove         bool      `json:"autoApprove"`
	AllowOverbooking    bool      `json:"allowOverbooking"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// DefaultSettings returns the settings created lazily on first access.
func DefaultSettings(doctorID uuid.UUID) *AppointmentSettings {
	return &AppointmentSettings{
		DoctorID:            doctorID,
		SlotDurationMinutes: 30,
		BufferTimeMinutes:   5,
		AdvanceBookingDays:  30,
		AutoApprove:         false,
		AllowOverbooking:    false,
	}
}
