package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/medsched/medsched/pkg/dateonly"
)

// materializer expands templates into concrete slot rows.
type materializer struct {
	slots      SlotStore
	exceptions ExceptionStore
}

// materialize walks every date in [from, to] and emits slots of
// settings.SlotDurationMinutes for each date where the template applies,
// after exception precedence. A slot whose exact (date, start, end) already
// exists is skipped, so re-running with unchanged inputs is a no-op.
//
// Slots are emitted back-to-back: BufferTimeMinutes is not inserted between
// them. Any store error aborts the walk; callers run materialize inside a
// transaction so an aborted run leaves nothing behind.
func (m *materializer) materialize(ctx context.Context, t *AvailabilityTemplate, settings *AppointmentSettings, from, to dateonly.Date) (int, error) {
	duration := settings.SlotDurationMinutes
	if duration <= 0 {
		return 0, fmt.Errorf("%w: slot duration must be positive, got %d", ErrValidation, duration)
	}

	created := 0
	for date := from; !date.After(to); date = date.AddDays(1) {
		if !isApplicable(t, date) {
			continue
		}

		ex, err := m.exceptions.GetByDoctorAndDate(ctx, t.DoctorID, date)
		if err != nil {
			if !errors.Is(err, ErrExceptionNotFound) {
				return created, fmt.Errorf("look up exception for %s: %w", date, err)
			}
			ex = nil
		}

		start, end, ok := effectiveWindow(t, ex)
		if !ok {
			continue
		}

		for cur := start; !cur.AddMinutes(duration).After(end); cur = cur.AddMinutes(duration) {
			slotEnd := cur.AddMinutes(duration)

			exists, err := m.slots.Exists(ctx, t.DoctorID, date, cur, slotEnd)
			if err != nil {
				return created, fmt.Errorf("check slot %s %s: %w", date, cur, err)
			}
			if exists {
				continue
			}

			templateID := t.ID
			slot := &Slot{
				DoctorID:         t.DoctorID,
				SlotDate:         date,
				StartTime:        cur,
				EndTime:          slotEnd,
				Status:           SlotAvailable,
				SourceTemplateID: &templateID,
			}
			if err := m.slots.Create(ctx, slot); err != nil {
				return created, fmt.Errorf("create slot %s %s: %w", date, cur, err)
			}
			created++
		}
	}
	return created, nil
}
