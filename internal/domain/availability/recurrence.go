package availability

import "github.com/medsched/medsched/pkg/dateonly"

// isApplicable reports whether the template produces availability on the
// given date, before exceptions are considered.
func isApplicable(t *AvailabilityTemplate, date dateonly.Date) bool {
	switch t.ScheduleType {
	case ScheduleDaily:
		return true
	case ScheduleWeekly:
		dow := date.ISOWeekday()
		for _, d := range t.DaysOfWeek {
			if d == dow {
				return true
			}
		}
		return false
	case ScheduleDateRange:
		if t.StartDate == nil || t.EndDate == nil {
			return false
		}
		return !date.Before(*t.StartDate) && !date.After(*t.EndDate)
	case ScheduleSpecificDates:
		for _, d := range t.SpecificDates {
			if d.Equal(date) {
				return true
			}
		}
		return false
	}
	return false
}

// effectiveWindow resolves the working window for one (template, date) pair
// given that date's exception, if any. ok=false means the date yields no
// slots for this template.
//
// The exception is date-scoped, not template-scoped: every applicable
// template re-checks the same exception, so UNAVAILABLE blanks the whole
// date and CUSTOM_HOURS replaces every template's own hours with the
// override window.
func effectiveWindow(t *AvailabilityTemplate, ex *AvailabilityException) (start, end dateonly.TimeOfDay, ok bool) {
	if ex == nil {
		return t.StartTime, t.EndTime, true
	}
	switch ex.ExceptionType {
	case ExceptionUnavailable:
		return dateonly.TimeOfDay{}, dateonly.TimeOfDay{}, false
	case ExceptionCustomHours:
		if ex.StartTime != nil && ex.EndTime != nil {
			return *ex.StartTime, *ex.EndTime, true
		}
		return t.StartTime, t.EndTime, true
	}
	return t.StartTime, t.EndTime, true
}
