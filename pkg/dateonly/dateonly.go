// Package dateonly provides calendar date and wall-clock time values with no
// timezone component. Doctor schedules are stored and exchanged as the
// doctor's local date and time, so the usual time.Time with an offset is the
// wrong shape for them.
package dateonly

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	timeLayout    = "15:04"
	timeSecLayout = "15:04:05"
)

// Date is a calendar date. The zero value is the zero date.
type Date struct {
	t time.Time
}

// NewDate builds a Date from year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current calendar date.
func Today() Date {
	now := time.Now()
	return NewDate(now.Year(), now.Month(), now.Day())
}

// ParseDate parses a date in 2006-01-02 form.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// FromTime truncates a time.Time to its calendar date.
func FromTime(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func (d Date) IsZero() bool         { return d.t.IsZero() }
func (d Date) Before(o Date) bool   { return d.t.Before(o.t) }
func (d Date) After(o Date) bool    { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool    { return d.t.Equal(o.t) }
func (d Date) AddDays(n int) Date   { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Time() time.Time      { return d.t }
func (d Date) String() string       { return d.t.Format(dateLayout) }

// ISOWeekday returns the day of week with Monday=1 .. Sunday=7.
func (d Date) ISOWeekday() int {
	wd := int(d.t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan implements sql.Scanner so Date can be read from a DATE column.
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = FromTime(v)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.t, nil
}

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	minutes int // minutes since midnight
	set     bool
}

// NewTimeOfDay builds a TimeOfDay from hour and minute.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{minutes: hour*60 + minute, set: true}
}

// ParseTimeOfDay parses 15:04 or 15:04:05 form; seconds are discarded.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(timeSecLayout, s)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("parse time %q: %w", s, err)
		}
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) IsZero() bool              { return !t.set }
func (t TimeOfDay) Minutes() int              { return t.minutes }
func (t TimeOfDay) Hour() int                 { return t.minutes / 60 }
func (t TimeOfDay) Minute() int               { return t.minutes % 60 }
func (t TimeOfDay) Before(o TimeOfDay) bool   { return t.minutes < o.minutes }
func (t TimeOfDay) After(o TimeOfDay) bool    { return t.minutes > o.minutes }
func (t TimeOfDay) Equal(o TimeOfDay) bool    { return t.set == o.set && t.minutes == o.minutes }

// AddMinutes returns the time n minutes later. It does not wrap past
// midnight; callers bound their loops by an end time instead.
func (t TimeOfDay) AddMinutes(n int) TimeOfDay {
	return TimeOfDay{minutes: t.minutes + n, set: true}
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	if !t.set {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = TimeOfDay{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*t = TimeOfDay{}
		return nil
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Scan implements sql.Scanner so TimeOfDay can be read from a TIME column.
func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = TimeOfDay{}
		return nil
	case time.Time:
		*t = NewTimeOfDay(v.Hour(), v.Minute())
		return nil
	case string:
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		return t.Scan(string(v))
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

// Value implements driver.Valuer. Postgres accepts the 15:04:05 text form
// for TIME columns.
func (t TimeOfDay) Value() (driver.Value, error) {
	if !t.set {
		return nil, nil
	}
	return fmt.Sprintf("%02d:%02d:00", t.Hour(), t.Minute()), nil
}
