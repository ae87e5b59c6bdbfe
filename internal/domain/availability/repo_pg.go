package availability

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medsched/medsched/internal/platform/db"
	"github.com/medsched/medsched/pkg/dateonly"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// days_of_week and specific_dates are stored as comma-joined text columns,
// e.g. "1,3,5" and "2026-09-01,2026-09-15".

func joinDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseDays(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	days := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("parse day of week %q: %w", p, err)
		}
		days = append(days, d)
	}
	return days, nil
}

func joinDates(dates []dateonly.Date) string {
	parts := make([]string, len(dates))
	for i, d := range dates {
		parts[i] = d.String()
	}
	return strings.Join(parts, ",")
}

func parseDates(s string) ([]dateonly.Date, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	dates := make([]dateonly.Date, 0, len(parts))
	for _, p := range parts {
		d, err := dateonly.ParseDate(p)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// =========== Template Store ===========

type templateStorePG struct{ pool *pgxpool.Pool }

func NewTemplateStorePG(pool *pgxpool.Pool) TemplateStore { return &templateStorePG{pool: pool} }

func (r *templateStorePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const templateCols = `id, doctor_id, template_name, schedule_type, start_time, end_time,
	days_of_week, date_range_start, date_range_end, specific_dates, is_active, priority,
	created_at, updated_at`

func scanTemplate(row pgx.Row) (*AvailabilityTemplate, error) {
	var t AvailabilityTemplate
	var days, dates string
	var rangeStart, rangeEnd dateonly.Date
	err := row.Scan(&t.ID, &t.DoctorID, &t.TemplateName, &t.ScheduleType, &t.StartTime, &t.EndTime,
		&days, &rangeStart, &rangeEnd, &dates, &t.IsActive, &t.Priority,
		&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.DaysOfWeek, err = parseDays(days); err != nil {
		return nil, err
	}
	if t.SpecificDates, err = parseDates(dates); err != nil {
		return nil, err
	}
	if !rangeStart.IsZero() {
		t.StartDate = &rangeStart
	}
	if !rangeEnd.IsZero() {
		t.EndDate = &rangeEnd
	}
	return &t, nil
}

func templateDateRange(t *AvailabilityTemplate) (start, end dateonly.Date) {
	if t.StartDate != nil {
		start = *t.StartDate
	}
	if t.EndDate != nil {
		end = *t.EndDate
	}
	return start, end
}

func (r *templateStorePG) Create(ctx context.Context, t *AvailabilityTemplate) error {
	t.ID = uuid.New()
	rangeStart, rangeEnd := templateDateRange(t)
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_template (id, doctor_id, template_name, schedule_type,
			start_time, end_time, days_of_week, date_range_start, date_range_end,
			specific_dates, is_active, priority)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.DoctorID, t.TemplateName, t.ScheduleType,
		t.StartTime, t.EndTime, joinDays(t.DaysOfWeek), rangeStart, rangeEnd,
		joinDates(t.SpecificDates), t.IsActive, t.Priority)
	return err
}

func (r *templateStorePG) GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	return scanTemplate(r.conn(ctx).QueryRow(ctx,
		`SELECT `+templateCols+` FROM availability_template WHERE id = $1`, id))
}

func (r *templateStorePG) listByDoctor(ctx context.Context, query string, doctorID uuid.UUID) ([]*AvailabilityTemplate, error) {
	rows, err := r.conn(ctx).Query(ctx, query, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AvailabilityTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *templateStorePG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityTemplate, error) {
	return r.listByDoctor(ctx,
		`SELECT `+templateCols+` FROM availability_template WHERE doctor_id = $1 ORDER BY priority DESC, created_at DESC`,
		doctorID)
}

func (r *templateStorePG) ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityTemplate, error) {
	return r.listByDoctor(ctx,
		`SELECT `+templateCols+` FROM availability_template WHERE doctor_id = $1 AND is_active ORDER BY priority DESC, created_at DESC`,
		doctorID)
}

func (r *templateStorePG) Update(ctx context.Context, t *AvailabilityTemplate) error {
	rangeStart, rangeEnd := templateDateRange(t)
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_template SET template_name=$2, schedule_type=$3, start_time=$4,
			end_time=$5, days_of_week=$6, date_range_start=$7, date_range_end=$8,
			specific_dates=$9, is_active=$10, priority=$11, updated_at=NOW()
		WHERE id = $1`,
		t.ID, t.TemplateName, t.ScheduleType, t.StartTime,
		t.EndTime, joinDays(t.DaysOfWeek), rangeStart, rangeEnd,
		joinDates(t.SpecificDates), t.IsActive, t.Priority)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

func (r *templateStorePG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_template WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// =========== Exception Store ===========

type exceptionStorePG struct{ pool *pgxpool.Pool }

func NewExceptionStorePG(pool *pgxpool.Pool) ExceptionStore { return &exceptionStorePG{pool: pool} }

func (r *exceptionStorePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const exceptionCols = `id, doctor_id, exception_date, exception_type, start_time, end_time,
	reason, created_at, updated_at`

func scanException(row pgx.Row) (*AvailabilityException, error) {
	var e AvailabilityException
	var start, end dateonly.TimeOfDay
	err := row.Scan(&e.ID, &e.DoctorID, &e.ExceptionDate, &e.ExceptionType, &start, &end,
		&e.Reason, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExceptionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !start.IsZero() {
		e.StartTime = &start
	}
	if !end.IsZero() {
		e.EndTime = &end
	}
	return &e, nil
}

func exceptionTimes(e *AvailabilityException) (start, end dateonly.TimeOfDay) {
	if e.StartTime != nil {
		start = *e.StartTime
	}
	if e.EndTime != nil {
		end = *e.EndTime
	}
	return start, end
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// translateExceptionError maps the uq_exception_doctor_date constraint onto
// the domain conflict sentinel. The service checks for an existing exception
// before inserting, but two concurrent writes for the same date can both pass
// that check; the loser surfaces here.
func translateExceptionError(err error, date dateonly.Date) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrExceptionExists, date)
	}
	return err
}

func (r *exceptionStorePG) Create(ctx context.Context, e *AvailabilityException) error {
	e.ID = uuid.New()
	start, end := exceptionTimes(e)
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_exception (id, doctor_id, exception_date, exception_type,
			start_time, end_time, reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.ID, e.DoctorID, e.ExceptionDate, e.ExceptionType, start, end, e.Reason)
	return translateExceptionError(err, e.ExceptionDate)
}

func (r *exceptionStorePG) GetByID(ctx context.Context, id uuid.UUID) (*AvailabilityException, error) {
	return scanException(r.conn(ctx).QueryRow(ctx,
		`SELECT `+exceptionCols+` FROM availability_exception WHERE id = $1`, id))
}

func (r *exceptionStorePG) GetByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date dateonly.Date) (*AvailabilityException, error) {
	return scanException(r.conn(ctx).QueryRow(ctx,
		`SELECT `+exceptionCols+` FROM availability_exception WHERE doctor_id = $1 AND exception_date = $2`,
		doctorID, date))
}

func (r *exceptionStorePG) ListByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityException, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+exceptionCols+` FROM availability_exception WHERE doctor_id = $1 ORDER BY exception_date DESC`,
		doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AvailabilityException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *exceptionStorePG) Update(ctx context.Context, e *AvailabilityException) error {
	start, end := exceptionTimes(e)
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_exception SET exception_date=$2, exception_type=$3, start_time=$4,
			end_time=$5, reason=$6, updated_at=NOW()
		WHERE id = $1`,
		e.ID, e.ExceptionDate, e.ExceptionType, start, end, e.Reason)
	if err != nil {
		return translateExceptionError(err, e.ExceptionDate)
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

func (r *exceptionStorePG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_exception WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}

// =========== Slot Store ===========

type slotStorePG struct{ pool *pgxpool.Pool }

func NewSlotStorePG(pool *pgxpool.Pool) SlotStore { return &slotStorePG{pool: pool} }

func (r *slotStorePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const slotCols = `id, doctor_id, slot_date, start_time, end_time, status, source_template_id,
	created_at, updated_at`

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(&s.ID, &s.DoctorID, &s.SlotDate, &s.StartTime, &s.EndTime, &s.Status,
		&s.SourceTemplateID, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	return &s, err
}

func (r *slotStorePG) Create(ctx context.Context, s *Slot) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor_availability_slot (id, doctor_id, slot_date, start_time, end_time,
			status, source_template_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.DoctorID, s.SlotDate, s.StartTime, s.EndTime, s.Status, s.SourceTemplateID)
	return err
}

func (r *slotStorePG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return scanSlot(r.conn(ctx).QueryRow(ctx,
		`SELECT `+slotCols+` FROM doctor_availability_slot WHERE id = $1`, id))
}

func (r *slotStorePG) Exists(ctx context.Context, doctorID uuid.UUID, date dateonly.Date, start, end dateonly.TimeOfDay) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM doctor_availability_slot
			WHERE doctor_id = $1 AND slot_date = $2 AND start_time = $3 AND end_time = $4)`,
		doctorID, date, start, end).Scan(&exists)
	return exists, err
}

func (r *slotStorePG) list(ctx context.Context, query string, args ...interface{}) ([]*Slot, error) {
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *slotStorePG) ListByDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to dateonly.Date) ([]*Slot, error) {
	return r.list(ctx,
		`SELECT `+slotCols+` FROM doctor_availability_slot
			WHERE doctor_id = $1 AND slot_date BETWEEN $2 AND $3
			ORDER BY slot_date, start_time`,
		doctorID, from, to)
}

func (r *slotStorePG) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date dateonly.Date) ([]*Slot, error) {
	return r.list(ctx,
		`SELECT `+slotCols+` FROM doctor_availability_slot
			WHERE doctor_id = $1 AND slot_date = $2
			ORDER BY start_time`,
		doctorID, date)
}

func (r *slotStorePG) ListAvailableByDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to dateonly.Date) ([]*Slot, error) {
	return r.list(ctx,
		`SELECT `+slotCols+` FROM doctor_availability_slot
			WHERE doctor_id = $1 AND slot_date BETWEEN $2 AND $3 AND status = 'AVAILABLE'
			ORDER BY slot_date, start_time`,
		doctorID, from, to)
}

func (r *slotStorePG) ListAvailableByDoctorDate(ctx context.Context, doctorID uuid.UUID, date dateonly.Date) ([]*Slot, error) {
	return r.list(ctx,
		`SELECT `+slotCols+` FROM doctor_availability_slot
			WHERE doctor_id = $1 AND slot_date = $2 AND status = 'AVAILABLE'
			ORDER BY start_time`,
		doctorID, date)
}

// BookIfAvailable relies on the WHERE clause for atomicity: the row update
// only applies while the status is still AVAILABLE, so the second of two
// concurrent bookings matches zero rows.
func (r *slotStorePG) BookIfAvailable(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_availability_slot SET status = 'BOOKED', updated_at = NOW()
		WHERE id = $1 AND status = 'AVAILABLE'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *slotStorePG) UpdateStatus(ctx context.Context, id uuid.UUID, status SlotStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor_availability_slot SET status = $2, updated_at = NOW()
		WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (r *slotStorePG) DeleteByTemplate(ctx context.Context, templateID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM doctor_availability_slot WHERE source_template_id = $1`, templateID)
	return err
}

func (r *slotStorePG) DeleteByDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to dateonly.Date) error {
	_, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM doctor_availability_slot WHERE doctor_id = $1 AND slot_date BETWEEN $2 AND $3`,
		doctorID, from, to)
	return err
}

// =========== Settings Store ===========

type settingsStorePG struct{ pool *pgxpool.Pool }

func NewSettingsStorePG(pool *pgxpool.Pool) SettingsStore { return &settingsStorePG{pool: pool} }

func (r *settingsStorePG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const settingsCols = `id, doctor_id, slot_duration_minutes, buffer_time_minutes,
	advance_booking_days, auto_approve, allow_overbooking, created_at, updated_at`

func scanSettings(row pgx.Row) (*AppointmentSettings, error) {
	var s AppointmentSettings
	err := row.Scan(&s.ID, &s.DoctorID, &s.SlotDurationMinutes, &s.BufferTimeMinutes,
		&s.AdvanceBookingDays, &s.AutoApprove, &s.AllowOverbooking, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSettingsNotFound
	}
	return &s, err
}

func (r *settingsStorePG) Create(ctx context.Context, s *AppointmentSettings) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment_settings (id, doctor_id, slot_duration_minutes,
			buffer_time_minutes, advance_booking_days, auto_approve, allow_overbooking)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.DoctorID, s.SlotDurationMinutes, s.BufferTimeMinutes,
		s.AdvanceBookingDays, s.AutoApprove, s.AllowOverbooking)
	return err
}

func (r *settingsStorePG) GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*AppointmentSettings, error) {
	return scanSettings(r.conn(ctx).QueryRow(ctx,
		`SELECT `+settingsCols+` FROM appointment_settings WHERE doctor_id = $1`, doctorID))
}

func (r *settingsStorePG) Update(ctx context.Context, s *AppointmentSettings) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment_settings SET slot_duration_minutes=$2, buffer_time_minutes=$3,
			advance_booking_days=$4, auto_approve=$5, allow_overbooking=$6, updated_at=NOW()
		WHERE doctor_id = $1`,
		s.DoctorID, s.SlotDurationMinutes, s.BufferTimeMinutes,
		s.AdvanceBookingDays, s.AutoApprove, s.AllowOverbooking)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSettingsNotFound
	}
	return nil
}
