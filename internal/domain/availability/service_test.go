package availability

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsched/medsched/pkg/dateonly"
)

type testEnv struct {
	svc        *Service
	templates  *mockTemplateStore
	exceptions *mockExceptionStore
	slots      *mockSlotStore
	settings   *mockSettingsStore
	directory  *mockDirectory
	notifier   *recordingNotifier
	doctorID   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		templates:  newMockTemplateStore(),
		exceptions: newMockExceptionStore(),
		slots:      newMockSlotStore(),
		settings:   newMockSettingsStore(),
		notifier:   &recordingNotifier{},
		doctorID:   uuid.New(),
	}
	env.directory = newMockDirectory(env.doctorID)
	env.svc = NewService(env.templates, env.exceptions, env.slots, env.settings,
		env.directory, env.notifier, PassthroughTx, zerolog.New(io.Discard))
	return env
}

func (env *testEnv) seedSlot(t *testing.T, status SlotStatus) *Slot {
	t.Helper()
	slot := &Slot{
		DoctorID:  env.doctorID,
		SlotDate:  dateonly.Today().AddDays(1),
		StartTime: dateonly.NewTimeOfDay(9, 0),
		EndTime:   dateonly.NewTimeOfDay(9, 30),
		Status:    status,
	}
	if err := env.slots.Create(context.Background(), slot); err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	return slot
}

// -- Templates --

func TestCreateTemplate_MaterializesThirtyDays(t *testing.T) {
	env := newTestEnv(t)
	tpl := &AvailabilityTemplate{
		DoctorID:     env.doctorID,
		TemplateName: "weekday mornings",
		ScheduleType: ScheduleWeekly,
		StartTime:    dateonly.NewTimeOfDay(9, 0),
		EndTime:      dateonly.NewTimeOfDay(12, 0),
		DaysOfWeek:   []int{1, 3, 5},
		IsActive:     true,
	}

	if err := env.svc.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	from := dateonly.Today()
	to := from.AddDays(targetedHorizonDays)
	all, _ := env.slots.ListByDoctorRange(context.Background(), env.doctorID, from, to)
	if len(all) == 0 {
		t.Fatal("expected slots to be materialized")
	}
	for _, s := range all {
		dow := s.SlotDate.ISOWeekday()
		if dow != 1 && dow != 3 && dow != 5 {
			t.Errorf("slot on unexpected weekday %d", dow)
		}
		if s.SlotDate.After(to) {
			t.Errorf("slot %s beyond the 30-day horizon", s.SlotDate)
		}
	}

	// Per matching day: six 30-minute slots between 09:00 and 12:00.
	for d := from; !d.After(to); d = d.AddDays(1) {
		if dow := d.ISOWeekday(); dow != 1 && dow != 3 && dow != 5 {
			continue
		}
		daySlots, _ := env.slots.ListByDoctorDate(context.Background(), env.doctorID, d)
		if len(daySlots) != 6 {
			t.Errorf("%s: expected 6 slots, got %d", d, len(daySlots))
		}
	}
}

func TestCreateTemplate_InactiveCreatesNoSlots(t *testing.T) {
	env := newTestEnv(t)
	tpl := &AvailabilityTemplate{
		DoctorID:     env.doctorID,
		TemplateName: "draft",
		ScheduleType: ScheduleDaily,
		StartTime:    dateonly.NewTimeOfDay(9, 0),
		EndTime:      dateonly.NewTimeOfDay(10, 0),
		IsActive:     false,
	}

	if err := env.svc.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	all, _ := env.slots.ListByDoctorRange(context.Background(), env.doctorID,
		dateonly.Today(), dateonly.Today().AddDays(targetedHorizonDays))
	if len(all) != 0 {
		t.Errorf("expected no slots for inactive template, got %d", len(all))
	}
}

func TestCreateTemplate_Validation(t *testing.T) {
	env := newTestEnv(t)
	base := func() *AvailabilityTemplate {
		return &AvailabilityTemplate{
			DoctorID:     env.doctorID,
			TemplateName: "clinic",
			ScheduleType: ScheduleDaily,
			StartTime:    dateonly.NewTimeOfDay(9, 0),
			EndTime:      dateonly.NewTimeOfDay(12, 0),
			IsActive:     true,
		}
	}

	tests := []struct {
		name   string
		mutate func(*AvailabilityTemplate)
	}{
		{"missing name", func(t *AvailabilityTemplate) { t.TemplateName = "" }},
		{"bad schedule type", func(t *AvailabilityTemplate) { t.ScheduleType = "MONTHLY" }},
		{"missing times", func(t *AvailabilityTemplate) { t.StartTime = dateonly.TimeOfDay{} }},
		{"inverted times", func(t *AvailabilityTemplate) {
			t.StartTime = dateonly.NewTimeOfDay(12, 0)
			t.EndTime = dateonly.NewTimeOfDay(9, 0)
		}},
		{"weekly without days", func(t *AvailabilityTemplate) { t.ScheduleType = ScheduleWeekly }},
		{"weekly day out of range", func(t *AvailabilityTemplate) {
			t.ScheduleType = ScheduleWeekly
			t.DaysOfWeek = []int{0, 3}
		}},
		{"date range without bounds", func(t *AvailabilityTemplate) { t.ScheduleType = ScheduleDateRange }},
		{"specific dates empty", func(t *AvailabilityTemplate) { t.ScheduleType = ScheduleSpecificDates }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl := base()
			tt.mutate(tpl)
			err := env.svc.CreateTemplate(context.Background(), tpl)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateTemplate_UnknownDoctor(t *testing.T) {
	env := newTestEnv(t)
	tpl := &AvailabilityTemplate{
		DoctorID:     uuid.New(),
		TemplateName: "clinic",
		ScheduleType: ScheduleDaily,
		StartTime:    dateonly.NewTimeOfDay(9, 0),
		EndTime:      dateonly.NewTimeOfDay(12, 0),
		IsActive:     true,
	}
	if err := env.svc.CreateTemplate(context.Background(), tpl); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestUpdateTemplate_Rematerializes(t *testing.T) {
	env := newTestEnv(t)
	tpl := &AvailabilityTemplate{
		DoctorID:     env.doctorID,
		TemplateName: "mornings",
		ScheduleType: ScheduleDaily,
		StartTime:    dateonly.NewTimeOfDay(9, 0),
		EndTime:      dateonly.NewTimeOfDay(10, 0),
		IsActive:     true,
	}
	if err := env.svc.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("create: %v", err)
	}

	tpl.StartTime = dateonly.NewTimeOfDay(14, 0)
	tpl.EndTime = dateonly.NewTimeOfDay(15, 0)
	if err := env.svc.UpdateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("update: %v", err)
	}

	all, _ := env.slots.ListByDoctorRange(context.Background(), env.doctorID,
		dateonly.Today(), dateonly.Today().AddDays(targetedHorizonDays))
	if len(all) == 0 {
		t.Fatal("expected rematerialized slots")
	}
	for _, s := range all {
		if s.StartTime.Before(dateonly.NewTimeOfDay(14, 0)) {
			t.Errorf("stale slot %s survived rematerialization", s.StartTime)
		}
	}
}

func TestUpdateTemplate_WrongDoctor(t *testing.T) {
	env := newTestEnv(t)
	tpl := &AvailabilityTemplate{
		DoctorID:     env.doctorID,
		TemplateName: "mornings",
		ScheduleType: ScheduleDaily,
		StartTime:    dateonly.NewTimeOfDay(9, 0),
		EndTime:      dateonly.NewTimeOfDay(10, 0),
		IsActive:     true,
	}
	if err := env.svc.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("create: %v", err)
	}

	other := uuid.New()
	env.directory.known[other] = true
	stolen := *tpl
	stolen.DoctorID = other
	if err := env.svc.UpdateTemplate(context.Background(), &stolen); !errors.Is(err, ErrTemplateNotFound) {
		t.Errorf("expected ErrTemplateNotFound for another doctor's template, got %v", err)
	}
}

func TestDeleteTemplate_RemovesSlots(t *testing.T) {
	env := newTestEnv(t)
	tpl := &AvailabilityTemplate{
		DoctorID:     env.doctorID,
		TemplateName: "mornings",
		ScheduleType: ScheduleDaily,
		StartTime:    dateonly.NewTimeOfDay(9, 0),
		EndTime:      dateonly.NewTimeOfDay(10, 0),
		IsActive:     true,
	}
	if err := env.svc.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := env.svc.DeleteTemplate(context.Background(), env.doctorID, tpl.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	all, _ := env.slots.ListByDoctorRange(context.Background(), env.doctorID,
		dateonly.Today(), dateonly.Today().AddDays(targetedHorizonDays))
	if len(all) != 0 {
		t.Errorf("expected slots removed with the template, got %d", len(all))
	}
	if _, err := env.templates.GetByID(context.Background(), tpl.ID); !errors.Is(err, ErrTemplateNotFound) {
		t.Error("expected template to be gone")
	}
}

// -- Exceptions --

func TestCreateException_DuplicateDate(t *testing.T) {
	env := newTestEnv(t)
	date := dateonly.Today().AddDays(3)

	first := &AvailabilityException{
		DoctorID:      env.doctorID,
		ExceptionDate: date,
		ExceptionType: ExceptionUnavailable,
	}
	if err := env.svc.CreateException(context.Background(), first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	second := &AvailabilityException{
		DoctorID:      env.doctorID,
		ExceptionDate: date,
		ExceptionType: ExceptionUnavailable,
	}
	if err := env.svc.CreateException(context.Background(), second); !errors.Is(err, ErrExceptionExists) {
		t.Errorf("expected ErrExceptionExists, got %v", err)
	}
}

func TestCreateException_Validation(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.CreateException(context.Background(), &AvailabilityException{
		DoctorID:      env.doctorID,
		ExceptionType: ExceptionUnavailable,
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for missing date, got %v", err)
	}

	err = env.svc.CreateException(context.Background(), &AvailabilityException{
		DoctorID:      env.doctorID,
		ExceptionDate: dateonly.Today(),
		ExceptionType: ExceptionCustomHours,
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error for CUSTOM_HOURS without times, got %v", err)
	}
}

func TestCreateException_DoesNotRegenerateSlots(t *testing.T) {
	env := newTestEnv(t)
	tpl := &AvailabilityTemplate{
		DoctorID:     env.doctorID,
		TemplateName: "mornings",
		ScheduleType: ScheduleDaily,
		StartTime:    dateonly.NewTimeOfDay(9, 0),
		EndTime:      dateonly.NewTimeOfDay(10, 0),
		IsActive:     true,
	}
	if err := env.svc.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("create template: %v", err)
	}

	date := dateonly.Today().AddDays(5)
	before, _ := env.slots.ListByDoctorDate(context.Background(), env.doctorID, date)
	if len(before) == 0 {
		t.Fatal("expected slots on the target date")
	}

	if err := env.svc.CreateException(context.Background(), &AvailabilityException{
		DoctorID:      env.doctorID,
		ExceptionDate: date,
		ExceptionType: ExceptionUnavailable,
	}); err != nil {
		t.Fatalf("create exception: %v", err)
	}

	// Existing slots stay; the exception only affects later materializations.
	after, _ := env.slots.ListByDoctorDate(context.Background(), env.doctorID, date)
	if len(after) != len(before) {
		t.Errorf("expected existing slots untouched, had %d now %d", len(before), len(after))
	}
}

// -- Booking --

func TestBookSlot(t *testing.T) {
	env := newTestEnv(t)
	slot := env.seedSlot(t, SlotAvailable)

	booked, err := env.svc.BookSlot(context.Background(), env.doctorID, slot.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booked.Status != SlotBooked {
		t.Errorf("expected BOOKED, got %s", booked.Status)
	}

	events := env.notifier.Events()
	if len(events) != 1 || events[0].Status != SlotBooked || events[0].SlotID != slot.ID {
		t.Errorf("expected a BOOKED event for the slot, got %+v", events)
	}
}

func TestBookSlot_Conflict(t *testing.T) {
	env := newTestEnv(t)
	slot := env.seedSlot(t, SlotBooked)

	if _, err := env.svc.BookSlot(context.Background(), env.doctorID, slot.ID); !errors.Is(err, ErrSlotNotAvailable) {
		t.Errorf("expected ErrSlotNotAvailable, got %v", err)
	}
}

func TestBookSlot_NotFound(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.BookSlot(context.Background(), env.doctorID, uuid.New()); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound, got %v", err)
	}
}

func TestBookSlot_OtherDoctorsSlot(t *testing.T) {
	env := newTestEnv(t)
	slot := env.seedSlot(t, SlotAvailable)

	other := uuid.New()
	env.directory.known[other] = true
	if _, err := env.svc.BookSlot(context.Background(), other, slot.ID); !errors.Is(err, ErrSlotNotFound) {
		t.Errorf("expected ErrSlotNotFound for foreign slot, got %v", err)
	}
}

func TestBookSlot_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	slot := env.seedSlot(t, SlotAvailable)

	const callers = 20
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.BookSlot(context.Background(), env.doctorID, slot.ID)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins, conflicts := 0, 0
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotNotAvailable):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly one successful booking, got %d", wins)
	}
	if conflicts != callers-1 {
		t.Errorf("expected %d conflicts, got %d", callers-1, conflicts)
	}

	final, _ := env.slots.GetByID(context.Background(), slot.ID)
	if final.Status != SlotBooked {
		t.Errorf("expected final status BOOKED, got %s", final.Status)
	}
}

func TestReleaseSlot_FromAnyStatus(t *testing.T) {
	env := newTestEnv(t)

	for _, status := range []SlotStatus{SlotBooked, SlotBlocked, SlotCancelled, SlotAvailable} {
		slot := env.seedSlot(t, status)
		released, err := env.svc.ReleaseSlot(context.Background(), env.doctorID, slot.ID)
		if err != nil {
			t.Fatalf("release from %s: %v", status, err)
		}
		if released.Status != SlotAvailable {
			t.Errorf("release from %s: expected AVAILABLE, got %s", status, released.Status)
		}
		if err := env.slots.UpdateStatus(context.Background(), slot.ID, SlotCancelled); err != nil {
			t.Fatalf("reset slot: %v", err)
		}
	}
}

// -- Settings --

func TestGetOrCreateSettings_Defaults(t *testing.T) {
	env := newTestEnv(t)

	settings, err := env.svc.GetOrCreateSettings(context.Background(), env.doctorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.SlotDurationMinutes != 30 || settings.BufferTimeMinutes != 5 ||
		settings.AdvanceBookingDays != 30 || settings.AutoApprove || settings.AllowOverbooking {
		t.Errorf("unexpected defaults: %+v", settings)
	}

	// Second call returns the persisted row, not a fresh one.
	again, err := env.svc.GetOrCreateSettings(context.Background(), env.doctorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != settings.ID {
		t.Error("expected the same settings row on repeat access")
	}
}

func TestUpdateSettings_DoesNotRegenerateSlots(t *testing.T) {
	env := newTestEnv(t)
	tpl := &AvailabilityTemplate{
		DoctorID:     env.doctorID,
		TemplateName: "mornings",
		ScheduleType: ScheduleDaily,
		StartTime:    dateonly.NewTimeOfDay(9, 0),
		EndTime:      dateonly.NewTimeOfDay(10, 0),
		IsActive:     true,
	}
	if err := env.svc.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("create template: %v", err)
	}
	before, _ := env.slots.ListByDoctorRange(context.Background(), env.doctorID,
		dateonly.Today(), dateonly.Today().AddDays(targetedHorizonDays))

	updated, err := env.svc.UpdateSettings(context.Background(), &AppointmentSettings{
		DoctorID:            env.doctorID,
		SlotDurationMinutes: 60,
		BufferTimeMinutes:   0,
		AdvanceBookingDays:  14,
	})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.SlotDurationMinutes != 60 {
		t.Errorf("expected duration 60, got %d", updated.SlotDurationMinutes)
	}

	after, _ := env.slots.ListByDoctorRange(context.Background(), env.doctorID,
		dateonly.Today(), dateonly.Today().AddDays(targetedHorizonDays))
	if len(after) != len(before) {
		t.Errorf("expected slot set unchanged after settings update, had %d now %d", len(before), len(after))
	}
}

func TestUpdateSettings_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.UpdateSettings(context.Background(), &AppointmentSettings{
		DoctorID:            env.doctorID,
		SlotDurationMinutes: 0,
	})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

// -- Bulk regeneration --

func TestRegenerateAllSlots_WipesAndRebuildsSixtyDays(t *testing.T) {
	env := newTestEnv(t)
	tpl := &AvailabilityTemplate{
		DoctorID:     env.doctorID,
		TemplateName: "daily hour",
		ScheduleType: ScheduleDaily,
		StartTime:    dateonly.NewTimeOfDay(9, 0),
		EndTime:      dateonly.NewTimeOfDay(10, 0),
		IsActive:     true,
	}
	if err := env.svc.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("create template: %v", err)
	}

	// A hand-made slot with no source template sits inside the bulk window.
	stray := &Slot{
		DoctorID:  env.doctorID,
		SlotDate:  dateonly.Today().AddDays(10),
		StartTime: dateonly.NewTimeOfDay(20, 0),
		EndTime:   dateonly.NewTimeOfDay(20, 30),
		Status:    SlotAvailable,
	}
	if err := env.slots.Create(context.Background(), stray); err != nil {
		t.Fatalf("seed stray slot: %v", err)
	}

	created, err := env.svc.RegenerateAllSlots(context.Background(), env.doctorID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	// 61 dates in [today, today+60], two 30-minute slots each.
	if created != 122 {
		t.Errorf("expected 122 slots, got %d", created)
	}

	// The bulk wipe removes untagged slots too.
	if _, err := env.slots.GetByID(context.Background(), stray.ID); !errors.Is(err, ErrSlotNotFound) {
		t.Error("expected stray slot to be wiped by bulk regeneration")
	}

	edge, _ := env.slots.ListByDoctorDate(context.Background(), env.doctorID, dateonly.Today().AddDays(bulkHorizonDays))
	if len(edge) != 2 {
		t.Errorf("expected slots at the 60-day edge, got %d", len(edge))
	}
	beyond, _ := env.slots.ListByDoctorDate(context.Background(), env.doctorID, dateonly.Today().AddDays(bulkHorizonDays+1))
	if len(beyond) != 0 {
		t.Errorf("expected no slots beyond the 60-day horizon, got %d", len(beyond))
	}
}

func TestRegenerateAllSlots_SkipsInactiveTemplates(t *testing.T) {
	env := newTestEnv(t)
	inactive := &AvailabilityTemplate{
		DoctorID:     env.doctorID,
		TemplateName: "paused",
		ScheduleType: ScheduleDaily,
		StartTime:    dateonly.NewTimeOfDay(9, 0),
		EndTime:      dateonly.NewTimeOfDay(10, 0),
		IsActive:     false,
	}
	if err := env.svc.CreateTemplate(context.Background(), inactive); err != nil {
		t.Fatalf("create template: %v", err)
	}

	created, err := env.svc.RegenerateAllSlots(context.Background(), env.doctorID)
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if created != 0 {
		t.Errorf("expected no slots from inactive templates, got %d", created)
	}
}

func TestRegenerateAllSlots_UnknownDoctor(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.svc.RegenerateAllSlots(context.Background(), uuid.New()); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("expected ErrDoctorNotFound, got %v", err)
	}
}
