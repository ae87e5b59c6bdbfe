package availability

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/medsched/medsched/pkg/dateonly"
)

type mockTemplateStore struct {
	templates map[uuid.UUID]*AvailabilityTemplate
}

func newMockTemplateStore() *mockTemplateStore {
	return &mockTemplateStore{templates: make(map[uuid.UUID]*AvailabilityTemplate)}
}

func (m *mockTemplateStore) Create(_ context.Context, t *AvailabilityTemplate) error {
	t.ID = uuid.New()
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *mockTemplateStore) GetByID(_ context.Context, id uuid.UUID) (*AvailabilityTemplate, error) {
	t, ok := m.templates[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *mockTemplateStore) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*AvailabilityTemplate, error) {
	var items []*AvailabilityTemplate
	for _, t := range m.templates {
		if t.DoctorID == doctorID {
			cp := *t
			items = append(items, &cp)
		}
	}
	return items, nil
}

func (m *mockTemplateStore) ListActiveByDoctor(ctx context.Context, doctorID uuid.UUID) ([]*AvailabilityTemplate, error) {
	all, _ := m.ListByDoctor(ctx, doctorID)
	var items []*AvailabilityTemplate
	for _, t := range all {
		if t.IsActive {
			items = append(items, t)
		}
	}
	return items, nil
}

func (m *mockTemplateStore) Update(_ context.Context, t *AvailabilityTemplate) error {
	if _, ok := m.templates[t.ID]; !ok {
		return ErrTemplateNotFound
	}
	cp := *t
	m.templates[t.ID] = &cp
	return nil
}

func (m *mockTemplateStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.templates[id]; !ok {
		return ErrTemplateNotFound
	}
	delete(m.templates, id)
	return nil
}

type mockExceptionStore struct {
	exceptions map[uuid.UUID]*AvailabilityException
}

func newMockExceptionStore() *mockExceptionStore {
	return &mockExceptionStore{exceptions: make(map[uuid.UUID]*AvailabilityException)}
}

func (m *mockExceptionStore) Create(_ context.Context, e *AvailabilityException) error {
	e.ID = uuid.New()
	cp := *e
	m.exceptions[e.ID] = &cp
	return nil
}

func (m *mockExceptionStore) GetByID(_ context.Context, id uuid.UUID) (*AvailabilityException, error) {
	e, ok := m.exceptions[id]
	if !ok {
		return nil, ErrExceptionNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *mockExceptionStore) GetByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date dateonly.Date) (*AvailabilityException, error) {
	for _, e := range m.exceptions {
		if e.DoctorID == doctorID && e.ExceptionDate.Equal(date) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, ErrExceptionNotFound
}

func (m *mockExceptionStore) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*AvailabilityException, error) {
	var items []*AvailabilityException
	for _, e := range m.exceptions {
		if e.DoctorID == doctorID {
			cp := *e
			items = append(items, &cp)
		}
	}
	return items, nil
}

func (m *mockExceptionStore) Update(_ context.Context, e *AvailabilityException) error {
	if _, ok := m.exceptions[e.ID]; !ok {
		return ErrExceptionNotFound
	}
	cp := *e
	m.exceptions[e.ID] = &cp
	return nil
}

func (m *mockExceptionStore) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.exceptions[id]; !ok {
		return ErrExceptionNotFound
	}
	delete(m.exceptions, id)
	return nil
}

type mockSlotStore struct {
	mu         sync.Mutex
	slots      map[uuid.UUID]*Slot
	failCreate bool
}

func newMockSlotStore() *mockSlotStore {
	return &mockSlotStore{slots: make(map[uuid.UUID]*Slot)}
}

func (m *mockSlotStore) Create(_ context.Context, s *Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return errors.New("store unavailable")
	}
	s.ID = uuid.New()
	cp := *s
	m.slots[s.ID] = &cp
	return nil
}

func (m *mockSlotStore) GetByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSlotStore) Exists(_ context.Context, doctorID uuid.UUID, date dateonly.Date, start, end dateonly.TimeOfDay) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.slots {
		if s.DoctorID == doctorID && s.SlotDate.Equal(date) && s.StartTime.Equal(start) && s.EndTime.Equal(end) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSlotStore) listWhere(match func(*Slot) bool) []*Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*Slot
	for _, s := range m.slots {
		if match(s) {
			cp := *s
			items = append(items, &cp)
		}
	}
	return items
}

func (m *mockSlotStore) ListByDoctorRange(_ context.Context, doctorID uuid.UUID, from, to dateonly.Date) ([]*Slot, error) {
	return m.listWhere(func(s *Slot) bool {
		return s.DoctorID == doctorID && !s.SlotDate.Before(from) && !s.SlotDate.After(to)
	}), nil
}

func (m *mockSlotStore) ListByDoctorDate(_ context.Context, doctorID uuid.UUID, date dateonly.Date) ([]*Slot, error) {
	return m.listWhere(func(s *Slot) bool {
		return s.DoctorID == doctorID && s.SlotDate.Equal(date)
	}), nil
}

func (m *mockSlotStore) ListAvailableByDoctorRange(_ context.Context, doctorID uuid.UUID, from, to dateonly.Date) ([]*Slot, error) {
	return m.listWhere(func(s *Slot) bool {
		return s.DoctorID == doctorID && s.Status == SlotAvailable && !s.SlotDate.Before(from) && !s.SlotDate.After(to)
	}), nil
}

func (m *mockSlotStore) ListAvailableByDoctorDate(_ context.Context, doctorID uuid.UUID, date dateonly.Date) ([]*Slot, error) {
	return m.listWhere(func(s *Slot) bool {
		return s.DoctorID == doctorID && s.Status == SlotAvailable && s.SlotDate.Equal(date)
	}), nil
}

func (m *mockSlotStore) BookIfAvailable(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok || s.Status != SlotAvailable {
		return false, nil
	}
	s.Status = SlotBooked
	return true, nil
}

func (m *mockSlotStore) UpdateStatus(_ context.Context, id uuid.UUID, status SlotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	s.Status = status
	return nil
}

func (m *mockSlotStore) DeleteByTemplate(_ context.Context, templateID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.slots {
		if s.SourceTemplateID != nil && *s.SourceTemplateID == templateID {
			delete(m.slots, id)
		}
	}
	return nil
}

func (m *mockSlotStore) DeleteByDoctorRange(_ context.Context, doctorID uuid.UUID, from, to dateonly.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.slots {
		if s.DoctorID == doctorID && !s.SlotDate.Before(from) && !s.SlotDate.After(to) {
			delete(m.slots, id)
		}
	}
	return nil
}

type mockSettingsStore struct {
	settings map[uuid.UUID]*AppointmentSettings
}

func newMockSettingsStore() *mockSettingsStore {
	return &mockSettingsStore{settings: make(map[uuid.UUID]*AppointmentSettings)}
}

func (m *mockSettingsStore) Create(_ context.Context, s *AppointmentSettings) error {
	s.ID = uuid.New()
	cp := *s
	m.settings[s.DoctorID] = &cp
	return nil
}

func (m *mockSettingsStore) GetByDoctor(_ context.Context, doctorID uuid.UUID) (*AppointmentSettings, error) {
	s, ok := m.settings[doctorID]
	if !ok {
		return nil, ErrSettingsNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockSettingsStore) Update(_ context.Context, s *AppointmentSettings) error {
	if _, ok := m.settings[s.DoctorID]; !ok {
		return ErrSettingsNotFound
	}
	cp := *s
	m.settings[s.DoctorID] = &cp
	return nil
}

type mockDirectory struct {
	known map[uuid.UUID]bool
}

func newMockDirectory(ids ...uuid.UUID) *mockDirectory {
	d := &mockDirectory{known: make(map[uuid.UUID]bool)}
	for _, id := range ids {
		d.known[id] = true
	}
	return d
}

func (m *mockDirectory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.known[id], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []SlotEvent
}

func (n *recordingNotifier) SlotStatusChanged(_ context.Context, ev SlotEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) Events() []SlotEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]SlotEvent, len(n.events))
	copy(out, n.events)
	return out
}
