package scheduling

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/clock"
)

// -- Mock Schedule Repository --

type mockScheduleRepo struct {
	store map[uuid.UUID]*Schedule
	appts *mockAppointmentRepo
}

func (m *mockScheduleRepo) Create(_ context.Context, s *Schedule) error {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	m.store[s.ID] = s
	return nil
}

func (m *mockScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	s, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("schedule", id)
	}
	cp := *s
	cp.Booked, _ = m.appts.IsBooked(ctx, id)
	return &cp, nil
}

func (m *mockScheduleRepo) Update(_ context.Context, s *Schedule) error {
	if _, ok := m.store[s.ID]; !ok {
		return apperr.NotFound("schedule", s.ID)
	}
	m.store[s.ID] = s
	return nil
}

func (m *mockScheduleRepo) SetAvailable(_ context.Context, id uuid.UUID, available bool) error {
	s, ok := m.store[id]
	if !ok {
		return apperr.NotFound("schedule", id)
	}
	s.IsAvailable = available
	return nil
}

func (m *mockScheduleRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return apperr.NotFound("schedule", id)
	}
	delete(m.store, id)
	return nil
}

func (m *mockScheduleRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, from time.Time) ([]*Schedule, error) {
	var out []*Schedule
	for _, s := range m.store {
		if s.DoctorID == doctorID && !s.Date.Before(from) {
			out = append(out, s)
		}
	}
	return out, nil
}

// -- Mock Appointment Repository --

// mockAppointmentRepo drops an appointment's billing on delete like the
// foreign key does.
type mockAppointmentRepo struct {
	store     map[uuid.UUID]*Appointment
	schedules *mockScheduleRepo
	billings  *mockBillingRepo
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.store[a.ID] = &cp
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("appointment", id)
	}
	cp := *a
	if s, ok := m.schedules.store[a.ScheduleID]; ok {
		cp.DoctorID = s.DoctorID
		cp.Date = s.Date
		cp.StartTime = s.StartTime
		cp.EndTime = s.EndTime
		cp.OfficeNumber = s.OfficeNumber
	}
	return &cp, nil
}

func (m *mockAppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	a, ok := m.store[id]
	if !ok {
		return apperr.NotFound("appointment", id)
	}
	a.Status = status
	return nil
}

func (m *mockAppointmentRepo) AppendInformation(_ context.Context, id uuid.UUID, entry string) error {
	a, ok := m.store[id]
	if !ok {
		return apperr.NotFound("appointment", id)
	}
	info := AppendEntry(a.Information, entry)
	a.Information = &info
	return nil
}

func (m *mockAppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	var out []*Appointment
	for _, a := range m.store {
		if a.PatientID == patientID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAppointmentRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string, _, _ int) ([]*Appointment, int, error) {
	var out []*Appointment
	for id := range m.store {
		a, _ := m.GetByID(ctx, id)
		if a.DoctorID == doctorID && (status == "" || a.Status == status) {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockAppointmentRepo) List(ctx context.Context, status string, _, _ int) ([]*Appointment, int, error) {
	var out []*Appointment
	for id := range m.store {
		a, _ := m.GetByID(ctx, id)
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	return out, len(out), nil
}

func (m *mockAppointmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return apperr.NotFound("appointment", id)
	}
	delete(m.store, id)
	for bid, b := range m.billings.store {
		if b.AppointmentID == id {
			delete(m.billings.store, bid)
		}
	}
	return nil
}

func (m *mockAppointmentRepo) IsBooked(_ context.Context, scheduleID uuid.UUID) (bool, error) {
	for _, a := range m.store {
		if a.ScheduleID == scheduleID && a.Status != StatusCancelled {
			return true, nil
		}
	}
	return false, nil
}

// -- Mock Billing Repository --

type mockBillingRepo struct {
	store map[uuid.UUID]*Billing
}

func (m *mockBillingRepo) Create(_ context.Context, b *Billing) error {
	for _, existing := range m.store {
		if existing.AppointmentID == b.AppointmentID {
			return apperr.Conflict("billing for appointment %s already exists", b.AppointmentID)
		}
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	cp := *b
	m.store[b.ID] = &cp
	return nil
}

func (m *mockBillingRepo) GetByID(_ context.Context, id uuid.UUID) (*Billing, error) {
	b, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("billing", id)
	}
	cp := *b
	return &cp, nil
}

func (m *mockBillingRepo) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*Billing, error) {
	for _, b := range m.store {
		if b.AppointmentID == appointmentID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("billing", appointmentID)
}

func (m *mockBillingRepo) MarkPaid(_ context.Context, id uuid.UUID, paidAt time.Time) error {
	b, ok := m.store[id]
	if !ok || b.Status != BillingPending {
		return apperr.Conflict("billing %s is not pending", id)
	}
	b.Status = BillingPaid
	b.PaidAt = &paidAt
	return nil
}

func (m *mockBillingRepo) List(_ context.Context, status string, _, _ int) ([]*Billing, int, error) {
	var out []*Billing
	for _, b := range m.store {
		if status == "" || b.Status == status {
			out = append(out, b)
		}
	}
	return out, len(out), nil
}

func (m *mockBillingRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Billing, error) {
	var out []*Billing
	for _, b := range m.store {
		if b.PatientID == patientID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeUnitOfWork struct{ commits, rollbacks int }

func (u *fakeUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		u.rollbacks++
		return err
	}
	u.commits++
	return nil
}

// 2026-03-10 12:00 in the clinic's zone.
var testNow = clock.Fixed(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

type fixture struct {
	svc       *Service
	schedules *mockScheduleRepo
	appts     *mockAppointmentRepo
	billings  *mockBillingRepo
	uow       *fakeUnitOfWork
}

func newFixture() *fixture {
	schedules := &mockScheduleRepo{store: make(map[uuid.UUID]*Schedule)}
	billings := &mockBillingRepo{store: make(map[uuid.UUID]*Billing)}
	appts := &mockAppointmentRepo{store: make(map[uuid.UUID]*Appointment), schedules: schedules, billings: billings}
	schedules.appts = appts
	uow := &fakeUnitOfWork{}
	return &fixture{
		svc:       NewService(schedules, appts, billings, uow, testNow),
		schedules: schedules,
		appts:     appts,
		billings:  billings,
		uow:       uow,
	}
}

// visit books a slot tomorrow for patient and returns the appointment.
func (f *fixture) visit(t *testing.T, patient uuid.UUID) *Appointment {
	t.Helper()
	s := f.slot(t, uuid.New(), tomorrow, "09:00", "09:30")
	a, err := f.svc.Book(context.Background(), patient, s.ID)
	require.NoError(t, err)
	return a
}

func newTestService() *Service {
	return newFixture().svc
}

func (f *fixture) slot(t *testing.T, doctorID uuid.UUID, date time.Time, start, end string) *Schedule {
	t.Helper()
	s := &Schedule{DoctorID: doctorID, OfficeNumber: "101", Date: date, StartTime: start, EndTime: end, IsAvailable: true}
	require.NoError(t, f.svc.CreateSchedule(context.Background(), s))
	return s
}

var tomorrow = time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

func TestCreateScheduleBatch(t *testing.T) {
	f := newFixture()
	slots, err := f.svc.CreateScheduleBatch(context.Background(), Window{
		DoctorID: uuid.New(), OfficeNumber: "7", Date: tomorrow, StartTime: "09:00", EndTime: "12:00", Count: 6,
	})
	require.NoError(t, err)
	assert.Len(t, slots, 6)
	assert.Len(t, f.schedules.store, 6)
	assert.Equal(t, 1, f.uow.commits)
}

func TestCreateScheduleBatch_RequiresDoctor(t *testing.T) {
	f := newFixture()
	_, err := f.svc.CreateScheduleBatch(context.Background(), Window{OfficeNumber: "7", StartTime: "09:00", EndTime: "10:00", Count: 1})
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, f.schedules.store)
}

func TestBook(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctor, patient := uuid.New(), uuid.New()
	s := f.slot(t, doctor, tomorrow, "09:00", "09:30")

	a, err := f.svc.Book(ctx, patient, s.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, a.Status)
	assert.Equal(t, doctor, a.DoctorID)

	_, err = f.svc.Book(ctx, uuid.New(), s.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestBook_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctor := uuid.New()
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	earlierToday := f.slot(t, doctor, today, "11:00", "11:30")
	_, err := f.svc.Book(ctx, uuid.New(), earlierToday.ID)
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr, "slot that already started")

	laterToday := f.slot(t, doctor, today, "15:00", "15:30")
	_, err = f.svc.Book(ctx, uuid.New(), laterToday.ID)
	assert.NoError(t, err)

	closed := f.slot(t, doctor, tomorrow, "10:00", "10:30")
	require.NoError(t, f.svc.SetAvailable(ctx, closed.ID, false))
	_, err = f.svc.Book(ctx, uuid.New(), closed.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Book(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancel(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	patient := uuid.New()
	s := f.slot(t, uuid.New(), tomorrow, "09:00", "09:30")
	a, err := f.svc.Book(ctx, patient, s.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Cancel(ctx, uuid.New(), a.ID), apperr.ErrForbidden)
	require.NoError(t, f.svc.Cancel(ctx, patient, a.ID))
	assert.Equal(t, StatusCancelled, f.appts.store[a.ID].Status)
	assert.ErrorIs(t, f.svc.Cancel(ctx, patient, a.ID), apperr.ErrConflict)

	// a cancelled booking frees the slot
	_, err = f.svc.Book(ctx, uuid.New(), s.ID)
	assert.NoError(t, err)
}

func TestDoctorVisit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctor := uuid.New()
	s := f.slot(t, doctor, tomorrow, "09:00", "09:30")
	a, err := f.svc.Book(ctx, uuid.New(), s.ID)
	require.NoError(t, err)

	got, err := f.svc.DoctorVisit(ctx, a.ID, doctor)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = f.svc.DoctorVisit(ctx, a.ID, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.DoctorVisit(ctx, uuid.New(), doctor)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctor := uuid.New()
	s := f.slot(t, doctor, tomorrow, "09:00", "09:30")
	a, err := f.svc.Book(ctx, uuid.New(), s.ID)
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, a.ID, doctor, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)

	_, err = f.svc.UpdateStatus(ctx, a.ID, doctor, "no-show")
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAddInformation_AppendsEntries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctor := uuid.New()
	s := f.slot(t, doctor, tomorrow, "09:00", "09:30")
	a, err := f.svc.Book(ctx, uuid.New(), s.ID)
	require.NoError(t, err)

	_, err = f.svc.AddInformation(ctx, a.ID, doctor, "Complains of headache.")
	require.NoError(t, err)
	got, err := f.svc.AddInformation(ctx, a.ID, doctor, "  BP 120/80  ")
	require.NoError(t, err)
	assert.Equal(t, "Complains of headache.\n\nBP 120/80", *got.Information)
	assert.Equal(t, *got.Information, *f.appts.store[a.ID].Information)

	_, err = f.svc.AddInformation(ctx, a.ID, uuid.New(), "note")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestAppendLog_JoinsEntries(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	s := f.slot(t, uuid.New(), tomorrow, "09:00", "09:30")
	a, err := f.svc.Book(ctx, uuid.New(), s.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.AppendLog(ctx, a.ID, "prescribed", "", "conflicts"))
	info := *f.appts.store[a.ID].Information
	assert.Equal(t, 2, len(strings.Split(info, InformationSeparator)))

	assert.Error(t, f.svc.AppendLog(ctx, a.ID))
}

func TestDoctorAppointments_StatusFilter(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	doctor := uuid.New()
	s1 := f.slot(t, doctor, tomorrow, "09:00", "09:30")
	s2 := f.slot(t, doctor, tomorrow, "09:30", "10:00")
	a1, err := f.svc.Book(ctx, uuid.New(), s1.ID)
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, uuid.New(), s2.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, a1.ID, doctor, StatusCompleted)
	require.NoError(t, err)

	items, total, err := f.svc.DoctorAppointments(ctx, doctor, StatusScheduled, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, items, 1)

	_, _, err = f.svc.DoctorAppointments(ctx, doctor, "bogus", 20, 0)
	assert.Error(t, err)
}

func TestListAppointments_AllDoctors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	patient := uuid.New()
	a1 := f.visit(t, patient)
	f.visit(t, uuid.New())
	require.NoError(t, f.svc.Cancel(ctx, patient, a1.ID))

	_, total, err := f.svc.ListAppointments(ctx, "", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	items, total, err := f.svc.ListAppointments(ctx, StatusCancelled, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, a1.ID, items[0].ID)

	_, _, err = f.svc.ListAppointments(ctx, "bogus", 20, 0)
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDeleteAppointment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	pending := f.visit(t, uuid.New())
	require.NoError(t, f.svc.CreateBilling(ctx, &Billing{AppointmentID: pending.ID, AmountCents: 150000}))
	require.NoError(t, f.svc.DeleteAppointment(ctx, pending.ID))
	assert.NotContains(t, f.appts.store, pending.ID)
	assert.Empty(t, f.billings.store, "pending billing goes with the appointment")

	paid := f.visit(t, uuid.New())
	b := &Billing{AppointmentID: paid.ID, AmountCents: 150000}
	require.NoError(t, f.svc.CreateBilling(ctx, b))
	_, err := f.svc.PayBilling(ctx, b.ID)
	require.NoError(t, err)
	rollbacks := f.uow.rollbacks

	assert.ErrorIs(t, f.svc.DeleteAppointment(ctx, paid.ID), apperr.ErrConflict)
	assert.Contains(t, f.appts.store, paid.ID)
	assert.Contains(t, f.billings.store, b.ID)
	assert.Equal(t, rollbacks+1, f.uow.rollbacks)

	assert.ErrorIs(t, f.svc.DeleteAppointment(ctx, uuid.New()), apperr.ErrNotFound)
}

func TestCreateBilling(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	patient := uuid.New()
	a := f.visit(t, patient)

	note := "consultation"
	b := &Billing{AppointmentID: a.ID, AmountCents: 250000, Description: &note, PatientID: uuid.New(), Status: BillingPaid}
	require.NoError(t, f.svc.CreateBilling(ctx, b))
	assert.Equal(t, patient, b.PatientID, "the patient comes from the appointment")
	assert.Equal(t, BillingPending, b.Status)
	assert.Nil(t, b.PaidAt)

	err := f.svc.CreateBilling(ctx, &Billing{AppointmentID: a.ID, AmountCents: 100})
	assert.ErrorIs(t, err, apperr.ErrConflict, "one billing per appointment")
	assert.Len(t, f.billings.store, 1)
}

func TestCreateBilling_Rejections(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	patient := uuid.New()
	cancelled := f.visit(t, patient)
	require.NoError(t, f.svc.Cancel(ctx, patient, cancelled.ID))

	var verr *apperr.ValidationError
	tests := []struct {
		name  string
		b     *Billing
		check func(t *testing.T, err error)
	}{
		{"no amount", &Billing{AppointmentID: cancelled.ID}, func(t *testing.T, err error) { assert.ErrorAs(t, err, &verr) }},
		{"negative amount", &Billing{AppointmentID: cancelled.ID, AmountCents: -5}, func(t *testing.T, err error) { assert.ErrorAs(t, err, &verr) }},
		{"no appointment", &Billing{AmountCents: 100}, func(t *testing.T, err error) { assert.ErrorAs(t, err, &verr) }},
		{"unknown appointment", &Billing{AppointmentID: uuid.New(), AmountCents: 100}, func(t *testing.T, err error) { assert.ErrorIs(t, err, apperr.ErrNotFound) }},
		{"cancelled appointment", &Billing{AppointmentID: cancelled.ID, AmountCents: 100}, func(t *testing.T, err error) { assert.ErrorIs(t, err, apperr.ErrConflict) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, f.svc.CreateBilling(ctx, tt.b))
		})
	}
	assert.Empty(t, f.billings.store)
}

func TestPayBilling(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	a := f.visit(t, uuid.New())
	b := &Billing{AppointmentID: a.ID, AmountCents: 90000}
	require.NoError(t, f.svc.CreateBilling(ctx, b))

	got, err := f.svc.PayBilling(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, BillingPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(testNow.Now()))
	assert.Equal(t, BillingPaid, f.billings.store[b.ID].Status)

	_, err = f.svc.PayBilling(ctx, b.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict, "already paid")

	_, err = f.svc.PayBilling(ctx, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestBillingLists(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	patient := uuid.New()
	first := &Billing{AppointmentID: f.visit(t, patient).ID, AmountCents: 100}
	require.NoError(t, f.svc.CreateBilling(ctx, first))
	require.NoError(t, f.svc.CreateBilling(ctx, &Billing{AppointmentID: f.visit(t, uuid.New()).ID, AmountCents: 200}))
	_, err := f.svc.PayBilling(ctx, first.ID)
	require.NoError(t, err)

	items, total, err := f.svc.ListBillings(ctx, BillingPaid, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, first.ID, items[0].ID)

	_, total, err = f.svc.ListBillings(ctx, "", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, _, err = f.svc.ListBillings(ctx, "overdue", 20, 0)
	var verr *apperr.ValidationError
	assert.ErrorAs(t, err, &verr)

	own, err := f.svc.PatientBillings(ctx, patient)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, first.ID, own[0].ID)
}
