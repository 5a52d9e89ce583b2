package scheduling

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
)

type Service struct {
	schedules    ScheduleRepository
	appointments AppointmentRepository
	billings     BillingRepository
	uow          db.UnitOfWork
	clock        clock.Clock
}

func NewService(sched ScheduleRepository, appt AppointmentRepository, bills BillingRepository, uow db.UnitOfWork, clk clock.Clock) *Service {
	return &Service{schedules: sched, appointments: appt, billings: bills, uow: uow, clock: clk}
}

// -- Schedule --

func (s *Service) CreateSchedule(ctx context.Context, sched *Schedule) error {
	if err := sched.Validate(); err != nil {
		return err
	}
	return s.schedules.Create(ctx, sched)
}

// CreateScheduleBatch splits w into equal slots and stores them together.
func (s *Service) CreateScheduleBatch(ctx context.Context, w Window) ([]*Schedule, error) {
	if w.DoctorID == uuid.Nil {
		return nil, apperr.Invalid("doctor_id", "is required")
	}
	if w.OfficeNumber == "" {
		return nil, apperr.Invalid("office_number", "is required")
	}
	slots, err := w.Split()
	if err != nil {
		return nil, err
	}
	err = s.uow.Do(ctx, func(ctx context.Context) error {
		for _, slot := range slots {
			if err := s.schedules.Create(ctx, slot); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slots, nil
}

func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	return s.schedules.GetByID(ctx, id)
}

func (s *Service) UpdateSchedule(ctx context.Context, sched *Schedule) error {
	existing, err := s.schedules.GetByID(ctx, sched.ID)
	if err != nil {
		return err
	}
	sched.DoctorID = existing.DoctorID
	if err := sched.Validate(); err != nil {
		return err
	}
	return s.schedules.Update(ctx, sched)
}

func (s *Service) SetAvailable(ctx context.Context, id uuid.UUID, available bool) error {
	return s.schedules.SetAvailable(ctx, id, available)
}

func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	return s.schedules.Delete(ctx, id)
}

// DoctorSchedule lists the doctor's slots from today on.
func (s *Service) DoctorSchedule(ctx context.Context, doctorID uuid.UUID) ([]*Schedule, error) {
	return s.schedules.ListByDoctor(ctx, doctorID, clock.Today(s.clock))
}

// -- Appointments --

// Book reserves an available future slot for the patient.
func (s *Service) Book(ctx context.Context, patientID, scheduleID uuid.UUID) (*Appointment, error) {
	var appt *Appointment
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		slot, err := s.schedules.GetByID(ctx, scheduleID)
		if err != nil {
			return err
		}
		if !slot.IsAvailable {
			return apperr.Conflict("schedule %s is not available", scheduleID)
		}
		if s.inPast(slot) {
			return apperr.Invalid("schedule_id", "slot is in the past")
		}
		booked, err := s.appointments.IsBooked(ctx, scheduleID)
		if err != nil {
			return err
		}
		if booked {
			return apperr.Conflict("schedule %s is already booked", scheduleID)
		}
		appt = &Appointment{PatientID: patientID, ScheduleID: scheduleID, Status: StatusScheduled}
		if err := s.appointments.Create(ctx, appt); err != nil {
			return err
		}
		appt.DoctorID = slot.DoctorID
		appt.OfficeNumber = slot.OfficeNumber
		appt.Date = slot.Date
		appt.StartTime = slot.StartTime
		appt.EndTime = slot.EndTime
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) inPast(slot *Schedule) bool {
	now := s.clock.Now()
	today := clock.Date(now)
	if slot.Date.Before(today) {
		return true
	}
	return slot.Date.Equal(today) && slot.StartsAt() < now.Hour()*60+now.Minute()
}

// Cancel cancels the patient's own scheduled appointment.
func (s *Service) Cancel(ctx context.Context, patientID, appointmentID uuid.UUID) error {
	a, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return err
	}
	if a.PatientID != patientID {
		return apperr.Forbidden("appointment %s belongs to another patient", appointmentID)
	}
	if a.Status != StatusScheduled {
		return apperr.Conflict("appointment %s is %s", appointmentID, a.Status)
	}
	return s.appointments.UpdateStatus(ctx, appointmentID, StatusCancelled)
}

func (s *Service) PatientAppointments(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	return s.appointments.ListByPatient(ctx, patientID)
}

func (s *Service) DoctorAppointments(ctx context.Context, doctorID uuid.UUID, status string, limit, offset int) ([]*Appointment, int, error) {
	if status != "" && !validStatuses[status] {
		return nil, 0, apperr.Invalid("status", "must be one of scheduled, completed, cancelled")
	}
	return s.appointments.ListByDoctor(ctx, doctorID, status, limit, offset)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appointments.GetByID(ctx, id)
}

// ListAppointments pages through the appointments of every doctor.
func (s *Service) ListAppointments(ctx context.Context, status string, limit, offset int) ([]*Appointment, int, error) {
	if status != "" && !validStatuses[status] {
		return nil, 0, apperr.Invalid("status", "must be one of scheduled, completed, cancelled")
	}
	return s.appointments.List(ctx, status, limit, offset)
}

// DeleteAppointment removes an appointment and its pending billing. A paid
// billing keeps the appointment in place.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	return s.uow.Do(ctx, func(ctx context.Context) error {
		if _, err := s.appointments.GetByID(ctx, id); err != nil {
			return err
		}
		b, err := s.billings.GetByAppointment(ctx, id)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
		case err != nil:
			return err
		case b.Status == BillingPaid:
			return apperr.Conflict("appointment %s has a paid billing", id)
		}
		return s.appointments.Delete(ctx, id)
	})
}

// DoctorVisit returns the appointment when doctorID owns its slot.
func (s *Service) DoctorVisit(ctx context.Context, id, doctorID uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != doctorID {
		return nil, apperr.Forbidden("appointment %s belongs to another doctor", id)
	}
	return a, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id, doctorID uuid.UUID, status string) (*Appointment, error) {
	if !validStatuses[status] {
		return nil, apperr.Invalid("status", "must be one of scheduled, completed, cancelled")
	}
	a, err := s.DoctorVisit(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	if err := s.appointments.UpdateStatus(ctx, id, status); err != nil {
		return nil, err
	}
	a.Status = status
	return a, nil
}

// AddInformation appends a doctor's note to their own visit.
func (s *Service) AddInformation(ctx context.Context, id, doctorID uuid.UUID, text string) (*Appointment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Invalid("information", "is required")
	}
	a, err := s.DoctorVisit(ctx, id, doctorID)
	if err != nil {
		return nil, err
	}
	if err := s.AppendLog(ctx, id, text); err != nil {
		return nil, err
	}
	info := AppendEntry(a.Information, text)
	a.Information = &info
	return a, nil
}

// AppendLog appends entries to the visit's information log without an
// ownership check. It joins a transaction already present in ctx.
func (s *Service) AppendLog(ctx context.Context, id uuid.UUID, entries ...string) error {
	var nonEmpty []string
	for _, e := range entries {
		if e != "" {
			nonEmpty = append(nonEmpty, e)
		}
	}
	if len(nonEmpty) == 0 {
		return errors.New("append log: no entries")
	}
	return s.appointments.AppendInformation(ctx, id, strings.Join(nonEmpty, InformationSeparator))
}

// -- Billing --

// CreateBilling charges a live appointment. Each appointment is billed once.
func (s *Service) CreateBilling(ctx context.Context, b *Billing) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return s.uow.Do(ctx, func(ctx context.Context) error {
		a, err := s.appointments.GetByID(ctx, b.AppointmentID)
		if err != nil {
			return err
		}
		if a.Status == StatusCancelled {
			return apperr.Conflict("appointment %s is cancelled", a.ID)
		}
		switch _, err := s.billings.GetByAppointment(ctx, a.ID); {
		case err == nil:
			return apperr.Conflict("appointment %s is already billed", a.ID)
		case !errors.Is(err, apperr.ErrNotFound):
			return err
		}
		b.PatientID = a.PatientID
		b.Status = BillingPending
		b.PaidAt = nil
		return s.billings.Create(ctx, b)
	})
}

func (s *Service) PayBilling(ctx context.Context, id uuid.UUID) (*Billing, error) {
	var b *Billing
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		var err error
		if b, err = s.billings.GetByID(ctx, id); err != nil {
			return err
		}
		if b.Status == BillingPaid {
			return apperr.Conflict("billing %s is already paid", id)
		}
		now := s.clock.Now()
		if err := s.billings.MarkPaid(ctx, id, now); err != nil {
			return err
		}
		b.Status = BillingPaid
		b.PaidAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Service) ListBillings(ctx context.Context, status string, limit, offset int) ([]*Billing, int, error) {
	if status != "" && !validBillingStatuses[status] {
		return nil, 0, apperr.Invalid("status", "must be one of pending, paid")
	}
	return s.billings.List(ctx, status, limit, offset)
}

func (s *Service) PatientBillings(ctx context.Context, patientID uuid.UUID) ([]*Billing, error) {
	return s.billings.ListByPatient(ctx, patientID)
}
