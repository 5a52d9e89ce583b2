package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type ScheduleRepository interface {
	Create(ctx context.Context, s *Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	Update(ctx context.Context, s *Schedule) error
	SetAvailable(ctx context.Context, id uuid.UUID, available bool) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByDoctor returns the doctor's slots dated on or after from.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]*Schedule, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	// AppendInformation adds entry to the information log in one statement.
	AppendInformation(ctx context.Context, id uuid.UUID, entry string) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string, limit, offset int) ([]*Appointment, int, error)
	// List pages through every doctor's appointments, latest slot first.
	List(ctx context.Context, status string, limit, offset int) ([]*Appointment, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// IsBooked reports whether the slot has a booking that is not cancelled.
	IsBooked(ctx context.Context, scheduleID uuid.UUID) (bool, error)
}

type BillingRepository interface {
	Create(ctx context.Context, b *Billing) error
	GetByID(ctx context.Context, id uuid.UUID) (*Billing, error)
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Billing, error)
	// MarkPaid settles a pending billing. A billing that is not pending is a conflict.
	MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error
	List(ctx context.Context, status string, limit, offset int) ([]*Billing, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Billing, error)
}
