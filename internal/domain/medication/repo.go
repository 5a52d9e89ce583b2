package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, m *PatientMedication) error
	GetByID(ctx context.Context, id uuid.UUID) (*PatientMedication, error)
	Update(ctx context.Context, m *PatientMedication) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*PatientMedication, error)
	// ListActiveByPatient returns the records whose window contains asOf.
	ListActiveByPatient(ctx context.Context, patientID uuid.UUID, asOf time.Time) ([]*PatientMedication, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*PatientMedication, int, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*PatientMedication, error)
}
