package medication

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/clock"
)

// Service is the patient medication ledger.
type Service struct {
	repo  Repository
	clock clock.Clock
}

func NewService(repo Repository, clk clock.Clock) *Service {
	return &Service{repo: repo, clock: clk}
}

// Today is the clinic's current calendar day.
func (s *Service) Today() time.Time {
	return clock.Today(s.clock)
}

// ActiveMedicaments returns the patient's records active on asOf.
func (s *Service) ActiveMedicaments(ctx context.Context, patientID uuid.UUID, asOf time.Time) ([]*PatientMedication, error) {
	return s.repo.ListActiveByPatient(ctx, patientID, clock.Date(asOf))
}

// AllMedicaments returns the patient's full history.
func (s *Service) AllMedicaments(ctx context.Context, patientID uuid.UUID) ([]*PatientMedication, error) {
	return s.repo.ListByPatient(ctx, patientID)
}

func (s *Service) Insert(ctx context.Context, m *PatientMedication) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, m)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PatientMedication, error) {
	return s.repo.GetByID(ctx, id)
}

// Delete removes a record on behalf of the doctor who prescribed it.
func (s *Service) Delete(ctx context.Context, id, doctorID uuid.UUID) error {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !m.PrescribedBy(doctorID) {
		return apperr.Forbidden("prescription %s was written by another doctor", id)
	}
	return s.repo.Delete(ctx, id)
}

// Update changes dosage, frequency, end date or notes of the doctor's own
// record.
func (s *Service) Update(ctx context.Context, id, doctorID uuid.UUID, u Update) (*PatientMedication, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.PrescribedBy(doctorID) {
		return nil, apperr.Forbidden("prescription %s was written by another doctor", id)
	}
	u.apply(m)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*PatientMedication, int, error) {
	return s.repo.ListByDoctor(ctx, doctorID, limit, offset)
}

func (s *Service) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*PatientMedication, error) {
	return s.repo.ListByAppointment(ctx, appointmentID)
}

// Report groups the patient's history into active, planned and ended
// records as of today.
func (s *Service) Report(ctx context.Context, patientID uuid.UUID) (*Report, error) {
	records, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return NewReport(patientID, s.Today(), records), nil
}
