package medication

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

// Status of a record relative to a reference date.
type Status string

const (
	StatusActive  Status = "active"
	StatusPlanned Status = "not yet started"
	StatusEnded   Status = "ended"
)

// PatientMedication is one prescription in a patient's medication ledger.
// StartDate and EndDate are calendar dates at midnight UTC; a nil EndDate is
// open-ended.
type PatientMedication struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	MedicamentID   uuid.UUID  `db:"medicament_id" json:"medicament_id"`
	MedicamentName string     `db:"medicament_name" json:"medicament_name"`
	Dosage         string     `db:"dosage" json:"dosage"`
	Frequency      string     `db:"frequency" json:"frequency"`
	StartDate      time.Time  `db:"start_date" json:"start_date"`
	EndDate        *time.Time `db:"end_date" json:"end_date,omitempty"`
	DoctorID       *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	AppointmentID  *uuid.UUID `db:"appointment_id" json:"appointment_id,omitempty"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// IsActive reports whether d falls inside the record's validity window.
// Both ends are inclusive.
func (m *PatientMedication) IsActive(d time.Time) bool {
	return !m.StartDate.After(d) && (m.EndDate == nil || !m.EndDate.Before(d))
}

func (m *PatientMedication) StatusAt(d time.Time) Status {
	switch {
	case m.StartDate.After(d):
		return StatusPlanned
	case m.EndDate != nil && m.EndDate.Before(d):
		return StatusEnded
	default:
		return StatusActive
	}
}

// PrescribedBy reports whether doctorID wrote the record.
func (m *PatientMedication) PrescribedBy(doctorID uuid.UUID) bool {
	return m.DoctorID != nil && *m.DoctorID == doctorID
}

func (m *PatientMedication) Validate() error {
	if m.PatientID == uuid.Nil {
		return apperr.Invalid("patient_id", "is required")
	}
	if m.MedicamentID == uuid.Nil {
		return apperr.Invalid("medicament_id", "is required")
	}
	if m.Dosage == "" {
		return apperr.Invalid("dosage", "is required")
	}
	if m.Frequency == "" {
		return apperr.Invalid("frequency", "is required")
	}
	if m.StartDate.IsZero() {
		return apperr.Invalid("start_date", "is required")
	}
	if m.EndDate != nil && m.EndDate.Before(m.StartDate) {
		return apperr.Invalid("end_date", "must not be before start_date")
	}
	return nil
}

// Update carries the fields a prescriber may change on an existing record.
// Nil fields are left untouched; ClearEndDate makes the record open-ended.
type Update struct {
	Dosage       *string
	Frequency    *string
	EndDate      *time.Time
	ClearEndDate bool
	Notes        *string
}

func (u Update) apply(m *PatientMedication) {
	if u.Dosage != nil {
		m.Dosage = *u.Dosage
	}
	if u.Frequency != nil {
		m.Frequency = *u.Frequency
	}
	if u.ClearEndDate {
		m.EndDate = nil
	} else if u.EndDate != nil {
		m.EndDate = u.EndDate
	}
	if u.Notes != nil {
		m.Notes = u.Notes
	}
}

// Report groups a patient's ledger by status on AsOf.
type Report struct {
	PatientID uuid.UUID            `json:"patient_id"`
	AsOf      time.Time            `json:"as_of"`
	Active    []*PatientMedication `json:"active"`
	Planned   []*PatientMedication `json:"planned"`
	Ended     []*PatientMedication `json:"ended"`
}

func NewReport(patientID uuid.UUID, asOf time.Time, records []*PatientMedication) *Report {
	r := &Report{
		PatientID: patientID,
		AsOf:      asOf,
		Active:    []*PatientMedication{},
		Planned:   []*PatientMedication{},
		Ended:     []*PatientMedication{},
	}
	for _, rec := range records {
		switch rec.StatusAt(asOf) {
		case StatusActive:
			r.Active = append(r.Active, rec)
		case StatusPlanned:
			r.Planned = append(r.Planned, rec)
		default:
			r.Ended = append(r.Ended, rec)
		}
	}
	return r
}
