package cds

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/formulary"
	"github.com/clinic/clinic/internal/domain/medication"
	"github.com/clinic/clinic/internal/platform/apperr"
)

// Candidate is one medicament a doctor proposes to prescribe.
type Candidate struct {
	MedicamentID uuid.UUID
	Dosage       string
	Frequency    string
	StartDate    time.Time
	EndDate      *time.Time
	Notes        *string
}

func (c Candidate) validate(i int) error {
	field := func(name string) string { return fmt.Sprintf("medicaments[%d].%s", i, name) }
	switch {
	case c.MedicamentID == uuid.Nil:
		return apperr.Invalid(field("medicament_id"), "is required")
	case strings.TrimSpace(c.Dosage) == "":
		return apperr.Invalid(field("dosage"), "is required")
	case strings.TrimSpace(c.Frequency) == "":
		return apperr.Invalid(field("frequency"), "is required")
	case c.StartDate.IsZero():
		return apperr.Invalid(field("start_date"), "is required")
	case c.EndDate != nil && c.EndDate.Before(c.StartDate):
		return apperr.Invalid(field("end_date"), "must not be before start_date")
	}
	return nil
}

// Verdict is the outcome for the candidate at Index in the batch. A verdict
// with no reasons is admitted.
type Verdict struct {
	Index      int
	Candidate  Candidate
	Medicament *formulary.Medicament
	Reasons    []string
}

func (v Verdict) Admitted() bool { return len(v.Reasons) == 0 }

// Evaluation holds one verdict per candidate, in input order.
type Evaluation struct {
	Verdicts []Verdict
}

func (e *Evaluation) Admitted() []Verdict {
	var out []Verdict
	for _, v := range e.Verdicts {
		if v.Admitted() {
			out = append(out, v)
		}
	}
	return out
}

func (e *Evaluation) Conflicts() []Conflict {
	var out []Conflict
	for _, v := range e.Verdicts {
		if !v.Admitted() {
			out = append(out, Conflict{
				MedicamentID:   v.Medicament.ID,
				MedicamentName: v.Medicament.Name,
				Reasons:        v.Reasons,
			})
		}
	}
	return out
}

// Conflict is a candidate that was not prescribed and why.
type Conflict struct {
	MedicamentID   uuid.UUID `json:"medicament_id"`
	MedicamentName string    `json:"medicament_name"`
	Reasons        []string  `json:"reasons"`
}

func (c Conflict) String() string {
	return c.MedicamentName + ": " + strings.Join(c.Reasons, "; ")
}

// Report is the result of a committed prescription batch.
type Report struct {
	AppointmentID uuid.UUID                       `json:"appointment_id"`
	PatientID     uuid.UUID                       `json:"patient_id"`
	Admitted      []*medication.PatientMedication `json:"admitted"`
	Conflicts     []Conflict                      `json:"conflicts"`
	Warning       string                          `json:"warning,omitempty"`
	Summary       string                          `json:"summary"`
}

// NoneAdmissibleError is returned when every candidate in a batch
// conflicts. Nothing is written.
type NoneAdmissibleError struct {
	Conflicts []Conflict `json:"conflicts"`
}

func (e *NoneAdmissibleError) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return "no medicament can be prescribed: " + strings.Join(parts, " | ")
}

func (e *NoneAdmissibleError) Unwrap() error { return apperr.ErrUnprocessable }
