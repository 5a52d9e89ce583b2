package cds

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/domain/medication"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/events"
)

// EventPrescriptionCommitted is published after a batch is stored.
const EventPrescriptionCommitted = "prescription.committed"

const eventSource = "clinic.cds"

// Ledger is the part of the medication ledger the committer writes to.
type Ledger interface {
	ActiveLedger
	Insert(ctx context.Context, m *medication.PatientMedication) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*medication.PatientMedication, error)
}

// VisitStore resolves the visit a batch is written for and appends to its
// information log.
type VisitStore interface {
	DoctorVisit(ctx context.Context, id, doctorID uuid.UUID) (*scheduling.Appointment, error)
	AppendLog(ctx context.Context, id uuid.UUID, entries ...string) error
}

// Request is a prescription batch submitted by a doctor for one visit.
type Request struct {
	AppointmentID uuid.UUID
	DoctorID      uuid.UUID
	Candidates    []Candidate
}

// Committer evaluates a batch, stores the admitted prescriptions and
// records the outcome on the visit.
type Committer struct {
	evaluator *Evaluator
	ledger    Ledger
	visits    VisitStore
	uow       db.UnitOfWork
	events    events.Publisher
	clock     clock.Clock
}

func NewCommitter(evaluator *Evaluator, ledger Ledger, visits VisitStore, uow db.UnitOfWork, pub events.Publisher, clk clock.Clock) *Committer {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Committer{evaluator: evaluator, ledger: ledger, visits: visits, uow: uow, events: pub, clock: clk}
}

// Check evaluates a batch for the doctor's visit without writing anything.
func (c *Committer) Check(ctx context.Context, req Request) (*Evaluation, error) {
	visit, err := c.visits.DoctorVisit(ctx, req.AppointmentID, req.DoctorID)
	if err != nil {
		return nil, err
	}
	today := clock.Today(c.clock)
	return c.evaluator.Evaluate(ctx, visit.PatientID, today, withDefaults(req.Candidates, today))
}

// Commit runs the batch. When no candidate is admissible it returns a
// *NoneAdmissibleError and writes nothing. Otherwise the admitted records
// and the visit log entry are written in one transaction.
func (c *Committer) Commit(ctx context.Context, req Request) (*Report, error) {
	visit, err := c.visits.DoctorVisit(ctx, req.AppointmentID, req.DoctorID)
	if err != nil {
		return nil, err
	}
	today := clock.Today(c.clock)

	eval, err := c.evaluator.Evaluate(ctx, visit.PatientID, today, withDefaults(req.Candidates, today))
	if err != nil {
		return nil, err
	}
	admitted := eval.Admitted()
	conflicts := eval.Conflicts()
	if len(admitted) == 0 {
		return nil, &NoneAdmissibleError{Conflicts: conflicts}
	}

	doctorID := req.DoctorID
	appointmentID := visit.ID
	records := make([]*medication.PatientMedication, 0, len(admitted))
	err = c.uow.Do(ctx, func(ctx context.Context) error {
		for _, v := range admitted {
			rec := &medication.PatientMedication{
				PatientID:      visit.PatientID,
				MedicamentID:   v.Medicament.ID,
				MedicamentName: v.Medicament.Name,
				Dosage:         strings.TrimSpace(v.Candidate.Dosage),
				Frequency:      strings.TrimSpace(v.Candidate.Frequency),
				StartDate:      v.Candidate.StartDate,
				EndDate:        v.Candidate.EndDate,
				DoctorID:       &doctorID,
				AppointmentID:  &appointmentID,
				Notes:          v.Candidate.Notes,
			}
			if err := c.ledger.Insert(ctx, rec); err != nil {
				return fmt.Errorf("insert %s: %w", v.Medicament.Name, err)
			}
			records = append(records, rec)
		}
		return c.visits.AppendLog(ctx, visit.ID, auditLine(today, prescriber(visit), records), warningBlock(conflicts))
	})
	if err != nil {
		return nil, fmt.Errorf("commit prescriptions for appointment %s: %w", visit.ID, err)
	}

	report := &Report{
		AppointmentID: visit.ID,
		PatientID:     visit.PatientID,
		Admitted:      records,
		Conflicts:     conflicts,
		Summary:       fmt.Sprintf("%d of %d medicament(s) prescribed", len(records), len(eval.Verdicts)),
	}
	if report.Conflicts == nil {
		report.Conflicts = []Conflict{}
	}
	if len(conflicts) > 0 {
		names := make([]string, len(conflicts))
		for i, cf := range conflicts {
			names[i] = cf.MedicamentName
		}
		report.Warning = fmt.Sprintf("%d medicament(s) not prescribed due to contraindications: %s",
			len(conflicts), strings.Join(names, ", "))
	}

	zerolog.Ctx(ctx).Info().
		Str("patient_id", visit.PatientID.String()).
		Str("appointment_id", visit.ID.String()).
		Str("doctor_id", doctorID.String()).
		Int("admitted", len(records)).
		Int("conflicted", len(conflicts)).
		Msg("prescription batch committed")

	c.publish(ctx, report, doctorID)
	return report, nil
}

// VisitMedicaments lists the prescriptions written at the doctor's visit.
func (c *Committer) VisitMedicaments(ctx context.Context, appointmentID, doctorID uuid.UUID) ([]*medication.PatientMedication, error) {
	if _, err := c.visits.DoctorVisit(ctx, appointmentID, doctorID); err != nil {
		return nil, err
	}
	return c.ledger.ListByAppointment(ctx, appointmentID)
}

type committedPayload struct {
	AppointmentID uuid.UUID   `json:"appointment_id"`
	PatientID     uuid.UUID   `json:"patient_id"`
	DoctorID      uuid.UUID   `json:"doctor_id"`
	RecordIDs     []uuid.UUID `json:"record_ids"`
	MedicamentIDs []uuid.UUID `json:"medicament_ids"`
	Conflicted    []uuid.UUID `json:"conflicted_medicament_ids"`
}

func (c *Committer) publish(ctx context.Context, r *Report, doctorID uuid.UUID) {
	p := committedPayload{AppointmentID: r.AppointmentID, PatientID: r.PatientID, DoctorID: doctorID}
	for _, rec := range r.Admitted {
		p.RecordIDs = append(p.RecordIDs, rec.ID)
		p.MedicamentIDs = append(p.MedicamentIDs, rec.MedicamentID)
	}
	for _, cf := range r.Conflicts {
		p.Conflicted = append(p.Conflicted, cf.MedicamentID)
	}
	evt, err := events.New(EventPrescriptionCommitted, eventSource, r.PatientID.String(), p)
	if err == nil {
		err = c.events.Publish(ctx, evt)
	}
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("appointment_id", r.AppointmentID.String()).
			Msg("publish prescription event failed")
	}
}

// withDefaults starts undated candidates today.
func withDefaults(candidates []Candidate, today time.Time) []Candidate {
	out := make([]Candidate, len(candidates))
	for i, c := range candidates {
		if c.StartDate.IsZero() {
			c.StartDate = today
		}
		out[i] = c
	}
	return out
}

// prescriber names the visit's doctor, or their id when the name is unknown.
func prescriber(visit *scheduling.Appointment) string {
	if name := strings.TrimSpace(visit.DoctorName); name != "" {
		return name
	}
	return visit.DoctorID.String()
}

func auditLine(today time.Time, doctor string, records []*medication.PatientMedication) string {
	items := make([]string, len(records))
	for i, rec := range records {
		items[i] = fmt.Sprintf("%s (%s, %s)", rec.MedicamentName, rec.Dosage, rec.Frequency)
	}
	return fmt.Sprintf("%s: prescribed by doctor %s: %s.",
		today.Format(time.DateOnly), doctor, strings.Join(items, ", "))
}

func warningBlock(conflicts []Conflict) string {
	if len(conflicts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Not prescribed due to contraindications:")
	for _, cf := range conflicts {
		b.WriteString("\n- ")
		b.WriteString(cf.String())
	}
	return b.String()
}
