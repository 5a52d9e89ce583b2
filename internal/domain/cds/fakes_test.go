package cds

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/formulary"
	"github.com/clinic/clinic/internal/domain/medication"
	"github.com/clinic/clinic/internal/domain/scheduling"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/events"
)

// -- Knowledge base --

type fakeKB struct {
	meds         map[uuid.UUID]*formulary.Medicament
	interactions []formulary.Interaction
	direct       map[uuid.UUID]formulary.IDSet
	conditions   map[uuid.UUID]map[uuid.UUID][]*formulary.Contraindication
}

func newFakeKB() *fakeKB {
	return &fakeKB{
		meds:       make(map[uuid.UUID]*formulary.Medicament),
		direct:     make(map[uuid.UUID]formulary.IDSet),
		conditions: make(map[uuid.UUID]map[uuid.UUID][]*formulary.Contraindication),
	}
}

func (k *fakeKB) medicament(name string) *formulary.Medicament {
	m := &formulary.Medicament{ID: uuid.New(), Name: name}
	k.meds[m.ID] = m
	return m
}

func (k *fakeKB) interact(a, b *formulary.Medicament) {
	k.interactions = append(k.interactions, formulary.NewInteraction(a.ID, b.ID))
}

func (k *fakeKB) bar(patientID uuid.UUID, m *formulary.Medicament) {
	if k.direct[patientID] == nil {
		k.direct[patientID] = formulary.NewIDSet()
	}
	k.direct[patientID].Add(m.ID)
}

func (k *fakeKB) condition(patientID uuid.UUID, m *formulary.Medicament, name string) {
	if k.conditions[patientID] == nil {
		k.conditions[patientID] = make(map[uuid.UUID][]*formulary.Contraindication)
	}
	k.conditions[patientID][m.ID] = append(k.conditions[patientID][m.ID],
		&formulary.Contraindication{ID: uuid.New(), Name: name})
}

func (k *fakeKB) LookupMedicaments(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*formulary.Medicament, error) {
	out := make(map[uuid.UUID]*formulary.Medicament, len(ids))
	for _, id := range ids {
		m, ok := k.meds[id]
		if !ok {
			return nil, apperr.NotFound("medicament", id)
		}
		out[id] = m
	}
	return out, nil
}

func (k *fakeKB) InteractionsInvolving(_ context.Context, ids []uuid.UUID) ([]formulary.InteractionPartner, error) {
	want := formulary.NewIDSet(ids...)
	var out []formulary.InteractionPartner
	for _, in := range k.interactions {
		for _, end := range []uuid.UUID{in.FirstMedicamentID, in.SecondMedicamentID} {
			if want.Has(end) {
				p, _ := in.Partner(end)
				out = append(out, formulary.InteractionPartner{MedicamentID: end, PartnerID: p})
			}
		}
	}
	return out, nil
}

func (k *fakeKB) DirectMedicamentContraindications(_ context.Context, patientID uuid.UUID) (formulary.IDSet, error) {
	return k.direct[patientID], nil
}

func (k *fakeKB) ConditionConflicts(_ context.Context, patientID uuid.UUID, _ []uuid.UUID) (map[uuid.UUID][]*formulary.Contraindication, error) {
	return k.conditions[patientID], nil
}

// -- Ledger --

type fakeLedger struct {
	records    []*medication.PatientMedication
	failInsert int // fail the n-th insert (1-based); 0 never fails
	inserts    int
}

func (l *fakeLedger) take(patientID uuid.UUID, m *formulary.Medicament, start time.Time, end *time.Time) *medication.PatientMedication {
	rec := &medication.PatientMedication{
		ID: uuid.New(), PatientID: patientID, MedicamentID: m.ID, MedicamentName: m.Name,
		Dosage: "1 tab", Frequency: "daily", StartDate: start, EndDate: end,
	}
	l.records = append(l.records, rec)
	return rec
}

func (l *fakeLedger) ActiveMedicaments(_ context.Context, patientID uuid.UUID, asOf time.Time) ([]*medication.PatientMedication, error) {
	var out []*medication.PatientMedication
	for _, rec := range l.records {
		if rec.PatientID == patientID && rec.IsActive(asOf) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (l *fakeLedger) Insert(_ context.Context, m *medication.PatientMedication) error {
	l.inserts++
	if l.failInsert == l.inserts {
		return apperr.Storage("patient medication", errors.New("connection reset"))
	}
	if err := m.Validate(); err != nil {
		return err
	}
	m.ID = uuid.New()
	l.records = append(l.records, m)
	return nil
}

func (l *fakeLedger) ListByAppointment(_ context.Context, appointmentID uuid.UUID) ([]*medication.PatientMedication, error) {
	var out []*medication.PatientMedication
	for _, rec := range l.records {
		if rec.AppointmentID != nil && *rec.AppointmentID == appointmentID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// -- Visits --

type fakeVisits struct {
	store      map[uuid.UUID]*scheduling.Appointment
	failAppend bool
}

func (v *fakeVisits) visit(patientID, doctorID uuid.UUID) *scheduling.Appointment {
	a := &scheduling.Appointment{
		ID:         uuid.New(),
		PatientID:  patientID,
		DoctorID:   doctorID,
		DoctorName: "Petrova Anna Sergeevna",
		Status:     scheduling.StatusScheduled,
	}
	v.store[a.ID] = a
	return a
}

func (v *fakeVisits) DoctorVisit(_ context.Context, id, doctorID uuid.UUID) (*scheduling.Appointment, error) {
	a, ok := v.store[id]
	if !ok {
		return nil, apperr.NotFound("appointment", id)
	}
	if a.DoctorID != doctorID {
		return nil, apperr.Forbidden("appointment %s belongs to another doctor", id)
	}
	cp := *a
	return &cp, nil
}

func (v *fakeVisits) AppendLog(_ context.Context, id uuid.UUID, entries ...string) error {
	if v.failAppend {
		return apperr.Storage("appointment", errors.New("deadlock detected"))
	}
	a, ok := v.store[id]
	if !ok {
		return apperr.NotFound("appointment", id)
	}
	for _, e := range entries {
		if e == "" {
			continue
		}
		info := scheduling.AppendEntry(a.Information, e)
		a.Information = &info
	}
	return nil
}

// -- Unit of work --

// snapshotUnitOfWork restores the ledger and visit logs when fn fails.
type snapshotUnitOfWork struct {
	ledger    *fakeLedger
	visits    *fakeVisits
	commits   int
	rollbacks int
}

func (u *snapshotUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	records := append([]*medication.PatientMedication(nil), u.ledger.records...)
	info := make(map[uuid.UUID]*string, len(u.visits.store))
	for id, a := range u.visits.store {
		info[id] = a.Information
	}
	if err := fn(ctx); err != nil {
		u.ledger.records = records
		for id, a := range u.visits.store {
			a.Information = info[id]
		}
		u.rollbacks++
		return err
	}
	u.commits++
	return nil
}

// -- Events --

type capturePublisher struct {
	events []events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, evt events.Event) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

// -- Fixture --

var (
	today     = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	yesterday = today.AddDate(0, 0, -1)
	testClock = clock.Fixed(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))
)

type fixture struct {
	kb        *fakeKB
	ledger    *fakeLedger
	visits    *fakeVisits
	uow       *snapshotUnitOfWork
	pub       *capturePublisher
	committer *Committer
	evaluator *Evaluator

	patient uuid.UUID
	doctor  uuid.UUID
	visit   *scheduling.Appointment
}

func newFixture() *fixture {
	f := &fixture{
		kb:      newFakeKB(),
		ledger:  &fakeLedger{},
		visits:  &fakeVisits{store: make(map[uuid.UUID]*scheduling.Appointment)},
		pub:     &capturePublisher{},
		patient: uuid.New(),
		doctor:  uuid.New(),
	}
	f.uow = &snapshotUnitOfWork{ledger: f.ledger, visits: f.visits}
	f.evaluator = NewEvaluator(f.kb, f.ledger)
	f.committer = NewCommitter(f.evaluator, f.ledger, f.visits, f.uow, f.pub, testClock)
	f.visit = f.visits.visit(f.patient, f.doctor)
	return f
}

func candidate(m *formulary.Medicament) Candidate {
	return Candidate{MedicamentID: m.ID, Dosage: "5 mg", Frequency: "twice daily", StartDate: today}
}

func (f *fixture) request(cs ...Candidate) Request {
	return Request{AppointmentID: f.visit.ID, DoctorID: f.doctor, Candidates: cs}
}

func ptr[T any](v T) *T { return &v }
