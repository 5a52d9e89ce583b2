package formulary

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
)

// -- Mock Medicament Repository --

type prescription struct {
	start time.Time
	end   *time.Time
}

type mockMedicamentRepo struct {
	store         map[uuid.UUID]*Medicament
	retired       map[uuid.UUID]*Medicament
	prescriptions map[uuid.UUID][]prescription
}

func newMockMedicamentRepo() *mockMedicamentRepo {
	return &mockMedicamentRepo{
		store:         make(map[uuid.UUID]*Medicament),
		retired:       make(map[uuid.UUID]*Medicament),
		prescriptions: make(map[uuid.UUID][]prescription),
	}
}

func (m *mockMedicamentRepo) Create(_ context.Context, med *Medicament) error {
	for _, existing := range m.store {
		if strings.EqualFold(existing.Name, med.Name) {
			return apperr.Conflict("medicament %q already exists", med.Name)
		}
	}
	med.ID = uuid.New()
	med.CreatedAt = time.Now()
	m.store[med.ID] = med
	return nil
}

func (m *mockMedicamentRepo) GetByID(_ context.Context, id uuid.UUID) (*Medicament, error) {
	med, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("medicament", id)
	}
	return med, nil
}

func (m *mockMedicamentRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*Medicament, error) {
	var out []*Medicament
	for _, id := range ids {
		if med, ok := m.store[id]; ok {
			out = append(out, med)
		}
	}
	return out, nil
}

func (m *mockMedicamentRepo) GetByName(_ context.Context, name string) (*Medicament, error) {
	for _, med := range m.store {
		if strings.EqualFold(med.Name, name) {
			return med, nil
		}
	}
	return nil, apperr.NotFound("medicament", name)
}

func (m *mockMedicamentRepo) Retire(_ context.Context, id uuid.UUID) error {
	med, ok := m.store[id]
	if !ok {
		return apperr.NotFound("medicament", id)
	}
	delete(m.store, id)
	m.retired[id] = med
	return nil
}

func (m *mockMedicamentRepo) List(_ context.Context, search string, limit, offset int) ([]*Medicament, int, error) {
	var out []*Medicament
	for _, med := range m.store {
		if search == "" || strings.Contains(strings.ToLower(med.Name), strings.ToLower(search)) {
			out = append(out, med)
		}
	}
	return out, len(out), nil
}

func (m *mockMedicamentRepo) OpenPrescriptionCount(_ context.Context, id uuid.UUID, asOf time.Time) (int, error) {
	n := 0
	for _, p := range m.prescriptions[id] {
		if p.end == nil || !p.end.Before(asOf) {
			n++
		}
	}
	return n, nil
}

// -- Mock Contraindication Repository --

type mockContraindicationRepo struct {
	store map[uuid.UUID]*Contraindication
}

func newMockContraindicationRepo() *mockContraindicationRepo {
	return &mockContraindicationRepo{store: make(map[uuid.UUID]*Contraindication)}
}

func (m *mockContraindicationRepo) Create(_ context.Context, c *Contraindication) error {
	for _, existing := range m.store {
		if strings.EqualFold(existing.Name, c.Name) {
			return apperr.Conflict("contraindication %q already exists", c.Name)
		}
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	m.store[c.ID] = c
	return nil
}

func (m *mockContraindicationRepo) GetByID(_ context.Context, id uuid.UUID) (*Contraindication, error) {
	c, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("contraindication", id)
	}
	return c, nil
}

func (m *mockContraindicationRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]*Contraindication, error) {
	var out []*Contraindication
	for _, id := range ids {
		if c, ok := m.store[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockContraindicationRepo) GetByName(_ context.Context, name string) (*Contraindication, error) {
	for _, c := range m.store {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, apperr.NotFound("contraindication", name)
}

func (m *mockContraindicationRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return apperr.NotFound("contraindication", id)
	}
	delete(m.store, id)
	return nil
}

func (m *mockContraindicationRepo) List(_ context.Context, _ string, _, _ int) ([]*Contraindication, int, error) {
	var out []*Contraindication
	for _, c := range m.store {
		out = append(out, c)
	}
	return out, len(out), nil
}

// -- Mock Interaction Repository --

type mockInteractionRepo struct {
	store        map[[2]uuid.UUID]*Interaction
	involvingHit int
}

func newMockInteractionRepo() *mockInteractionRepo {
	return &mockInteractionRepo{store: make(map[[2]uuid.UUID]*Interaction)}
}

func (m *mockInteractionRepo) Create(_ context.Context, in *Interaction) (bool, error) {
	key := [2]uuid.UUID{in.FirstMedicamentID, in.SecondMedicamentID}
	if existing, ok := m.store[key]; ok {
		*in = *existing
		return false, nil
	}
	in.ID = uuid.New()
	in.CreatedAt = time.Now()
	stored := *in
	m.store[key] = &stored
	return true, nil
}

func (m *mockInteractionRepo) Delete(_ context.Context, a, b uuid.UUID) error {
	first, second := CanonicalPair(a, b)
	key := [2]uuid.UUID{first, second}
	if _, ok := m.store[key]; !ok {
		return apperr.NotFound("medicament interaction", first.String()+"/"+second.String())
	}
	delete(m.store, key)
	return nil
}

func (m *mockInteractionRepo) ListInvolving(_ context.Context, ids []uuid.UUID) ([]*Interaction, error) {
	m.involvingHit++
	want := NewIDSet(ids...)
	var out []*Interaction
	for _, in := range m.store {
		if want.Has(in.FirstMedicamentID) || want.Has(in.SecondMedicamentID) {
			out = append(out, in)
		}
	}
	return out, nil
}

func (m *mockInteractionRepo) List(_ context.Context, _, _ int) ([]*Interaction, int, error) {
	var out []*Interaction
	for _, in := range m.store {
		out = append(out, in)
	}
	return out, len(out), nil
}

// -- Mock Link Repository --

type mockLinkRepo struct {
	links map[MedicamentContraindication]bool
}

func newMockLinkRepo() *mockLinkRepo {
	return &mockLinkRepo{links: make(map[MedicamentContraindication]bool)}
}

func (m *mockLinkRepo) Link(_ context.Context, medicamentID, contraindicationID uuid.UUID) error {
	m.links[MedicamentContraindication{MedicamentID: medicamentID, ContraindicationID: contraindicationID}] = true
	return nil
}

func (m *mockLinkRepo) Unlink(_ context.Context, medicamentID, contraindicationID uuid.UUID) error {
	key := MedicamentContraindication{MedicamentID: medicamentID, ContraindicationID: contraindicationID}
	if !m.links[key] {
		return apperr.NotFound("medicament contraindication", contraindicationID)
	}
	delete(m.links, key)
	return nil
}

func (m *mockLinkRepo) ListByMedicaments(_ context.Context, ids []uuid.UUID) ([]MedicamentContraindication, error) {
	want := NewIDSet(ids...)
	var out []MedicamentContraindication
	for l := range m.links {
		if want.Has(l.MedicamentID) {
			out = append(out, l)
		}
	}
	return out, nil
}

// -- Mock Patient Contraindication Repository --

type mockPatientRepo struct {
	medicaments map[uuid.UUID][]uuid.UUID
	conditions  map[uuid.UUID][]uuid.UUID
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{
		medicaments: make(map[uuid.UUID][]uuid.UUID),
		conditions:  make(map[uuid.UUID][]uuid.UUID),
	}
}

func remove(ids []uuid.UUID, id uuid.UUID) ([]uuid.UUID, bool) {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...), true
		}
	}
	return ids, false
}

func (m *mockPatientRepo) AddMedicament(_ context.Context, patientID, medicamentID uuid.UUID) error {
	m.medicaments[patientID] = append(m.medicaments[patientID], medicamentID)
	return nil
}

func (m *mockPatientRepo) RemoveMedicament(_ context.Context, patientID, medicamentID uuid.UUID) error {
	var ok bool
	if m.medicaments[patientID], ok = remove(m.medicaments[patientID], medicamentID); !ok {
		return apperr.NotFound("patient medicament contraindication", medicamentID)
	}
	return nil
}

func (m *mockPatientRepo) ListMedicaments(_ context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	return m.medicaments[patientID], nil
}

func (m *mockPatientRepo) AddCondition(_ context.Context, patientID, contraindicationID uuid.UUID) error {
	m.conditions[patientID] = append(m.conditions[patientID], contraindicationID)
	return nil
}

func (m *mockPatientRepo) RemoveCondition(_ context.Context, patientID, contraindicationID uuid.UUID) error {
	var ok bool
	if m.conditions[patientID], ok = remove(m.conditions[patientID], contraindicationID); !ok {
		return apperr.NotFound("patient contraindication", contraindicationID)
	}
	return nil
}

func (m *mockPatientRepo) ListConditions(_ context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	return m.conditions[patientID], nil
}

// -- Unit of work --

type fakeUnitOfWork struct {
	commits   int
	rollbacks int
}

func (u *fakeUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	tracked, run := db.TrackCommit(ctx)
	if err := fn(tracked); err != nil {
		u.rollbacks++
		return err
	}
	u.commits++
	run(ctx)
	return nil
}

type fixture struct {
	svc          *Service
	meds         *mockMedicamentRepo
	contras      *mockContraindicationRepo
	interactions *mockInteractionRepo
	links        *mockLinkRepo
	patients     *mockPatientRepo
	uow          *fakeUnitOfWork
}

func newFixture() *fixture {
	f := &fixture{
		meds:         newMockMedicamentRepo(),
		contras:      newMockContraindicationRepo(),
		interactions: newMockInteractionRepo(),
		links:        newMockLinkRepo(),
		patients:     newMockPatientRepo(),
		uow:          &fakeUnitOfWork{},
	}
	now := clock.Fixed(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	f.svc = NewService(f.meds, f.contras, f.interactions, f.links, f.patients, f.uow, now)
	return f
}
