package identity

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/clock"
)

// -- Mock Account Repository --

// mockAccountRepo cascades deletes to the profile stores like the
// foreign keys do.
type mockAccountRepo struct {
	store    map[uuid.UUID]*Account
	patients *mockPatientRepo
	doctors  *mockDoctorRepo
}

func (m *mockAccountRepo) Create(_ context.Context, a *Account) error {
	for _, existing := range m.store {
		if strings.EqualFold(existing.Email, a.Email) {
			return apperr.Conflict("user account %s already exists", a.Email)
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.store[a.ID] = a
	return nil
}

func (m *mockAccountRepo) GetByEmail(_ context.Context, email string) (*Account, error) {
	for _, a := range m.store {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return nil, apperr.NotFound("user account", email)
}

func (m *mockAccountRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.store[id]; !ok {
		return apperr.NotFound("user account", id)
	}
	delete(m.store, id)
	for pid, p := range m.patients.store {
		if p.UserID == id {
			delete(m.patients.store, pid)
		}
	}
	for did, d := range m.doctors.store {
		if d.UserID == id {
			delete(m.doctors.store, did)
		}
	}
	return nil
}

// -- Mock Patient Repository --

type mockPatientRepo struct {
	store map[uuid.UUID]*Patient
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.store {
		if existing.Passport == p.Passport || existing.Phone == p.Phone {
			return apperr.Conflict("patient already exists")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.store[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("patient", id)
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	for _, p := range m.store {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, apperr.NotFound("patient", userID)
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.store[p.ID]; !ok {
		return apperr.NotFound("patient", p.ID)
	}
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *mockPatientRepo) List(_ context.Context, search string, _, _ int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.store {
		if search == "" || strings.Contains(strings.ToLower(p.LastName+" "+p.FirstName), strings.ToLower(search)) {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

// -- Mock Doctor Repository --

type mockDoctorRepo struct {
	store map[uuid.UUID]*Doctor
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()
	m.store[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("doctor", id)
	}
	cp := *d
	return &cp, nil
}

func (m *mockDoctorRepo) Update(_ context.Context, d *Doctor) error {
	if _, ok := m.store[d.ID]; !ok {
		return apperr.NotFound("doctor", d.ID)
	}
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	for _, d := range m.store {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, apperr.NotFound("doctor", userID)
}

func (m *mockDoctorRepo) List(_ context.Context, filter DoctorFilter, _, _ int) ([]*Doctor, int, error) {
	var out []*Doctor
	for _, d := range m.store {
		if filter.Search != "" && !strings.Contains(strings.ToLower(d.LastName+" "+d.FirstName), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.SpecializationID != nil && (d.SpecializationID == nil || *d.SpecializationID != *filter.SpecializationID) {
			continue
		}
		out = append(out, d)
	}
	return out, len(out), nil
}

// -- Mock Specialization Repository --

type mockSpecializationRepo struct {
	store map[uuid.UUID]*Specialization
}

func (m *mockSpecializationRepo) Create(_ context.Context, s *Specialization) error {
	for _, existing := range m.store {
		if strings.EqualFold(existing.Name, s.Name) {
			return apperr.Conflict("specialization %q already exists", s.Name)
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	m.store[s.ID] = s
	return nil
}

func (m *mockSpecializationRepo) GetByID(_ context.Context, id uuid.UUID) (*Specialization, error) {
	s, ok := m.store[id]
	if !ok {
		return nil, apperr.NotFound("specialization", id)
	}
	return s, nil
}

func (m *mockSpecializationRepo) List(_ context.Context) ([]*Specialization, error) {
	var out []*Specialization
	for _, s := range m.store {
		out = append(out, s)
	}
	return out, nil
}

// -- Unit of work --

// rollbackUnitOfWork drops accounts created inside a failed fn.
type rollbackUnitOfWork struct {
	accounts  *mockAccountRepo
	rollbacks int
}

func (u *rollbackUnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	before := make(map[uuid.UUID]bool, len(u.accounts.store))
	for id := range u.accounts.store {
		before[id] = true
	}
	if err := fn(ctx); err != nil {
		for id := range u.accounts.store {
			if !before[id] {
				delete(u.accounts.store, id)
			}
		}
		u.rollbacks++
		return err
	}
	return nil
}

var signingKey = []byte("identity-test-signing-key")

type fixture struct {
	svc      *Service
	accounts *mockAccountRepo
	patients *mockPatientRepo
	doctors  *mockDoctorRepo
	specs    *mockSpecializationRepo
	uow      *rollbackUnitOfWork
}

func newFixture() *fixture {
	f := &fixture{
		patients: &mockPatientRepo{store: make(map[uuid.UUID]*Patient)},
		doctors:  &mockDoctorRepo{store: make(map[uuid.UUID]*Doctor)},
		specs:    &mockSpecializationRepo{store: make(map[uuid.UUID]*Specialization)},
	}
	f.accounts = &mockAccountRepo{store: make(map[uuid.UUID]*Account), patients: f.patients, doctors: f.doctors}
	f.uow = &rollbackUnitOfWork{accounts: f.accounts}
	tokens := auth.NewTokenIssuer(auth.JWTConfig{Issuer: "clinic-test", SigningKey: signingKey, TTL: time.Hour})
	now := clock.Fixed(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	f.svc = NewService(f.accounts, f.patients, f.doctors, f.specs, f.uow, tokens, now)
	return f
}

func newPatient() *Patient {
	return &Patient{
		FirstName:       "Anna",
		LastName:        "Petrova",
		Gender:          "Female",
		BirthDate:       time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC),
		Passport:        "4510 123456",
		InsuranceNumber: "7700 0000 0000 0001",
		Phone:           "+7 (900) 123-45-67",
	}
}

func newDoctor() *Doctor {
	return &Doctor{FirstName: "Ivan", LastName: "Sokolov", Phone: "8-900-765-43-21"}
}
