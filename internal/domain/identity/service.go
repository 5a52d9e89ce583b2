package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
)

// TokenIssuer signs access tokens for authenticated principals.
type TokenIssuer interface {
	Issue(p auth.Principal) (string, time.Time, error)
}

var errBadCredentials = fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthorized)

type Service struct {
	accounts        AccountRepository
	patients        PatientRepository
	doctors         DoctorRepository
	specializations SpecializationRepository
	uow             db.UnitOfWork
	tokens          TokenIssuer
	clock           clock.Clock
}

func NewService(accounts AccountRepository, patients PatientRepository, doctors DoctorRepository,
	specializations SpecializationRepository, uow db.UnitOfWork, tokens TokenIssuer, clk clock.Clock) *Service {
	return &Service{
		accounts:        accounts,
		patients:        patients,
		doctors:         doctors,
		specializations: specializations,
		uow:             uow,
		tokens:          tokens,
		clock:           clk,
	}
}

func (s *Service) newAccount(ctx context.Context, cred Credentials, role string) (*Account, error) {
	cred.normalize()
	if err := validEmail(cred.Email); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(cred.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, apperr.Invalid("password", "%s", err.Error())
		}
		return nil, err
	}
	a := &Account{Email: cred.Email, PasswordHash: hash, Role: role}
	if err := s.accounts.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// -- Authentication --

// Register creates a patient account and its profile. The profile email
// defaults to the login email.
func (s *Service) Register(ctx context.Context, cred Credentials, p *Patient) error {
	if p.Email == "" {
		p.Email = cred.Email
	}
	if err := p.Validate(clock.Today(s.clock)); err != nil {
		return err
	}
	return s.uow.Do(ctx, func(ctx context.Context) error {
		a, err := s.newAccount(ctx, cred, auth.RolePatient)
		if err != nil {
			return err
		}
		p.UserID = a.ID
		return s.patients.Create(ctx, p)
	})
}

// Login checks the credentials and issues a token that carries the
// caller's role and profile id.
func (s *Service) Login(ctx context.Context, cred Credentials) (*Session, error) {
	cred.normalize()
	a, err := s.accounts.GetByEmail(ctx, cred.Email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(a.PasswordHash, cred.Password) {
		zerolog.Ctx(ctx).Warn().Str("user_id", a.ID.String()).Msg("login rejected")
		return nil, errBadCredentials
	}

	var profileID uuid.UUID
	switch a.Role {
	case auth.RolePatient:
		p, err := s.patients.GetByUserID(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		profileID = p.ID
	case auth.RoleDoctor:
		d, err := s.doctors.GetByUserID(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		profileID = d.ID
	}

	token, exp, err := s.tokens.Issue(auth.Principal{UserID: a.ID, Role: a.Role, ProfileID: profileID})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: exp, Role: a.Role, ProfileID: profileID}, nil
}

// CreateAdmin creates an administrator account.
func (s *Service) CreateAdmin(ctx context.Context, cred Credentials) (*Account, error) {
	return s.newAccount(ctx, cred, auth.RoleAdmin)
}

// -- Doctors --

func (s *Service) CreateDoctor(ctx context.Context, cred Credentials, d *Doctor) error {
	if d.Email == "" {
		d.Email = cred.Email
	}
	if err := d.Validate(); err != nil {
		return err
	}
	return s.uow.Do(ctx, func(ctx context.Context) error {
		if d.SpecializationID != nil {
			sp, err := s.specializations.GetByID(ctx, *d.SpecializationID)
			if err != nil {
				return err
			}
			d.SpecializationName = &sp.Name
		}
		a, err := s.newAccount(ctx, cred, auth.RoleDoctor)
		if err != nil {
			return err
		}
		d.UserID = a.ID
		return s.doctors.Create(ctx, d)
	})
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, filter DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	return s.doctors.List(ctx, filter, limit, offset)
}

func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, u DoctorUpdate) (*Doctor, error) {
	var d *Doctor
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		var err error
		if d, err = s.doctors.GetByID(ctx, id); err != nil {
			return err
		}
		changed := u.SpecializationID != nil &&
			(d.SpecializationID == nil || *d.SpecializationID != *u.SpecializationID)
		u.apply(d)
		if err := d.Validate(); err != nil {
			return err
		}
		if changed {
			sp, err := s.specializations.GetByID(ctx, *d.SpecializationID)
			if err != nil {
				return err
			}
			d.SpecializationName = &sp.Name
		}
		return s.doctors.Update(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// DeleteDoctor removes the doctor's account. Schedules and appointments go
// with it; prescriptions keep their records without a prescriber.
func (s *Service) DeleteDoctor(ctx context.Context, id uuid.UUID) error {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.accounts.Delete(ctx, d.UserID)
}

// -- Specializations --

func (s *Service) CreateSpecialization(ctx context.Context, sp *Specialization) error {
	sp.Name = strings.Join(strings.Fields(sp.Name), " ")
	if sp.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	sp.Description = trimOptional(sp.Description)
	return s.specializations.Create(ctx, sp)
}

func (s *Service) ListSpecializations(ctx context.Context) ([]*Specialization, error) {
	return s.specializations.List(ctx)
}

// -- Patients --

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, strings.TrimSpace(search), limit, offset)
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, u PatientUpdate) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.apply(p)
	if err := p.Validate(clock.Today(s.clock)); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeletePatient removes the patient's account together with the profile
// and everything recorded for it.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.accounts.Delete(ctx, p.UserID)
}
