package identity

import (
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

const (
	GenderFemale = "female"
	GenderMale   = "male"
)

// Account is a login. Every patient and doctor owns exactly one.
type Account struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

type Specialization struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type Doctor struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	Patronymic         *string    `json:"patronymic,omitempty"`
	Phone              string     `json:"phone"`
	Email              string     `json:"email"`
	SpecializationID   *uuid.UUID `json:"specialization_id,omitempty"`
	SpecializationName *string    `json:"specialization,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func (d *Doctor) normalize() {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Patronymic = trimOptional(d.Patronymic)
	d.Phone = digits(d.Phone)
	d.Email = strings.TrimSpace(d.Email)
}

func (d *Doctor) Validate() error {
	d.normalize()
	if d.FirstName == "" {
		return apperr.Invalid("first_name", "is required")
	}
	if d.LastName == "" {
		return apperr.Invalid("last_name", "is required")
	}
	if d.Phone == "" {
		return apperr.Invalid("phone", "is required")
	}
	return validEmail(d.Email)
}

type Patient struct {
	ID              uuid.UUID `json:"id"`
	UserID          uuid.UUID `json:"user_id"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	Patronymic      *string   `json:"patronymic,omitempty"`
	Gender          string    `json:"gender"`
	BirthDate       time.Time `json:"birth_date"`
	Passport        string    `json:"passport"`
	InsuranceNumber string    `json:"insurance_number"`
	Phone           string    `json:"phone"`
	Email           string    `json:"email"`
	CreatedAt       time.Time `json:"created_at"`
}

func (p *Patient) normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Patronymic = trimOptional(p.Patronymic)
	p.Gender = strings.ToLower(strings.TrimSpace(p.Gender))
	p.Passport = strings.TrimSpace(p.Passport)
	p.InsuranceNumber = strings.TrimSpace(p.InsuranceNumber)
	p.Phone = digits(p.Phone)
	p.Email = strings.TrimSpace(p.Email)
}

// Validate normalizes p and checks it against today's date.
func (p *Patient) Validate(today time.Time) error {
	p.normalize()
	switch {
	case p.FirstName == "":
		return apperr.Invalid("first_name", "is required")
	case p.LastName == "":
		return apperr.Invalid("last_name", "is required")
	case p.Gender != GenderFemale && p.Gender != GenderMale:
		return apperr.Invalid("gender", "must be %q or %q", GenderFemale, GenderMale)
	case p.BirthDate.IsZero():
		return apperr.Invalid("birth_date", "is required")
	case p.BirthDate.After(today):
		return apperr.Invalid("birth_date", "is in the future")
	case p.Passport == "":
		return apperr.Invalid("passport", "is required")
	case p.InsuranceNumber == "":
		return apperr.Invalid("insurance_number", "is required")
	case p.Phone == "":
		return apperr.Invalid("phone", "is required")
	}
	return validEmail(p.Email)
}

// PatientUpdate carries the profile fields an administrator may change.
// Nil fields are left as they are.
type PatientUpdate struct {
	FirstName       *string    `json:"first_name"`
	LastName        *string    `json:"last_name"`
	Patronymic      *string    `json:"patronymic"`
	Gender          *string    `json:"gender"`
	BirthDate       *time.Time `json:"-"`
	Passport        *string    `json:"passport"`
	InsuranceNumber *string    `json:"insurance_number"`
	Phone           *string    `json:"phone"`
	Email           *string    `json:"email"`
}

func (u PatientUpdate) apply(p *Patient) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.FirstName, u.FirstName)
	set(&p.LastName, u.LastName)
	set(&p.Gender, u.Gender)
	set(&p.Passport, u.Passport)
	set(&p.InsuranceNumber, u.InsuranceNumber)
	set(&p.Phone, u.Phone)
	set(&p.Email, u.Email)
	if u.Patronymic != nil {
		p.Patronymic = u.Patronymic
	}
	if u.BirthDate != nil {
		p.BirthDate = *u.BirthDate
	}
}

// DoctorUpdate carries the doctor fields an administrator may change.
// Nil fields are left as they are.
type DoctorUpdate struct {
	FirstName        *string    `json:"first_name"`
	LastName         *string    `json:"last_name"`
	Patronymic       *string    `json:"patronymic"`
	Phone            *string    `json:"phone"`
	Email            *string    `json:"email"`
	SpecializationID *uuid.UUID `json:"specialization_id"`
}

func (u DoctorUpdate) apply(d *Doctor) {
	if u.FirstName != nil {
		d.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		d.LastName = *u.LastName
	}
	if u.Patronymic != nil {
		d.Patronymic = u.Patronymic
	}
	if u.Phone != nil {
		d.Phone = *u.Phone
	}
	if u.Email != nil {
		d.Email = *u.Email
	}
	if u.SpecializationID != nil {
		d.SpecializationID = u.SpecializationID
	}
}

// Credentials are the email and password of a new or returning account.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Credentials) normalize() {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
}

// Session is returned by a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      string    `json:"role"`
	ProfileID uuid.UUID `json:"profile_id,omitempty"`
}

func digits(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func validEmail(s string) error {
	if s == "" {
		return apperr.Invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return apperr.Invalid("email", "is not a valid address")
	}
	return nil
}
