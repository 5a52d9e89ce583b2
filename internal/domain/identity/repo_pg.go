package identity

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

// =========== Account Repository ===========

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewAccountRepoPG(pool *pgxpool.Pool) AccountRepository {
	return &accountRepoPG{pool: pool}
}

func (r *accountRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO user_account (id, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		a.ID, a.Email, a.PasswordHash, a.Role).Scan(&a.CreatedAt)
	return apperr.Storage("user account", err)
}

func (r *accountRepoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, email, password_hash, role, created_at
		FROM user_account WHERE lower(email) = lower($1)`, email).
		Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Role, &a.CreatedAt)
	if err != nil {
		return nil, apperr.Storage("user account", err)
	}
	return &a, nil
}

func (r *accountRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM user_account WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage("user account", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("user account", id)
	}
	return nil
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const patientCols = `id, user_id, first_name, last_name, patronymic, gender, birth_date,
	passport, insurance_number, phone, email, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Patronymic, &p.Gender, &p.BirthDate,
		&p.Passport, &p.InsuranceNumber, &p.Phone, &p.Email, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, user_id, first_name, last_name, patronymic, gender, birth_date,
			passport, insurance_number, phone, email)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		p.ID, p.UserID, p.FirstName, p.LastName, p.Patronymic, p.Gender, p.BirthDate,
		p.Passport, p.InsuranceNumber, p.Phone, p.Email).Scan(&p.CreatedAt)
	return apperr.Storage("patient", err)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.Storage("patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE user_id = $1`, userID))
	if err != nil {
		return nil, apperr.Storage("patient", err)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET first_name = $2, last_name = $3, patronymic = $4, gender = $5,
			birth_date = $6, passport = $7, insurance_number = $8, phone = $9, email = $10
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Patronymic, p.Gender,
		p.BirthDate, p.Passport, p.InsuranceNumber, p.Phone, p.Email)
	if err != nil {
		return apperr.Storage("patient", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", p.ID)
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Patient, int, error) {
	where := ``
	args := []any{}
	if search != "" {
		where = ` WHERE (last_name || ' ' || first_name || ' ' || coalesce(patronymic, '')) ILIKE '%' || $1 || '%'
			OR insurance_number = $1 OR phone = $1`
		args = append(args, search)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("patient", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+patientCols+` FROM patient`+where+
			` ORDER BY last_name, first_name LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, apperr.Storage("patient", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Patient, error) {
		return scanPatient(row)
	})
	if err != nil {
		return nil, 0, apperr.Storage("patient", err)
	}
	return items, total, nil
}

// =========== Doctor Repository ===========

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepoPG(pool *pgxpool.Pool) DoctorRepository {
	return &doctorRepoPG{pool: pool}
}

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const doctorSelect = `
	SELECT d.id, d.user_id, d.first_name, d.last_name, d.patronymic, d.phone, d.email,
		d.specialization_id, s.name, d.created_at
	FROM doctor d
	LEFT JOIN specialization s ON s.id = d.specialization_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.FirstName, &d.LastName, &d.Patronymic, &d.Phone, &d.Email,
		&d.SpecializationID, &d.SpecializationName, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	d.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, user_id, first_name, last_name, patronymic, phone, email, specialization_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`,
		d.ID, d.UserID, d.FirstName, d.LastName, d.Patronymic, d.Phone, d.Email, d.SpecializationID).
		Scan(&d.CreatedAt)
	return apperr.Storage("doctor", err)
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.id = $1`, id))
	if err != nil {
		return nil, apperr.Storage("doctor", err)
	}
	return d, nil
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx, doctorSelect+` WHERE d.user_id = $1`, userID))
	if err != nil {
		return nil, apperr.Storage("doctor", err)
	}
	return d, nil
}

func (r *doctorRepoPG) Update(ctx context.Context, d *Doctor) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE doctor SET first_name = $2, last_name = $3, patronymic = $4, phone = $5,
			email = $6, specialization_id = $7
		WHERE id = $1`,
		d.ID, d.FirstName, d.LastName, d.Patronymic, d.Phone, d.Email, d.SpecializationID)
	if err != nil {
		return apperr.Storage("doctor", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("doctor", d.ID)
	}
	return nil
}

func (r *doctorRepoPG) List(ctx context.Context, filter DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE TRUE`
	args := []any{}
	if filter.Search != "" {
		args = append(args, filter.Search)
		where += ` AND (d.last_name || ' ' || d.first_name || ' ' || coalesce(d.patronymic, '')) ILIKE '%' || $` +
			strconv.Itoa(len(args)) + ` || '%'`
	}
	if filter.SpecializationID != nil {
		args = append(args, *filter.SpecializationID)
		where += ` AND d.specialization_id = $` + strconv.Itoa(len(args))
	}

	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctor d`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, apperr.Storage("doctor", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		doctorSelect+where+` ORDER BY d.last_name, d.first_name LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2),
		args...)
	if err != nil {
		return nil, 0, apperr.Storage("doctor", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Doctor, error) {
		return scanDoctor(row)
	})
	if err != nil {
		return nil, 0, apperr.Storage("doctor", err)
	}
	return items, total, nil
}

// =========== Specialization Repository ===========

type specializationRepoPG struct{ pool *pgxpool.Pool }

func NewSpecializationRepoPG(pool *pgxpool.Pool) SpecializationRepository {
	return &specializationRepoPG{pool: pool}
}

func (r *specializationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func scanSpecialization(row pgx.Row) (*Specialization, error) {
	var s Specialization
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *specializationRepoPG) Create(ctx context.Context, s *Specialization) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO specialization (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		s.ID, s.Name, s.Description).Scan(&s.CreatedAt)
	return apperr.Storage("specialization", err)
}

func (r *specializationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specialization, error) {
	s, err := scanSpecialization(r.conn(ctx).QueryRow(ctx,
		`SELECT id, name, description, created_at FROM specialization WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.Storage("specialization", err)
	}
	return s, nil
}

func (r *specializationRepoPG) List(ctx context.Context) ([]*Specialization, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT id, name, description, created_at FROM specialization ORDER BY name`)
	if err != nil {
		return nil, apperr.Storage("specialization", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Specialization, error) {
		return scanSpecialization(row)
	})
	if err != nil {
		return nil, apperr.Storage("specialization", err)
	}
	return items, nil
}
