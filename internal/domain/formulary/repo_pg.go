package formulary

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

// =========== Medicament Repository ===========

type medicamentRepoPG struct{ pool *pgxpool.Pool }

func NewMedicamentRepoPG(pool *pgxpool.Pool) MedicamentRepository {
	return &medicamentRepoPG{pool: pool}
}

func (r *medicamentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const medicamentCols = `id, name, description, created_at`

func scanMedicament(row pgx.Row) (*Medicament, error) {
	var m Medicament
	if err := row.Scan(&m.ID, &m.Name, &m.Description, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *medicamentRepoPG) Create(ctx context.Context, m *Medicament) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicament (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		m.ID, m.Name, m.Description).Scan(&m.CreatedAt)
	return apperr.Storage("medicament", err)
}

func (r *medicamentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Medicament, error) {
	m, err := scanMedicament(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medicamentCols+` FROM medicament WHERE id = $1 AND retired_at IS NULL`, id))
	return m, apperr.Storage("medicament", err)
}

func (r *medicamentRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Medicament, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medicamentCols+` FROM medicament WHERE id = ANY($1) AND retired_at IS NULL ORDER BY name`, ids)
	if err != nil {
		return nil, apperr.Storage("medicament", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Medicament, error) {
		return scanMedicament(row)
	})
	return items, apperr.Storage("medicament", err)
}

func (r *medicamentRepoPG) GetByName(ctx context.Context, name string) (*Medicament, error) {
	m, err := scanMedicament(r.conn(ctx).QueryRow(ctx,
		`SELECT `+medicamentCols+` FROM medicament WHERE lower(name) = lower($1) AND retired_at IS NULL`, name))
	return m, apperr.Storage("medicament", err)
}

func (r *medicamentRepoPG) Retire(ctx context.Context, id uuid.UUID) error {
	q := r.conn(ctx)
	tag, err := q.Exec(ctx,
		`UPDATE medicament SET retired_at = NOW() WHERE id = $1 AND retired_at IS NULL`, id)
	if err != nil {
		return apperr.Storage("medicament", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicament", id)
	}
	if _, err := q.Exec(ctx, `DELETE FROM medicament_contraindication WHERE medicament_id = $1`, id); err != nil {
		return apperr.Storage("medicament contraindication", err)
	}
	if _, err := q.Exec(ctx, `DELETE FROM patient_medicament_contraindication WHERE medicament_id = $1`, id); err != nil {
		return apperr.Storage("patient medicament contraindication", err)
	}
	return nil
}

func (r *medicamentRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Medicament, int, error) {
	where := ` WHERE retired_at IS NULL`
	args := []any{}
	if search != "" {
		where += ` AND name ILIKE '%' || $1 || '%'`
		args = append(args, search)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicament`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("medicament", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+medicamentCols+` FROM medicament`+where+
			` ORDER BY name LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, apperr.Storage("medicament", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Medicament, error) {
		return scanMedicament(row)
	})
	if err != nil {
		return nil, 0, apperr.Storage("medicament", err)
	}
	return items, total, nil
}

func (r *medicamentRepoPG) OpenPrescriptionCount(ctx context.Context, id uuid.UUID, asOf time.Time) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM patient_medication
		WHERE medicament_id = $1
		  AND (end_date IS NULL OR end_date >= $2)`, id, asOf).Scan(&n)
	return n, apperr.Storage("patient_medication", err)
}

// =========== Contraindication Repository ===========

type contraindicationRepoPG struct{ pool *pgxpool.Pool }

func NewContraindicationRepoPG(pool *pgxpool.Pool) ContraindicationRepository {
	return &contraindicationRepoPG{pool: pool}
}

func (r *contraindicationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const contraindicationCols = `id, name, description, created_at`

func scanContraindication(row pgx.Row) (*Contraindication, error) {
	var c Contraindication
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *contraindicationRepoPG) Create(ctx context.Context, c *Contraindication) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO contraindication (id, name, description)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		c.ID, c.Name, c.Description).Scan(&c.CreatedAt)
	return apperr.Storage("contraindication", err)
}

func (r *contraindicationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Contraindication, error) {
	c, err := scanContraindication(r.conn(ctx).QueryRow(ctx,
		`SELECT `+contraindicationCols+` FROM contraindication WHERE id = $1`, id))
	return c, apperr.Storage("contraindication", err)
}

func (r *contraindicationRepoPG) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Contraindication, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+contraindicationCols+` FROM contraindication WHERE id = ANY($1) ORDER BY name`, ids)
	if err != nil {
		return nil, apperr.Storage("contraindication", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Contraindication, error) {
		return scanContraindication(row)
	})
	return items, apperr.Storage("contraindication", err)
}

func (r *contraindicationRepoPG) GetByName(ctx context.Context, name string) (*Contraindication, error) {
	c, err := scanContraindication(r.conn(ctx).QueryRow(ctx,
		`SELECT `+contraindicationCols+` FROM contraindication WHERE lower(name) = lower($1)`, name))
	return c, apperr.Storage("contraindication", err)
}

func (r *contraindicationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM contraindication WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage("contraindication", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("contraindication", id)
	}
	return nil
}

func (r *contraindicationRepoPG) List(ctx context.Context, search string, limit, offset int) ([]*Contraindication, int, error) {
	where := ` WHERE retired_at IS NULL`
	args := []any{}
	if search != "" {
		where += ` AND name ILIKE '%' || $1 || '%'`
		args = append(args, search)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM contraindication`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("contraindication", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+contraindicationCols+` FROM contraindication`+where+
			` ORDER BY name LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, apperr.Storage("contraindication", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Contraindication, error) {
		return scanContraindication(row)
	})
	if err != nil {
		return nil, 0, apperr.Storage("contraindication", err)
	}
	return items, total, nil
}

// =========== Interaction Repository ===========

type interactionRepoPG struct{ pool *pgxpool.Pool }

func NewInteractionRepoPG(pool *pgxpool.Pool) InteractionRepository {
	return &interactionRepoPG{pool: pool}
}

func (r *interactionRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const interactionCols = `id, first_medicament_id, second_medicament_id, created_at`

func scanInteraction(row pgx.Row) (*Interaction, error) {
	var in Interaction
	if err := row.Scan(&in.ID, &in.FirstMedicamentID, &in.SecondMedicamentID, &in.CreatedAt); err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *interactionRepoPG) Create(ctx context.Context, in *Interaction) (bool, error) {
	in.FirstMedicamentID, in.SecondMedicamentID = CanonicalPair(in.FirstMedicamentID, in.SecondMedicamentID)
	id := uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medicament_interaction (id, first_medicament_id, second_medicament_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (first_medicament_id, second_medicament_id) DO NOTHING
		RETURNING created_at`,
		id, in.FirstMedicamentID, in.SecondMedicamentID).Scan(&in.CreatedAt)
	if err == nil {
		in.ID = id
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, apperr.Storage("medicament interaction", err)
	}

	existing, err := scanInteraction(r.conn(ctx).QueryRow(ctx, `
		SELECT `+interactionCols+` FROM medicament_interaction
		WHERE first_medicament_id = $1 AND second_medicament_id = $2`,
		in.FirstMedicamentID, in.SecondMedicamentID))
	if err != nil {
		return false, apperr.Storage("medicament interaction", err)
	}
	*in = *existing
	return false, nil
}

func (r *interactionRepoPG) Delete(ctx context.Context, a, b uuid.UUID) error {
	first, second := CanonicalPair(a, b)
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM medicament_interaction
		WHERE first_medicament_id = $1 AND second_medicament_id = $2`, first, second)
	if err != nil {
		return apperr.Storage("medicament interaction", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicament interaction", first.String()+"/"+second.String())
	}
	return nil
}

func (r *interactionRepoPG) ListInvolving(ctx context.Context, ids []uuid.UUID) ([]*Interaction, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+interactionCols+` FROM medicament_interaction
		WHERE first_medicament_id = ANY($1) OR second_medicament_id = ANY($1)`, ids)
	if err != nil {
		return nil, apperr.Storage("medicament interaction", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Interaction, error) {
		return scanInteraction(row)
	})
	return items, apperr.Storage("medicament interaction", err)
}

func (r *interactionRepoPG) List(ctx context.Context, limit, offset int) ([]*Interaction, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM medicament_interaction`).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("medicament interaction", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+interactionCols+` FROM medicament_interaction
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Storage("medicament interaction", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Interaction, error) {
		return scanInteraction(row)
	})
	if err != nil {
		return nil, 0, apperr.Storage("medicament interaction", err)
	}
	return items, total, nil
}

// =========== Link Repository ===========

type linkRepoPG struct{ pool *pgxpool.Pool }

func NewLinkRepoPG(pool *pgxpool.Pool) LinkRepository {
	return &linkRepoPG{pool: pool}
}

func (r *linkRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *linkRepoPG) Link(ctx context.Context, medicamentID, contraindicationID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO medicament_contraindication (medicament_id, contraindication_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, medicamentID, contraindicationID)
	return apperr.Storage("medicament contraindication", err)
}

func (r *linkRepoPG) Unlink(ctx context.Context, medicamentID, contraindicationID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM medicament_contraindication
		WHERE medicament_id = $1 AND contraindication_id = $2`, medicamentID, contraindicationID)
	if err != nil {
		return apperr.Storage("medicament contraindication", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("medicament contraindication", contraindicationID)
	}
	return nil
}

func (r *linkRepoPG) ListByMedicaments(ctx context.Context, medicamentIDs []uuid.UUID) ([]MedicamentContraindication, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT medicament_id, contraindication_id FROM medicament_contraindication
		WHERE medicament_id = ANY($1)`, medicamentIDs)
	if err != nil {
		return nil, apperr.Storage("medicament contraindication", err)
	}
	links, err := pgx.CollectRows(rows, pgx.RowToStructByName[MedicamentContraindication])
	return links, apperr.Storage("medicament contraindication", err)
}

// =========== Patient Contraindication Repository ===========

type patientContraindicationRepoPG struct{ pool *pgxpool.Pool }

func NewPatientContraindicationRepoPG(pool *pgxpool.Pool) PatientContraindicationRepository {
	return &patientContraindicationRepoPG{pool: pool}
}

func (r *patientContraindicationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *patientContraindicationRepoPG) AddMedicament(ctx context.Context, patientID, medicamentID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_medicament_contraindication (patient_id, medicament_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, patientID, medicamentID)
	return apperr.Storage("patient medicament contraindication", err)
}

func (r *patientContraindicationRepoPG) RemoveMedicament(ctx context.Context, patientID, medicamentID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM patient_medicament_contraindication
		WHERE patient_id = $1 AND medicament_id = $2`, patientID, medicamentID)
	if err != nil {
		return apperr.Storage("patient medicament contraindication", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient medicament contraindication", medicamentID)
	}
	return nil
}

func (r *patientContraindicationRepoPG) ListMedicaments(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT medicament_id FROM patient_medicament_contraindication
		WHERE patient_id = $1`, patientID)
	if err != nil {
		return nil, apperr.Storage("patient medicament contraindication", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	return ids, apperr.Storage("patient medicament contraindication", err)
}

func (r *patientContraindicationRepoPG) AddCondition(ctx context.Context, patientID, contraindicationID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient_contraindication (patient_id, contraindication_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, patientID, contraindicationID)
	return apperr.Storage("patient contraindication", err)
}

func (r *patientContraindicationRepoPG) RemoveCondition(ctx context.Context, patientID, contraindicationID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM patient_contraindication
		WHERE patient_id = $1 AND contraindication_id = $2`, patientID, contraindicationID)
	if err != nil {
		return apperr.Storage("patient contraindication", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient contraindication", contraindicationID)
	}
	return nil
}

func (r *patientContraindicationRepoPG) ListConditions(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT contraindication_id FROM patient_contraindication
		WHERE patient_id = $1`, patientID)
	if err != nil {
		return nil, apperr.Storage("patient contraindication", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	return ids, apperr.Storage("patient contraindication", err)
}
