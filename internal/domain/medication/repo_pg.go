package medication

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const selectCols = `
	SELECT pm.id, pm.patient_id, pm.medicament_id, m.name, pm.dosage, pm.frequency,
	       pm.start_date, pm.end_date, pm.doctor_id, pm.appointment_id, pm.notes, pm.created_at
	FROM patient_medication pm
	JOIN medicament m ON m.id = pm.medicament_id`

func scanRecord(row pgx.Row) (*PatientMedication, error) {
	var m PatientMedication
	err := row.Scan(&m.ID, &m.PatientID, &m.MedicamentID, &m.MedicamentName, &m.Dosage, &m.Frequency,
		&m.StartDate, &m.EndDate, &m.DoctorID, &m.AppointmentID, &m.Notes, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repoPG) collect(rows pgx.Rows, err error) ([]*PatientMedication, error) {
	if err != nil {
		return nil, apperr.Storage("patient medication", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*PatientMedication, error) {
		return scanRecord(row)
	})
	return items, apperr.Storage("patient medication", err)
}

func (r *repoPG) Create(ctx context.Context, m *PatientMedication) error {
	m.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_medication (id, patient_id, medicament_id, dosage, frequency,
			start_date, end_date, doctor_id, appointment_id, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`,
		m.ID, m.PatientID, m.MedicamentID, m.Dosage, m.Frequency,
		m.StartDate, m.EndDate, m.DoctorID, m.AppointmentID, m.Notes).Scan(&m.CreatedAt)
	return apperr.Storage("patient medication", err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*PatientMedication, error) {
	m, err := scanRecord(r.conn(ctx).QueryRow(ctx, selectCols+` WHERE pm.id = $1`, id))
	return m, apperr.Storage("patient medication", err)
}

func (r *repoPG) Update(ctx context.Context, m *PatientMedication) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_medication
		SET dosage = $2, frequency = $3, end_date = $4, notes = $5
		WHERE id = $1`,
		m.ID, m.Dosage, m.Frequency, m.EndDate, m.Notes)
	if err != nil {
		return apperr.Storage("patient medication", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient medication", m.ID)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patient_medication WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage("patient medication", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient medication", id)
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*PatientMedication, error) {
	return r.collect(r.conn(ctx).Query(ctx,
		selectCols+` WHERE pm.patient_id = $1 ORDER BY pm.start_date DESC, m.name`, patientID))
}

func (r *repoPG) ListActiveByPatient(ctx context.Context, patientID uuid.UUID, asOf time.Time) ([]*PatientMedication, error) {
	return r.collect(r.conn(ctx).Query(ctx, selectCols+`
		WHERE pm.patient_id = $1
		  AND pm.start_date <= $2
		  AND (pm.end_date IS NULL OR pm.end_date >= $2)
		ORDER BY pm.start_date, m.name`, patientID, asOf))
}

func (r *repoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]*PatientMedication, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_medication WHERE doctor_id = $1`, doctorID).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("patient medication", err)
	}
	items, err := r.collect(r.conn(ctx).Query(ctx,
		selectCols+` WHERE pm.doctor_id = $1 ORDER BY pm.created_at DESC LIMIT $2 OFFSET $3`,
		doctorID, limit, offset))
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *repoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*PatientMedication, error) {
	return r.collect(r.conn(ctx).Query(ctx,
		selectCols+` WHERE pm.appointment_id = $1 ORDER BY pm.created_at, m.name`, appointmentID))
}
