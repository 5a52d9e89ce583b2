package scheduling

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/db"
)

// =========== Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository {
	return &scheduleRepoPG{pool: pool}
}

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

// doctorName renders the doctor joined as d the way visit logs print it.
const doctorName = `d.last_name || ' ' || d.first_name || coalesce(' ' || d.patronymic, '')`

const scheduleCols = `s.id, s.doctor_id, ` + doctorName + `, s.office_number, s.date,
	to_char(s.start_time, 'HH24:MI'), to_char(s.end_time, 'HH24:MI'), s.is_available,
	EXISTS (SELECT 1 FROM appointment a WHERE a.schedule_id = s.id AND a.status <> 'cancelled'),
	s.created_at`

const scheduleFrom = ` FROM schedule s JOIN doctor d ON d.id = s.doctor_id`

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	err := row.Scan(&s.ID, &s.DoctorID, &s.DoctorName, &s.OfficeNumber, &s.Date,
		&s.StartTime, &s.EndTime, &s.IsAvailable, &s.Booked, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *scheduleRepoPG) Create(ctx context.Context, s *Schedule) error {
	s.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedule (id, doctor_id, office_number, date, start_time, end_time, is_available)
		VALUES ($1, $2, $3, $4, $5::time, $6::time, $7)
		RETURNING created_at`,
		s.ID, s.DoctorID, s.OfficeNumber, s.Date, s.StartTime, s.EndTime, s.IsAvailable).Scan(&s.CreatedAt)
	return apperr.Storage("schedule", err)
}

func (r *scheduleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	s, err := scanSchedule(r.conn(ctx).QueryRow(ctx,
		`SELECT `+scheduleCols+scheduleFrom+` WHERE s.id = $1`, id))
	return s, apperr.Storage("schedule", err)
}

func (r *scheduleRepoPG) Update(ctx context.Context, s *Schedule) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE schedule
		SET office_number = $2, date = $3, start_time = $4::time, end_time = $5::time, is_available = $6
		WHERE id = $1`,
		s.ID, s.OfficeNumber, s.Date, s.StartTime, s.EndTime, s.IsAvailable)
	if err != nil {
		return apperr.Storage("schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("schedule", s.ID)
	}
	return nil
}

func (r *scheduleRepoPG) SetAvailable(ctx context.Context, id uuid.UUID, available bool) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE schedule SET is_available = $2 WHERE id = $1`, id, available)
	if err != nil {
		return apperr.Storage("schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("schedule", id)
	}
	return nil
}

func (r *scheduleRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM schedule WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage("schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("schedule", id)
	}
	return nil
}

func (r *scheduleRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]*Schedule, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+scheduleCols+scheduleFrom+`
		WHERE s.doctor_id = $1 AND s.date >= $2
		ORDER BY s.date, s.start_time`, doctorID, from)
	if err != nil {
		return nil, apperr.Storage("schedule", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Schedule, error) {
		return scanSchedule(row)
	})
	return items, apperr.Storage("schedule", err)
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const appointmentSelect = `
	SELECT a.id, a.patient_id, a.schedule_id, a.status, a.information,
	       s.doctor_id, ` + doctorName + `,
	       s.office_number, s.date,
	       to_char(s.start_time, 'HH24:MI'), to_char(s.end_time, 'HH24:MI'),
	       a.created_at, a.updated_at
	FROM appointment a
	JOIN schedule s ON s.id = a.schedule_id
	JOIN doctor d ON d.id = s.doctor_id`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.ScheduleID, &a.Status, &a.Information,
		&a.DoctorID, &a.DoctorName, &a.OfficeNumber, &a.Date, &a.StartTime, &a.EndTime,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]*Appointment, error) {
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Appointment, error) {
		return scanAppointment(row)
	})
	return items, apperr.Storage("appointment", err)
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, schedule_id, status, information)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.ScheduleID, a.Status, a.Information).Scan(&a.CreatedAt, &a.UpdatedAt)
	return apperr.Storage("appointment", err)
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
	return a, apperr.Storage("appointment", err)
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE appointment SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return apperr.Storage("appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment", id)
	}
	return nil
}

func (r *appointmentRepoPG) AppendInformation(ctx context.Context, id uuid.UUID, entry string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointment
		SET information = CASE
		        WHEN information IS NULL OR information = '' THEN $2
		        ELSE information || $3 || $2
		    END,
		    updated_at = NOW()
		WHERE id = $1`, id, entry, InformationSeparator)
	if err != nil {
		return apperr.Storage("appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment", id)
	}
	return nil
}

func (r *appointmentRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx,
		appointmentSelect+` WHERE a.patient_id = $1 ORDER BY s.date DESC, s.start_time DESC`, patientID)
	if err != nil {
		return nil, apperr.Storage("appointment", err)
	}
	return collectAppointments(rows)
}

func (r *appointmentRepoPG) ListByDoctor(ctx context.Context, doctorID uuid.UUID, status string, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE s.doctor_id = $1`
	args := []any{doctorID}
	if status != "" {
		where += ` AND a.status = $2`
		args = append(args, status)
	}
	return r.page(ctx, where, ` ORDER BY s.date, s.start_time`, args, limit, offset)
}

func (r *appointmentRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Appointment, int, error) {
	where := ""
	var args []any
	if status != "" {
		where = ` WHERE a.status = $1`
		args = append(args, status)
	}
	return r.page(ctx, where, ` ORDER BY s.date DESC, s.start_time DESC`, args, limit, offset)
}

func (r *appointmentRepoPG) page(ctx context.Context, where, order string, args []any, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment a JOIN schedule s ON s.id = a.schedule_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("appointment", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		appointmentSelect+where+order+` LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, apperr.Storage("appointment", err)
	}
	items, err := collectAppointments(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *appointmentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return apperr.Storage("appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment", id)
	}
	return nil
}

func (r *appointmentRepoPG) IsBooked(ctx context.Context, scheduleID uuid.UUID) (bool, error) {
	var booked bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointment WHERE schedule_id = $1 AND status <> 'cancelled')`,
		scheduleID).Scan(&booked)
	return booked, apperr.Storage("appointment", err)
}

// =========== Billing Repository ===========

type billingRepoPG struct{ pool *pgxpool.Pool }

func NewBillingRepoPG(pool *pgxpool.Pool) BillingRepository {
	return &billingRepoPG{pool: pool}
}

func (r *billingRepoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const billingCols = `id, appointment_id, patient_id, amount_cents, description, status, created_at, paid_at`

func scanBilling(row pgx.Row) (*Billing, error) {
	var b Billing
	err := row.Scan(&b.ID, &b.AppointmentID, &b.PatientID, &b.AmountCents, &b.Description,
		&b.Status, &b.CreatedAt, &b.PaidAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBillings(rows pgx.Rows) ([]*Billing, error) {
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Billing, error) {
		return scanBilling(row)
	})
	return items, apperr.Storage("billing", err)
}

func (r *billingRepoPG) Create(ctx context.Context, b *Billing) error {
	b.ID = uuid.New()
	if b.Status == "" {
		b.Status = BillingPending
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing (id, appointment_id, patient_id, amount_cents, description, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		b.ID, b.AppointmentID, b.PatientID, b.AmountCents, b.Description, b.Status).Scan(&b.CreatedAt)
	return apperr.Storage("billing", err)
}

func (r *billingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Billing, error) {
	b, err := scanBilling(r.conn(ctx).QueryRow(ctx, `SELECT `+billingCols+` FROM billing WHERE id = $1`, id))
	return b, apperr.Storage("billing", err)
}

func (r *billingRepoPG) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Billing, error) {
	b, err := scanBilling(r.conn(ctx).QueryRow(ctx,
		`SELECT `+billingCols+` FROM billing WHERE appointment_id = $1`, appointmentID))
	return b, apperr.Storage("billing", err)
}

func (r *billingRepoPG) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE billing SET status = 'paid', paid_at = $2 WHERE id = $1 AND status = 'pending'`, id, paidAt)
	if err != nil {
		return apperr.Storage("billing", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("billing %s is not pending", id)
	}
	return nil
}

func (r *billingRepoPG) List(ctx context.Context, status string, limit, offset int) ([]*Billing, int, error) {
	where := ""
	var args []any
	if status != "" {
		where = ` WHERE status = $1`
		args = append(args, status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Storage("billing", err)
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+billingCols+` FROM billing`+where+
		` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(n+1)+` OFFSET $`+strconv.Itoa(n+2), args...)
	if err != nil {
		return nil, 0, apperr.Storage("billing", err)
	}
	items, err := collectBillings(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *billingRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Billing, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+billingCols+` FROM billing WHERE patient_id = $1 ORDER BY created_at DESC`, patientID)
	if err != nil {
		return nil, apperr.Storage("billing", err)
	}
	return collectBillings(rows)
}
