package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
)

const (
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusScheduled: true,
	StatusCompleted: true,
	StatusCancelled: true,
}

// Schedule is one bookable slot in a doctor's calendar. StartTime and
// EndTime are wall-clock "HH:MM" in the clinic's time zone.
type Schedule struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DoctorName   string    `db:"doctor_name" json:"doctor_name"`
	OfficeNumber string    `db:"office_number" json:"office_number"`
	Date         time.Time `db:"date" json:"date"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	IsAvailable  bool      `db:"is_available" json:"is_available"`
	Booked       bool      `db:"booked" json:"booked"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (s *Schedule) Validate() error {
	if s.DoctorID == uuid.Nil {
		return apperr.Invalid("doctor_id", "is required")
	}
	if s.OfficeNumber == "" {
		return apperr.Invalid("office_number", "is required")
	}
	if s.Date.IsZero() {
		return apperr.Invalid("date", "is required")
	}
	start, err := ParseClock(s.StartTime)
	if err != nil {
		return apperr.Invalid("start_time", "must be HH:MM")
	}
	end, err := ParseClock(s.EndTime)
	if err != nil {
		return apperr.Invalid("end_time", "must be HH:MM")
	}
	if end <= start {
		return apperr.Invalid("end_time", "must be after start_time")
	}
	return nil
}

// StartsAt is the slot's start as minutes since midnight.
func (s *Schedule) StartsAt() int {
	m, _ := ParseClock(s.StartTime)
	return m
}

// ParseClock converts "HH:MM" (or "HH:MM:SS") to minutes since midnight.
func ParseClock(s string) (int, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", s)
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Window describes a working period to be cut into equal slots.
type Window struct {
	DoctorID     uuid.UUID
	OfficeNumber string
	Date         time.Time
	StartTime    string
	EndTime      string
	Count        int
}

// Split cuts the window into Count slots of floor((end-start)/Count)
// minutes each, starting at StartTime.
func (w Window) Split() ([]*Schedule, error) {
	start, err := ParseClock(w.StartTime)
	if err != nil {
		return nil, apperr.Invalid("start_time", "must be HH:MM")
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return nil, apperr.Invalid("end_time", "must be HH:MM")
	}
	if end <= start {
		return nil, apperr.Invalid("end_time", "must be after start_time")
	}
	if w.Count <= 0 {
		return nil, apperr.Invalid("count", "must be positive")
	}
	length := (end - start) / w.Count
	if length == 0 {
		return nil, apperr.Invalid("count", "window of %d minutes cannot hold %d slots", end-start, w.Count)
	}

	out := make([]*Schedule, 0, w.Count)
	for i := 0; i < w.Count; i++ {
		from := start + i*length
		out = append(out, &Schedule{
			DoctorID:     w.DoctorID,
			OfficeNumber: w.OfficeNumber,
			Date:         w.Date,
			StartTime:    FormatClock(from),
			EndTime:      FormatClock(from + length),
			IsAvailable:  true,
		})
	}
	return out, nil
}

// Appointment is a patient's booking of a schedule slot, also called a
// visit. Information is an append-only log; entries are separated by a
// blank line.
type Appointment struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	ScheduleID   uuid.UUID `db:"schedule_id" json:"schedule_id"`
	Status       string    `db:"status" json:"status"`
	Information  *string   `db:"information" json:"information,omitempty"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DoctorName   string    `db:"doctor_name" json:"doctor_name"`
	OfficeNumber string    `db:"office_number" json:"office_number"`
	Date         time.Time `db:"date" json:"date"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

const (
	BillingPending = "pending"
	BillingPaid    = "paid"
)

var validBillingStatuses = map[string]bool{
	BillingPending: true,
	BillingPaid:    true,
}

// Billing is the charge for one appointment, in minor currency units.
type Billing struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	AppointmentID uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	AmountCents   int64      `db:"amount_cents" json:"amount_cents"`
	Description   *string    `db:"description" json:"description,omitempty"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	PaidAt        *time.Time `db:"paid_at" json:"paid_at,omitempty"`
}

func (b *Billing) Validate() error {
	if b.AppointmentID == uuid.Nil {
		return apperr.Invalid("appointment_id", "is required")
	}
	if b.AmountCents <= 0 {
		return apperr.Invalid("amount_cents", "must be positive")
	}
	return nil
}

// InformationSeparator joins entries of an appointment's information log.
const InformationSeparator = "\n\n"

// AppendEntry returns log with entry appended.
func AppendEntry(log *string, entry string) string {
	if log == nil || *log == "" {
		return entry
	}
	return *log + InformationSeparator + entry
}
