package formulary

import (
	"bytes"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Medicament struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Contraindication is a general condition or allergy, not tied to a drug.
type Contraindication struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Interaction is an unordered medicament pair stored with
// FirstMedicamentID < SecondMedicamentID.
type Interaction struct {
	ID                 uuid.UUID `db:"id" json:"id"`
	FirstMedicamentID  uuid.UUID `db:"first_medicament_id" json:"first_medicament_id"`
	SecondMedicamentID uuid.UUID `db:"second_medicament_id" json:"second_medicament_id"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// NewInteraction returns the canonical form of the pair (a, b).
func NewInteraction(a, b uuid.UUID) Interaction {
	first, second := CanonicalPair(a, b)
	return Interaction{FirstMedicamentID: first, SecondMedicamentID: second}
}

// Partner returns the other end of the pair when id is one of its ends.
func (i Interaction) Partner(id uuid.UUID) (uuid.UUID, bool) {
	switch id {
	case i.FirstMedicamentID:
		return i.SecondMedicamentID, true
	case i.SecondMedicamentID:
		return i.FirstMedicamentID, true
	}
	return uuid.Nil, false
}

// CanonicalPair orders two ids the way Postgres orders uuid values.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

// InteractionPartner is one direction of a stored interaction: MedicamentID
// interacts with PartnerID.
type InteractionPartner struct {
	MedicamentID uuid.UUID `json:"medicament_id"`
	PartnerID    uuid.UUID `json:"partner_id"`
}

type MedicamentContraindication struct {
	MedicamentID       uuid.UUID `db:"medicament_id" json:"medicament_id"`
	ContraindicationID uuid.UUID `db:"contraindication_id" json:"contraindication_id"`
}

// PatientMedicamentContraindication bars a patient from one medicament.
type PatientMedicamentContraindication struct {
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	MedicamentID uuid.UUID `db:"medicament_id" json:"medicament_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PatientContraindication records that a patient has a general condition.
type PatientContraindication struct {
	PatientID          uuid.UUID `db:"patient_id" json:"patient_id"`
	ContraindicationID uuid.UUID `db:"contraindication_id" json:"contraindication_id"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// MedicamentProfile is everything that rules a medicament out: the
// medicaments it interacts with and the conditions it is linked to.
type MedicamentProfile struct {
	Medicament        *Medicament         `json:"medicament"`
	Interactions      []*Medicament       `json:"interacting_medicaments"`
	Contraindications []*Contraindication `json:"contraindications"`
}

// PatientRestrictions lists a patient's direct contraindications.
type PatientRestrictions struct {
	PatientID   uuid.UUID           `json:"patient_id"`
	Medicaments []*Medicament       `json:"medicaments"`
	Conditions  []*Contraindication `json:"conditions"`
}

// NormalizeName trims a display name and collapses inner whitespace.
// Uniqueness is enforced case-insensitively on the result.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// IDSet is a set of entity ids.
type IDSet map[uuid.UUID]struct{}

func NewIDSet(ids ...uuid.UUID) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id uuid.UUID) { s[id] = struct{}{} }

func (s IDSet) Slice() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}
