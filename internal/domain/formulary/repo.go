package formulary

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type MedicamentRepository interface {
	Create(ctx context.Context, m *Medicament) error
	GetByID(ctx context.Context, id uuid.UUID) (*Medicament, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Medicament, error)
	GetByName(ctx context.Context, name string) (*Medicament, error)
	// Retire takes the medicament out of the catalog together with its
	// condition links and patient bars. Ledger rows keep pointing at it.
	Retire(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, search string, limit, offset int) ([]*Medicament, int, error)
	// OpenPrescriptionCount counts prescription records of the medicament
	// that have not ended by asOf, planned ones included.
	OpenPrescriptionCount(ctx context.Context, id uuid.UUID, asOf time.Time) (int, error)
}

type ContraindicationRepository interface {
	Create(ctx context.Context, c *Contraindication) error
	GetByID(ctx context.Context, id uuid.UUID) (*Contraindication, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Contraindication, error)
	GetByName(ctx context.Context, name string) (*Contraindication, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, search string, limit, offset int) ([]*Contraindication, int, error)
}

type InteractionRepository interface {
	// Create stores in if its pair is new and reports whether it did. An
	// existing pair is loaded into in.
	Create(ctx context.Context, in *Interaction) (bool, error)
	Delete(ctx context.Context, first, second uuid.UUID) error
	ListInvolving(ctx context.Context, ids []uuid.UUID) ([]*Interaction, error)
	List(ctx context.Context, limit, offset int) ([]*Interaction, int, error)
}

// LinkRepository stores medicament to general-contraindication links.
type LinkRepository interface {
	Link(ctx context.Context, medicamentID, contraindicationID uuid.UUID) error
	Unlink(ctx context.Context, medicamentID, contraindicationID uuid.UUID) error
	ListByMedicaments(ctx context.Context, medicamentIDs []uuid.UUID) ([]MedicamentContraindication, error)
}

// PatientContraindicationRepository stores direct patient contraindications.
type PatientContraindicationRepository interface {
	AddMedicament(ctx context.Context, patientID, medicamentID uuid.UUID) error
	RemoveMedicament(ctx context.Context, patientID, medicamentID uuid.UUID) error
	ListMedicaments(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error)
	AddCondition(ctx context.Context, patientID, contraindicationID uuid.UUID) error
	RemoveCondition(ctx context.Context, patientID, contraindicationID uuid.UUID) error
	ListConditions(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error)
}
