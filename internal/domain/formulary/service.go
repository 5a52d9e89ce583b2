package formulary

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/clock"
	"github.com/clinic/clinic/internal/platform/db"
)

// Service is the contraindication knowledge base: the read surface used by
// the prescription safety checks plus reference-data maintenance.
type Service struct {
	medicaments       MedicamentRepository
	contraindications ContraindicationRepository
	interactions      InteractionRepository
	links             LinkRepository
	patients          PatientContraindicationRepository
	uow               db.UnitOfWork
	clock             clock.Clock
}

func NewService(
	meds MedicamentRepository,
	contras ContraindicationRepository,
	interactions InteractionRepository,
	links LinkRepository,
	patients PatientContraindicationRepository,
	uow db.UnitOfWork,
	clk clock.Clock,
) *Service {
	return &Service{
		medicaments:       meds,
		contraindications: contras,
		interactions:      interactions,
		links:             links,
		patients:          patients,
		uow:               uow,
		clock:             clk,
	}
}

// -- Safety-check queries --

func (s *Service) LookupMedicament(ctx context.Context, id uuid.UUID) (*Medicament, error) {
	m, err := s.medicaments.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup medicament %s: %w", id, err)
	}
	return m, nil
}

// LookupMedicaments resolves every id or fails with ErrNotFound naming the
// first unknown one in input order.
func (s *Service) LookupMedicaments(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Medicament, error) {
	found, err := s.medicaments.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]*Medicament, len(found))
	for _, m := range found {
		out[m.ID] = m
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, apperr.NotFound("medicament", id)
		}
	}
	return out, nil
}

// InteractionsInvolving returns one entry per stored interaction end that is
// in ids, annotated with the partner on the other end.
func (s *Service) InteractionsInvolving(ctx context.Context, ids []uuid.UUID) ([]InteractionPartner, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	stored, err := s.interactions.ListInvolving(ctx, ids)
	if err != nil {
		return nil, err
	}
	want := NewIDSet(ids...)
	seen := make(map[InteractionPartner]bool)
	var out []InteractionPartner
	for _, in := range stored {
		for _, end := range []uuid.UUID{in.FirstMedicamentID, in.SecondMedicamentID} {
			if !want.Has(end) {
				continue
			}
			partner, _ := in.Partner(end)
			p := InteractionPartner{MedicamentID: end, PartnerID: partner}
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	return out, nil
}

// DirectMedicamentContraindications is the set of medicaments the patient
// must never receive.
func (s *Service) DirectMedicamentContraindications(ctx context.Context, patientID uuid.UUID) (IDSet, error) {
	ids, err := s.patients.ListMedicaments(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return NewIDSet(ids...), nil
}

// DirectGeneralContraindications is the set of conditions the patient has.
func (s *Service) DirectGeneralContraindications(ctx context.Context, patientID uuid.UUID) (IDSet, error) {
	ids, err := s.patients.ListConditions(ctx, patientID)
	if err != nil {
		return nil, err
	}
	return NewIDSet(ids...), nil
}

// ConditionConflicts maps each medicament in ids to the conditions of the
// patient it is linked to. Medicaments with no such condition are absent.
func (s *Service) ConditionConflicts(ctx context.Context, patientID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID][]*Contraindication, error) {
	conditions, err := s.DirectGeneralContraindications(ctx, patientID)
	if err != nil || len(conditions) == 0 || len(ids) == 0 {
		return nil, err
	}
	links, err := s.links.ListByMedicaments(ctx, ids)
	if err != nil {
		return nil, err
	}

	hits := make(map[uuid.UUID][]uuid.UUID)
	needed := NewIDSet()
	for _, l := range links {
		if conditions.Has(l.ContraindicationID) {
			hits[l.MedicamentID] = append(hits[l.MedicamentID], l.ContraindicationID)
			needed.Add(l.ContraindicationID)
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	named, err := s.contraindications.GetByIDs(ctx, needed.Slice())
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*Contraindication, len(named))
	for _, c := range named {
		byID[c.ID] = c
	}

	out := make(map[uuid.UUID][]*Contraindication, len(hits))
	for medID, cids := range hits {
		for _, cid := range cids {
			if c, ok := byID[cid]; ok {
				out[medID] = append(out[medID], c)
			}
		}
	}
	return out, nil
}

// -- Medicaments --

// CreateMedicament stores m together with its interactions and condition
// links in one transaction.
func (s *Service) CreateMedicament(ctx context.Context, m *Medicament, interactsWith, contraindicationIDs []uuid.UUID) error {
	m.Name = NormalizeName(m.Name)
	if m.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	return s.uow.Do(ctx, func(ctx context.Context) error {
		if err := s.medicaments.Create(ctx, m); err != nil {
			return err
		}
		for _, other := range interactsWith {
			if _, _, err := s.addInteraction(ctx, m.ID, other); err != nil {
				return err
			}
		}
		for _, cid := range contraindicationIDs {
			if _, err := s.contraindications.GetByID(ctx, cid); err != nil {
				return err
			}
			if err := s.links.Link(ctx, m.ID, cid); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureMedicament returns the medicament with the given name, creating it
// when absent.
func (s *Service) EnsureMedicament(ctx context.Context, name string, description *string) (*Medicament, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, apperr.Invalid("name", "is required")
	}
	if m, err := s.medicaments.GetByName(ctx, name); err == nil {
		return m, nil
	} else if !isNotFound(err) {
		return nil, err
	}
	m := &Medicament{Name: name, Description: description}
	if err := s.medicaments.Create(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetMedicament(ctx context.Context, id uuid.UUID) (*Medicament, error) {
	return s.medicaments.GetByID(ctx, id)
}

func (s *Service) ListMedicaments(ctx context.Context, search string, limit, offset int) ([]*Medicament, int, error) {
	return s.medicaments.List(ctx, NormalizeName(search), limit, offset)
}

// DeleteMedicament retires a medicament that no current or planned
// prescription uses. Ended prescriptions keep their history.
func (s *Service) DeleteMedicament(ctx context.Context, id uuid.UUID) error {
	return s.uow.Do(ctx, func(ctx context.Context) error {
		if _, err := s.medicaments.GetByID(ctx, id); err != nil {
			return err
		}
		n, err := s.medicaments.OpenPrescriptionCount(ctx, id, clock.Today(s.clock))
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflict("medicament %s is in %d current or planned prescription(s)", id, n)
		}
		// Remove pairs one by one so cached partner lists are dropped too.
		pairs, err := s.interactions.ListInvolving(ctx, []uuid.UUID{id})
		if err != nil {
			return err
		}
		for _, in := range pairs {
			if err := s.interactions.Delete(ctx, in.FirstMedicamentID, in.SecondMedicamentID); err != nil {
				return err
			}
		}
		return s.medicaments.Retire(ctx, id)
	})
}

// Profile lists the medicaments that interact with id and the conditions
// linked to it.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (*MedicamentProfile, error) {
	m, err := s.medicaments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	partners, err := s.InteractionsInvolving(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	partnerIDs := make([]uuid.UUID, 0, len(partners))
	for _, p := range partners {
		partnerIDs = append(partnerIDs, p.PartnerID)
	}

	profile := &MedicamentProfile{Medicament: m, Interactions: []*Medicament{}, Contraindications: []*Contraindication{}}
	if len(partnerIDs) > 0 {
		if profile.Interactions, err = s.medicaments.GetByIDs(ctx, partnerIDs); err != nil {
			return nil, err
		}
	}

	links, err := s.links.ListByMedicaments(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(links) > 0 {
		cids := make([]uuid.UUID, len(links))
		for i, l := range links {
			cids[i] = l.ContraindicationID
		}
		if profile.Contraindications, err = s.contraindications.GetByIDs(ctx, cids); err != nil {
			return nil, err
		}
	}
	return profile, nil
}

// -- General contraindications --

func (s *Service) CreateContraindication(ctx context.Context, c *Contraindication) error {
	c.Name = NormalizeName(c.Name)
	if c.Name == "" {
		return apperr.Invalid("name", "is required")
	}
	return s.contraindications.Create(ctx, c)
}

// EnsureContraindication returns the condition with the given name, creating
// it when absent.
func (s *Service) EnsureContraindication(ctx context.Context, name string, description *string) (*Contraindication, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, apperr.Invalid("name", "is required")
	}
	if c, err := s.contraindications.GetByName(ctx, name); err == nil {
		return c, nil
	} else if !isNotFound(err) {
		return nil, err
	}
	c := &Contraindication{Name: name, Description: description}
	if err := s.contraindications.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) ListContraindications(ctx context.Context, search string, limit, offset int) ([]*Contraindication, int, error) {
	return s.contraindications.List(ctx, NormalizeName(search), limit, offset)
}

func (s *Service) DeleteContraindication(ctx context.Context, id uuid.UUID) error {
	return s.contraindications.Delete(ctx, id)
}

// -- Interactions --

// AddInteraction stores the unordered pair (a, b). Adding an existing pair
// in either order returns the stored row with created == false.
func (s *Service) AddInteraction(ctx context.Context, a, b uuid.UUID) (*Interaction, bool, error) {
	var in *Interaction
	var created bool
	err := s.uow.Do(ctx, func(ctx context.Context) error {
		var err error
		in, created, err = s.addInteraction(ctx, a, b)
		return err
	})
	return in, created, err
}

func (s *Service) addInteraction(ctx context.Context, a, b uuid.UUID) (*Interaction, bool, error) {
	if a == b {
		return nil, false, apperr.Invalid("second_medicament_id", "a medicament cannot interact with itself")
	}
	if _, err := s.LookupMedicaments(ctx, []uuid.UUID{a, b}); err != nil {
		return nil, false, err
	}
	in := NewInteraction(a, b)
	created, err := s.interactions.Create(ctx, &in)
	if err != nil {
		return nil, false, err
	}
	return &in, created, nil
}

func (s *Service) RemoveInteraction(ctx context.Context, a, b uuid.UUID) error {
	return s.interactions.Delete(ctx, a, b)
}

func (s *Service) ListInteractions(ctx context.Context, limit, offset int) ([]*Interaction, int, error) {
	return s.interactions.List(ctx, limit, offset)
}

// -- Medicament to condition links --

func (s *Service) LinkContraindication(ctx context.Context, medicamentID, contraindicationID uuid.UUID) error {
	if _, err := s.medicaments.GetByID(ctx, medicamentID); err != nil {
		return err
	}
	if _, err := s.contraindications.GetByID(ctx, contraindicationID); err != nil {
		return err
	}
	return s.links.Link(ctx, medicamentID, contraindicationID)
}

func (s *Service) UnlinkContraindication(ctx context.Context, medicamentID, contraindicationID uuid.UUID) error {
	return s.links.Unlink(ctx, medicamentID, contraindicationID)
}

// -- Patient direct contraindications --

func (s *Service) AddPatientMedicamentContraindication(ctx context.Context, patientID, medicamentID uuid.UUID) error {
	if _, err := s.medicaments.GetByID(ctx, medicamentID); err != nil {
		return err
	}
	return s.patients.AddMedicament(ctx, patientID, medicamentID)
}

func (s *Service) RemovePatientMedicamentContraindication(ctx context.Context, patientID, medicamentID uuid.UUID) error {
	return s.patients.RemoveMedicament(ctx, patientID, medicamentID)
}

func (s *Service) AddPatientCondition(ctx context.Context, patientID, contraindicationID uuid.UUID) error {
	if _, err := s.contraindications.GetByID(ctx, contraindicationID); err != nil {
		return err
	}
	return s.patients.AddCondition(ctx, patientID, contraindicationID)
}

func (s *Service) RemovePatientCondition(ctx context.Context, patientID, contraindicationID uuid.UUID) error {
	return s.patients.RemoveCondition(ctx, patientID, contraindicationID)
}

// PatientRestrictions resolves the patient's direct contraindications to
// named entities.
func (s *Service) PatientRestrictions(ctx context.Context, patientID uuid.UUID) (*PatientRestrictions, error) {
	out := &PatientRestrictions{PatientID: patientID, Medicaments: []*Medicament{}, Conditions: []*Contraindication{}}

	medIDs, err := s.patients.ListMedicaments(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(medIDs) > 0 {
		if out.Medicaments, err = s.medicaments.GetByIDs(ctx, medIDs); err != nil {
			return nil, err
		}
	}

	condIDs, err := s.patients.ListConditions(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(condIDs) > 0 {
		if out.Conditions, err = s.contraindications.GetByIDs(ctx, condIDs); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
