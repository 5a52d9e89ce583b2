package cds

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/clinic/clinic/internal/domain/formulary"
	"github.com/clinic/clinic/internal/domain/medication"
	"github.com/clinic/clinic/internal/platform/apperr"
)

// KnowledgeBase is the contraindication reference data the evaluator reads.
type KnowledgeBase interface {
	LookupMedicaments(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*formulary.Medicament, error)
	InteractionsInvolving(ctx context.Context, ids []uuid.UUID) ([]formulary.InteractionPartner, error)
	DirectMedicamentContraindications(ctx context.Context, patientID uuid.UUID) (formulary.IDSet, error)
	ConditionConflicts(ctx context.Context, patientID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID][]*formulary.Contraindication, error)
}

// ActiveLedger returns a patient's prescriptions active on a date.
type ActiveLedger interface {
	ActiveMedicaments(ctx context.Context, patientID uuid.UUID, asOf time.Time) ([]*medication.PatientMedication, error)
}

const ReasonDirect = "direct contraindication"

// Evaluator decides, for a batch of candidates, which ones may be added to
// a patient's active medication. It never writes.
type Evaluator struct {
	kb     KnowledgeBase
	ledger ActiveLedger
}

func NewEvaluator(kb KnowledgeBase, ledger ActiveLedger) *Evaluator {
	return &Evaluator{kb: kb, ledger: ledger}
}

// Evaluate checks every candidate against the patient's direct
// contraindications, the medicaments active on today and the rest of the
// batch. Conflicts are reported in the verdicts; errors mean the batch
// itself is unusable.
func (e *Evaluator) Evaluate(ctx context.Context, patientID uuid.UUID, today time.Time, candidates []Candidate) (*Evaluation, error) {
	if len(candidates) == 0 {
		return nil, apperr.Invalid("medicaments", "at least one medicament is required")
	}
	ids := make([]uuid.UUID, len(candidates))
	batch := formulary.NewIDSet()
	for i, c := range candidates {
		if err := c.validate(i); err != nil {
			return nil, err
		}
		if batch.Has(c.MedicamentID) {
			return nil, apperr.Invalid(fmt.Sprintf("medicaments[%d].medicament_id", i), "is listed more than once")
		}
		batch.Add(c.MedicamentID)
		ids[i] = c.MedicamentID
	}

	meds, err := e.kb.LookupMedicaments(ctx, ids)
	if err != nil {
		return nil, err
	}

	activeRecords, err := e.ledger.ActiveMedicaments(ctx, patientID, today)
	if err != nil {
		return nil, fmt.Errorf("load active medicaments: %w", err)
	}
	active := make(map[uuid.UUID]*medication.PatientMedication, len(activeRecords))
	for _, rec := range activeRecords {
		if _, seen := active[rec.MedicamentID]; !seen {
			active[rec.MedicamentID] = rec
		}
	}

	direct, err := e.kb.DirectMedicamentContraindications(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("load direct contraindications: %w", err)
	}
	conditions, err := e.kb.ConditionConflicts(ctx, patientID, ids)
	if err != nil {
		return nil, fmt.Errorf("load condition contraindications: %w", err)
	}
	pairs, err := e.kb.InteractionsInvolving(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load interactions: %w", err)
	}
	partners := make(map[uuid.UUID][]uuid.UUID)
	for _, p := range pairs {
		partners[p.MedicamentID] = append(partners[p.MedicamentID], p.PartnerID)
	}

	nameOf := func(id uuid.UUID) string {
		if m, ok := meds[id]; ok {
			return m.Name
		}
		if rec, ok := active[id]; ok {
			return rec.MedicamentName
		}
		return id.String()
	}

	out := &Evaluation{Verdicts: make([]Verdict, len(candidates))}
	for i, c := range candidates {
		m := c.MedicamentID
		var r reasons

		if direct.Has(m) {
			r.add(ReasonDirect)
		}
		for _, cond := range conditions[m] {
			r.add("contraindicated by patient condition " + cond.Name)
		}

		if rec, ok := active[m]; ok {
			r.add("already being taken " + qualifier(rec, today))
		}

		ps := append([]uuid.UUID(nil), partners[m]...)
		sort.SliceStable(ps, func(a, b int) bool { return nameOf(ps[a]) < nameOf(ps[b]) })
		for _, p := range ps {
			if rec, ok := active[p]; ok {
				r.add(fmt.Sprintf("interacts with active medicament %s %s", nameOf(p), qualifier(rec, today)))
			}
			if p != m && batch.Has(p) {
				r.add("interacts with co-prescribed medicament " + nameOf(p))
			}
		}

		out.Verdicts[i] = Verdict{Index: i, Candidate: c, Medicament: meds[m], Reasons: r.list}
	}
	return out, nil
}

// qualifier describes an existing record relative to today, e.g.
// "(since 2026-03-01, active)".
func qualifier(rec *medication.PatientMedication, today time.Time) string {
	return fmt.Sprintf("(since %s, %s)", rec.StartDate.Format(time.DateOnly), rec.StatusAt(today))
}

// reasons keeps first-seen order and drops repeats.
type reasons struct {
	list []string
	seen map[string]bool
}

func (r *reasons) add(reason string) {
	if r.seen == nil {
		r.seen = make(map[string]bool)
	}
	if !r.seen[reason] {
		r.seen[reason] = true
		r.list = append(r.list, reason)
	}
}
