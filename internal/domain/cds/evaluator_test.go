package cds

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinic/clinic/internal/platform/apperr"
)

func TestEvaluate_NoConflicts(t *testing.T) {
	f := newFixture()
	a := f.kb.medicament("Paracetamol")

	eval, err := f.evaluator.Evaluate(context.Background(), f.patient, today, []Candidate{candidate(a)})
	require.NoError(t, err)
	require.Len(t, eval.Verdicts, 1)
	assert.True(t, eval.Verdicts[0].Admitted())
	assert.Equal(t, a, eval.Verdicts[0].Medicament)
	assert.Empty(t, eval.Conflicts())
}

func TestEvaluate_ActiveWindowBoundaries(t *testing.T) {
	f := newFixture()
	endsToday := f.kb.medicament("Warfarin")
	endedYesterday := f.kb.medicament("Aspirin")
	f.ledger.take(f.patient, endsToday, today.AddDate(0, 0, -30), &today)
	f.ledger.take(f.patient, endedYesterday, today.AddDate(0, 0, -30), &yesterday)

	eval, err := f.evaluator.Evaluate(context.Background(), f.patient, today,
		[]Candidate{candidate(endsToday), candidate(endedYesterday)})
	require.NoError(t, err)
	assert.False(t, eval.Verdicts[0].Admitted(), "a record ending today is still active")
	assert.True(t, eval.Verdicts[1].Admitted(), "a record that ended yesterday is not")
}

func TestEvaluate_AlreadyTakingCitesStartAndStatus(t *testing.T) {
	f := newFixture()
	a := f.kb.medicament("Warfarin")
	f.ledger.take(f.patient, a, today.AddDate(0, 0, -9), nil)

	eval, err := f.evaluator.Evaluate(context.Background(), f.patient, today, []Candidate{candidate(a)})
	require.NoError(t, err)
	assert.Equal(t, []string{"already being taken (since 2026-03-01, active)"}, eval.Verdicts[0].Reasons)
}

func TestEvaluate_InteractionSymmetry(t *testing.T) {
	for _, activeFirst := range []bool{true, false} {
		f := newFixture()
		a := f.kb.medicament("Warfarin")
		b := f.kb.medicament("Aspirin")
		f.kb.interact(a, b)

		active, prescribed := a, b
		if !activeFirst {
			active, prescribed = b, a
		}
		f.ledger.take(f.patient, active, yesterday, nil)

		eval, err := f.evaluator.Evaluate(context.Background(), f.patient, today, []Candidate{candidate(prescribed)})
		require.NoError(t, err)
		require.False(t, eval.Verdicts[0].Admitted())
		assert.Equal(t,
			[]string{"interacts with active medicament " + active.Name + " (since 2026-03-09, active)"},
			eval.Verdicts[0].Reasons)
	}
}

func TestEvaluate_CoPrescribedPairConflictsBothWays(t *testing.T) {
	f := newFixture()
	x := f.kb.medicament("Clarithromycin")
	y := f.kb.medicament("Simvastatin")
	z := f.kb.medicament("Paracetamol")
	f.kb.interact(y, x)

	eval, err := f.evaluator.Evaluate(context.Background(), f.patient, today,
		[]Candidate{candidate(x), candidate(z), candidate(y)})
	require.NoError(t, err)
	assert.Equal(t, []string{"interacts with co-prescribed medicament Simvastatin"}, eval.Verdicts[0].Reasons)
	assert.True(t, eval.Verdicts[1].Admitted())
	assert.Equal(t, []string{"interacts with co-prescribed medicament Clarithromycin"}, eval.Verdicts[2].Reasons)
}

func TestEvaluate_DirectContraindicationAlone(t *testing.T) {
	f := newFixture()
	a := f.kb.medicament("Penicillin")
	f.kb.bar(f.patient, a)

	eval, err := f.evaluator.Evaluate(context.Background(), f.patient, today, []Candidate{candidate(a)})
	require.NoError(t, err)
	assert.Equal(t, []string{ReasonDirect}, eval.Verdicts[0].Reasons)

	other, err := f.evaluator.Evaluate(context.Background(), uuid.New(), today, []Candidate{candidate(a)})
	require.NoError(t, err)
	assert.True(t, other.Verdicts[0].Admitted(), "the bar is patient-specific")
}

func TestEvaluate_ConditionContraindication(t *testing.T) {
	f := newFixture()
	a := f.kb.medicament("Ibuprofen")
	f.kb.condition(f.patient, a, "Peptic ulcer")

	eval, err := f.evaluator.Evaluate(context.Background(), f.patient, today, []Candidate{candidate(a)})
	require.NoError(t, err)
	assert.Equal(t, []string{"contraindicated by patient condition Peptic ulcer"}, eval.Verdicts[0].Reasons)
}

func TestEvaluate_ReasonOrder(t *testing.T) {
	f := newFixture()
	a := f.kb.medicament("Warfarin")
	b := f.kb.medicament("Aspirin")
	c := f.kb.medicament("Ibuprofen")
	f.kb.interact(a, b)
	f.kb.interact(a, c)
	f.kb.bar(f.patient, a)
	f.ledger.take(f.patient, a, yesterday, nil)
	f.ledger.take(f.patient, b, yesterday, nil)

	eval, err := f.evaluator.Evaluate(context.Background(), f.patient, today, []Candidate{candidate(a), candidate(c)})
	require.NoError(t, err)
	assert.Equal(t, []string{
		ReasonDirect,
		"already being taken (since 2026-03-09, active)",
		"interacts with active medicament Aspirin (since 2026-03-09, active)",
		"interacts with co-prescribed medicament Ibuprofen",
	}, eval.Verdicts[0].Reasons)
	assert.Equal(t, []string{
		"interacts with active medicament Warfarin (since 2026-03-09, active)",
		"interacts with co-prescribed medicament Warfarin",
	}, eval.Verdicts[1].Reasons)
}

func TestEvaluate_NoDuplicateReasons(t *testing.T) {
	f := newFixture()
	a := f.kb.medicament("Warfarin")
	b := f.kb.medicament("Aspirin")
	f.kb.interact(a, b)
	f.kb.interact(b, a)
	f.ledger.take(f.patient, b, yesterday, nil)
	f.ledger.take(f.patient, b, today.AddDate(0, 0, -5), nil)

	eval, err := f.evaluator.Evaluate(context.Background(), f.patient, today, []Candidate{candidate(a)})
	require.NoError(t, err)
	assert.Len(t, eval.Verdicts[0].Reasons, 1)
}

func TestEvaluate_UnknownMedicament(t *testing.T) {
	f := newFixture()
	a := f.kb.medicament("Warfarin")

	_, err := f.evaluator.Evaluate(context.Background(), f.patient, today,
		[]Candidate{candidate(a), {MedicamentID: uuid.New(), Dosage: "1", Frequency: "1", StartDate: today}})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEvaluate_MalformedBatch(t *testing.T) {
	f := newFixture()
	a := f.kb.medicament("Warfarin")
	noDosage := candidate(a)
	noDosage.Dosage = " "
	reversed := candidate(a)
	reversed.EndDate = &yesterday

	tests := []struct {
		name  string
		batch []Candidate
		field string
	}{
		{"empty", nil, "medicaments"},
		{"missing dosage", []Candidate{noDosage}, "medicaments[0].dosage"},
		{"end before start", []Candidate{reversed}, "medicaments[0].end_date"},
		{"duplicate medicament", []Candidate{candidate(a), candidate(a)}, "medicaments[1].medicament_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.evaluator.Evaluate(context.Background(), f.patient, today, tt.batch)
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestEvaluate_FutureRecordIsNotActive(t *testing.T) {
	f := newFixture()
	a := f.kb.medicament("Warfarin")
	f.ledger.take(f.patient, a, today.AddDate(0, 0, 1), nil)

	eval, err := f.evaluator.Evaluate(context.Background(), f.patient, today, []Candidate{candidate(a)})
	require.NoError(t, err)
	assert.True(t, eval.Verdicts[0].Admitted())
}
