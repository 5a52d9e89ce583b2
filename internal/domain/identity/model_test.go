package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigits(t *testing.T) {
	tests := map[string]string{
		"+7 (900) 123-45-67": "79001234567",
		"  ":                 "",
		"8-800":              "8800",
	}
	for in, want := range tests {
		assert.Equal(t, want, digits(in), "digits(%q)", in)
	}
}

func TestTrimOptional(t *testing.T) {
	blank := "   "
	assert.Nil(t, trimOptional(&blank))
	v := " Ivanovna "
	got := trimOptional(&v)
	require.NotNil(t, got)
	assert.Equal(t, "Ivanovna", *got)
	assert.Nil(t, trimOptional(nil))
}

func TestPatientValidate_BirthDateToday(t *testing.T) {
	today := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	p := newPatient()
	p.Email = "anna@example.com"
	p.BirthDate = today
	require.NoError(t, p.Validate(today), "a patient born today is valid")
	p.BirthDate = today.AddDate(0, 0, 1)
	assert.Error(t, p.Validate(today))
}

func TestDoctorValidate(t *testing.T) {
	d := newDoctor()
	d.Email = "ivan@clinic.test"
	empty := " "
	d.Patronymic = &empty
	require.NoError(t, d.Validate())
	assert.Nil(t, d.Patronymic, "blank patronymic is dropped")

	d.LastName = ""
	assert.Error(t, d.Validate())
}

func TestPatientUpdate_Apply(t *testing.T) {
	p := newPatient()
	born := time.Date(1991, 1, 1, 0, 0, 0, 0, time.UTC)
	pat := "Sergeevna"
	PatientUpdate{Patronymic: &pat, BirthDate: &born}.apply(p)

	require.NotNil(t, p.Patronymic)
	assert.Equal(t, "Sergeevna", *p.Patronymic)
	assert.True(t, p.BirthDate.Equal(born))
	assert.Equal(t, "Anna", p.FirstName)
}

func TestDoctorUpdate_Apply(t *testing.T) {
	d := newDoctor()
	phone := "8 901 111 22 33"
	DoctorUpdate{Phone: &phone}.apply(d)

	assert.Equal(t, "8 901 111 22 33", d.Phone)
	assert.Equal(t, "Sokolov", d.LastName)
	assert.Nil(t, d.SpecializationID)
}
