package employee

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAgeAt_UsesImpreciseDayDivision(t *testing.T) {
	birth := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
	e := Employee{BirthDate: &birth}

	target := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 34, e.AgeAt(target))
}

func TestAgeAt_NoBirthDateYieldsZero(t *testing.T) {
	e := Employee{}
	assert.Equal(t, 0, e.AgeAt(time.Now()))
}

func TestSalarySettings_RoundTripsThroughJSON(t *testing.T) {
	original := SalarySettings{MonthlySalary: 300000, MonthlyPrescribedHours: 160}

	raw, err := original.Value()
	assert.NoError(t, err)

	var roundTripped SalarySettings
	assert.NoError(t, roundTripped.Scan(raw))
	assert.Equal(t, original, roundTripped)
}
