package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func allNegative() LabTests {
	return LabTests{
		HIV: LabNegative, HepatitisB: LabNegative, HepatitisC: LabNegative,
		Malaria: LabNegative, Syphilis: LabNegative,
	}
}

func TestLabTestsAnyPositive(t *testing.T) {
	lt := allNegative()
	assert.False(t, lt.AnyPositive())

	lt.Malaria = LabPositive
	assert.True(t, lt.AnyPositive())
}

func TestLabTestsComplete(t *testing.T) {
	lt := allNegative()
	assert.True(t, lt.Complete())

	lt.Syphilis = LabPending
	assert.False(t, lt.Complete())

	lt.Syphilis = "Indeterminate"
	assert.False(t, lt.Complete())
}

func TestLabTestsFinalStatus(t *testing.T) {
	lt := allNegative()
	assert.Equal(t, DonationCompleted, lt.FinalStatus())

	lt.HIV = LabPositive
	assert.Equal(t, DonationDeferred, lt.FinalStatus())
}

func TestValidDonationStatus(t *testing.T) {
	for _, s := range []string{DonationScheduled, DonationScreening, DonationCompleted, DonationDeferred, DonationCancelled} {
		assert.True(t, ValidDonationStatus(s), s)
	}
	assert.False(t, ValidDonationStatus("Booked"))
	assert.False(t, ValidDonationStatus(""))
}

func TestValidLabResult(t *testing.T) {
	assert.True(t, ValidLabResult(LabNegative))
	assert.True(t, ValidLabResult(LabPositive))
	assert.False(t, ValidLabResult(LabPending))
	assert.False(t, ValidLabResult("negative"))
}

func TestNextEligibleDate(t *testing.T) {
	donated := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, donated.AddDate(0, 0, MinDonationGapDays), NextEligibleDate(donated))
}

func TestDaysUntilEligible(t *testing.T) {
	last := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Same instant: the full gap remains.
	assert.Equal(t, MinDonationGapDays, DaysUntilEligible(last, last))

	// One hour into the gap still rounds up to the full count.
	assert.Equal(t, MinDonationGapDays, DaysUntilEligible(last, last.Add(time.Hour)))

	// Exactly one day in.
	assert.Equal(t, MinDonationGapDays-1, DaysUntilEligible(last, last.Add(24*time.Hour)))

	// Gap elapsed.
	assert.Equal(t, 0, DaysUntilEligible(last, last.Add(MinDonationGapDays*24*time.Hour)))
	assert.Equal(t, 0, DaysUntilEligible(last, last.Add(200*24*time.Hour)))
}

func TestComponentShelfLifeDays(t *testing.T) {
	assert.Equal(t, 42, ComponentShelfLifeDays(ComponentRBC))
	assert.Equal(t, 365, ComponentShelfLifeDays(ComponentPlasma))
	assert.Equal(t, 5, ComponentShelfLifeDays(ComponentPlatelets))
	assert.Equal(t, WholeBloodShelfLifeDays, ComponentShelfLifeDays(ComponentWholeBlood))
}

func TestValidBloodGroup(t *testing.T) {
	assert.True(t, ValidBloodGroup("O-"))
	assert.True(t, ValidBloodGroup("AB+"))
	assert.False(t, ValidBloodGroup("C+"))
	assert.False(t, ValidBloodGroup("o-"))
}
