package model

import "time"

// Donation lifecycle states. Transitions are monotonic:
// Scheduled -> Screening | Deferred | Cancelled, Screening -> Completed | Deferred,
// and a Completed donation may still become Deferred once if lab tests come back
// positive. Cancelled and the post-lab states are terminal.
const (
	DonationScheduled = "Scheduled"
	DonationScreening = "Screening"
	DonationCompleted = "Completed"
	DonationDeferred  = "Deferred"
	DonationCancelled = "Cancelled"
)

// Lab test results per pathogen. Pending means the test has not been run.
const (
	LabPending  = "Pending"
	LabNegative = "Negative"
	LabPositive = "Positive"
)

// DeferralReasonLabPositive is the fixed reason recorded when a completed
// donation is deferred because any lab test came back positive.
const DeferralReasonLabPositive = "Failed post-donation lab screening"

// WholeBloodShelfLifeDays is how long a collected whole blood unit keeps.
const WholeBloodShelfLifeDays = 35

// Screening holds the pre-donation vitals snapshot recorded by hospital staff.
// It is written exactly once, at the Scheduled -> Screening/Deferred transition.
type Screening struct {
	Hemoglobin    float64 `json:"hemoglobin"`
	BloodPressure string  `json:"blood_pressure"`
	WeightKg      float64 `json:"weight_kg"`
	Temperature   float64 `json:"temperature"`
	Pulse         uint16  `json:"pulse"`
	Passed        bool    `json:"passed"`
	Remarks       *string `json:"remarks,omitempty"`
}

// LabTests holds the post-donation pathogen screen. TestedAt is set at most
// once; a second submission must be rejected.
type LabTests struct {
	HIV        string     `json:"hiv"`
	HepatitisB string     `json:"hepatitis_b"`
	HepatitisC string     `json:"hepatitis_c"`
	Malaria    string     `json:"malaria"`
	Syphilis   string     `json:"syphilis"`
	TestedAt   *time.Time `json:"tested_at,omitempty"`
}

// AnyPositive reports whether any pathogen result is Positive.
func (l LabTests) AnyPositive() bool {
	for _, r := range []string{l.HIV, l.HepatitisB, l.HepatitisC, l.Malaria, l.Syphilis} {
		if r == LabPositive {
			return true
		}
	}
	return false
}

// Complete reports whether every pathogen has a settled (non-Pending) result.
func (l LabTests) Complete() bool {
	for _, r := range []string{l.HIV, l.HepatitisB, l.HepatitisC, l.Malaria, l.Syphilis} {
		if r != LabNegative && r != LabPositive {
			return false
		}
	}
	return true
}

// FinalStatus returns the donation status implied by the lab results: Deferred
// when any result is positive, otherwise Completed.
func (l LabTests) FinalStatus() string {
	if l.AnyPositive() {
		return DonationDeferred
	}
	return DonationCompleted
}

// Donation is the central entity: one donor's booking at one hospital carried
// from scheduling through medical screening, collection and lab finalization.
// Donor, hospital and blood group are fixed at creation.
type Donation struct {
	ID             uint64
	DonorID        uint64
	HospitalID     uint64
	BloodGroup     string
	ScheduledDate  time.Time
	DonationDate   *time.Time
	Status         string
	Screening      *Screening
	LabTests       LabTests
	DeferralReason *string
	VerifiedBy     *uint64
	Notes          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidDonationStatus reports whether s names a lifecycle state.
func ValidDonationStatus(s string) bool {
	switch s {
	case DonationScheduled, DonationScreening, DonationCompleted, DonationDeferred, DonationCancelled:
		return true
	}
	return false
}

// ValidLabResult reports whether s is a settled lab result. Pending is not a
// submittable value: finalization requires every pathogen to be resolved.
func ValidLabResult(s string) bool {
	return s == LabNegative || s == LabPositive
}
