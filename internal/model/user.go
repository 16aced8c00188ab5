package model

import "time"

// Roles accepted by the service. The role is carried in the JWT and drives
// route-level authorization.
const (
	RoleAdmin    = "admin"
	RoleDonor    = "donor"
	RolePatient  = "patient"
	RoleHospital = "hospital"
)

// Donor eligibility states. A donor becomes Temporarily Not Eligible for
// MinDonationGapDays after completing a donation and Deferred after a failed
// screening or positive lab result.
const (
	EligibilityEligible  = "Eligible"
	EligibilityTemporary = "Temporarily Not Eligible"
	EligibilityDeferred  = "Deferred"
)

// MinDonationGapDays is the minimum number of days between two completed
// donations by the same donor.
const MinDonationGapDays = 90

// User represents a row in the users table. Donor-specific fields
// (BloodGroup, Age, WeightKg, eligibility tracking) are null for other roles;
// HospitalID links hospital-role accounts to their hospital profile.
type User struct {
	ID                 uint64
	Name               string
	Email              string
	PasswordHash       string
	Phone              *string
	Role               string
	BloodGroup         *string
	Age                *uint8
	WeightKg           *float64
	Gender             *string
	MedicalHistory     *string
	EligibilityStatus  string
	LastDonationDate   *time.Time
	NextEligibleDate   *time.Time
	HospitalID         *uint64
	IsActive           bool
	IsVerified         bool
	IsHospitalVerified bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// RefreshToken models a row in refresh_tokens. Only the SHA-256 hash of the
// token is stored; the raw value is returned to the client once.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// ValidBloodGroup reports whether s is one of the eight recognised groups.
func ValidBloodGroup(s string) bool {
	switch s {
	case "A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-":
		return true
	}
	return false
}

// NextEligibleDate returns the first day a donor may donate again after
// completing a donation on the given date.
func NextEligibleDate(donationDate time.Time) time.Time {
	return donationDate.UTC().Add(MinDonationGapDays * 24 * time.Hour)
}

// DaysUntilEligible returns how many whole days remain before a donor whose
// last donation was at last may donate again, measured at now. Zero means the
// gap has elapsed.
func DaysUntilEligible(last, now time.Time) int {
	remaining := MinDonationGapDays*24*time.Hour - now.Sub(last)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}
