package model

import "time"

// Hospital verification states. A profile starts Pending, may be Approved or
// Rejected by an admin, and a Rejected profile returns to Pending only through
// an owner resubmission.
const (
	VerificationPending  = "Pending"
	VerificationApproved = "Approved"
	VerificationRejected = "Rejected"
)

// Hospital facility types.
const (
	HospitalTypeHospital  = "Hospital"
	HospitalTypeBloodBank = "Blood Bank"
)

// Hospital is a facility profile created by a hospital-role account. It stays
// inactive until an admin approves it; only Approved, active hospitals accept
// donation bookings.
type Hospital struct {
	ID                     uint64
	Name                   string
	Type                   string
	LicenseNumber          string
	Street                 *string
	City                   *string
	State                  *string
	Pincode                *string
	Country                string
	ContactName            *string
	ContactDesignation     *string
	Phone                  *string
	VerificationStatus     string
	VerifiedBy             *uint64
	VerifiedAt             *time.Time
	RejectionReason        *string
	IsActive               bool
	StorageCapacity        *uint32
	HasComponentSeparation bool
	DocumentName           *string
	DocumentURL            *string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// AcceptsDonations reports whether the hospital may receive new bookings.
func (h *Hospital) AcceptsDonations() bool {
	return h.VerificationStatus == VerificationApproved && h.IsActive
}
