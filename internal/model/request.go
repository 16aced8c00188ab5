package model

import "time"

// Patient request lifecycle states.
const (
	RequestPending          = "Pending"
	RequestApproved         = "Approved"
	RequestRejected         = "Rejected"
	RequestAwaitingDonor    = "Awaiting Donor"
	RequestTransferRequired = "Transfer Required"
	RequestReadyForIssue    = "Ready for Issue"
	RequestCompleted        = "Completed"
	RequestCancelled        = "Cancelled"
)

// Request urgency levels.
const (
	UrgencyNormal    = "Normal"
	UrgencyUrgent    = "Urgent"
	UrgencyEmergency = "Emergency"
)

// Request is a patient's ask for blood units at a hospital. Approval reserves
// matching stock; when the hospital has none, the request parks in Awaiting
// Donor or Transfer Required until units arrive.
type Request struct {
	ID              uint64
	PatientID       uint64
	HospitalID      uint64
	BloodGroup      string
	ComponentType   string
	UnitsRequired   uint32
	Urgency         string
	RequiredDate    *time.Time
	Diagnosis       *string
	Status          string
	ApprovedBy      *uint64
	ApprovalDate    *time.Time
	RejectionReason *string
	TransferID      *uint64
	Notes           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ValidUrgency reports whether s names an urgency level.
func ValidUrgency(s string) bool {
	return s == UrgencyNormal || s == UrgencyUrgent || s == UrgencyEmergency
}
