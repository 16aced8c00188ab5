package model

import "time"

// Transfer lifecycle states.
const (
	TransferPendingApproval = "Pending Approval"
	TransferApproved        = "Approved"
	TransferDispatched      = "Dispatched"
	TransferInTransit       = "In Transit"
	TransferDelivered       = "Delivered"
	TransferCompleted       = "Completed"
	TransferCancelled       = "Cancelled"
)

// Transport modes for moving blood units between hospitals.
const (
	TransportAmbulance = "Ambulance"
	TransportCourier   = "Courier"
	TransportColdChain = "Cold Chain Vehicle"
)

// Transfer moves stock units from one hospital to another, usually to satisfy
// a patient request that the destination cannot fill locally.
type Transfer struct {
	ID             uint64
	FromHospitalID uint64
	ToHospitalID   uint64
	RequestID      *uint64
	TransportMode  *string
	TrackingNumber string
	Status         string
	ApprovedBy     *uint64
	DispatchDate   *time.Time
	DeliveryDate   *time.Time
	IssuesReported *string
	Notes          *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ValidTransportMode reports whether s names a transport mode.
func ValidTransportMode(s string) bool {
	return s == TransportAmbulance || s == TransportCourier || s == TransportColdChain
}
