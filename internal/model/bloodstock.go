package model

import "time"

// Stock unit lifecycle states.
const (
	StockAvailable = "Available"
	StockReserved  = "Reserved"
	StockInTransit = "In Transit"
	StockIssued    = "Issued"
	StockExpired   = "Expired"
	StockDiscarded = "Discarded"
	StockProcessed = "Processed"
)

// Blood component types.
const (
	ComponentWholeBlood = "Whole Blood"
	ComponentRBC        = "RBC"
	ComponentPlasma     = "Plasma"
	ComponentPlatelets  = "Platelets"
)

// BloodStock is one inventory unit derived from a completed donation. A whole
// blood unit may later be separated into component children, in which case the
// parent becomes Processed and the children reference it via ParentUnitID.
type BloodStock struct {
	ID                   uint64
	UnitNumber           string
	HospitalID           uint64
	DonationID           uint64
	BloodGroup           string
	ComponentType        string
	Quantity             uint32
	ExpiryDate           time.Time
	Status               string
	RequestID            *uint64
	TransferID           *uint64
	ParentUnitID         *uint64
	IsComponentSeparated bool
	ScreeningPassed      bool
	Notes                *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ComponentShelfLifeDays returns the shelf life for a component type. Values
// follow standard blood-banking practice: red cells 42 days, plasma a year
// (frozen), platelets 5 days.
func ComponentShelfLifeDays(component string) int {
	switch component {
	case ComponentRBC:
		return 42
	case ComponentPlasma:
		return 365
	case ComponentPlatelets:
		return 5
	default:
		return WholeBloodShelfLifeDays
	}
}

// ValidComponentType reports whether s names a blood component.
func ValidComponentType(s string) bool {
	switch s {
	case ComponentWholeBlood, ComponentRBC, ComponentPlasma, ComponentPlatelets:
		return true
	}
	return false
}

// ValidStockStatus reports whether s names a stock state.
func ValidStockStatus(s string) bool {
	switch s {
	case StockAvailable, StockReserved, StockInTransit, StockIssued, StockExpired, StockDiscarded, StockProcessed:
		return true
	}
	return false
}
