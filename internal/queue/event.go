// Package queue defines message payloads exchanged over the message broker.
package queue

// DonationCompletedEvent is published after a donation is collected and a
// stock unit is created. Downstream consumers log, notify the donor, or feed
// analytics without touching the primary database.
type DonationCompletedEvent struct {
	DonationID   uint64 `json:"donation_id"`
	DonorID      uint64 `json:"donor_id"`
	HospitalID   uint64 `json:"hospital_id"`
	HospitalName string `json:"hospital_name"`
	BloodGroup   string `json:"blood_group"`
	UnitNumber   string `json:"unit_number"`
	DonatedAt    string `json:"donated_at"`
	NextEligible string `json:"next_eligible"`
}

// DonationDeferredEvent is published when a donation is deferred, either at
// screening or after a positive lab result. Consumers use it for donor
// follow-up notifications.
type DonationDeferredEvent struct {
	DonationID uint64 `json:"donation_id"`
	DonorID    uint64 `json:"donor_id"`
	HospitalID uint64 `json:"hospital_id"`
	Reason     string `json:"reason"`
	DeferredAt string `json:"deferred_at"`
}

// EmailVerificationEvent carries a one-time code for account verification.
// A mailer service consumes these; the API never talks SMTP itself.
type EmailVerificationEvent struct {
	UserID    uint64 `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	ExpiresAt string `json:"expires_at"`
}
