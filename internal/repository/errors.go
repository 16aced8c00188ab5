// Package repository implements data access over database/sql. Every state
// transition is a single conditional UPDATE whose WHERE clause carries the
// expected current state; when no row matches, a read-only diagnostic pass
// classifies the failure into one of the sentinel errors below. Handlers map
// these onto HTTP status codes.
package repository

import "errors"

// ErrNotFound is returned when the requested entity does not exist.
// Handlers translate it into HTTP 404.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller does not own the entity or their
// role does not permit the operation. Handlers translate it into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidState is returned when the entity exists but its current status
// does not permit the requested transition. Handlers translate it into
// HTTP 422.
var ErrInvalidState = errors.New("invalid state")

// ErrConflict is returned when a concurrent modification raced the caller:
// the conditional update matched nothing even though the entity appeared to
// be in the right state, or a uniqueness constraint fired. Handlers
// translate it into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned on registration when the email is taken.
var ErrEmailExists = errors.New("email already exists")

// ErrLicenseExists is returned when a hospital license number is already
// registered.
var ErrLicenseExists = errors.New("license number already exists")

// ErrActiveBookingExists is returned when a donor already has a Scheduled
// donation; the uniqueness constraint on (donor_id, booking_slot) enforces at
// most one live booking per donor.
var ErrActiveBookingExists = errors.New("active donation booking already exists")
