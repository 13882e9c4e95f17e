package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into coded
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store (or belongs to another tenant)
// - ErrConflict: unique constraint or concurrent-update conflict
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrTenantMismatch: a write would cross the tenant boundary
// - ErrUnavailable: service or resource temporarily unavailable
// - ErrTransient: contention or deadlock; callers may retry with jitter
//
// For validation errors (bad input, missing fields), use pkg/domainerr.
var (
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrInvalidState   = errors.New("invalid state")
	ErrTenantMismatch = errors.New("tenant mismatch")
	ErrUnavailable    = errors.New("unavailable")
	ErrTransient      = errors.New("transient")
)
