package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Registries and stores return these
// (optionally wrapped) so the engines can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the registry
// - ErrConflict: entity already exists or a uniqueness rule would break
// - ErrAlreadyUsed: single-use resource (voucher) already consumed
// - ErrInvalidState: entity in the wrong state for the requested operation
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
)
