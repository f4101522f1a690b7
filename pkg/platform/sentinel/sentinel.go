package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and clients return these
// (optionally wrapped) so machines can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrExpired: challenge token or session has expired
// - ErrAlreadyUsed: one-time resource (challenge code) already consumed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: upstream or resource temporarily unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrExpired      = errors.New("expired")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
