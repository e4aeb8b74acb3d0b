package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and services translate them into domain errors.
//
// These represent factual states about persisted rows, not validation
// failures:
// - ErrNotFound: row does not exist, or is not visible to the requesting owner
// - ErrConflict: a uniqueness constraint rejected the write
// - ErrExpired: a short-lived token exists but its expiry has passed
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrExpired  = errors.New("expired")
)
