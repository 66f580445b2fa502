package database

import "errors"

// Sentinel errors returned by repository lookups. Callers use errors.Is to
// map these onto HTTP status codes.
var (
	ErrNotFound = errors.New("database: not found")
)
