package entitlement

import "errors"

var (
	// ErrAccountNotFound is returned when no account matches the lookup key
	ErrAccountNotFound = errors.New("account not found")

	// ErrUnresolved is returned when every resolution strategy failed
	ErrUnresolved = errors.New("account could not be resolved")

	// ErrStoreUnavailable is returned when the account store is unavailable
	ErrStoreUnavailable = errors.New("account store unavailable")

	// ErrInvalidUpdate is returned for a malformed entitlement update
	ErrInvalidUpdate = errors.New("invalid entitlement update")
)
