package entitlement

import "time"

// Account represents an application user account as seen by the billing
// layer. Accounts are created by the signup flow with Premium=false and no
// provider identifiers; only Apply mutates the entitlement fields.
type Account struct {
	// ID is the internal account identifier.
	ID string

	// Email is the unique address used as the fallback resolution path
	// when a billing event carries no internal identifier.
	Email string

	// DisplayName is the user-facing name. Never written by this package.
	DisplayName string

	// Premium reflects the most recent known subscription status for
	// SubscriptionID, once one exists.
	Premium bool

	// CustomerID is the billing provider's customer identifier.
	// Empty until the first successful checkout.
	CustomerID string

	// SubscriptionID is the billing provider's subscription identifier.
	// Empty until a subscription exists, cleared on subscription removal.
	SubscriptionID string

	// UpdatedAt is the time of the last entitlement write.
	UpdatedAt time.Time
}

// Update is the atomic write unit for entitlement state. Applying the same
// Update twice leaves the account identical to a single application: every
// field is a pure overwrite, never an increment or toggle.
//
// CustomerID and SubscriptionID use pointer semantics:
//   - nil: leave the stored value untouched
//   - non-nil: overwrite with the pointed-to value
//   - non-nil empty string: clear the stored value (subscription removal)
type Update struct {
	AccountID      string
	Premium        bool
	CustomerID     *string
	SubscriptionID *string
}

// String returns a pointer to s. Convenience for building Updates.
func String(s string) *string {
	return &s
}
