package billing

import (
	"context"
	"net/http"
)

// Provider is the generic interface that any billing backend must implement.
// This allows the application to swap Stripe for another processor with zero
// logic changes.
type Provider interface {
	// Name returns the provider name (e.g., "stripe")
	Name() string

	// WebhookHandler returns the HTTP handler that processes real-time
	// subscription lifecycle events. The implementation handles signature
	// verification, parsing, and entitlement updates internally.
	WebhookHandler() http.Handler

	// SyncAccount forces a point-in-time reconciliation of the account's
	// premium entitlement against the provider's current subscription
	// state. Used by the synchronous subscription-status endpoint and for
	// "Restore Purchases" flows. Returns the premium state it settled on.
	SyncAccount(ctx context.Context, accountID string) (bool, error)
}
