package billing

import "time"

// WebhookEvent contains information about a successful webhook processing
// event. This event is passed to the WebhookCallback after the entitlement
// has been updated in the account store.
type WebhookEvent struct {
	// AccountID is the internal account identifier
	AccountID string

	// PreviousPremium is the premium flag before the webhook update
	// (false if the account had no prior entitlement state)
	PreviousPremium bool

	// Premium is the premium flag after the webhook update
	Premium bool

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventType is the provider-specific event type, e.g.
	// "customer.subscription.updated" or "invoice.payment_failed"
	EventType string

	// EventTimestamp is when the event occurred (from provider)
	EventTimestamp time.Time

	// Metadata contains provider-specific additional data, e.g. the
	// subscription metadata attached during checkout.
	Metadata map[string]interface{}
}
