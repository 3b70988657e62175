package api

import "time"

// SubscriptionResponse is the wire shape of an account's entitlement state
type SubscriptionResponse struct {
	AccountID      string    `json:"account_id"`
	Premium        bool      `json:"premium"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	CustomerID     string    `json:"customer_id,omitempty"`
	Source         string    `json:"source"` // "store" or "provider"
	UpdatedAt      time.Time `json:"updated_at"`
}
