package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/stillmindhq/entitled/pkg/billing/internal"
	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// handleWebhook processes incoming Stripe webhook events.
// Order of operations is fixed: signature verification happens before any
// store access, and a verification failure rejects the event outright.
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Read and validate body (with size limit protection)
	body, err := internal.ReadBodyStrict(w, r, maxWebhookBodyBytes)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	// Extract signature from header
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		sig = r.Header.Get("stripe-signature")
	}

	// Fail closed: a missing secret, missing signature header, and a
	// signature mismatch are the same class of rejection.
	if len(p.webhookSecret) == 0 || sig == "" {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	event, err := stripe.ConstructEvent(body, sig, string(p.webhookSecret))
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		p.metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	if err := p.processWebhookEvent(r.Context(), &event); err != nil {
		p.logger.Error("webhook processing failed",
			entitlement.Field{Key: "event_type", Value: eventType},
			entitlement.Field{Key: "event_id", Value: event.ID},
			entitlement.Field{Key: "error", Value: err.Error()},
		)
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.metrics.RecordWebhookError(providerName, "processing_error")
		p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
		return
	}

	_ = internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})

	p.metrics.RecordWebhookEvent(providerName, eventType, "success")
	p.metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
}

// processWebhookEvent dispatches a verified event by its declared kind.
// One event produces exactly one handler invocation; unrecognized kinds
// are acknowledged without touching any account.
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	eventTime := time.Unix(event.Created, 0)

	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutCompleted(ctx, event, eventTime)
	case "customer.subscription.created", "customer.subscription.updated":
		return p.handleSubscriptionChange(ctx, event, eventTime)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event, eventTime)
	case "invoice.payment_succeeded":
		return p.handleInvoicePaid(ctx, event, eventTime)
	case "invoice.payment_failed":
		return p.handleInvoicePaymentFailed(ctx, event, eventTime)
	default:
		p.logger.Debug("ignoring webhook event of unhandled kind",
			entitlement.Field{Key: "event_type", Value: string(event.Type)},
		)
		p.metrics.RecordWebhookEvent(providerName, string(event.Type), "ignored")
		return nil
	}
}

// handleSubscriptionChange processes customer.subscription.created and
// customer.subscription.updated events. The target premium flag is derived
// from the status this event reports, nothing else: event ordering is not
// guaranteed, so the computation must not depend on prior events.
func (p *Provider) handleSubscriptionChange(ctx context.Context, event *stripe.Event, eventTime time.Time) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	ref := refFromSubscription(&subscription)
	upd := entitlement.Update{
		Premium:        premiumForStatus(subscription.Status),
		SubscriptionID: entitlement.String(subscription.ID),
	}
	if ref.customerID != "" {
		upd.CustomerID = entitlement.String(ref.customerID)
	}

	return p.reconcile(ctx, string(event.Type), eventTime, ref, upd, subscriptionMetadata(&subscription))
}

// handleSubscriptionDeleted processes customer.subscription.deleted events.
// The customer id is kept (the customer still exists on the provider side);
// the subscription id is explicitly cleared.
func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event, eventTime time.Time) error {
	var subscription stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
		return fmt.Errorf("failed to unmarshal subscription: %w", err)
	}

	ref := refFromSubscription(&subscription)
	upd := entitlement.Update{
		Premium:        false,
		SubscriptionID: entitlement.String(""),
	}
	if ref.customerID != "" {
		upd.CustomerID = entitlement.String(ref.customerID)
	}

	return p.reconcile(ctx, string(event.Type), eventTime, ref, upd, subscriptionMetadata(&subscription))
}

// handleCheckoutCompleted processes checkout.session.completed events.
// Only subscription-mode sessions grant entitlement; the subscription is
// fetched fresh so the premium flag reflects its actual status rather than
// assuming the checkout implies an active subscription.
func (p *Provider) handleCheckoutCompleted(ctx context.Context, event *stripe.Event, eventTime time.Time) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to unmarshal checkout session: %w", err)
	}

	if session.Mode != stripe.CheckoutSessionModeSubscription {
		// One-time payment checkout - no entitlement change
		return nil
	}

	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	if subscriptionID == "" {
		return nil
	}

	accountID := ""
	if session.Metadata != nil {
		accountID = session.Metadata[metadataAccountKey]
	}
	if accountID == "" {
		accountID = session.ClientReferenceID
	}

	sub, err := p.fetchSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	// Patch the account id onto the subscription so later lifecycle
	// events resolve without the email fallback.
	if accountID != "" && (sub.Metadata == nil || sub.Metadata[metadataAccountKey] == "") {
		params := &stripe.SubscriptionUpdateParams{}
		params.AddMetadata(metadataAccountKey, accountID)
		if updated, err := p.stripeClient.V1Subscriptions.Update(ctx, subscriptionID, params); err == nil {
			sub = updated
		} else {
			p.logger.Warn("failed to patch subscription metadata",
				entitlement.Field{Key: "subscription_id", Value: subscriptionID},
				entitlement.Field{Key: "error", Value: err.Error()},
			)
		}
	}

	ref := refFromSubscription(sub)
	if ref.accountID == "" {
		ref.accountID = accountID
	}
	if ref.email == "" {
		ref.email = checkoutEmail(&session)
	}
	if ref.customerID == "" && session.Customer != nil {
		ref.customerID = session.Customer.ID
	}

	upd := entitlement.Update{
		Premium:        premiumForStatus(sub.Status),
		SubscriptionID: entitlement.String(sub.ID),
	}
	if ref.customerID != "" {
		upd.CustomerID = entitlement.String(ref.customerID)
	}

	return p.reconcile(ctx, string(event.Type), eventTime, ref, upd, subscriptionMetadata(sub))
}

// handleInvoicePaid processes invoice.payment_succeeded events.
func (p *Provider) handleInvoicePaid(ctx context.Context, event *stripe.Event, eventTime time.Time) error {
	customerID, subscriptionID, email, err := invoiceRefs(event.Data.Raw)
	if err != nil {
		return err
	}

	ref := accountRef{customerID: customerID, email: email}
	upd := entitlement.Update{Premium: true}
	if customerID != "" {
		upd.CustomerID = entitlement.String(customerID)
	}

	var metadata map[string]interface{}
	if subscriptionID != "" {
		sub, err := p.fetchSubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		subRef := refFromSubscription(sub)
		ref.accountID = subRef.accountID
		if ref.customerID == "" {
			ref.customerID = subRef.customerID
		}
		upd.SubscriptionID = entitlement.String(sub.ID)
		metadata = subscriptionMetadata(sub)
	}

	return p.reconcile(ctx, string(event.Type), eventTime, ref, upd, metadata)
}

// handleInvoicePaymentFailed processes invoice.payment_failed events.
// A failed invoice does not by itself revoke entitlement: Stripe keeps the
// subscription alive through its dunning flow. The subscription status is
// re-fetched and the flag follows whatever it currently reports.
func (p *Provider) handleInvoicePaymentFailed(ctx context.Context, event *stripe.Event, eventTime time.Time) error {
	customerID, subscriptionID, email, err := invoiceRefs(event.Data.Raw)
	if err != nil {
		return err
	}
	if subscriptionID == "" {
		// Not a subscription invoice - nothing to reconcile
		return nil
	}

	sub, err := p.fetchSubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}

	ref := refFromSubscription(sub)
	ref.email = email
	if ref.customerID == "" {
		ref.customerID = customerID
	}

	upd := entitlement.Update{
		Premium:        premiumForStatus(sub.Status),
		SubscriptionID: entitlement.String(sub.ID),
	}
	if ref.customerID != "" {
		upd.CustomerID = entitlement.String(ref.customerID)
	}

	return p.reconcile(ctx, string(event.Type), eventTime, ref, upd, subscriptionMetadata(sub))
}

// refFromSubscription extracts the identification material a subscription
// object carries: metadata account id and the customer reference.
func refFromSubscription(sub *stripe.Subscription) accountRef {
	ref := accountRef{}
	if sub.Metadata != nil {
		ref.accountID = sub.Metadata[metadataAccountKey]
	}
	if sub.Customer != nil {
		ref.customerID = sub.Customer.ID
	}
	return ref
}

// invoiceRefs extracts the customer and subscription references from a raw
// invoice payload. The subscription field arrives either as an id string or
// as an expanded object depending on the event; customer_email is a
// denormalized copy Stripe puts on every invoice.
func invoiceRefs(raw []byte) (customerID, subscriptionID, email string, err error) {
	var rawData map[string]interface{}
	if err := json.Unmarshal(raw, &rawData); err != nil {
		return "", "", "", fmt.Errorf("failed to unmarshal invoice: %w", err)
	}

	switch v := rawData["customer"].(type) {
	case string:
		customerID = v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			customerID = id
		}
	}

	switch v := rawData["subscription"].(type) {
	case string:
		subscriptionID = v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			subscriptionID = id
		}
	}

	if v, ok := rawData["customer_email"].(string); ok {
		email = v
	}

	return customerID, subscriptionID, email, nil
}

// fetchSubscription retrieves a subscription for a fresh status lookup.
func (p *Provider) fetchSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	startTime := time.Now()
	sub, err := p.stripeClient.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/subscriptions/{id}", "error")
		return nil, fmt.Errorf("failed to fetch subscription %s: %w", subscriptionID, err)
	}
	p.metrics.RecordAPICall(providerName, "/subscriptions/{id}", "200")
	p.metrics.RecordAPICallDuration(providerName, "/subscriptions/{id}", time.Since(startTime))
	return sub, nil
}

func checkoutEmail(session *stripe.CheckoutSession) string {
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		return session.CustomerDetails.Email
	}
	return session.CustomerEmail
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
