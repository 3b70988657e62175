package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/stillmindhq/entitled/pkg/billing"
)

// CheckoutURL creates a Stripe Checkout Session for a subscription purchase
// and returns the hosted URL.
func (p *Provider) CheckoutURL(ctx context.Context, accountID, priceID, successURL, cancelURL string) (string, error) {
	startTime := time.Now()

	// Resolve Customer ID (optional - Stripe can create the customer during
	// checkout). Only ignore "not found" errors; fail on real errors (store
	// down, network issues) to prevent creating duplicate customers.
	customerID, err := p.resolveCustomerID(ctx, accountID)
	if err != nil && !errors.Is(err, billing.ErrCustomerNotFound) && !errors.Is(err, billing.ErrAccountNotFound) {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "customer_resolution_failed")
		return "", fmt.Errorf("failed to resolve customer: %w", err)
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}

	// The webhook handler resolves subscriptions back to accounts through
	// this metadata key; without it every event falls to the email path.
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata(metadataAccountKey, accountID)
	params.Metadata = map[string]string{metadataAccountKey: accountID}

	// Attach existing customer if found (avoids duplicates)
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	} else {
		params.ClientReferenceID = stripe.String(accountID)
		params.CustomerCreation = stripe.String("always")
	}

	session, err := p.stripeClient.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/checkout/sessions", "error")
		p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	p.metrics.RecordAPICall(providerName, "/checkout/sessions", "success")
	p.metrics.RecordAPICallDuration(providerName, "/checkout/sessions", time.Since(startTime))

	return session.URL, nil
}

// PortalURL creates a Stripe Customer Portal Session and returns the URL.
// This lets subscribers manage their plan, update payment methods, or cancel.
func (p *Provider) PortalURL(ctx context.Context, accountID, returnURL string) (string, error) {
	startTime := time.Now()

	customerID, err := p.resolveCustomerID(ctx, accountID)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "customer_not_found")
		return "", fmt.Errorf("%w: %s", billing.ErrCustomerNotFound, accountID)
	}

	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}

	session, err := p.stripeClient.V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "error")
		p.metrics.RecordAPICallDuration(providerName, "/billing_portal/sessions", time.Since(startTime))
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}

	p.metrics.RecordAPICall(providerName, "/billing_portal/sessions", "success")
	p.metrics.RecordAPICallDuration(providerName, "/billing_portal/sessions", time.Since(startTime))

	return session.URL, nil
}

// resolveCustomerID finds the Stripe customer behind an account: the
// configured resolver first, then the id the store already holds, and
// finally the slow Stripe Search API.
func (p *Provider) resolveCustomerID(ctx context.Context, accountID string) (string, error) {
	if p.customerIDResolver != nil {
		customerID, err := p.customerIDResolver(ctx, accountID)
		if err == nil && customerID != "" {
			return customerID, nil
		}
	}

	if account, err := p.manager.GetAccount(ctx, accountID); err == nil && account.CustomerID != "" {
		return account.CustomerID, nil
	}

	return p.searchCustomerByMetadata(ctx, accountID)
}
