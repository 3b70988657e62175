package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/stillmindhq/entitled/pkg/billing"
	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// syncFromAPI reconciles an account's entitlement against the Stripe API
// instead of waiting for the next webhook. Returns the resulting premium flag.
func (p *Provider) syncFromAPI(ctx context.Context, accountID string) (bool, error) {
	startTime := time.Now()
	if strings.TrimSpace(p.apiKey) == "" {
		p.metrics.RecordAccountSync(providerName, "error")
		return false, fmt.Errorf("stripe API key not configured")
	}

	var customerID string
	var err error

	// FAST PATH: the app provides the mapping (O(1))
	if p.customerIDResolver != nil {
		customerID, err = p.customerIDResolver(ctx, accountID)
		if err != nil {
			p.logger.Warn("customer id resolver failed, falling back",
				entitlement.Field{Key: "account_id", Value: accountID},
				entitlement.Field{Key: "error", Value: err.Error()},
			)
			customerID = ""
		}
	}

	// Stored mapping from a previous webhook or sync
	if customerID == "" {
		if account, err := p.manager.GetAccount(ctx, accountID); err == nil {
			customerID = account.CustomerID
		}
	}

	// SLOW PATH: Stripe Search API (O(N), ~500ms, eventually consistent)
	if customerID == "" {
		p.metrics.RecordAPICall(providerName, "/customers/search", "slow_path")
		customerID, err = p.searchCustomerByMetadata(ctx, accountID)
		if err != nil {
			if errors.Is(err, billing.ErrCustomerNotFound) {
				// No Stripe customer at all - the account is free
				return p.syncToFree(ctx, accountID, startTime)
			}
			p.metrics.RecordAccountSync(providerName, "error")
			p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))
			return false, err
		}
	}

	return p.syncCustomer(ctx, customerID, accountID, startTime)
}

// searchCustomerByMetadata finds a customer carrying the account id in its
// metadata via the Stripe Search API.
func (p *Provider) searchCustomerByMetadata(ctx context.Context, accountID string) (string, error) {
	params := &stripe.CustomerSearchParams{}
	params.Query = fmt.Sprintf("metadata['%s']:'%s'", metadataAccountKey, accountID)

	for cust, err := range p.stripeClient.V1Customers.Search(ctx, params) {
		if err != nil {
			return "", fmt.Errorf("%w: customer search: %w", billing.ErrProviderAPIError, err)
		}
		// Verify exact match (Search API can return partial matches)
		if cust.Metadata != nil && cust.Metadata[metadataAccountKey] == accountID {
			return cust.ID, nil
		}
	}

	return "", billing.ErrCustomerNotFound
}

// syncCustomer lists the customer's subscriptions and writes the resulting
// entitlement. Any subscription in a premium-granting status keeps the
// account premium; when several qualify, the most recently created one
// becomes the stored subscription id.
func (p *Provider) syncCustomer(ctx context.Context, customerID, accountID string, startTime time.Time) (bool, error) {
	params := &stripe.SubscriptionListParams{}
	params.Customer = stripe.String(customerID)
	params.Status = stripe.String("all")

	var best *stripe.Subscription

	for sub, err := range p.stripeClient.V1Subscriptions.List(ctx, params) {
		if err != nil {
			p.metrics.RecordAPICall(providerName, "/subscriptions/list", "error")
			p.metrics.RecordAccountSync(providerName, "error")
			p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))
			return false, fmt.Errorf("%w: failed to list subscriptions: %w", billing.ErrProviderAPIError, err)
		}
		if !premiumForStatus(sub.Status) {
			continue
		}
		if best == nil || sub.Created > best.Created {
			best = sub
		}
	}

	p.metrics.RecordAPICall(providerName, "/subscriptions/list", "200")
	p.metrics.RecordAPICallDuration(providerName, "/subscriptions/list", time.Since(startTime))

	previous, err := p.manager.GetAccount(ctx, accountID)
	if err != nil {
		p.metrics.RecordAccountSync(providerName, "error")
		p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))
		return false, err
	}

	upd := entitlement.Update{
		AccountID:  accountID,
		CustomerID: entitlement.String(customerID),
	}
	if best != nil {
		upd.Premium = true
		upd.SubscriptionID = entitlement.String(best.ID)
	} else {
		upd.Premium = false
		upd.SubscriptionID = entitlement.String("")
	}

	if _, err := p.manager.Apply(ctx, &upd); err != nil {
		p.metrics.RecordAccountSync(providerName, "error")
		p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))
		return false, fmt.Errorf("failed to apply entitlement: %w", err)
	}

	if previous.Premium != upd.Premium {
		p.metrics.RecordEntitlementChange(providerName, premiumLabel(previous.Premium), premiumLabel(upd.Premium))
	}

	p.metrics.RecordAccountSync(providerName, "success")
	p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))
	return upd.Premium, nil
}

// syncToFree demotes an account that has no Stripe customer behind it.
func (p *Provider) syncToFree(ctx context.Context, accountID string, startTime time.Time) (bool, error) {
	upd := entitlement.Update{
		AccountID:      accountID,
		Premium:        false,
		SubscriptionID: entitlement.String(""),
	}

	if _, err := p.manager.Apply(ctx, &upd); err != nil {
		p.metrics.RecordAccountSync(providerName, "error")
		p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))
		return false, fmt.Errorf("failed to apply entitlement: %w", err)
	}

	p.metrics.RecordAccountSync(providerName, "success")
	p.metrics.RecordAccountSyncDuration(providerName, time.Since(startTime))
	return false, nil
}
