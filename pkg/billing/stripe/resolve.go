package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/stillmindhq/entitled/pkg/billing"
	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// accountRef carries the identification material a billing event offers:
// an internal account id from metadata when present, plus the provider
// customer reference (and sometimes an email) for the fallback path.
type accountRef struct {
	accountID  string
	customerID string
	email      string
}

// byCustomerEmail returns a resolution strategy that locates the account
// through the Stripe customer's email address. The customer object is only
// fetched when the event did not already carry an email.
func (p *Provider) byCustomerEmail(ref accountRef) entitlement.Strategy {
	return func(ctx context.Context) (*entitlement.Account, error) {
		email := ref.email
		if email == "" {
			if ref.customerID == "" {
				return nil, entitlement.ErrAccountNotFound
			}
			startTime := time.Now()
			cust, err := p.stripeClient.V1Customers.Retrieve(ctx, ref.customerID, nil)
			if err != nil {
				p.metrics.RecordAPICall(providerName, "/customers/{id}", "error")
				return nil, fmt.Errorf("%w: retrieve customer %s: %v", billing.ErrProviderAPIError, ref.customerID, err)
			}
			p.metrics.RecordAPICall(providerName, "/customers/{id}", "200")
			p.metrics.RecordAPICallDuration(providerName, "/customers/{id}", time.Since(startTime))
			email = cust.Email
		}
		if email == "" {
			return nil, billing.ErrCustomerNotFound
		}
		return p.manager.GetAccountByEmail(ctx, email)
	}
}

// reconcile resolves the event to an account and applies the computed
// entitlement update.
//
// Resolution order is fixed: the internal account id carried in event
// metadata, then the Stripe customer's email. A failed write against the
// id-resolved account gets exactly one fallback hop through the email path
// before the event as a whole is marked failed. An event that resolves to
// no account at all is dropped: logged and acknowledged, because there is
// no record to reconcile against and a retry would change nothing.
func (p *Provider) reconcile(ctx context.Context, eventType string, eventTime time.Time, ref accountRef, upd entitlement.Update, metadata map[string]interface{}) error {
	account, err := entitlement.Resolve(ctx,
		entitlement.ByID(p.manager, ref.accountID),
		p.byCustomerEmail(ref),
	)
	if err != nil {
		if unresolvable(err) {
			p.logger.Warn("billing event dropped, no matching account",
				entitlement.Field{Key: "event_type", Value: eventType},
				entitlement.Field{Key: "customer_id", Value: ref.customerID},
			)
			p.metrics.RecordWebhookError(providerName, "unresolved_account")
			return nil
		}
		// Store or provider outage during resolution: surface so the
		// provider's redelivery gives the event another chance.
		return err
	}

	applied, applyErr := p.applyTo(ctx, account.ID, upd)
	if applyErr != nil && account.ID == ref.accountID {
		// Failed write on the primary path: one fallback hop via email.
		fallback, ferr := entitlement.Resolve(ctx, p.byCustomerEmail(ref))
		if ferr == nil && fallback.ID != account.ID {
			account = fallback
			applied, applyErr = p.applyTo(ctx, fallback.ID, upd)
		}
	}
	if applyErr != nil {
		return applyErr
	}

	if account.Premium != applied.Premium {
		p.metrics.RecordEntitlementChange(providerName, premiumLabel(account.Premium), premiumLabel(applied.Premium))
	}

	if p.callback != nil {
		event := billing.WebhookEvent{
			AccountID:       applied.ID,
			PreviousPremium: account.Premium,
			Premium:         applied.Premium,
			Provider:        providerName,
			EventType:       eventType,
			EventTimestamp:  eventTime,
			Metadata:        metadata,
		}
		if err := p.callback(ctx, event); err != nil {
			return fmt.Errorf("webhook callback failed: %w", err)
		}
	}

	return nil
}

func (p *Provider) applyTo(ctx context.Context, accountID string, upd entitlement.Update) (*entitlement.Account, error) {
	upd.AccountID = accountID
	return p.manager.Apply(ctx, &upd)
}

// unresolvable reports whether a Resolve failure means "no such account"
// as opposed to a store or provider outage worth a redelivery.
func unresolvable(err error) bool {
	if !errors.Is(err, entitlement.ErrUnresolved) {
		return false
	}
	return errors.Is(err, entitlement.ErrAccountNotFound) || errors.Is(err, billing.ErrCustomerNotFound)
}

// subscriptionMetadata packages subscription metadata for the callback.
func subscriptionMetadata(sub *stripe.Subscription) map[string]interface{} {
	if sub == nil || len(sub.Metadata) == 0 {
		return nil
	}
	return map[string]interface{}{
		"subscription_metadata": sub.Metadata,
	}
}
