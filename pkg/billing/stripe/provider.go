package stripe

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/stillmindhq/entitled/pkg/billing"
	"github.com/stillmindhq/entitled/pkg/billing/internal"
	"github.com/stillmindhq/entitled/pkg/entitlement"
)

const (
	providerName             = "stripe"
	defaultHTTPTimeout       = 10 * time.Second
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	maxWebhookBodyBytes      = 256 * 1024

	metadataAccountKey = "user_id"
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config // Base config (Manager, Metrics, etc.)

	// Stripe-specific
	StripeAPIKey        string
	StripeWebhookSecret string

	// Performance hook (optional).
	// If provided, SyncAccount uses this for O(1) customer lookup before
	// falling back to the customer id stored on the account, and finally
	// to the slow Stripe Search API.
	CustomerIDResolver func(context.Context, string) (string, error)
}

// Provider implements the billing.Provider interface for Stripe
type Provider struct {
	manager            *entitlement.Manager
	config             Config
	httpClient         *http.Client
	rateLimiter        *internal.RateLimiter
	webhookSecret      []byte
	apiKey             string
	stripeClient       *stripe.Client
	customerIDResolver func(context.Context, string) (string, error)
	logger             entitlement.Logger
	metrics            billing.Metrics
	callback           billing.WebhookCallback
}

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Manager == nil {
		return nil, billing.ErrProviderNotConfigured
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: defaultHTTPTimeout,
		}
	}

	// Stripe-specific fields win; the shared billing.Config fields serve
	// deployments that configure one provider through the base struct.
	apiKey := strings.TrimSpace(config.StripeAPIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(config.APIKey)
	}
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}

	stripeClient := stripe.NewClient(apiKey)

	secret := strings.TrimSpace(config.StripeWebhookSecret)
	if secret == "" {
		secret = strings.TrimSpace(config.WebhookSecret)
	}
	webhookSecret := []byte(secret)

	logger := config.Logger
	if logger == nil {
		logger = &entitlement.NoopLogger{}
	}

	metrics := config.Metrics
	if metrics == nil {
		metrics = &billing.NoopMetrics{}
	}

	limiter := internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow)

	return &Provider{
		manager:            config.Manager,
		config:             config,
		httpClient:         httpClient,
		rateLimiter:        limiter,
		webhookSecret:      webhookSecret,
		apiKey:             apiKey,
		stripeClient:       stripeClient,
		customerIDResolver: config.CustomerIDResolver,
		logger:             logger,
		metrics:            metrics,
		callback:           config.WebhookCallback,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	handler := http.HandlerFunc(p.handleWebhook)
	// Wrap with rate limiting
	return p.rateLimiter.Middleware(handler)
}

// SyncAccount reconciles an account's premium entitlement against the
// subscriptions Stripe currently reports for its customer.
func (p *Provider) SyncAccount(ctx context.Context, accountID string) (bool, error) {
	return p.syncFromAPI(ctx, accountID)
}

// premiumForStatus is the single source of truth for mapping a provider
// subscription status to the premium flag.
func premiumForStatus(status stripe.SubscriptionStatus) bool {
	return status == stripe.SubscriptionStatusActive || status == stripe.SubscriptionStatusTrialing
}

func premiumLabel(premium bool) string {
	if premium {
		return "premium"
	}
	return "free"
}
