package billing

import (
	"context"
	"net/http"

	"github.com/stillmindhq/entitled/pkg/entitlement"
)

// WebhookCallback is invoked after an entitlement has been successfully
// updated from a webhook event. Returning an error surfaces the event as
// failed so the provider redelivers it.
type WebhookCallback func(ctx context.Context, event WebhookEvent) error

// Config defines the standard configuration all providers should accept
type Config struct {
	// Manager is the entitlement manager that receives reconciled updates
	Manager *entitlement.Manager

	// WebhookSecret is used to verify incoming webhook requests
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider
	// (e.g. SyncAccount, supplementary customer lookups).
	APIKey string

	// HTTPClient is an optional HTTP client for API calls.
	// If nil, a default client with 10s timeout will be used.
	// Allows custom timeouts, proxies, or instrumentation.
	HTTPClient *http.Client

	// Logger is used for structured logging (default: NoopLogger)
	Logger entitlement.Logger

	// Metrics is an optional metrics collector for tracking billing
	// provider operations. If nil, metrics will be silently ignored
	// (no-op). Use billing/metrics/prometheus.DefaultMetrics(namespace)
	// for Prometheus metrics.
	Metrics Metrics

	// WebhookCallback is an optional hook invoked after each successful
	// entitlement update (e.g. to notify the app or flush caches).
	WebhookCallback WebhookCallback
}
