package prommetrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusMetrics_NewMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	if metrics == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestPrometheusMetrics_RecordWebhookEvent(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordWebhookEvent("stripe", "customer.subscription.updated", "success")
	metrics.RecordWebhookEvent("stripe", "customer.subscription.updated", "error")
	metrics.RecordWebhookEvent("stripe", "invoice.payment_failed", "success")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var webhookMetric *dto.MetricFamily
	for _, m := range families {
		if m.GetName() == "test_billing_webhook_events_total" {
			webhookMetric = m
			break
		}
	}

	if webhookMetric == nil {
		t.Fatal("Expected to find webhook events metric")
	}
	if len(webhookMetric.Metric) != 3 {
		t.Errorf("Expected 3 time series, got %d", len(webhookMetric.Metric))
	}
}

func TestPrometheusMetrics_RecordAccountSync(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordAccountSync("stripe", "success")
	metrics.RecordAccountSyncDuration("stripe", 50*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Error("Expected sync metrics to be recorded")
	}
}

func TestPrometheusMetrics_RecordEntitlementChange(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg, "test")

	metrics.RecordEntitlementChange("stripe", "free", "premium")
	metrics.RecordAPICall("stripe", "/customers/{id}", "200")
	metrics.RecordAPICallDuration("stripe", "/customers/{id}", 10*time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) < 2 {
		t.Errorf("Expected change and api metrics, got %d families", len(families))
	}
}
