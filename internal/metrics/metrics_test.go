package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/foxzi/newsflash/internal/models"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	return metric.Gauge.GetValue()
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	// Vectors without observations are not gathered; plain gauges are
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"newsflash_active_subscribers", "newsflash_uptime_seconds", "newsflash_goroutines"} {
		if !names[want] {
			t.Errorf("metric %s not registered", want)
		}
	}
}

func TestGlobalMetrics(t *testing.T) {
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)
	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}
	SetGlobal(nil)
}

func TestDeliveryCompleted(t *testing.T) {
	m := New()

	m.DeliveryCompleted(models.CategoryNewsletter, models.DeliverySent)
	m.DeliveryCompleted(models.CategoryNewsletter, models.DeliverySent)
	m.DeliveryCompleted(models.CategoryWelcome, models.DeliveryFailed)

	sent, err := m.DeliveriesTotal.GetMetricWithLabelValues("newsletter", "sent")
	if err != nil {
		t.Fatalf("Failed to get counter: %v", err)
	}
	if v := counterValue(t, sent); v != 2 {
		t.Errorf("Expected 2 newsletter sends, got %f", v)
	}

	failed, _ := m.DeliveriesTotal.GetMetricWithLabelValues("welcome", "failed")
	if v := counterValue(t, failed); v != 1 {
		t.Errorf("Expected 1 failed welcome, got %f", v)
	}
}

func TestSubscribeCompleted(t *testing.T) {
	m := New()

	m.SubscribeCompleted("subscribed")
	m.SubscribeCompleted("already_subscribed")
	m.SubscribeCompleted("subscribed")

	c, _ := m.SubscriptionsTotal.GetMetricWithLabelValues("subscribed")
	if v := counterValue(t, c); v != 2 {
		t.Errorf("Expected 2, got %f", v)
	}
}
