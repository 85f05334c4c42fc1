package storagemetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewRegistersAllSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.QueueDepth.Set(3)
	c.SegmentsWritten.Inc()
	c.BytesWritten.Add(128)

	if got := gaugeValue(t, c.QueueDepth); got != 3 {
		t.Fatalf("expected QueueDepth 3, got %v", got)
	}
	if got := counterValue(t, c.SegmentsWritten); got != 1 {
		t.Fatalf("expected SegmentsWritten 1, got %v", got)
	}
	if got := counterValue(t, c.BytesWritten); got != 128 {
		t.Fatalf("expected BytesWritten 128, got %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected at least one registered metric family")
	}
}

func TestNewWithNilRegistererUsesDefault(t *testing.T) {
	reg := prometheus.NewRegistry()
	defaultReg := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = defaultReg }()

	c := New(nil)
	if c == nil {
		t.Fatal("expected non-nil collector")
	}
}
