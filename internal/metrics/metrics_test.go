package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

// counterValue returns the value of the named counter whose labels match exactly.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			matched := 0
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRegisterIsIdempotent(t *testing.T) {
	reg := newRegistry(t)
	if err := Register(reg); err != nil {
		t.Fatalf("second register should tolerate duplicates: %v", err)
	}
}

func TestObserveRequestNormalisesOutcome(t *testing.T) {
	reg := newRegistry(t)
	success := map[string]string{"operation": OpList, "outcome": OutcomeSuccess}

	before := counterValue(t, reg, "detect_console_api_requests_total", success)
	ObserveRequest(OpList, 10*time.Millisecond, "weird")
	after := counterValue(t, reg, "detect_console_api_requests_total", success)
	if after-before != 1 {
		t.Fatalf("expected unknown outcome to count as success, delta=%v", after-before)
	}

	network := map[string]string{"operation": OpDelete, "outcome": OutcomeNetwork}
	before = counterValue(t, reg, "detect_console_api_requests_total", network)
	ObserveRequest(OpDelete, -time.Second, OutcomeNetwork)
	after = counterValue(t, reg, "detect_console_api_requests_total", network)
	if after-before != 1 {
		t.Fatalf("expected network outcome counted, delta=%v", after-before)
	}
}

func TestObserveRejectedFilter(t *testing.T) {
	reg := newRegistry(t)
	before := counterValue(t, reg, "detect_console_filter_rejections_total", nil)
	ObserveRejectedFilter()
	if got := counterValue(t, reg, "detect_console_filter_rejections_total", nil); got-before != 1 {
		t.Fatalf("expected one rejection, delta=%v", got-before)
	}
}
