package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeActiveCalls int

func (f fakeActiveCalls) ActiveCalls() int { return int(f) }

func TestCollectorReportsActiveCalls(t *testing.T) {
	c := NewCollector(fakeActiveCalls(3), time.Now().Add(-time.Minute))

	got := testutil.CollectAndCount(c)
	if got != 2 {
		t.Fatalf("CollectAndCount() = %d, want 2", got)
	}

	reg := prometheus.NewPedanticRegistry()
	reg.MustRegister(c)
	if err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP concierge_active_calls Number of currently active voice-bridge calls
# TYPE concierge_active_calls gauge
concierge_active_calls 3
`), "concierge_active_calls"); err != nil {
		t.Fatalf("unexpected metric value: %v", err)
	}
}

func TestCollectorWithoutActiveCallsProviderStillReportsUptime(t *testing.T) {
	c := NewCollector(nil, time.Now())
	got := testutil.CollectAndCount(c)
	if got != 1 {
		t.Fatalf("CollectAndCount() = %d, want 1 (uptime only)", got)
	}
}
