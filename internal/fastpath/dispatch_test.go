package fastpath

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/javierd009/concierge/internal/config"
)

func TestParse(t *testing.T) {
	cases := []struct {
		text   string
		target Target
		match  bool
	}{
		{"abrir entrada", TargetVehicularEntryPanel, true},
		{"Abre porton vehicular", TargetVehicularEntryPanel, true},
		{"  abrir salida  ", TargetVehicularExitPanel, true},
		{"abre peatonal", TargetPedestrianGate, true},
		{"abrir entrada biometrico", TargetVehicularEntryBiometric, true},
		{"hola, como estas", "", false},
		{"abrir entrada por favor", "", false},
	}
	for _, c := range cases {
		target, ok := Parse(c.text)
		if ok != c.match {
			t.Errorf("Parse(%q) matched = %v, want %v", c.text, ok, c.match)
			continue
		}
		if ok && target != c.target {
			t.Errorf("Parse(%q) target = %q, want %q", c.text, target, c.target)
		}
	}
}

func hostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parsing test server url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing test server port: %v", err)
	}
	return u.Hostname(), port
}

func TestExecuteOpensOnFirstAttempt(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{DeviceUsername: "admin", FastOpenTimeoutSeconds: 1.5, FastOpenDebounceSeconds: 4}
	cfg.AccessPanelHost, cfg.AccessPanelPort = hostPort(t, srv.URL)

	d := New(cfg)
	result := d.Execute(context.Background(), TargetVehicularEntryPanel)
	if !result.OK {
		t.Fatalf("Execute() OK = false, want true")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (strict mode single variant on first success)", calls)
	}
}

func TestExecuteDebounces(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{DeviceUsername: "admin", FastOpenTimeoutSeconds: 1.5, FastOpenDebounceSeconds: 4}
	cfg.AccessPanelHost, cfg.AccessPanelPort = hostPort(t, srv.URL)

	d := New(cfg)
	first := d.Execute(context.Background(), TargetVehicularEntryPanel)
	if !first.OK {
		t.Fatalf("first Execute() OK = false")
	}

	second := d.Execute(context.Background(), TargetVehicularEntryPanel)
	if !second.OK {
		t.Fatalf("second Execute() OK = false")
	}
	if debounced, _ := second.LogContext["debounced"].(bool); !debounced {
		t.Errorf("second Execute() should report debounced=true, got %+v", second.LogContext)
	}
	if calls != 1 {
		t.Errorf("device calls = %d, want 1 (second call should be debounced)", calls)
	}
}

func TestExecuteRetriesOnceOnFailure(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := &config.Config{DeviceUsername: "admin", FastOpenTimeoutSeconds: 1.5, FastOpenDebounceSeconds: 4}
	cfg.AccessPanelHost, cfg.AccessPanelPort = hostPort(t, srv.URL)

	d := New(cfg)
	result := d.Execute(context.Background(), TargetVehicularExitPanel)
	if result.OK {
		t.Fatalf("Execute() OK = true, want false against a failing device")
	}
	// strict mode: one variant, retried once => 2 calls.
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (single retry of the whole sequence)", calls)
	}
}

func TestExecuteAutoModeTriesBothVariants(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := &config.Config{DeviceUsername: "admin", FastOpenTimeoutSeconds: 1.5, FastOpenDebounceSeconds: 4}
	cfg.PedestrianHost, cfg.PedestrianPort = hostPort(t, srv.URL)

	d := New(cfg)
	result := d.Execute(context.Background(), TargetPedestrianGate)
	if result.OK {
		t.Fatalf("Execute() OK = true, want false")
	}
	// auto mode: strict + legacy, retried once => 4 calls.
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (auto mode retries both variants twice)", calls)
	}
}

func TestDispatcherDebounceExpires(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{DeviceUsername: "admin", FastOpenTimeoutSeconds: 1.5, FastOpenDebounceSeconds: 4}
	cfg.AccessPanelHost, cfg.AccessPanelPort = hostPort(t, srv.URL)

	d := New(cfg)
	now := time.Now()
	d.nowFunc = func() time.Time { return now }
	d.Execute(context.Background(), TargetVehicularEntryPanel)

	d.nowFunc = func() time.Time { return now.Add(5 * time.Second) }
	result := d.Execute(context.Background(), TargetVehicularEntryPanel)
	if debounced, _ := result.LogContext["debounced"].(bool); debounced {
		t.Error("debounce window should have expired")
	}
}
