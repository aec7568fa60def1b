package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/elan2mqtt/internal/audit"
	"github.com/nerrad567/elan2mqtt/internal/bridge"
	"github.com/nerrad567/elan2mqtt/internal/bridges/elan"
	"github.com/nerrad567/elan2mqtt/internal/bridges/elan/elantest"
	"github.com/nerrad567/elan2mqtt/internal/device"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/logging"
)

// fakeSession is a fixed SessionSource.
type fakeSession struct {
	snap     bridge.Snapshot
	registry *device.Registry
}

func (f *fakeSession) Snapshot() bridge.Snapshot  { return f.snap }
func (f *fakeSession) Registry() *device.Registry { return f.registry }

// checkFunc adapts a function to HealthChecker.
type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func passing() HealthChecker { return checkFunc(func(context.Context) error { return nil }) }

func failing(msg string) HealthChecker {
	return checkFunc(func(context.Context) error { return errors.New(msg) })
}

// memoryAudit is an in-memory audit.Repository.
type memoryAudit struct {
	entries []audit.Entry
	last    audit.Filter
	err     error
}

func (m *memoryAudit) Create(_ context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memoryAudit) List(_ context.Context, f audit.Filter) ([]audit.Entry, error) {
	m.last = f
	if m.err != nil {
		return nil, m.err
	}
	return m.entries, nil
}

// loadRegistry loads a registry with one dimmer from a fake hub.
func loadRegistry(t *testing.T) *device.Registry {
	t.Helper()

	hub := elantest.NewHub("admin", "elkoep")
	t.Cleanup(hub.Close)
	hub.AddDevice(elantest.Device{
		HubID: "A1",
		Info: map[string]any{
			"type":         "light",
			"label":        "Kitchen",
			"product type": "RFDA-11B",
			"address":      "AA:BB",
		},
		Actions: map[string]any{
			"on":         map[string]any{"type": "bool"},
			"brightness": map[string]any{"type": "int", "min": 0, "max": 100},
		},
		Primary: []string{"on", "brightness"},
		State:   `{"on":false,"brightness":0}`,
	})

	client, err := elan.NewClient(elan.Config{
		BaseURL:  hub.URL(),
		Username: "admin",
		Password: "elkoep",
		Retry:    elan.RetryPolicy{Attempts: 1},
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	ctx := context.Background()
	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	reg, err := device.Load(ctx, client, device.Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return reg
}

func testServer(t *testing.T, session *fakeSession, deps Deps) *Server {
	t.Helper()
	deps.Logger = logging.Discard()
	deps.Session = session
	deps.Version = "test"
	deps.Config = config.APIConfig{
		Host:     "127.0.0.1",
		Port:     0,
		Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
	}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Session: &fakeSession{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without session should fail")
	}
}

func TestHealth(t *testing.T) {
	up := bridge.Snapshot{Mode: "poll", SessionUp: true, Devices: 3, BrokerConnected: true}

	tests := []struct {
		name       string
		snap       bridge.Snapshot
		checks     map[string]HealthChecker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "session up",
			snap:       up,
			wantCode:   http.StatusOK,
			wantStatus: statusOK,
		},
		{
			name:       "between sessions",
			snap:       bridge.Snapshot{Mode: "push", Restarts: 2, LastError: "broker connection lost"},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: statusDegraded,
		},
		{
			name:       "all components healthy",
			snap:       up,
			checks:     map[string]HealthChecker{"mqtt": passing(), "database": passing()},
			wantCode:   http.StatusOK,
			wantStatus: statusOK,
			wantChecks: map[string]string{"mqtt": "ok", "database": "ok"},
		},
		{
			name:       "failing component degrades",
			snap:       up,
			checks:     map[string]HealthChecker{"mqtt": passing(), "influxdb": failing("ping refused")},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: statusDegraded,
			wantChecks: map[string]string{"mqtt": "ok", "influxdb": "ping refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, &fakeSession{snap: tt.snap}, Deps{Checks: tt.checks})
			w := get(t, srv, "/api/v1/health")

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			var resp HealthResponse
			decode(t, w, &resp)
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantStatus)
			}
			if resp.Version != "test" {
				t.Errorf("Version = %q, want test", resp.Version)
			}
			if resp.Bridge.Mode != tt.snap.Mode || resp.Bridge.Restarts != tt.snap.Restarts {
				t.Errorf("Bridge = %+v, want %+v", resp.Bridge, tt.snap)
			}
			if !maps.Equal(resp.Checks, tt.wantChecks) {
				t.Errorf("Checks = %v, want %v", resp.Checks, tt.wantChecks)
			}
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := testServer(t, &fakeSession{}, Deps{})

	w := get(t, srv, "/api/v1/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q, want abc", got)
	}
}

func TestDevices_NoSession(t *testing.T) {
	srv := testServer(t, &fakeSession{}, Deps{})

	for _, path := range []string{"/api/v1/devices", "/api/v1/devices/AA:BB"} {
		w := get(t, srv, path)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s status = %d, want 503", path, w.Code)
		}
	}
}

func TestListDevices(t *testing.T) {
	srv := testServer(t, &fakeSession{registry: loadRegistry(t)}, Deps{})

	w := get(t, srv, "/api/v1/devices")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp DeviceListResponse
	decode(t, w, &resp)
	if resp.Count != 1 || len(resp.Devices) != 1 {
		t.Fatalf("Count = %d, devices = %d, want 1", resp.Count, len(resp.Devices))
	}

	d := resp.Devices[0]
	if d.ID != "AA:BB" || d.IDKind != "mac" || d.HubID != "A1" || d.ProductType != "RFDA-11B" {
		t.Errorf("device = %+v", d)
	}
	if d.StatusTopic != "eLan/AA:BB/status" || d.ControlTopic != "eLan/AA:BB/command" {
		t.Errorf("topics = %q, %q", d.StatusTopic, d.ControlTopic)
	}
	if len(d.Discovery) != 1 || !strings.HasSuffix(d.Discovery[0], "/config") {
		t.Errorf("Discovery = %v, want one light config topic", d.Discovery)
	}
	if d.Descriptor != nil {
		t.Error("list view should omit the descriptor")
	}
}

func TestGetDevice(t *testing.T) {
	srv := testServer(t, &fakeSession{registry: loadRegistry(t)}, Deps{})

	w := get(t, srv, "/api/v1/devices/AA:BB")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var d DeviceView
	decode(t, w, &d)
	if len(d.Descriptor) == 0 {
		t.Error("Descriptor is empty")
	}

	w = get(t, srv, "/api/v1/devices/FF:FF")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", w.Code)
	}
}

func TestListCommands(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		srv := testServer(t, &fakeSession{}, Deps{})
		if w := get(t, srv, "/api/v1/commands"); w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
	})

	t.Run("filters", func(t *testing.T) {
		repo := &memoryAudit{entries: []audit.Entry{{
			ID:        "1",
			DeviceID:  "AA:BB",
			Outcome:   audit.OutcomeRelayed,
			CreatedAt: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC),
		}}}
		srv := testServer(t, &fakeSession{}, Deps{Audit: repo})

		w := get(t, srv, "/api/v1/commands?device_id=AA:BB&outcome=relayed&limit=10")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		var resp CommandListResponse
		decode(t, w, &resp)
		if resp.Count != 1 || resp.Commands[0].ID != "1" {
			t.Errorf("resp = %+v", resp)
		}
		want := audit.Filter{DeviceID: "AA:BB", Outcome: "relayed", Limit: 10}
		if repo.last != want {
			t.Errorf("filter = %+v, want %+v", repo.last, want)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		srv := testServer(t, &fakeSession{}, Deps{Audit: &memoryAudit{}})
		if w := get(t, srv, "/api/v1/commands?limit=x"); w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("repository error", func(t *testing.T) {
		srv := testServer(t, &fakeSession{}, Deps{Audit: &memoryAudit{err: errors.New("disk full")}})
		if w := get(t, srv, "/api/v1/commands"); w.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", w.Code)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "elan2mqtt_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	srv := testServer(t, &fakeSession{}, Deps{Gatherer: reg})
	w := get(t, srv, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "elan2mqtt_test_total 3") {
		t.Errorf("body missing counter:\n%s", w.Body.String())
	}

	none := testServer(t, &fakeSession{}, Deps{})
	if w := get(t, none, "/metrics"); w.Code != http.StatusNotFound {
		t.Errorf("metrics disabled status = %d, want 404", w.Code)
	}
}

func TestStartAndClose(t *testing.T) {
	srv := testServer(t, &fakeSession{snap: bridge.Snapshot{SessionUp: true}}, Deps{})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer srv.Close() //nolint:errcheck // Test cleanup

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
