package bridge

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/nerrad567/elan2mqtt/internal/bridges/elan"
	"github.com/nerrad567/elan2mqtt/internal/device"
)

func TestStatusBridge_PublishStatus(t *testing.T) {
	f := newFixture(t, lightDevice())

	if err := f.status.PublishStatus(context.Background(), "AA:BB"); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}

	got := f.broker.on("eLan/AA:BB/status")
	if len(got) != 1 {
		t.Fatalf("published %d status messages, want 1", len(got))
	}
	if got[0].Payload != `{"on":false,"brightness":0}` {
		t.Errorf("payload = %s, want the hub document verbatim", got[0].Payload)
	}
	if !got[0].Retained || got[0].QoS != 1 {
		t.Errorf("retained = %v, qos = %d; want retained at qos 1", got[0].Retained, got[0].QoS)
	}

	if len(f.states.states) != 1 || f.states.states[0].State["on"] != false {
		t.Errorf("recorded states = %+v", f.states.states)
	}
	if v := metricValue(t, f.metrics, "elan2mqtt_status_published_total"); v != 1 {
		t.Errorf("status_published_total = %v, want 1", v)
	}
}

func TestStatusBridge_UnknownDevice(t *testing.T) {
	f := newFixture(t, lightDevice())

	err := f.status.PublishStatus(context.Background(), "ZZ:ZZ")
	if !errors.Is(err, device.ErrUnknownDevice) {
		t.Fatalf("PublishStatus() error = %v, want ErrUnknownDevice", err)
	}
	if f.hub.StateRequests("A1") != 0 {
		t.Error("unknown device should not reach the hub")
	}
}

func TestStatusBridge_ReloginOnExpiredSession(t *testing.T) {
	f := newFixture(t, lightDevice())
	f.hub.ExpireSessions()

	if err := f.status.PublishStatus(context.Background(), "AA:BB"); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}

	if got := f.hub.Logins(); got != 2 {
		t.Errorf("hub logins = %d, want 2 (initial + one relogin)", got)
	}
	if got := f.hub.StateRequests("A1"); got != 2 {
		t.Errorf("state requests = %d, want 2", got)
	}
	if f.broker.count("eLan/AA:BB/status") != 1 {
		t.Error("status should be published after the retry")
	}
}

func TestStatusBridge_SingleRetry(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		code        int
		wantErr     bool
		wantPublish int
	}{
		{"one rejection recovers", 1, http.StatusUnauthorized, false, 1},
		{"two rejections fail", 2, http.StatusUnauthorized, true, 0},
		{"three rejections fail after one retry", 3, http.StatusUnauthorized, true, 0},
		{"server error recovers", 1, http.StatusInternalServerError, false, 1},
		{"server error after retry fails", 2, http.StatusInternalServerError, true, 0},
		{"not found after retry fails", 2, http.StatusNotFound, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, lightDevice())
			f.hub.FailState("A1", tt.failures, tt.code)

			err := f.status.PublishStatus(context.Background(), "AA:BB")
			if tt.wantErr {
				if !errors.Is(err, ErrStatusUnavailable) {
					t.Fatalf("PublishStatus() error = %v, want ErrStatusUnavailable", err)
				}
				if !errors.Is(err, elan.ErrUnauthorized) {
					t.Errorf("PublishStatus() error = %v, want it to wrap ErrUnauthorized", err)
				}
				var statusErr *elan.StatusError
				if !errors.As(err, &statusErr) || statusErr.Code != tt.code {
					t.Errorf("PublishStatus() error = %v, want hub status %d", err, tt.code)
				}
			} else if err != nil {
				t.Fatalf("PublishStatus() error = %v", err)
			}

			if got := f.hub.StateRequests("A1"); got != 2 {
				t.Errorf("state requests = %d, want 2", got)
			}
			if got := metricValue(t, f.metrics, "elan2mqtt_hub_relogins_total"); got != 1 {
				t.Errorf("relogins = %v, want 1", got)
			}
			if got := f.broker.count("eLan/AA:BB/status"); got != tt.wantPublish {
				t.Errorf("status publishes = %d, want %d", got, tt.wantPublish)
			}
		})
	}
}

func TestStatusBridge_MalformedState(t *testing.T) {
	f := newFixture(t, lightDevice())
	f.hub.SetState("A1", `{"on":tru`)

	err := f.status.PublishStatus(context.Background(), "AA:BB")
	if !errors.Is(err, elan.ErrMalformedResponse) {
		t.Fatalf("PublishStatus() error = %v, want ErrMalformedResponse", err)
	}
	if f.broker.count("eLan/AA:BB/status") != 0 {
		t.Error("malformed state must not be published")
	}
}

func TestStatusBridge_PublishFailure(t *testing.T) {
	f := newFixture(t, lightDevice())
	f.broker.publishErr = errors.New("broker gone")

	if err := f.status.PublishStatus(context.Background(), "AA:BB"); err == nil {
		t.Fatal("PublishStatus() error = nil, want publish error")
	}
	if got := metricValue(t, f.metrics, "elan2mqtt_status_failures_total"); got != 1 {
		t.Errorf("status_failures_total = %v, want 1", got)
	}
}

func TestStatusBridge_PublishAll(t *testing.T) {
	f := newFixture(t, lightDevice(), thermostatDevice())

	if err := f.status.PublishAll(context.Background()); err != nil {
		t.Fatalf("PublishAll() error = %v", err)
	}
	for _, topic := range []string{"eLan/AA:BB/status", "eLan/CC:DD/status"} {
		if f.broker.count(topic) != 1 {
			t.Errorf("%s published %d times, want 1", topic, f.broker.count(topic))
		}
	}
}

func TestStatusBridge_PublishAllStopsOnError(t *testing.T) {
	f := newFixture(t, lightDevice(), thermostatDevice())
	f.hub.SetState("A1", "garbage")

	err := f.status.PublishAll(context.Background())
	if !errors.Is(err, elan.ErrMalformedResponse) {
		t.Fatalf("PublishAll() error = %v, want ErrMalformedResponse", err)
	}
	// Devices are swept in id order, so CC:DD is never reached.
	if f.broker.count("eLan/CC:DD/status") != 0 {
		t.Error("sweep should stop at the first failing device")
	}
}
