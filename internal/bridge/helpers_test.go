package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/elan2mqtt/internal/bridges/elan"
	"github.com/nerrad567/elan2mqtt/internal/bridges/elan/elantest"
	"github.com/nerrad567/elan2mqtt/internal/device"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/mqtt"
)

type published struct {
	Topic    string
	Payload  string
	QoS      byte
	Retained bool
}

// mockBroker is an in-memory Broker.
type mockBroker struct {
	mu         sync.Mutex
	published  []published
	subs       []string
	closed     bool
	publishErr error
	dropped    uint64
	messages   chan mqtt.Message
	lost       chan struct{}
	lostOnce   sync.Once
}

func newMockBroker(subs []string) *mockBroker {
	return &mockBroker{
		subs:     append([]string(nil), subs...),
		messages: make(chan mqtt.Message, 16),
		lost:     make(chan struct{}),
	}
}

func (b *mockBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{topic, string(payload), qos, retained})
	return nil
}

func (b *mockBroker) Messages() <-chan mqtt.Message { return b.messages }
func (b *mockBroker) Lost() <-chan struct{}         { return b.lost }

func (b *mockBroker) Err() error {
	select {
	case <-b.lost:
		return errors.New("connection reset")
	default:
		return nil
	}
}

func (b *mockBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed && b.Err() == nil
}

func (b *mockBroker) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

func (b *mockBroker) HealthCheck(context.Context) error {
	if !b.IsConnected() {
		return mqtt.ErrNotConnected
	}
	return nil
}

func (b *mockBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

func (b *mockBroker) drop() {
	b.lostOnce.Do(func() { close(b.lost) })
}

func (b *mockBroker) send(topic, payload string) {
	b.messages <- mqtt.Message{Topic: topic, Payload: []byte(payload)}
}

func (b *mockBroker) on(topic string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, p := range b.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (b *mockBroker) count(topic string) int {
	return len(b.on(topic))
}

func (b *mockBroker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// dialRecorder hands out mock brokers and remembers them.
type dialRecorder struct {
	mu      sync.Mutex
	brokers []*mockBroker
	fail    int
}

func (d *dialRecorder) dial(_ context.Context, subs []string) (Broker, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail > 0 {
		d.fail--
		return nil, mqtt.ErrConnectionFailed
	}
	b := newMockBroker(subs)
	d.brokers = append(d.brokers, b)
	return b, nil
}

func (d *dialRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.brokers)
}

func (d *dialRecorder) last() *mockBroker {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.brokers) == 0 {
		return nil
	}
	return d.brokers[len(d.brokers)-1]
}

type recordedState struct {
	DeviceID string
	State    map[string]any
}

type stateRecorder struct {
	mu     sync.Mutex
	states []recordedState
}

func (r *stateRecorder) RecordState(dev *device.Device, state map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, recordedState{dev.ID.String(), state})
}

type commandRecorder struct {
	mu      sync.Mutex
	records []CommandRecord
}

func (r *commandRecorder) RecordCommand(_ context.Context, rec CommandRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

// lightDevice is a dimmer known to the hub as A1 with address AA:BB.
func lightDevice() elantest.Device {
	return elantest.Device{
		HubID: "A1",
		Info: map[string]any{
			"type":         "light",
			"label":        "Kitchen",
			"product type": "RFDA-11B",
			"address":      "AA:BB",
		},
		Actions: map[string]any{
			"on":         map[string]any{"type": "bool"},
			"brightness": map[string]any{"type": "int", "min": 0, "max": 100, "step": 10},
		},
		Primary: []string{"on", "brightness"},
		State:   `{"on":false,"brightness":0}`,
	}
}

func thermostatDevice() elantest.Device {
	return elantest.Device{
		HubID: "B2",
		Info: map[string]any{
			"type":         "heating",
			"label":        "Bedroom",
			"product type": "RFSTI-11G",
			"address":      "CC:DD",
		},
		Primary: []string{"on"},
		State:   `{"temperature IN":21.5,"temperature OUT":4,"on":true}`,
	}
}

func newHub(t *testing.T, devices ...elantest.Device) *elantest.Hub {
	t.Helper()
	hub := elantest.NewHub("admin", "elkoep")
	t.Cleanup(hub.Close)
	for _, d := range devices {
		hub.AddDevice(d)
	}
	return hub
}

func hubConfig(hub *elantest.Hub) elan.Config {
	return elan.Config{
		BaseURL:  hub.URL(),
		Username: "admin",
		Password: "elkoep",
		Retry:    elan.RetryPolicy{Attempts: 1},
	}
}

func newHubClient(t *testing.T, hub *elantest.Hub) *elan.Client {
	t.Helper()
	c, err := elan.NewClient(hubConfig(hub))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

// fixture is a logged-in hub client with a loaded registry and the two
// bridges wired to a mock broker.
type fixture struct {
	hub      *elantest.Hub
	client   *elan.Client
	registry *device.Registry
	broker   *mockBroker
	metrics  *Metrics
	states   *stateRecorder
	commands *commandRecorder
	status   *StatusBridge
	command  *CommandBridge
}

func newFixture(t *testing.T, devices ...elantest.Device) *fixture {
	t.Helper()
	hub := newHub(t, devices...)
	client := newHubClient(t, hub)
	ctx := context.Background()

	if err := client.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	registry, err := device.Load(ctx, client, device.Options{})
	if err != nil {
		t.Fatalf("device.Load() error = %v", err)
	}

	f := &fixture{
		hub:      hub,
		client:   client,
		registry: registry,
		broker:   newMockBroker(registry.ControlTopics()),
		metrics:  NewMetrics(),
		states:   &stateRecorder{},
		commands: &commandRecorder{},
	}
	f.status = NewStatusBridge(StatusBridgeConfig{
		Hub:       client,
		Registry:  registry,
		Publisher: f.broker,
		QoS:       1,
		Recorder:  f.states,
		Metrics:   f.metrics,
	})
	f.command = NewCommandBridge(CommandBridgeConfig{
		Hub:      client,
		Registry: registry,
		Status:   f.status,
		Recorder: f.commands,
		Metrics:  f.metrics,
	})
	return f
}

func testConfig(mode string) Config {
	return Config{
		Mode:               mode,
		QoS:                1,
		Discovery:          true,
		ReloginInterval:    time.Hour,
		DiscoveryInterval:  time.Hour,
		StatusInterval:     time.Hour,
		CommandPollTimeout: 10 * time.Millisecond,
		KeepAliveInterval:  time.Hour,
		RestartDelay:       10 * time.Millisecond,
	}
}

func newTestSupervisor(t *testing.T, cfg Config, hub *elantest.Hub, dialer *dialRecorder) *Supervisor {
	t.Helper()
	sup, err := NewSupervisor(cfg, Dependencies{
		NewHub: func() (Hub, error) {
			c, err := elan.NewClient(hubConfig(hub))
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		DialBroker: dialer.dial,
	})
	if err != nil {
		t.Fatalf("NewSupervisor() error = %v", err)
	}
	return sup
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// metricValue reads a counter or gauge from the metrics registry. labels are
// name/value pairs.
func metricValue(t *testing.T, m *Metrics, name string, labels ...string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range mf.GetMetric() {
			pairs := metric.GetLabel()
			if len(pairs)*2 != len(labels) {
				continue
			}
			for i, p := range pairs {
				if p.GetName() != labels[2*i] || p.GetValue() != labels[2*i+1] {
					continue metrics
				}
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	return 0
}
