package bridge

import (
	"context"
	"time"

	"github.com/nerrad567/elan2mqtt/internal/bridges/elan"
	"github.com/nerrad567/elan2mqtt/internal/device"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/mqtt"
)

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Hub is the hub session as used by the bridge. *elan.Client satisfies it.
type Hub interface {
	device.Hub

	Authenticate(ctx context.Context) error
	Invalidate()
	NeedsRenewal(interval time.Duration) bool
	Do(ctx context.Context, method, target string, body []byte) (*elan.Response, error)
	Events(ctx context.Context) (*elan.EventStream, error)
}

// Publisher sends MQTT messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Broker is a connected MQTT link. *mqtt.Client satisfies it.
type Broker interface {
	Publisher

	// Messages delivers inbound messages for the subscribed topics.
	Messages() <-chan mqtt.Message

	// Lost is closed when the connection drops.
	Lost() <-chan struct{}

	// Err returns the loss cause after Lost is closed.
	Err() error

	// Dropped counts inbound messages lost to a full queue.
	Dropped() uint64

	IsConnected() bool
	HealthCheck(ctx context.Context) error
	Close() error
}

// BrokerDialer connects to the broker and subscribes to topics before
// returning.
type BrokerDialer func(ctx context.Context, subscriptions []string) (Broker, error)

// HubFactory creates a new, unauthenticated hub session.
type HubFactory func() (Hub, error)

// StateRecorder receives every published device state. Implementations must
// not block.
type StateRecorder interface {
	RecordState(dev *device.Device, state map[string]any)
}

// Command outcomes reported to a CommandRecorder.
const (
	OutcomeRelayed = "relayed"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// CommandRecord describes one command that reached a known device.
type CommandRecord struct {
	DeviceID string
	HubID    string
	Topic    string
	Payload  []byte
	Outcome  string
	Err      error
	At       time.Time
}

// CommandRecorder stores relayed commands.
type CommandRecorder interface {
	RecordCommand(ctx context.Context, rec CommandRecord) error
}

// Config holds the bridge timing and topic settings.
type Config struct {
	Mode   string
	Topics mqtt.Topics
	QoS    byte

	// Discovery enables Home Assistant discovery documents.
	Discovery bool

	ReloginInterval    time.Duration
	DiscoveryInterval  time.Duration
	StatusInterval     time.Duration
	CommandPollTimeout time.Duration
	KeepAliveInterval  time.Duration

	// KeepAliveDevice is the id refreshed on every push keep-alive. Empty
	// means the first device by id.
	KeepAliveDevice string

	RestartDelay time.Duration
}

// ConfigFrom extracts the bridge settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Mode: cfg.Bridge.Mode,
		Topics: mqtt.Topics{
			Prefix:          cfg.Bridge.TopicPrefix,
			DiscoveryPrefix: cfg.Bridge.DiscoveryPrefix,
		},
		QoS:                byte(cfg.MQTT.QoS), //nolint:gosec // validated 0..2
		Discovery:          cfg.Bridge.Discovery,
		ReloginInterval:    cfg.Bridge.ReloginInterval,
		DiscoveryInterval:  cfg.Bridge.DiscoveryInterval,
		StatusInterval:     cfg.Bridge.StatusInterval,
		CommandPollTimeout: cfg.Bridge.CommandPollTimeout,
		KeepAliveInterval:  cfg.Bridge.KeepAliveInterval,
		KeepAliveDevice:    cfg.Bridge.KeepAliveDevice,
		RestartDelay:       cfg.Bridge.EffectiveRestartDelay(),
	}
}
