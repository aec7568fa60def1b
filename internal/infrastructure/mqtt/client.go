package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/elan2mqtt/internal/infrastructure/config"
)

// Client is the bridge's link to the MQTT broker.
//
// It wraps paho.mqtt.golang with an explicit connection state, a bounded
// inbound queue and a one-shot loss signal. A Client never reconnects: once
// Lost() fires, the owner closes it and builds a new one.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig
	opts    Options

	state   State
	stateMu sync.RWMutex

	// subscriptions tracks subscribed topics and their QoS.
	subscriptions map[string]byte
	subMu         sync.RWMutex

	inbound chan Message
	dropped atomic.Uint64

	lost     chan struct{}
	lostOnce sync.Once
	lostErr  error
	lostMu   sync.Mutex

	logger Logger
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Message is an inbound publish copied off the network goroutine.
type Message struct {
	Topic   string
	Payload []byte
}

// Options holds per-session connection settings.
type Options struct {
	// ClientID identifies the bridge. Generated when empty.
	ClientID string

	// AvailabilityTopic receives "online" after subscriptions are in place
	// and is the LWT topic ("offline"). Empty disables both.
	AvailabilityTopic string

	// Subscriptions are subscribed right after the broker accepts the
	// connection, before the client reports Connected.
	Subscriptions []string

	// SubscribeQoS is the QoS used for Subscriptions. Values below 1 are
	// raised to 1 so commands are not lost between broker and bridge.
	SubscribeQoS byte

	Logger Logger
}

// Connect establishes a connection to the MQTT broker.
//
// It performs the following setup:
//  1. Parses the broker URL (scheme, host, credentials)
//  2. Configures Last Will and Testament on the availability topic
//  3. Connects with auto-reconnect disabled
//  4. Subscribes every topic in opts.Subscriptions
//  5. Publishes "online" to the availability topic
//
// The client is Connected only after all five steps succeed.
func Connect(ctx context.Context, cfg config.MQTTConfig, opts Options) (*Client, error) {
	ep, err := ParseBrokerURL(cfg.Broker)
	if err != nil {
		return nil, err
	}

	c := newClient(cfg, opts)
	c.options = buildClientOptions(cfg, ep, c.opts.ClientID)
	configureLWT(c.options, c.opts.AvailabilityTopic)

	c.options.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	c.options.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.deliver(msg.Topic(), msg.Payload())
	})

	c.setState(StateConnecting)
	c.client = pahomqtt.NewClient(c.options)

	token := c.client.Connect()
	if err := waitToken(ctx, token, defaultConnectTimeout); err != nil {
		c.setState(StateDisconnected)
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	for _, topic := range c.opts.Subscriptions {
		if err := c.subscribe(ctx, topic, c.opts.SubscribeQoS); err != nil {
			c.setState(StateDisconnected)
			c.client.Disconnect(0)
			return nil, err
		}
	}

	c.setState(StateConnected)

	if c.opts.AvailabilityTopic != "" {
		if err := c.Publish(c.opts.AvailabilityTopic, []byte(PayloadOnline), 1, true); err != nil {
			c.warn("publishing availability failed", "topic", c.opts.AvailabilityTopic, "error", err)
		}
	}

	return c, nil
}

// newClient builds an unconnected Client with defaults applied.
func newClient(cfg config.MQTTConfig, opts Options) *Client {
	if opts.ClientID == "" {
		opts.ClientID = GenerateClientID()
	}
	if opts.SubscribeQoS < 1 {
		opts.SubscribeQoS = 1
	}
	if opts.SubscribeQoS > maxQoS {
		opts.SubscribeQoS = maxQoS
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &Client{
		cfg:           cfg,
		opts:          opts,
		state:         StateDisconnected,
		subscriptions: make(map[string]byte),
		inbound:       make(chan Message, queueSize),
		lost:          make(chan struct{}),
		logger:        opts.Logger,
	}
}

// waitToken waits for a paho token, honouring ctx and an upper bound.
func waitToken(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
}

// handleConnectionLost is called by paho when the link drops.
func (c *Client) handleConnectionLost(err error) {
	c.setState(StateDisconnected)

	c.lostMu.Lock()
	if err == nil {
		c.lostErr = ErrConnectionLost
	} else {
		c.lostErr = fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
	c.lostMu.Unlock()

	c.lostOnce.Do(func() { close(c.lost) })
	c.warn("MQTT connection lost", "error", err)
}

// deliver copies a message into the inbound queue without blocking.
// When the queue is full the message is dropped.
func (c *Client) deliver(topic string, payload []byte) {
	msg := Message{Topic: topic, Payload: append([]byte(nil), payload...)}
	select {
	case c.inbound <- msg:
	default:
		c.dropped.Add(1)
		c.warn("inbound queue full, message dropped", "topic", topic, "queue_size", cap(c.inbound))
	}
}

// Messages returns the inbound queue of subscribed messages.
func (c *Client) Messages() <-chan Message {
	return c.inbound
}

// Dropped returns how many inbound messages were discarded on overflow.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Lost is closed when the broker connection drops.
func (c *Client) Lost() <-chan struct{} {
	return c.lost
}

// Err returns the loss cause once Lost is closed, nil before.
func (c *Client) Err() error {
	c.lostMu.Lock()
	defer c.lostMu.Unlock()
	return c.lostErr
}

// Close publishes "offline" (when connected) and disconnects.
//
// Returns:
//   - error: always nil; a connection that is already closed is not an error
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() && c.opts.AvailabilityTopic != "" {
		token := c.client.Publish(c.opts.AvailabilityTopic, 1, true, PayloadOffline)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setState(StateDisconnected)

	return nil
}

// HealthCheck reports whether the link is usable.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// IsConnected returns true while the client is Connected and paho agrees.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.client != nil && c.client.IsConnected()
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.opts.ClientID
}

func (c *Client) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Client) warn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
