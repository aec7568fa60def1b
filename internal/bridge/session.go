package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/elan2mqtt/internal/bridges/elan"
	"github.com/nerrad567/elan2mqtt/internal/device"
	"github.com/nerrad567/elan2mqtt/internal/discovery"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/mqtt"
)

// session is one hub login, registry and broker connection. All of its
// methods run on the supervisor goroutine.
type session struct {
	cfg      Config
	hub      Hub
	registry *device.Registry
	broker   Broker
	status   *StatusBridge
	commands *CommandBridge
	metrics  *Metrics
	logger   Logger

	lastStatus    time.Time
	lastDiscovery time.Time
	now           func() time.Time

	// seen holds the transport counters already added to the metrics.
	seen struct {
		brokerDropped   uint64
		eventsDropped   uint64
		eventsMalformed uint64
	}
}

// run dispatches to the loop for the configured mode.
func (s *session) run(ctx context.Context) error {
	if s.cfg.Mode == config.ModePush {
		return s.runPush(ctx)
	}
	return s.runPoll(ctx)
}

// publishInitial sends discovery and the state of every device once.
func (s *session) publishInitial(ctx context.Context) error {
	if s.cfg.Discovery {
		if err := s.publishDiscovery(); err != nil {
			return err
		}
		s.lastDiscovery = s.now()
	}
	if err := s.status.PublishAll(ctx); err != nil {
		return err
	}
	s.lastStatus = s.now()
	return nil
}

// publishDiscovery publishes the discovery documents of every device.
func (s *session) publishDiscovery() error {
	opts := discovery.Options{Topics: s.cfg.Topics, Availability: true}
	for _, dev := range s.registry.Devices() {
		for _, msg := range discovery.Discover(dev, opts) {
			body, err := msg.JSON()
			if err != nil {
				return fmt.Errorf("encoding discovery for %s: %w", dev.ID, err)
			}
			if err := s.broker.Publish(msg.Topic, body, s.cfg.QoS, true); err != nil {
				return fmt.Errorf("publishing discovery for %s: %w", dev.ID, err)
			}
			s.metrics.discoveryPublished.Inc()
		}
	}
	s.logger.Debug("discovery published", "devices", s.registry.Len())
	return nil
}

// renewIfDue logs in again once the relogin interval has elapsed and checks
// that the hub still reports the same devices.
func (s *session) renewIfDue(ctx context.Context) error {
	if !s.hub.NeedsRenewal(s.cfg.ReloginInterval) {
		return nil
	}
	s.logger.Info("renewing hub session")
	if err := s.hub.Authenticate(ctx); err != nil {
		return fmt.Errorf("renewing hub session: %w", err)
	}
	s.metrics.relogins.Inc()
	return s.registry.Verify(ctx, s.hub)
}

// dispatch hands an inbound message to the command bridge. Recoverable
// failures are logged and swallowed.
func (s *session) dispatch(ctx context.Context, msg mqtt.Message) error {
	err := s.commands.HandleCommand(ctx, msg.Topic, msg.Payload)
	if err == nil {
		return nil
	}
	if recoverable(err) {
		s.logger.Warn("command not relayed", "topic", msg.Topic, "error", err)
		return nil
	}
	return err
}

// syncCounters adds transport counter growth since the last call to the
// metrics. stream is nil in poll mode.
func (s *session) syncCounters(stream *elan.EventStream) {
	add := func(c prometheus.Counter, seen *uint64, now uint64) {
		if now > *seen {
			c.Add(float64(now - *seen))
			*seen = now
		}
	}
	add(s.metrics.inboundDropped.WithLabelValues(sourceMQTT), &s.seen.brokerDropped, s.broker.Dropped())
	if stream != nil {
		add(s.metrics.inboundDropped.WithLabelValues(sourceHubEvents), &s.seen.eventsDropped, stream.Dropped())
		add(s.metrics.events.WithLabelValues(resultMalformed), &s.seen.eventsMalformed, stream.Malformed())
	}
}

// brokerLost builds the error returned when the broker connection drops.
func (s *session) brokerLost() error {
	if cause := s.broker.Err(); cause != nil {
		return fmt.Errorf("%w: %w", ErrBrokerLost, cause)
	}
	return ErrBrokerLost
}

// recoverable reports whether err should be logged instead of ending the
// session.
func recoverable(err error) bool {
	return errors.Is(err, elan.ErrTimeout) ||
		errors.Is(err, ErrInvalidCommand) ||
		errors.Is(err, ErrCommandRejected) ||
		errors.Is(err, ErrUnknownEvent)
}
