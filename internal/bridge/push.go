package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/elan2mqtt/internal/bridges/elan"
	"github.com/nerrad567/elan2mqtt/internal/device"
)

// runPush is the event loop. It follows the hub's WebSocket stream and
// refreshes one device on every keep-alive tick so the hub session does not
// idle out.
func (s *session) runPush(ctx context.Context) error {
	stream, err := s.hub.Events(ctx)
	if err != nil {
		return fmt.Errorf("opening hub event stream: %w", err)
	}
	defer func() {
		_ = stream.Close()
		s.syncCounters(stream)
	}()

	keepAlive := s.keepAliveDevice()
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.broker.Lost():
			return s.brokerLost()

		case <-stream.Done():
			if err := stream.Err(); err != nil {
				return err
			}
			return elan.ErrStreamClosed

		case ev := <-stream.Events():
			if err := s.handleEvent(ctx, ev); err != nil {
				return err
			}

		case msg := <-s.broker.Messages():
			if err := s.dispatch(ctx, msg); err != nil {
				return err
			}

		case <-ticker.C:
			s.syncCounters(stream)
			if err := s.renewIfDue(ctx); err != nil {
				return err
			}
			if keepAlive == nil {
				continue
			}
			if err := s.status.PublishStatus(ctx, keepAlive.ID.String()); err != nil && !recoverable(err) {
				return err
			}
		}
	}
}

// handleEvent publishes the state of the device an event names.
func (s *session) handleEvent(ctx context.Context, ev elan.Event) error {
	dev, err := s.registry.ByHubID(ev.Device)
	if err != nil {
		s.metrics.events.WithLabelValues(resultUnknown).Inc()
		s.logger.Warn("dropping hub event", "error", fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Device))
		return nil
	}
	s.metrics.events.WithLabelValues(resultHandled).Inc()

	err = s.status.PublishStatus(ctx, dev.ID.String())
	if err != nil && recoverable(err) {
		s.logger.Warn("status after event failed", "device", dev.ID.String(), "error", err)
		return nil
	}
	return err
}

// keepAliveDevice returns the configured keep-alive device, falling back to
// the first device by id. Nil when the registry is empty.
func (s *session) keepAliveDevice() *device.Device {
	if id := s.cfg.KeepAliveDevice; id != "" {
		if dev, err := s.registry.Get(id); err == nil {
			return dev
		}
		s.logger.Warn("keep-alive device not found, using first device", "device", id)
	}
	devices := s.registry.Devices()
	if len(devices) == 0 {
		return nil
	}
	return devices[0]
}
