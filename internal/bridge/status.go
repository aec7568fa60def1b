package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/nerrad567/elan2mqtt/internal/bridges/elan"
	"github.com/nerrad567/elan2mqtt/internal/device"
)

// StatusBridge publishes device state read from the hub.
//
// Thread Safety: not safe for concurrent use; it belongs to one session
// goroutine.
type StatusBridge struct {
	hub      Hub
	registry *device.Registry
	pub      Publisher
	qos      byte
	recorder StateRecorder
	metrics  *Metrics
	logger   Logger
}

// StatusBridgeConfig wires a StatusBridge.
type StatusBridgeConfig struct {
	Hub       Hub
	Registry  *device.Registry
	Publisher Publisher
	QoS       byte

	// Recorder is optional.
	Recorder StateRecorder

	// Metrics and Logger are optional.
	Metrics *Metrics
	Logger  Logger
}

// NewStatusBridge creates a StatusBridge.
func NewStatusBridge(cfg StatusBridgeConfig) *StatusBridge {
	s := &StatusBridge{
		hub:      cfg.Hub,
		registry: cfg.Registry,
		pub:      cfg.Publisher,
		qos:      cfg.QoS,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s
}

// PublishStatus reads the state of one device and publishes it verbatim,
// retained, to its status topic.
//
// A rejected read forces one relogin and one retry. When the retry is also
// rejected, whatever the status code, the error wraps ErrStatusUnavailable
// and elan.ErrUnauthorized and nothing is published.
func (s *StatusBridge) PublishStatus(ctx context.Context, id string) error {
	dev, err := s.registry.Get(id)
	if err != nil {
		return err
	}

	body, err := s.fetchState(ctx, dev)
	if err != nil {
		s.metrics.statusFailures.Inc()
		return err
	}

	if err := s.pub.Publish(dev.StatusTopic, body, s.qos, true); err != nil {
		s.metrics.statusFailures.Inc()
		return fmt.Errorf("publishing status of %s: %w", id, err)
	}
	s.metrics.statusPublished.Inc()
	s.logger.Debug("status published", "device", id, "topic", dev.StatusTopic)

	if s.recorder != nil {
		var state map[string]any
		if err := json.Unmarshal(body, &state); err == nil {
			s.recorder.RecordState(dev, state)
		}
	}
	return nil
}

// PublishAll publishes the state of every device in id order. Hub timeouts
// are logged and skipped; any other error stops the sweep.
func (s *StatusBridge) PublishAll(ctx context.Context) error {
	for _, dev := range s.registry.Devices() {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.PublishStatus(ctx, dev.ID.String())
		switch {
		case err == nil:
		case errors.Is(err, elan.ErrTimeout):
			s.logger.Warn("hub timed out reading status", "device", dev.ID.String(), "error", err)
		default:
			return err
		}
	}
	return nil
}

// fetchState returns the raw state document, retrying once after a relogin.
func (s *StatusBridge) fetchState(ctx context.Context, dev *device.Device) ([]byte, error) {
	resp, err := s.hub.Do(ctx, http.MethodGet, dev.StateURL(), nil)
	if errors.Is(err, elan.ErrBadStatus) {
		s.logger.Info("status read rejected, logging in again", "device", dev.ID.String(), "error", err)
		s.hub.Invalidate()
		if authErr := s.hub.Authenticate(ctx); authErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStatusUnavailable, dev.ID, authErr)
		}
		s.metrics.relogins.Inc()

		resp, err = s.hub.Do(ctx, http.MethodGet, dev.StateURL(), nil)
		if errors.Is(err, elan.ErrBadStatus) {
			return nil, fmt.Errorf("%w: %w: %s: %w", ErrStatusUnavailable, elan.ErrUnauthorized, dev.ID, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("reading status of %s: %w", dev.ID, err)
	}

	if !json.Valid(resp.Body) {
		return nil, fmt.Errorf("%w: state of %s is not JSON", elan.ErrMalformedResponse, dev.ID)
	}
	return resp.Body, nil
}
