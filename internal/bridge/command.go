package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/elan2mqtt/internal/bridges/elan"
	"github.com/nerrad567/elan2mqtt/internal/device"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/mqtt"
)

// CommandBridge relays MQTT commands to the hub.
//
// Thread Safety: not safe for concurrent use; it belongs to one session
// goroutine.
type CommandBridge struct {
	hub      Hub
	registry *device.Registry
	topics   mqtt.Topics
	status   *StatusBridge
	recorder CommandRecorder
	metrics  *Metrics
	logger   Logger
}

// CommandBridgeConfig wires a CommandBridge.
type CommandBridgeConfig struct {
	Hub      Hub
	Registry *device.Registry
	Topics   mqtt.Topics

	// Status publishes the device state after a successful command.
	Status *StatusBridge

	// Recorder, Metrics and Logger are optional.
	Recorder CommandRecorder
	Metrics  *Metrics
	Logger   Logger
}

// NewCommandBridge creates a CommandBridge.
func NewCommandBridge(cfg CommandBridgeConfig) *CommandBridge {
	c := &CommandBridge{
		hub:      cfg.Hub,
		registry: cfg.Registry,
		topics:   cfg.Topics,
		status:   cfg.Status,
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
	if c.metrics == nil {
		c.metrics = NewMetrics()
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	return c
}

// HandleCommand relays one command message.
//
// Topics that are not <prefix>/<id>/command and ids the registry does not
// know are logged and dropped without error. A payload that is not JSON
// returns ErrInvalidCommand. The payload is sent as PUT {device url}
// unchanged; on success the device state is published straight away. A PUT
// the hub answers with a non-2xx status returns ErrCommandRejected and
// invalidates the hub session so the next pass logs in again.
func (c *CommandBridge) HandleCommand(ctx context.Context, topic string, payload []byte) error {
	id, ok := c.topics.ParseCommand(topic)
	if !ok {
		c.metrics.commands.WithLabelValues(resultDropped).Inc()
		c.logger.Warn("dropping message on unexpected topic", "topic", topic)
		return nil
	}
	dev, err := c.registry.Get(id)
	if err != nil {
		c.metrics.commands.WithLabelValues(resultDropped).Inc()
		c.logger.Warn("dropping command for unknown device", "device", id)
		return nil
	}

	if !json.Valid(payload) {
		c.metrics.commands.WithLabelValues(resultInvalid).Inc()
		err := fmt.Errorf("%w: %s", ErrInvalidCommand, topic)
		c.record(ctx, dev, topic, payload, OutcomeInvalid, err)
		return err
	}

	c.logger.Debug("relaying command", "device", id, "payload", string(payload))
	if _, err := c.hub.Do(ctx, http.MethodPut, dev.URL, payload); err != nil {
		c.hub.Invalidate()
		c.metrics.commands.WithLabelValues(resultFailed).Inc()
		if errors.Is(err, elan.ErrBadStatus) {
			err = fmt.Errorf("%w: %s: %w", ErrCommandRejected, id, err)
		} else {
			err = fmt.Errorf("relaying command to %s: %w", id, err)
		}
		c.record(ctx, dev, topic, payload, OutcomeFailed, err)
		return err
	}
	c.metrics.commands.WithLabelValues(resultRelayed).Inc()
	c.record(ctx, dev, topic, payload, OutcomeRelayed, nil)

	return c.status.PublishStatus(ctx, id)
}

func (c *CommandBridge) record(ctx context.Context, dev *device.Device, topic string, payload []byte, outcome string, cmdErr error) {
	if c.recorder == nil {
		return
	}
	rec := CommandRecord{
		DeviceID: dev.ID.String(),
		HubID:    dev.HubID,
		Topic:    topic,
		Payload:  append([]byte(nil), payload...),
		Outcome:  outcome,
		Err:      cmdErr,
		At:       time.Now().UTC(),
	}
	if err := c.recorder.RecordCommand(ctx, rec); err != nil {
		c.logger.Warn("failed to record command", "device", rec.DeviceID, "error", err)
	}
}
