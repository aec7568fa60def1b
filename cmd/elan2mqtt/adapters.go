package main

import (
	"context"

	"github.com/nerrad567/elan2mqtt/internal/audit"
	"github.com/nerrad567/elan2mqtt/internal/bridge"
	"github.com/nerrad567/elan2mqtt/internal/bridges/elan"
	"github.com/nerrad567/elan2mqtt/internal/device"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/mqtt"
)

// hubFactory creates a fresh hub client, and so a fresh cookie jar, for
// every session.
func hubFactory(cfg config.HubConfig, log *logging.Logger) bridge.HubFactory {
	return func() (bridge.Hub, error) {
		client, err := elan.NewClient(elan.Config{
			BaseURL:  cfg.URL,
			Username: cfg.Username,
			Password: cfg.Password,
			Timeout:  cfg.Timeout,
			Retry: elan.RetryPolicy{
				Attempts:     cfg.Login.Attempts,
				InitialDelay: cfg.Login.InitialDelay,
				MaxDelay:     cfg.Login.MaxDelay,
				Multiplier:   cfg.Login.Multiplier,
			},
			Logger: log,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// brokerDialer connects a new MQTT client per session with the bridge
// availability topic as its will.
func brokerDialer(cfg config.MQTTConfig, topics mqtt.Topics, log *logging.Logger) bridge.BrokerDialer {
	return func(ctx context.Context, subscriptions []string) (bridge.Broker, error) {
		client, err := mqtt.Connect(ctx, cfg, mqtt.Options{
			ClientID:          cfg.ClientID,
			AvailabilityTopic: topics.Availability(),
			Subscriptions:     subscriptions,
			SubscribeQoS:      byte(cfg.QoS), //nolint:gosec // validated 0..2
			Logger:            log,
		})
		if err != nil {
			return nil, err
		}
		log.Info("MQTT connected",
			"broker", mqtt.RedactURL(cfg.Broker),
			"client_id", client.ClientID(),
			"subscriptions", client.SubscriptionCount(),
		)
		return client, nil
	}
}

// stateSink writes published device states to InfluxDB.
type stateSink struct {
	sink *influxdb.StateSink
}

func (s stateSink) RecordState(dev *device.Device, state map[string]any) {
	s.sink.WriteState(influxdb.StateTags{
		DeviceID:    dev.ID.String(),
		HubID:       dev.HubID,
		ProductType: dev.ProductType,
		Label:       dev.Label,
	}, state)
}

// commandAudit stores command records in the audit repository.
type commandAudit struct {
	repo audit.Repository
}

func (a commandAudit) RecordCommand(ctx context.Context, rec bridge.CommandRecord) error {
	entry := &audit.Entry{
		DeviceID:  rec.DeviceID,
		HubID:     rec.HubID,
		Topic:     rec.Topic,
		Payload:   string(rec.Payload),
		Outcome:   rec.Outcome,
		CreatedAt: rec.At,
	}
	if rec.Err != nil {
		entry.Error = rec.Err.Error()
	}
	return a.repo.Create(ctx, entry)
}
