package influxdb

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/elan2mqtt/internal/infrastructure/config"
)

// StateMeasurement is the measurement used when none is configured.
const StateMeasurement = "device_state"

const (
	pingTimeout          = 5 * time.Second
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

var (
	// ErrDisabled is returned by Connect when the sink is switched off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")

	// ErrConnectionFailed is returned when the server does not answer a ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrClosed is reported by HealthCheck after Close.
	ErrClosed = errors.New("influxdb: sink closed")
)

// StateTags identifies the device a state point belongs to.
type StateTags struct {
	DeviceID    string
	HubID       string
	ProductType string
	Label       string
}

// StateSink writes device state documents as InfluxDB points.
//
// Writes are batched and never block the caller. It is safe for concurrent
// use.
type StateSink struct {
	client      influxdb2.Client
	writeAPI    api.WriteAPI
	measurement string
	static      map[string]string
	closed      atomic.Bool
}

// Connect pings the server and returns a sink writing to cfg.Bucket.
// Asynchronous write failures go to onError, which may be nil.
func Connect(ctx context.Context, cfg config.InfluxDBConfig, onError func(error)) (*StateSink, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	opts := influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())) //nolint:gosec // positive
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	measurement := cfg.Measurement
	if measurement == "" {
		measurement = StateMeasurement
	}

	s := &StateSink{
		client:      client,
		writeAPI:    client.WriteAPI(cfg.Org, cfg.Bucket),
		measurement: measurement,
		static:      maps.Clone(cfg.Tags),
	}
	go func(errs <-chan error) {
		for err := range errs {
			if onError != nil {
				onError(err)
			}
		}
	}(s.writeAPI.Errors())

	return s, nil
}

// Measurement returns the measurement points are written to.
func (s *StateSink) Measurement() string {
	return s.measurement
}

// WriteState queues one state document. Documents without scalar members
// are skipped, as is everything after Close.
func (s *StateSink) WriteState(tags StateTags, state map[string]any) {
	if s.closed.Load() {
		return
	}
	fields := StateFields(state)
	if len(fields) == 0 {
		return
	}
	s.writeAPI.WritePoint(write.NewPoint(s.measurement, s.tags(tags), fields, time.Now()))
}

// HealthCheck pings the server.
func (s *StateSink) HealthCheck(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return ping(pingCtx, s.client)
}

// Close flushes queued points and releases the client. Safe on a nil sink
// and when called twice.
func (s *StateSink) Close() error {
	if s == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.writeAPI.Flush()
	s.client.Close()
	return nil
}

// tags merges the configured static tags with the device tags. Device tags
// win on conflict.
func (s *StateSink) tags(t StateTags) map[string]string {
	out := make(map[string]string, len(s.static)+4)
	maps.Copy(out, s.static)
	out["device_id"] = t.DeviceID
	for k, v := range map[string]string{
		"hub_id":       t.HubID,
		"product_type": t.ProductType,
		"label":        t.Label,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}
