package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/elan2mqtt/internal/device"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/config"
)

// Dependencies are the collaborators a Supervisor builds sessions from.
type Dependencies struct {
	// NewHub and DialBroker are required.
	NewHub     HubFactory
	DialBroker BrokerDialer

	// States and Commands are optional recorders.
	States   StateRecorder
	Commands CommandRecorder

	// Metrics and Logger are optional.
	Metrics *Metrics
	Logger  Logger
}

// Supervisor runs bridge sessions until its context is cancelled, starting a
// fresh session after every failure.
//
// Thread Safety: Run must be called once. Snapshot and Registry are safe for
// concurrent use.
type Supervisor struct {
	cfg     Config
	deps    Dependencies
	metrics *Metrics
	logger  Logger

	// sleep waits between sessions; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.RWMutex
	registry  *device.Registry
	broker    Broker
	startedAt time.Time
	restarts  uint64
	lastErr   error
}

// Snapshot is a point-in-time view of the supervisor for the ops API.
type Snapshot struct {
	Mode            string    `json:"mode"`
	SessionUp       bool      `json:"session_up"`
	SessionStarted  time.Time `json:"session_started,omitzero"`
	Restarts        uint64    `json:"restarts"`
	LastError       string    `json:"last_error,omitempty"`
	Devices         int       `json:"devices"`
	BrokerConnected bool      `json:"broker_connected"`
}

// NewSupervisor validates cfg and returns a Supervisor.
func NewSupervisor(cfg Config, deps Dependencies) (*Supervisor, error) {
	if deps.NewHub == nil || deps.DialBroker == nil {
		return nil, fmt.Errorf("%w: hub factory and broker dialer are required", ErrInvalidConfig)
	}
	if cfg.Mode != config.ModePoll && cfg.Mode != config.ModePush {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, cfg.Mode)
	}
	for name, d := range map[string]time.Duration{
		"relogin interval":     cfg.ReloginInterval,
		"status interval":      cfg.StatusInterval,
		"command poll timeout": cfg.CommandPollTimeout,
		"keep-alive interval":  cfg.KeepAliveInterval,
	} {
		if d <= 0 {
			return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}

	s := &Supervisor{
		cfg:     cfg,
		deps:    deps,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		sleep:   sleepCtx,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s, nil
}

// Run starts sessions until ctx is cancelled. A session that fails is logged,
// counted, and followed by a new one after the restart delay. Run returns nil
// on cancellation.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		err := s.RunSession(ctx)
		if ctx.Err() != nil {
			s.logger.Info("bridge stopped")
			return nil
		}

		s.mu.Lock()
		s.restarts++
		s.lastErr = err
		s.mu.Unlock()
		s.metrics.restarts.Inc()

		s.logger.Error("session failed, restarting",
			"error", err,
			"delay", s.cfg.RestartDelay.String(),
		)
		if err := s.sleep(ctx, s.cfg.RestartDelay); err != nil {
			s.logger.Info("bridge stopped")
			return nil
		}
	}
}

// RunSession runs one session from login to failure or cancellation.
func (s *Supervisor) RunSession(ctx context.Context) error {
	hub, err := s.deps.NewHub()
	if err != nil {
		return fmt.Errorf("creating hub session: %w", err)
	}
	if err := hub.Authenticate(ctx); err != nil {
		return fmt.Errorf("logging in to hub: %w", err)
	}

	registry, err := device.Load(ctx, hub, device.Options{Topics: s.cfg.Topics, Logger: s.logger})
	if err != nil {
		return err
	}

	broker, err := s.deps.DialBroker(ctx, registry.ControlTopics())
	if err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	defer func() {
		if err := broker.Close(); err != nil {
			s.logger.Warn("closing broker connection", "error", err)
		}
	}()

	status := NewStatusBridge(StatusBridgeConfig{
		Hub:       hub,
		Registry:  registry,
		Publisher: broker,
		QoS:       s.cfg.QoS,
		Recorder:  s.deps.States,
		Metrics:   s.metrics,
		Logger:    s.logger,
	})
	sess := &session{
		cfg:      s.cfg,
		hub:      hub,
		registry: registry,
		broker:   broker,
		status:   status,
		commands: NewCommandBridge(CommandBridgeConfig{
			Hub:      hub,
			Registry: registry,
			Topics:   s.cfg.Topics,
			Status:   status,
			Recorder: s.deps.Commands,
			Metrics:  s.metrics,
			Logger:   s.logger,
		}),
		metrics: s.metrics,
		logger:  s.logger,
		now:     time.Now,
	}

	s.activate(registry, broker)
	defer s.deactivate()

	s.logger.Info("session started", "mode", s.cfg.Mode, "devices", registry.Len())
	if err := sess.publishInitial(ctx); err != nil {
		return err
	}
	return sess.run(ctx)
}

// Registry returns the device registry of the running session, or nil.
func (s *Supervisor) Registry() *device.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry
}

// HealthCheck returns ErrNoSession between sessions, otherwise the broker
// link's health.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	s.mu.RLock()
	broker := s.broker
	s.mu.RUnlock()

	if broker == nil {
		return ErrNoSession
	}
	return broker.HealthCheck(ctx)
}

// Snapshot returns the current supervisor state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Mode:           s.cfg.Mode,
		SessionUp:      s.registry != nil,
		SessionStarted: s.startedAt,
		Restarts:       s.restarts,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.registry != nil {
		snap.Devices = s.registry.Len()
	}
	if s.broker != nil {
		snap.BrokerConnected = s.broker.IsConnected()
	}
	return snap
}

func (s *Supervisor) activate(registry *device.Registry, broker Broker) {
	s.mu.Lock()
	s.registry = registry
	s.broker = broker
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.metrics.sessionUp.Set(1)
	s.metrics.devices.Set(float64(registry.Len()))
}

func (s *Supervisor) deactivate() {
	s.mu.Lock()
	s.registry = nil
	s.broker = nil
	s.startedAt = time.Time{}
	s.mu.Unlock()

	s.metrics.sessionUp.Set(0)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
