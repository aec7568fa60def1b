// elan2mqtt bridges an Elko EP eLAN hub to an MQTT broker and announces the
// hub's devices to Home Assistant through MQTT discovery.
//
// Usage:
//
//	elan2mqtt [flags] [elan-url] [mqtt-broker]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nerrad567/elan2mqtt/internal/api"
	"github.com/nerrad567/elan2mqtt/internal/audit"
	"github.com/nerrad567/elan2mqtt/internal/bridge"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/database"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/influxdb"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/elan2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/elan2mqtt/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// cliOptions holds the command-line flags.
type cliOptions struct {
	configPath       string
	elanUser         string
	elanPassword     string
	logLevel         string
	disableDiscovery bool
	mqttID           string
	mode             string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts cliOptions

	cmd := &cobra.Command{
		Use:   "elan2mqtt [flags] [elan-url] [mqtt-broker]",
		Short: "Bridge an eLAN hub to MQTT with Home Assistant discovery",
		Long: "elan2mqtt mirrors the state of every device on an Elko EP eLAN hub to MQTT,\n" +
			"relays commands from MQTT back to the hub, and publishes Home Assistant\n" +
			"discovery documents.",
		Args:          cobra.MaximumNArgs(2),
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, args, cmd.Flags())
			if err != nil {
				return err
			}
			if opts.configPath != "" {
				// The configured logger does not exist until run.
				logging.Default().Info("configuration loaded", "path", opts.configPath)
			}
			return run(cmd.Context(), cfg)
		},
	}

	opts.bind(cmd.Flags())

	return cmd
}

func (o *cliOptions) bind(f *pflag.FlagSet) {
	f.StringVarP(&o.configPath, "config", "c", "", "YAML configuration file")
	f.StringVar(&o.elanUser, "elan-user", "", "eLAN login name")
	f.StringVar(&o.elanPassword, "elan-password", "", "eLAN password")
	f.StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.BoolVar(&o.disableDiscovery, "disable-autodiscovery", false, "do not publish Home Assistant discovery documents")
	f.StringVar(&o.mqttID, "mqtt-id", "", "MQTT client id (generated when empty)")
	f.StringVar(&o.mode, "mode", "", "bridge mode: poll or push")
}

// loadConfig builds the effective configuration: file (or defaults), then
// environment, then positional arguments, then explicitly set flags.
func loadConfig(opts cliOptions, args []string, flags *pflag.FlagSet) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	} else {
		cfg = config.LoadDefault()
	}

	if len(args) > 0 {
		cfg.Hub.URL = args[0]
	}
	if len(args) > 1 {
		cfg.MQTT.Broker = args[1]
	}

	if flags.Changed("elan-user") {
		cfg.Hub.Username = opts.elanUser
	}
	if flags.Changed("elan-password") {
		cfg.Hub.Password = opts.elanPassword
	}
	if flags.Changed("log-level") {
		if !logging.ValidLevel(opts.logLevel) {
			return nil, fmt.Errorf("invalid log level %q", opts.logLevel)
		}
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("disable-autodiscovery") {
		cfg.Bridge.Discovery = !opts.disableDiscovery
	}
	if flags.Changed("mqtt-id") {
		cfg.MQTT.ClientID = opts.mqttID
	}
	if flags.Changed("mode") {
		cfg.Bridge.Mode = opts.mode
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// run wires the components and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	log := logging.New(cfg.Logging, version)
	log.Info("starting elan2mqtt",
		"version", version,
		"commit", commit,
		"build_date", date,
		"hub", cfg.Hub.URL,
		"broker", mqtt.RedactURL(cfg.MQTT.Broker),
		"mode", cfg.Bridge.Mode,
		"discovery", cfg.Bridge.Discovery,
	)

	bridgeCfg := bridge.ConfigFrom(cfg)
	metrics := bridge.NewMetrics()
	deps := bridge.Dependencies{
		NewHub:     hubFactory(cfg.Hub, log),
		DialBroker: brokerDialer(cfg.MQTT, bridgeCfg.Topics, log),
		Metrics:    metrics,
		Logger:     log,
	}
	checks := map[string]api.HealthChecker{}

	// InfluxDB state telemetry (optional)
	influxSink, err := influxdb.Connect(ctx, cfg.InfluxDB, func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxSink.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		deps.States = stateSink{sink: influxSink}
		checks["influxdb"] = influxSink
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
			"measurement", influxSink.Measurement(),
		)
	}

	// Command audit (optional)
	var auditRepo audit.Repository
	if cfg.Audit.Enabled {
		db, err := database.Open(cfg.Database)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		auditRepo = audit.NewSQLiteRepository(db.DB)
		deps.Commands = commandAudit{repo: auditRepo}
		checks["database"] = db
		log.Info("command audit enabled", "path", cfg.Database.Path)
	}

	supervisor, err := bridge.NewSupervisor(bridgeCfg, deps)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	checks["mqtt"] = supervisor

	// Operations API (optional)
	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Session:  supervisor,
			Topics:   bridgeCfg.Topics,
			Gatherer: metrics.Registry(),
			Audit:    auditRepo,
			Checks:   checks,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if err := supervisor.Run(ctx); err != nil {
		return err
	}
	log.Info("elan2mqtt stopped")
	return nil
}
