// RoboJar Core - test rig controller
//
// This is the main entry point for the RoboJar rig core. It owns the valve,
// pump and sensor state machines, writes the CSV ledgers and serves the
// command surface over HTTP, WebSocket and optionally MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/robojar-core/migrations"

	"github.com/nerrad567/robojar-core/internal/api"
	"github.com/nerrad567/robojar-core/internal/command"
	"github.com/nerrad567/robojar-core/internal/controller"
	"github.com/nerrad567/robojar-core/internal/device"
	"github.com/nerrad567/robojar-core/internal/events"
	"github.com/nerrad567/robojar-core/internal/history"
	"github.com/nerrad567/robojar-core/internal/infrastructure/config"
	"github.com/nerrad567/robojar-core/internal/infrastructure/database"
	"github.com/nerrad567/robojar-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/robojar-core/internal/infrastructure/logging"
	"github.com/nerrad567/robojar-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/robojar-core/internal/ledger"
	"github.com/nerrad567/robojar-core/internal/metrics"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// busDrainTimeout bounds delivery of queued events after shutdown.
const busDrainTimeout = 5 * time.Second

// historyPruneInterval is how often history older than the retention is deleted.
const historyPruneInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting RoboJar core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	m := metrics.New()
	bus := events.NewBus(events.DefaultBufferSize)
	bus.SetLogger(log)
	bus.SetOnDrop(m.RecordDropped)
	bus.Subscribe("metrics", m.Handle)

	hub := api.NewHub(cfg.WebSocket, log)
	bus.Subscribe("websocket", hub.Handle)

	checks := make(map[string]api.HealthChecker)

	// Transition history (optional)
	var repo history.Repository
	if cfg.Database.Enabled {
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
		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database ready", "path", cfg.Database.Path)

		repo = history.NewSQLiteRepository(db.DB)
		bus.Subscribe("history", func(ctx context.Context, tr device.Transition) {
			if recErr := repo.Record(context.WithoutCancel(ctx), tr); recErr != nil {
				log.Warn("recording history failed", "device", tr.Device, "error", recErr)
			}
		})
		checks["database"] = db

		if cfg.Database.Retention > 0 {
			go pruneHistory(ctx, repo, cfg.Database.Retention, historyPruneInterval, log)
			log.Info("history retention enabled", "retention", cfg.Database.Retention)
		}
	} else {
		log.Info("transition history disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	var dispatcher command.Dispatcher
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
		mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		publisher := mqtt.NewTransitionPublisher(mqttClient, mqttClient.Topics(), mqttClient.QoS())
		publisher.SetLogger(log)
		bus.Subscribe("mqtt", publisher.Handle)
		dispatcher = mqtt.NewDispatcher(mqttClient, mqttClient.Topics(), mqttClient.QoS())
		checks["mqtt"] = mqttClient
	} else {
		log.Info("MQTT disabled")
	}

	// InfluxDB (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		bus.Subscribe("influxdb", influxClient.Handle)
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Devices
	paths := ledgerPaths(cfg)
	led := ledger.New()
	ctrl, err := controller.New(controller.Config{
		Valves:          cfg.Rig.Valves,
		ValveNameFormat: cfg.Rig.ValveNameFormat,
		PumpName:        cfg.Rig.PumpName,
		SensorName:      cfg.Rig.SensorName,
	},
		controller.WithLedger(led, paths),
		controller.WithObserver(bus.Observer()),
		controller.WithLogger(log.With("component", "controller")),
	)
	if ctrl == nil {
		return fmt.Errorf("building controller: %w", err)
	}
	if err != nil {
		m.RecordLedgerFailure()
		log.Warn("initial ledger entries failed", "error", err)
	}
	for _, mach := range ctrl.Machines() {
		m.SetDeviceState(mach.Name(), mach.Kind(), mach.State())
	}

	exec := command.NewExecutor(ctrl, dispatcher)
	exec.SetLogger(log.With("component", "command"))

	busCtx, stopBus := context.WithCancel(context.Background())
	busDone := make(chan struct{})
	go func() {
		bus.Run(busCtx)
		close(busDone)
	}()
	defer func() {
		stopBus()
		select {
		case <-busDone:
		case <-time.After(busDrainTimeout):
			log.Warn("event bus did not drain in time", "pending", bus.Pending())
		}
	}()

	if mqttClient != nil && cfg.MQTT.AcceptCommands {
		topic := mqttClient.Topics().Command()
		handler := mqtt.CommandHandler(func(ctx context.Context, text string) error {
			return runMQTTCommand(ctx, exec, m, text)
		})
		if err := mqttClient.Subscribe(topic, mqttClient.QoS(), handler); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		log.Info("accepting MQTT commands", "topic", topic)
	}

	// HTTP API
	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:      cfg.API,
			WS:          cfg.WebSocket,
			Logger:      log,
			Executor:    exec,
			Ledger:      led,
			LedgerPaths: paths,
			History:     repo,
			Metrics:     m,
			Hub:         hub,
			Checks:      checks,
			Version:     version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		go hub.Run(ctx)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API disabled")
	}

	if cfg.Monitor.Interval > 0 {
		go monitor(ctx, ctrl.Machines(), cfg.Monitor.Interval, m, log)
		log.Info("monitor started", "interval", cfg.Monitor.Interval)
	}

	log.Info("initialisation complete, waiting for shutdown signal",
		"rig", cfg.Rig.ID,
		"valves", ctrl.ValveCount(),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("RoboJar core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses ROBOJAR_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ROBOJAR_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// ledgerPaths resolves every ledger file against the ledger directory.
func ledgerPaths(cfg *config.Config) ledger.Paths {
	return ledger.Paths{
		System: cfg.LedgerPath(cfg.Ledger.System),
		Valve:  cfg.LedgerPath(cfg.Ledger.Valve),
		Pump:   cfg.LedgerPath(cfg.Ledger.Pump),
		Sensor: cfg.LedgerPath(cfg.Ledger.Sensor),
	}
}

// runMQTTCommand executes a text command received over MQTT. Ledger
// failures are counted but not returned; the state change stands.
func runMQTTCommand(ctx context.Context, exec *command.Executor, m *metrics.Metrics, text string) error {
	cmd, err := command.Parse(text)
	if err != nil {
		m.RecordCommand("mqtt", "error")
		return err
	}

	switch cmd.Action {
	case command.ActionReset:
		_, err = exec.Reset(ctx)
	case command.ActionTest:
		_, err = exec.RunTest(ctx)
	default:
		var res command.Result
		res, err = exec.Execute(ctx, cmd)
		if err == nil || errors.Is(err, device.ErrLedgerWrite) {
			m.RecordCommand("mqtt", string(commandOutcome(res)))
		}
	}

	if errors.Is(err, device.ErrLedgerWrite) {
		m.RecordLedgerFailure()
		return nil
	}
	if err != nil {
		m.RecordCommand("mqtt", "error")
		return err
	}
	if cmd.Action == command.ActionReset || cmd.Action == command.ActionTest {
		m.RecordCommand("mqtt", string(device.OutcomeApplied))
	}
	return nil
}

func commandOutcome(res command.Result) device.Outcome {
	switch {
	case res.Rejected:
		return device.OutcomeRejected
	case res.Changed:
		return device.OutcomeApplied
	}
	return device.OutcomeUnchanged
}
