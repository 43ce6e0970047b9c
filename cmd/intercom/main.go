// Gray Logic Intercom Bridge
//
// This is the main entry point for the intercom bridge. It maintains
// persistent, authenticated WebSocket sessions to FIBARO intercom
// devices and exposes them over MQTT and a local REST API:
//   - Relay commands (door/gate open) with per-command acknowledgements
//   - Doorbell and relay state events as they happen
//   - Camera snapshot and MJPEG stream proxying
//   - Automatic reauthentication and reconnection with backoff
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/gray-logic-intercom/internal/api"
	"github.com/nerrad567/gray-logic-intercom/internal/bridge"
	"github.com/nerrad567/gray-logic-intercom/internal/camera"
	"github.com/nerrad567/gray-logic-intercom/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-intercom/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-intercom/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-intercom/internal/intercom"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting intercom bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "devices", len(cfg.Devices))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Set up MQTT logging callbacks
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Build a session per configured device, plus a camera client for
	// its HTTP surface
	manager := intercom.NewManager(log)
	cameras := make(map[string]*camera.Client, len(cfg.Devices))
	for _, dev := range cfg.Devices {
		session, sessionErr := intercom.NewSession(intercom.Options{
			Device:         dev,
			BackoffInitial: cfg.GetReconnectInitialDelay(),
			BackoffMax:     cfg.GetReconnectMaxDelay(),
			Logger:         log.With("device_id", dev.ID),
		})
		if sessionErr != nil {
			return fmt.Errorf("creating session for %s: %w", dev.ID, sessionErr)
		}
		manager.Add(session)

		cameras[dev.ID] = camera.New(camera.Options{
			Host:     dev.Host,
			Port:     dev.CameraPort,
			Username: dev.Username,
			Password: dev.Password,
			Logger:   log.With("device_id", dev.ID),
		})
	}
	log.Info("device sessions created", "count", len(cfg.Devices))

	// Start the MQTT bridge: state publishing, doorbell events, command
	// handling, and periodic health reports
	br := bridge.New(bridge.Options{
		Config:  *cfg,
		Manager: manager,
		Bus:     mqttClient,
		Logger:  log,
		Version: version,
	})
	if startErr := br.Start(ctx); startErr != nil {
		return fmt.Errorf("starting bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping bridge")
		br.Stop()
	}()
	log.Info("bridge started", "bridge_id", cfg.Bridge.ID)

	// Start the REST API (if enabled)
	if cfg.API.Enabled {
		apiServer, apiErr := api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log,
			Manager: manager,
			Cameras: cameras,
			Version: version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			log.Info("stopping API server")
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		log.Info("API server started",
			"host", cfg.API.Host,
			"port", cfg.API.Port,
		)
	} else {
		log.Info("API server disabled")
	}

	// Connect every device. Credential failures abort startup; devices
	// that are merely unreachable keep retrying in the background.
	if connectErr := manager.ConnectAll(ctx); connectErr != nil {
		return fmt.Errorf("connecting devices: %w", connectErr)
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Close device sessions before the deferred bridge/MQTT teardown so
	// final state snapshots still reach the broker.
	manager.CloseAll()

	log.Info("intercom bridge stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses INTERCOM_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("INTERCOM_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
