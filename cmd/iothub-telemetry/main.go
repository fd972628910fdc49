// Command iothub-telemetry publishes mock temperature and humidity readings
// to Azure IoT Hub until interrupted.
package main

import (
	"context"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/dratasich/iothub-device-go"
	"github.com/dratasich/iothub-device-go/events"
	"github.com/dratasich/iothub-device-go/iothub"
	"github.com/dratasich/iothub-device-go/metrics"
	"github.com/dratasich/iothub-device-go/publisher"
	"github.com/joho/godotenv"
	"github.com/juju/errors"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

// creates the connection, no network access before Open
type connectFunc func(mqtt.Config) (publisher.Connection, error)

func newConnection(cfg mqtt.Config) (publisher.Connection, error) {
	client, err := mqtt.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func main() {
	if err := setupLogging(os.Stderr, "info", "console"); err != nil {
		panic(err)
	}
	// a missing .env file is fine, the environment may be set otherwise
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Msgf("Failed to load .env: %s", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, envconfig.OsLookuper(), newConnection)
	stop()
	os.Exit(code)
}

// run returns the process exit code
func run(ctx context.Context, lookuper envconfig.Lookuper, connect connectFunc) int {
	cfg, err := loadConfig(ctx, lookuper)
	if err != nil {
		log.Error().Msgf("Error: %s", err)
		return 1
	}
	if err := setupLogging(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Error().Msgf("Error: %s", err)
		return 1
	}

	conn, err := connect(cfg.MQTT)
	if err != nil {
		log.Error().Msgf("Error: %s", err)
		return 1
	}

	var m *metrics.Metrics
	if cfg.MetricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := m.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Error().Msgf("Metrics server stopped: %s", err)
			}
		}()
	}

	generator := events.NewGenerator(iothub.ExtractDeviceID(cfg.MQTT.ConnectionString))
	log.Info().Msgf("Publishing telemetry of device %s every %s", generator.DeviceID(), cfg.Publisher.Interval)
	p := publisher.New(cfg.Publisher, conn, generator, m)

	// close failures are logged by the publisher and still exit cleanly
	if err := p.Run(ctx); mqtt.IsFatal(err) {
		return 1
	}
	return 0
}
