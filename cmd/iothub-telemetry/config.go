package main

import (
	"context"
	"strings"

	mqtt "github.com/dratasich/iothub-device-go"
	"github.com/dratasich/iothub-device-go/publisher"
	"github.com/juju/errors"
	"github.com/sethvargo/go-envconfig"
)

const connectionStringEnv = "AZURE_IOT_CONNECTION_STRING"

type Config struct {
	MQTT      mqtt.Config
	Publisher publisher.Config

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=console"` // console or json
	// address of the prometheus endpoint, disabled if empty
	MetricsAddr string `env:"METRICS_ADDR"`
}

func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	})
	if errors.Is(err, envconfig.ErrMissingRequired) {
		return Config{}, errors.WithType(errors.Errorf("%s environment variable is not set", connectionStringEnv), mqtt.ErrConfiguration)
	}
	if err != nil {
		return Config{}, errors.WithType(errors.Annotate(err, "failed to process environment"), mqtt.ErrConfiguration)
	}
	if strings.TrimSpace(cfg.MQTT.ConnectionString) == "" {
		return Config{}, errors.WithType(errors.Errorf("%s environment variable is empty", connectionStringEnv), mqtt.ErrConfiguration)
	}
	return cfg, nil
}
