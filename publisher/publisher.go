// Package publisher periodically sends generated telemetry over a connection.
package publisher

import (
	"context"
	"sync/atomic"
	"time"

	mqtt "github.com/dratasich/iothub-device-go"
	"github.com/dratasich/iothub-device-go/events"
	"github.com/dratasich/iothub-device-go/metrics"
	"github.com/juju/errors"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Interval     time.Duration `env:"SEND_INTERVAL,default=30s"` // period between two readings
	SendTimeout  time.Duration `env:"SEND_TIMEOUT,default=10s"`  // bound of a single send
	CloseTimeout time.Duration `env:"CLOSE_TIMEOUT,default=10s"` // bound of the disconnect on shutdown

	// application properties attached to every message, e.g. `site:lab,env:test`
	Properties events.Properties `env:"MESSAGE_PROPERTIES"`
}

// Connection to the ingestion endpoint
type Connection interface {
	Open(ctx context.Context) error
	Transmit(ctx context.Context, msg events.Message) error
	Close(ctx context.Context) error
}

type Generator interface {
	Generate() events.TelemetryReading
}

type Publisher struct {
	config    Config
	conn      Connection
	generator Generator
	metrics   *metrics.Metrics

	state atomic.Int32

	// returns the tick channel and a function stopping it
	newTicker func(time.Duration) (<-chan time.Time, func())
}

func newTimeTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// New returns an idle publisher. m may be nil.
func New(cfg Config, conn Connection, generator Generator, m *metrics.Metrics) *Publisher {
	p := &Publisher{
		config:    cfg,
		conn:      conn,
		generator: generator,
		metrics:   m,
		newTicker: newTimeTicker,
	}
	p.setState(Idle)
	return p
}

func (p *Publisher) State() State {
	return State(p.state.Load())
}

func (p *Publisher) setState(s State) {
	p.state.Store(int32(s))
	p.metrics.SetState(int(s))
	log.Debug().Msgf("Publisher %s", s)
}

// Run opens the connection, publishes one reading per interval until ctx is
// done and closes the connection. A failed open is returned as
// mqtt.ErrConnection, a failed close as mqtt.ErrClose. Failed sends are only
// logged.
func (p *Publisher) Run(ctx context.Context) error {
	if p.State() != Idle {
		return errors.Errorf("publisher is %s", p.State())
	}

	p.setState(Connecting)
	log.Info().Msg("Connecting to Azure IoT Hub...")
	if err := p.conn.Open(ctx); err != nil {
		p.setState(Terminated)
		log.Error().Msgf("Failed to connect: %s", err)
		return errors.WithType(err, mqtt.ErrConnection)
	}
	log.Info().Msg("Connected to Azure IoT Hub successfully")

	ticks, stop := p.newTicker(p.config.Interval)
	p.setState(Running)
	p.loop(ctx, ticks)
	stop()

	p.setState(ShuttingDown)
	log.Info().Msg("Shutting down...")
	err := p.close(ctx)
	p.setState(Terminated)
	if err != nil {
		log.Error().Msgf("Failed to close connection: %s", err)
		return errors.WithType(err, mqtt.ErrClose)
	}
	log.Info().Msg("Connection closed")
	return nil
}

func (p *Publisher) loop(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			// a received tick always completes, even if shutdown follows
			p.tick(ctx)
		}
	}
}

// tick generates and sends one reading. The send is not cancelled by
// shutdown, only bounded by the send timeout.
func (p *Publisher) tick(ctx context.Context) {
	reading := p.generator.Generate()
	msg, err := events.NewMessage(reading)
	if err != nil {
		p.metrics.MessageFailed()
		log.Error().Msgf("Failed to create message: %s", err)
		return
	}
	msg.Properties = p.config.Properties

	sendCtx, cancel := withTimeout(context.WithoutCancel(ctx), p.config.SendTimeout)
	defer cancel()
	if err := p.conn.Transmit(sendCtx, msg); err != nil {
		p.metrics.MessageFailed()
		log.Error().Msgf("Failed to send message: %s", err)
		return
	}
	p.metrics.MessageSent()
	log.Info().Msgf("Message sent successfully: %s", msg.Body)
}

func (p *Publisher) close(ctx context.Context) error {
	closeCtx, cancel := withTimeout(context.WithoutCancel(ctx), p.config.CloseTimeout)
	defer cancel()
	return p.conn.Close(closeCtx)
}

// no timeout for d <= 0
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
