package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/dratasich/iothub-device-go/events"
	"github.com/dratasich/iothub-device-go/iothub"
	"github.com/juju/errors"
	"github.com/rs/zerolog/log"
)

type Protocol string

const (
	// MQTT 3.1.1, the protocol spoken by IoT Hub
	ProtocolMQTT Protocol = "mqtt"
	// MQTT 5 for v5 capable brokers and gateways
	ProtocolMQTTv5 Protocol = "mqtt5"
)

// MQTT configuration for IoT Hub
type Config struct {
	// device connection string, see iothub.ConnectionString
	ConnectionString string `env:"AZURE_IOT_CONNECTION_STRING,required"`

	Protocol Protocol `env:"IOTHUB_PROTOCOL,default=mqtt"`
	// overrides the broker derived from the connection string, e.g. mqtt://localhost:1883
	ServerURL string `env:"SERVER_URL"`
	// PEM file with trusted root certificates, system roots if empty
	CAFile string `env:"CA_FILE"`

	KeepAlive      uint16        `env:"KEEP_ALIVE,default=60"` // seconds between keepalive packets
	ConnectTimeout time.Duration `env:"CONNECT_TIMEOUT,default=30s"`
	// validity of the SAS token used as password
	TokenTTL time.Duration `env:"SAS_TOKEN_TTL,default=1h"`
}

const qos = byte(1) // qos to utilise when publishing

// broker settings shared by the transports
type brokerOptions struct {
	serverURL      *url.URL
	tls            *tls.Config
	clientID       string
	username       string
	password       func() (string, error)
	keepAlive      uint16
	connectTimeout time.Duration
}

// transport is a single MQTT session
type transport interface {
	connect(ctx context.Context) error
	publish(ctx context.Context, topic string, msg events.Message) error
	disconnect(ctx context.Context) error
}

type IoTHubMQTT struct {
	config     Config
	connection iothub.ConnectionString
	transport  transport

	mu          sync.Mutex
	isConnected bool
	isClosed    bool
}

// NewClient validates the configuration. No connection is made before Open.
func NewClient(cfg Config) (*IoTHubMQTT, error) {
	cs, err := iothub.ParseConnectionString(cfg.ConnectionString)
	if err != nil {
		return nil, errors.WithType(err, ErrConfiguration)
	}
	// fail early instead of on every connection attempt
	if _, err := cs.Password(time.Now().Add(cfg.TokenTTL)); err != nil {
		return nil, errors.WithType(err, ErrConfiguration)
	}

	opts, err := newBrokerOptions(cfg, cs)
	if err != nil {
		return nil, errors.WithType(err, ErrConfiguration)
	}

	var t transport
	switch cfg.Protocol {
	case ProtocolMQTT, "":
		t = newPahoTransport(opts)
	case ProtocolMQTTv5:
		t = newAutopahoTransport(opts)
	default:
		return nil, errors.WithType(errors.NotValidf("protocol %q", cfg.Protocol), ErrConfiguration)
	}

	return &IoTHubMQTT{
		config:     cfg,
		connection: cs,
		transport:  t,
	}, nil
}

func newBrokerOptions(cfg Config, cs iothub.ConnectionString) (brokerOptions, error) {
	rawURL := cfg.ServerURL
	if rawURL == "" {
		rawURL = "mqtts://" + cs.BrokerHost() + ":8883"
	}
	serverURL, err := url.Parse(rawURL)
	if err != nil {
		return brokerOptions{}, errors.Annotatef(err, "failed to parse server URL (%s)", rawURL)
	}

	tlsCfg := &tls.Config{
		ServerName: serverURL.Hostname(),
		MinVersion: tls.VersionTLS12,
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return brokerOptions{}, errors.Annotate(err, "failed to read CA file")
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return brokerOptions{}, errors.NotValidf("CA file %s", cfg.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return brokerOptions{
		serverURL: serverURL,
		tls:       tlsCfg,
		clientID:  cs.ClientID(),
		username:  cs.Username(),
		password: func() (string, error) {
			return cs.Password(time.Now().Add(cfg.TokenTTL))
		},
		keepAlive:      cfg.KeepAlive,
		connectTimeout: cfg.ConnectTimeout,
	}, nil
}

// DeviceID of the connected identity
func (c *IoTHubMQTT) DeviceID() string {
	return c.connection.DeviceID
}

// Open connects to the hub and blocks until the session is up, ctx is done
// or the connect timeout elapsed.
func (c *IoTHubMQTT) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return errors.WithType(errors.New("connection already closed"), ErrConnection)
	}
	if c.isConnected {
		return nil
	}

	if c.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	log.Info().Msgf("Connect to IoT Hub %s as %s ...", c.connection.HostName, c.connection.ClientID())
	if err := c.transport.connect(ctx); err != nil {
		return errors.WithType(errors.Annotatef(err, "failed to connect to %s", c.connection.HostName), ErrConnection)
	}
	c.isConnected = true
	return nil
}

// Transmit publishes msg on the device-to-cloud topic and waits for the
// broker's acknowledgement.
func (c *IoTHubMQTT) Transmit(ctx context.Context, msg events.Message) error {
	c.mu.Lock()
	connected := c.isConnected
	c.mu.Unlock()
	if !connected {
		return errors.WithType(errors.New("not connected"), ErrTransmit)
	}

	topic := c.connection.TelemetryTopic(msg)
	log.Debug().Msgf("Publish to %s: %s", topic, msg.Body)
	if err := c.transport.publish(ctx, topic, msg); err != nil {
		return errors.WithType(errors.Annotatef(err, "failed to publish message %s", msg.ID), ErrTransmit)
	}
	return nil
}

// Close disconnects from the hub. Calls after the first one are no-ops.
func (c *IoTHubMQTT) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed {
		return nil
	}
	c.isClosed = true

	if !c.isConnected {
		return nil
	}
	c.isConnected = false
	if err := c.transport.disconnect(ctx); err != nil {
		return errors.WithType(errors.Annotate(err, "failed to disconnect"), ErrClose)
	}
	log.Info().Msg("Disconnected from IoT Hub")
	return nil
}
