package mqtt

import (
	"context"
	"net/url"

	"github.com/dratasich/iothub-device-go/events"
	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/juju/errors"
	"github.com/rs/zerolog/log"
)

// payload format indicator, 1 = UTF-8 encoded character data
var payloadFormatUTF8 = byte(1)

// MQTT 5 session managed by autopaho, reconnects on its own
type autopahoTransport struct {
	opts brokerOptions

	client *autopaho.ConnectionManager
	// stops the connection manager
	cancel context.CancelFunc
}

func newAutopahoTransport(opts brokerOptions) *autopahoTransport {
	return &autopahoTransport{opts: opts}
}

// clientConfig builds the autopaho configuration. The SAS token is created
// per connection attempt so reconnects after the token expired succeed.
func (t *autopahoTransport) clientConfig() autopaho.ClientConfig {
	return autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{t.opts.serverURL},
		TlsCfg:                        t.opts.tls,
		KeepAlive:                     t.opts.keepAlive,
		CleanStartOnInitialConnection: true,
		ConnectUsername:               t.opts.username,
		ConnectPacketBuilder:          t.connectPacket,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, connAck *paho.Connack) {
			log.Info().Msg("MQTT connection up")
		},
		OnConnectError: func(err error) {
			log.Error().Msgf("Error whilst attempting connection: %s", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: t.opts.clientID,
			OnClientError: func(err error) {
				log.Error().Msgf("Client error: %s", err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				if d.Properties != nil {
					log.Error().Msgf("Server requested disconnect: %s", d.Properties.ReasonString)
				} else {
					log.Error().Msgf("Server requested disconnect with reason code: %d", d.ReasonCode)
				}
			},
		},
	}
}

// connectPacket sets a fresh SAS token as password of cp
func (t *autopahoTransport) connectPacket(cp *paho.Connect, _ *url.URL) (*paho.Connect, error) {
	password, err := t.opts.password()
	if err != nil {
		return nil, errors.Annotate(err, "failed to create SAS token")
	}
	cp.Username = t.opts.username
	cp.UsernameFlag = true
	cp.Password = []byte(password)
	cp.PasswordFlag = true
	return cp, nil
}

func (t *autopahoTransport) connect(ctx context.Context) error {
	// fail before starting the connection manager if no token can be created
	if _, err := t.opts.password(); err != nil {
		return errors.Trace(err)
	}
	cliCfg := t.clientConfig()

	// the connection outlives ctx, which only bounds the wait below
	cmCtx, cancel := context.WithCancel(context.Background())
	client, err := autopaho.NewConnection(cmCtx, cliCfg)
	if err != nil {
		cancel()
		return errors.Trace(err)
	}
	// Wait for the connection to come up
	if err = client.AwaitConnection(ctx); err != nil {
		cancel()
		return errors.Trace(err)
	}
	t.client = client
	t.cancel = cancel
	return nil
}

func (t *autopahoTransport) publish(ctx context.Context, topic string, msg events.Message) error {
	props := &paho.PublishProperties{
		ContentType: msg.ContentType,
	}
	if msg.ContentEncoding == events.ContentEncodingUTF8 {
		props.PayloadFormat = &payloadFormatUTF8
	}
	for k, v := range msg.Properties {
		props.User = append(props.User, paho.UserProperty{Key: k, Value: v})
	}

	_, err := t.client.Publish(ctx, &paho.Publish{
		QoS:        qos,
		Topic:      topic,
		Payload:    msg.Body,
		Properties: props,
	})
	return errors.Trace(err)
}

func (t *autopahoTransport) disconnect(ctx context.Context) error {
	if t.client == nil {
		return nil
	}
	defer t.cancel()
	return errors.Trace(t.client.Disconnect(ctx))
}
