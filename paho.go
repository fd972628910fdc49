package mqtt

import (
	"context"
	"time"

	"github.com/dratasich/iothub-device-go/events"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/rs/zerolog/log"
)

// milliseconds to wait for in flight work on disconnect
const disconnectQuiesce = 250

// MQTT 3.1.1 session, credentials are renewed on every (re)connect. The
// session is clean so a publish given up on is not resumed after a reconnect.
type pahoTransport struct {
	client pahomqtt.Client
}

func newPahoTransport(opts brokerOptions) *pahoTransport {
	clientOpts := pahomqtt.NewClientOptions().
		AddBroker(opts.serverURL.String()).
		SetClientID(opts.clientID).
		SetProtocolVersion(4).
		SetTLSConfig(opts.tls).
		SetKeepAlive(time.Duration(opts.keepAlive) * time.Second).
		SetConnectTimeout(opts.connectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetCredentialsProvider(func() (string, string) {
			password, err := opts.password()
			if err != nil {
				log.Error().Msgf("Failed to create SAS token: %s", err)
			}
			return opts.username, password
		}).
		SetOnConnectHandler(func(pahomqtt.Client) {
			log.Info().Msg("MQTT connection up")
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			log.Error().Msgf("MQTT connection lost: %s", err)
		}).
		SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
			log.Info().Msg("Reconnecting to MQTT broker ...")
		})

	return &pahoTransport{client: pahomqtt.NewClient(clientOpts)}
}

func (t *pahoTransport) connect(ctx context.Context) error {
	if err := await(ctx, t.client.Connect()); err != nil {
		// stop a connect still in progress
		t.client.Disconnect(0)
		return err
	}
	return nil
}

func (t *pahoTransport) publish(ctx context.Context, topic string, msg events.Message) error {
	return await(ctx, t.client.Publish(topic, qos, false, msg.Body))
}

func (t *pahoTransport) disconnect(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.client.Disconnect(disconnectQuiesce)
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Annotate(ctx.Err(), "disconnect did not complete")
	}
}

// await blocks until the token's flow completed or ctx is done
func await(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return errors.Trace(token.Error())
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}
