package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"
)

// ErrNotConnected is returned by Publish before Connect has succeeded.
var ErrNotConnected = errors.New("mqtt publisher not connected")

// Config holds broker connection settings.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TLS            *tls.Config // nil uses a default TLS config for secure schemes
	ConnectTimeout time.Duration
}

// connection is the part of *autopaho.ConnectionManager the publisher uses.
type connection interface {
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	AwaitConnection(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// Publisher implements ports.Publisher on top of autopaho.
type Publisher struct {
	cfg    Config
	logger zerolog.Logger
	cm     connection
}

// New creates a Publisher but does not connect. Call [Publisher.Connect].
func New(cfg Config, logger zerolog.Logger) *Publisher {
	return &Publisher{cfg: cfg, logger: logger}
}

// Connect starts the connection manager and waits up to ConnectTimeout for
// the first connection. A timeout is logged, not returned: autopaho keeps
// retrying in the background and cycles fail with publish errors until it
// succeeds. ctx governs the lifetime of the connection manager.
func (p *Publisher) Connect(ctx context.Context) error {
	pahoCfg, err := p.clientConfig()
	if err != nil {
		return err
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.cm = cm

	timeout := p.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	connCtx, connCancel := context.WithTimeout(ctx, timeout)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn().Err(err).Str("broker", p.cfg.Broker).
			Msg("mqtt initial connection timed out, will retry in background")
	}
	return nil
}

// Publish sends payload at QoS 1 and waits for the broker's acknowledgement.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if p.cm == nil {
		return ErrNotConnected
	}

	resp, err := p.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     1,
	})
	if err != nil {
		return fmt.Errorf("mqtt publish to %s: %w", topic, err)
	}
	if resp != nil && resp.ReasonCode >= 0x80 {
		return fmt.Errorf("mqtt publish to %s: broker rejected with reason code %#x", topic, resp.ReasonCode)
	}

	p.logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("mqtt message acknowledged")
	return nil
}

// Close disconnects from the broker. The provided context controls how
// long to wait for the disconnect to complete.
func (p *Publisher) Close(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	return p.cm.Disconnect(ctx)
}

func (p *Publisher) clientConfig() (autopaho.ClientConfig, error) {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return autopaho.ClientConfig{}, fmt.Errorf("parse mqtt broker URL: %w", err)
	}
	if brokerURL.Host == "" {
		return autopaho.ClientConfig{}, fmt.Errorf("parse mqtt broker URL %q: missing host", p.cfg.Broker)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info().Str("broker", p.cfg.Broker).Msg("mqtt connected to broker")
		},
		OnConnectError: func(err error) {
			p.logger.Warn().Err(err).Msg("mqtt connection error")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.cfg.ClientID,
		},
	}
	if p.cfg.Password != "" {
		cfg.ConnectPassword = []byte(p.cfg.Password)
	}

	if isSecure(brokerURL.Scheme) {
		cfg.TlsCfg = p.cfg.TLS
		if cfg.TlsCfg == nil {
			cfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	return cfg, nil
}

func isSecure(scheme string) bool {
	switch scheme {
	case "mqtts", "ssl", "tls", "wss":
		return true
	}
	return false
}
