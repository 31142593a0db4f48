package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"testing"

	"github.com/eclipse/paho.golang/paho"
	"github.com/rs/zerolog"
)

type fakeConnection struct {
	resp *paho.PublishResponse
	err  error

	published []*paho.Publish
	closed    bool
}

func (c *fakeConnection) Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	c.published = append(c.published, p)
	return c.resp, c.err
}

func (c *fakeConnection) AwaitConnection(ctx context.Context) error { return nil }

func (c *fakeConnection) Disconnect(ctx context.Context) error {
	c.closed = true
	return nil
}

func TestPublish_NotConnected(t *testing.T) {
	p := New(Config{Broker: "mqtt://localhost:1883"}, zerolog.Nop())

	err := p.Publish(context.Background(), "dogbark/reading/x", []byte("{}"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestPublish_QoS1WithoutRetain(t *testing.T) {
	conn := &fakeConnection{resp: &paho.PublishResponse{ReasonCode: 0}}
	p := New(Config{}, zerolog.Nop())
	p.cm = conn

	if err := p.Publish(context.Background(), "dogbark/reading/aa:bb:cc:dd:ee:ff", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(conn.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(conn.published))
	}
	msg := conn.published[0]
	if msg.QoS != 1 || msg.Retain {
		t.Errorf("QoS = %d retain = %v, want QoS 1 without retain", msg.QoS, msg.Retain)
	}
	if msg.Topic != "dogbark/reading/aa:bb:cc:dd:ee:ff" {
		t.Errorf("topic = %q", msg.Topic)
	}
}

func TestPublish_Errors(t *testing.T) {
	tests := []struct {
		name string
		conn *fakeConnection
	}{
		{name: "connection down", conn: &fakeConnection{err: errors.New("connection down")}},
		{name: "not authorized", conn: &fakeConnection{resp: &paho.PublishResponse{ReasonCode: 0x87}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(Config{}, zerolog.Nop())
			p.cm = tt.conn
			if err := p.Publish(context.Background(), "t", nil); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestClose(t *testing.T) {
	p := New(Config{}, zerolog.Nop())
	if err := p.Close(context.Background()); err != nil {
		t.Errorf("Close before Connect: %v", err)
	}

	conn := &fakeConnection{}
	p.cm = conn
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !conn.closed {
		t.Error("expected Disconnect to be called")
	}
}

func TestClientConfig(t *testing.T) {
	custom := &tls.Config{ServerName: "iot.example.com"}

	tests := []struct {
		name    string
		cfg     Config
		wantTLS *tls.Config
		anyTLS  bool
		wantErr bool
	}{
		{name: "plain", cfg: Config{Broker: "mqtt://localhost:1883"}},
		{name: "mqtts default tls", cfg: Config{Broker: "mqtts://broker:8883"}, anyTLS: true},
		{name: "ssl custom tls", cfg: Config{Broker: "ssl://broker:8883", TLS: custom}, wantTLS: custom, anyTLS: true},
		{name: "tls ignored for plain", cfg: Config{Broker: "tcp://broker:1883", TLS: custom}},
		{name: "missing host", cfg: Config{Broker: "localhost"}, wantErr: true},
		{name: "unparsable", cfg: Config{Broker: "://bad"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg, zerolog.Nop())
			got, err := p.clientConfig()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.anyTLS != (got.TlsCfg != nil) {
				t.Errorf("TlsCfg set = %v, want %v", got.TlsCfg != nil, tt.anyTLS)
			}
			if tt.wantTLS != nil && got.TlsCfg != tt.wantTLS {
				t.Error("expected the provided TLS config to be used")
			}
		})
	}
}

func TestClientConfig_Credentials(t *testing.T) {
	p := New(Config{
		Broker:   "mqtt://localhost:1883",
		ClientID: "dogbark-aabbccddeeff",
		Username: "meter",
		Password: "secret",
	}, zerolog.Nop())

	got, err := p.clientConfig()
	if err != nil {
		t.Fatalf("clientConfig failed: %v", err)
	}
	if got.ClientConfig.ClientID != "dogbark-aabbccddeeff" {
		t.Errorf("ClientID = %q", got.ClientConfig.ClientID)
	}
	if got.ConnectUsername != "meter" || string(got.ConnectPassword) != "secret" {
		t.Errorf("credentials = %q/%q", got.ConnectUsername, got.ConnectPassword)
	}
}
