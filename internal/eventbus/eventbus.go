// Package eventbus mirrors dispatched messages onto NATS for external
// consumers (historians, other services). It is never on the critical
// delivery path: Offer drops the message rather than block.
package eventbus

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/bifrost-automation/opcua-edge-adapter/internal/queue"
)

// Config configures the NATS connection and publish subject, mirroring the
// teacher's NATSConfig shape, trimmed to what the mirror needs.
type Config struct {
	Servers        []string
	Subject        string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// Publisher implements queue.Mirror over a NATS connection.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
	dropped func()
}

// Connect dials the configured NATS servers and returns a ready Publisher.
func Connect(cfg Config, logger *zap.Logger, onDropped func()) (*Publisher, error) {
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("eventbus: no servers configured")
	}
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("eventbus disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			logger.Info("eventbus reconnected")
		}),
	}

	conn, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("eventbus connect: %w", err)
	}

	return &Publisher{conn: conn, subject: cfg.Subject, logger: logger, dropped: onDropped}, nil
}

// Offer publishes msg best-effort; marshal or publish failures are logged
// and counted, never propagated to the dispatch loop.
func (p *Publisher) Offer(msg queue.Message) {
	data, err := json.Marshal(mirrorEnvelope{
		Type:     int(msg.Type),
		Endpoint: msg.Endpoint,
		Payload:  msg.Payload,
	})
	if err != nil {
		p.logger.Warn("eventbus marshal failed", zap.Error(err))
		if p.dropped != nil {
			p.dropped()
		}
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		p.logger.Warn("eventbus publish failed", zap.Error(err))
		if p.dropped != nil {
			p.dropped()
		}
	}
}

// Close closes the NATS connection without draining it.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

type mirrorEnvelope struct {
	Type     int    `json:"type"`
	Endpoint string `json:"endpoint"`
	Payload  any    `json:"payload,omitempty"`
}
