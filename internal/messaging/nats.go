// Package messaging publishes session lifecycle events to NATS so other
// services on the local bus can react to voice activity.
package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/antoniostano/ascolta/internal/logging"
)

const (
	SubjectSessionStarted = "ascolta.session.started"
	SubjectSessionEnded   = "ascolta.session.ended"
	SubjectTranscript     = "ascolta.session.transcript"
	SubjectHotword        = "ascolta.hotword.triggered"
)

// Publisher is a thin JSON publisher over a NATS connection. A nil Publisher
// is valid and drops everything, so the daemon runs without a bus.
type Publisher struct {
	conn *nats.Conn
}

// Connect dials the NATS server. An empty URL disables messaging.
func Connect(url string) (*Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url,
		nats.Name("ascolta"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.LogNATSEvent("", "disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.LogNATSEvent("", "reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// Publish sends payload as JSON. Failures are logged, never propagated: the
// bus is best-effort and must not break a session.
func (p *Publisher) Publish(subject string, payload any) {
	if p == nil || p.conn == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logging.LogNATSEvent(subject, "marshal_failed", zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		logging.LogNATSEvent(subject, "publish_failed", zap.Error(err))
		return
	}
	logging.LogNATSEvent(subject, "published")
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
