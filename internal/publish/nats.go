// Package publish fans stored location reports out over NATS.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"gpsgateway/internal/core/model"
)

type natsConn interface {
	Publish(subject string, data []byte) error
}

// Publisher sends each report as JSON on "<prefix>.<imei>".
type Publisher struct {
	conn   natsConn
	nc     *nats.Conn
	prefix string
}

// Connect dials url. The returned Publisher owns the connection.
func Connect(url, prefix string, log zerolog.Logger) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("gpsgateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	p := newPublisher(nc, prefix)
	p.nc = nc
	return p, nil
}

func newPublisher(conn natsConn, prefix string) *Publisher {
	return &Publisher{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject returns the subject reports for deviceID are published on.
func (p *Publisher) Subject(deviceID string) string {
	return p.prefix + "." + deviceID
}

func (p *Publisher) Publish(_ context.Context, report *model.LocationReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := p.conn.Publish(p.Subject(report.DeviceID), data); err != nil {
		return fmt.Errorf("publish %s: %w", p.Subject(report.DeviceID), err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
