// Package notify publishes assessment completion events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/okian/bandscore/internal/domain/model"
	"github.com/okian/bandscore/internal/domain/types"
	"github.com/okian/bandscore/pkg/logger"
	"github.com/okian/bandscore/pkg/metrics"
)

const (
	defaultClientName     = "bandscore"
	defaultConnectTimeout = 2 * time.Second
)

// Publisher announces assessments that reached a terminal status.
type Publisher interface {
	Publish(ctx context.Context, a model.Assessment) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, model.Assessment) error { return nil }

// Close does nothing.
func (Nop) Close() error { return nil }

// NATSPublisher publishes the default view of an assessment as JSON on
// <subject>.<status>.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	log     logger.Logger

	mu     sync.Mutex
	closed bool
}

type natsOptions struct {
	name    string
	timeout time.Duration
	log     logger.Logger
}

// NATSOption configures a NATSPublisher.
type NATSOption func(*natsOptions)

// WithClientName sets the connection name reported to the server.
func WithClientName(name string) NATSOption {
	return func(o *natsOptions) {
		if name != "" {
			o.name = name
		}
	}
}

// WithConnectTimeout bounds the initial dial.
func WithConnectTimeout(d time.Duration) NATSOption {
	return func(o *natsOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) NATSOption {
	return func(o *natsOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// NewNATSPublisher connects to url and returns a publisher for subject.
func NewNATSPublisher(url, subject string, opts ...NATSOption) (*NATSPublisher, error) {
	if url == "" {
		return nil, ErrMissingURL
	}
	if subject == "" {
		return nil, ErrMissingSubject
	}
	o := natsOptions{name: defaultClientName, timeout: defaultConnectTimeout, log: logger.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := nats.Connect(url,
		nats.Name(o.name),
		nats.Timeout(o.timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	o.log.Info(context.Background(), "connected to NATS", logger.String("url", url), logger.String("subject", subject))

	return &NATSPublisher{conn: conn, subject: subject, log: o.log}, nil
}

// Subject returns the subject an assessment is published on.
func (p *NATSPublisher) Subject(a model.Assessment) string {
	return p.subject + "." + string(a.Status)
}

// Publish sends the default view of a.
func (p *NATSPublisher) Publish(ctx context.Context, a model.Assessment) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(types.View(a, types.DetailDefault))
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(a), data); err != nil {
		metrics.RecordErrorByComponent("notify", "publish")
		return fmt.Errorf("publish %s: %w", a.ID, err)
	}
	p.log.Debug(ctx, "published assessment event",
		logger.String("id", a.ID),
		logger.String("status", string(a.Status)),
	)
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
