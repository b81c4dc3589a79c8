package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mealsense/mealsense_core/internal/models"
	"github.com/nats-io/nats.go"
)

// conn is the subset of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	IsConnected() bool
}

// NATSPublisher emits demand events and digests.
// Demand subjects are "<prefix>.demand.<food>", digests go to "<prefix>.digest".
type NATSPublisher struct {
	nc     conn
	closer func()
	prefix string
	logger *slog.Logger
}

func NewNATSPublisher(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name("mealsense"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	p := newPublisher(nc, prefix, logger)
	p.closer = func() {
		_ = nc.Drain()
		nc.Close()
	}
	return p, nil
}

func newPublisher(nc conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{nc: nc, prefix: subjectToken(prefix), logger: logger}
}

func (p *NATSPublisher) Close() {
	if p.closer != nil {
		p.closer()
	}
}

// Name identifies the publisher as a demand sink
func (p *NATSPublisher) Name() string { return "nats" }

// DemandMessage is the payload of a demand event
type DemandMessage struct {
	Timestamp   string `json:"timestamp"`
	Food        string `json:"food"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// Record publishes one demand entry and flushes so delivery errors surface here
func (p *NATSPublisher) Record(ctx context.Context, entry models.DemandLogEntry) error {
	subject := p.DemandSubject(entry.Food)
	b, err := json.Marshal(DemandMessage(entry))
	if err != nil {
		return err
	}
	if err := p.nc.Publish(subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return p.nc.FlushWithContext(ctx)
}

// PublishDigest publishes a demand summary
func (p *NATSPublisher) PublishDigest(ctx context.Context, summary models.DemandSummary) error {
	subject := p.prefix + ".digest"
	b, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	if err := p.nc.Publish(subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return p.nc.FlushWithContext(ctx)
}

// DemandSubject is the subject a food's demand events are published on
func (p *NATSPublisher) DemandSubject(food string) string {
	return fmt.Sprintf("%s.demand.%s", p.prefix, subjectToken(strings.ToLower(food)))
}

// HealthCheck reports whether the connection is up
func (p *NATSPublisher) HealthCheck() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
