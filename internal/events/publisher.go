package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// Event types, also used as the subject suffix when publishing.
// DependencyRejected is only logged; nothing is stored for it.
const (
	BundleCreated        = "bundle.created"
	BundleUpdated        = "bundle.updated"
	BundleDeleted        = "bundle.deleted"
	BundleImported       = "bundle.imported"
	InterventionAdded    = "intervention.added"
	InterventionUpdated  = "intervention.updated"
	InterventionRemoved  = "intervention.removed"
	DependencyAdded      = "dependency.added"
	DependencyRemoved    = "dependency.removed"
	DependencyUpdated    = "dependency.updated"
	DependencyRejected   = "dependency.rejected"
	BundleExported       = "bundle.exported"
	DefaultSubjectPrefix = "intervene"
)

// Publisher fans committed events out to other processes.
type Publisher interface {
	Publish(ctx context.Context, subject string, event any) error
	Close() error
}

// Subject joins prefix and event type, e.g. intervene.dependency.added.
func Subject(prefix, evtType string) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return prefix + "." + evtType
}

// NoopPublisher is used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, subject string, event any) error { return nil }
func (NoopPublisher) Close() error                                                  { return nil }

// NATSPublisher publishes JSON-encoded events to NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	defaults := []nats.Option{nats.Name("intervene"), nats.MaxReconnects(-1)}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return p.conn.Publish(subject, data)
}

func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}

// Open returns a NATS publisher when url is set and a no-op one otherwise.
func Open(url string) (Publisher, error) {
	if strings.TrimSpace(url) == "" {
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(url)
}
