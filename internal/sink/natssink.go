package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/Deva-cpp/nextbuy-shield/internal/ledger"
)

// NATSSink publishes detection events to a NATS subject. Subscribers see
// one JSON-encoded event per message.
type NATSSink struct {
	url     string
	subject string
	nc      *nats.Conn
}

func NewNATSSink(url, subject string) *NATSSink {
	if url == "" {
		url = nats.DefaultURL
	}
	if subject == "" {
		subject = "shield.detections"
	}
	return &NATSSink{url: url, subject: subject}
}

func (s *NATSSink) Start(ctx context.Context) error {
	nc, err := nats.Connect(s.url,
		nats.MaxReconnects(-1),
		nats.Name("nextbuy-shield"),
	)
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	s.nc = nc
	return nil
}

func (s *NATSSink) Enqueue(e ledger.Event) error {
	if s.nc == nil {
		return fmt.Errorf("nats sink not started")
	}
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("serialize event: %w", err)
	}
	if err := s.nc.Publish(s.subject, b); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}
	return nil
}

func (s *NATSSink) Name() string { return "nats" }
