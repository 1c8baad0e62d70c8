package sink

import (
	"context"
	"encoding/json"
	"log"

	"github.com/Deva-cpp/nextbuy-shield/internal/ledger"
)

type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Start(ctx context.Context) error { return nil }

func (s *LogSink) Enqueue(e ledger.Event) error {
	b, _ := json.Marshal(e)
	log.Printf("detection %s", string(b))
	return nil
}

func (s *LogSink) Close() error { return nil }

func (s *LogSink) Name() string { return "log" }
