package sink

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
)

func TestLogSinkEnqueue(t *testing.T) {
	var buf bytes.Buffer
	old := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(old)

	s := NewLogSink()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Enqueue(sampleEvent()); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "detection ") {
		t.Errorf("output missing prefix: %q", out)
	}
	if !strings.Contains(out, `"headless_browser"`) || !strings.Contains(out, "203.0.113.9") {
		t.Errorf("output missing event fields: %q", out)
	}
}

func TestLogSinkName(t *testing.T) {
	if NewLogSink().Name() != "log" {
		t.Error("unexpected sink name")
	}
}

// Compile-time interface checks for every sink implementation.
var (
	_ Sink = (*LogSink)(nil)
	_ Sink = (*KafkaSink)(nil)
	_ Sink = (*PGSink)(nil)
	_ Sink = (*NATSSink)(nil)
)
