package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
	fail  bool
}

func (s *memStore) Save(ctx context.Context, snapshot []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	s.data = append([]byte(nil), snapshot...)
	s.saves++
	return nil
}

func (s *memStore) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, ErrNoSnapshot
	}
	return append([]byte(nil), s.data...), nil
}

func TestRecordCountsAndInvariant(t *testing.T) {
	l := New(10, nil, nil)

	l.RecordRequest()
	l.RecordRequest()
	l.Record(Event{Method: MethodHoneypot, Origin: "1.2.3.4", Path: "/signup", Blocked: true})

	r := l.Report()
	if r.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", r.TotalRequests)
	}
	if r.DetectedBots != 1 {
		t.Errorf("DetectedBots = %d, want 1", r.DetectedBots)
	}
	if r.DetectedBots > r.TotalRequests {
		t.Error("detectedBots must never exceed totalRequests")
	}
	if r.DetectionMethods["honeypot"] != 1 {
		t.Errorf("honeypot count = %d, want 1", r.DetectionMethods["honeypot"])
	}
	if r.SuspiciousPatterns.HoneypotTriggers != 1 {
		t.Errorf("HoneypotTriggers = %d, want 1", r.SuspiciousPatterns.HoneypotTriggers)
	}
}

func TestRingBufferEviction(t *testing.T) {
	l := New(5, nil, nil)

	for i := 0; i < 8; i++ {
		l.Record(Event{Method: MethodRateLimit, Origin: fmt.Sprintf("10.0.0.%d", i), Blocked: true})
	}

	events := l.Events()
	if len(events) != 5 {
		t.Fatalf("ring holds %d events, want 5", len(events))
	}
	// Oldest evicted first: the survivors are the last five records.
	if events[0].Origin != "10.0.0.3" {
		t.Errorf("oldest surviving origin = %s, want 10.0.0.3", events[0].Origin)
	}
	if events[4].Origin != "10.0.0.7" {
		t.Errorf("newest origin = %s, want 10.0.0.7", events[4].Origin)
	}
}

func TestSeverityDerivation(t *testing.T) {
	tests := []struct {
		method Method
		want   Severity
	}{
		{MethodCombined, SeverityCritical},
		{MethodHeadless, SeverityCritical},
		{MethodRateLimit, SeverityHigh},
		{MethodHoneypot, SeverityHigh},
		{MethodIPAnalysis, SeverityMedium},
		{MethodBehavioral, SeverityMedium},
		{MethodKnownBot, SeverityLow},
		{MethodSQLInjection, SeverityLow},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			l := New(10, nil, nil)
			l.Record(Event{Method: tt.method})
			events := l.Events()
			if events[0].Severity != tt.want {
				t.Errorf("severity = %s, want %s", events[0].Severity, tt.want)
			}
		})
	}
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	l := New(10, nil, nil)
	l.Record(Event{Method: MethodKnownBot})

	e := l.Events()[0]
	if e.ID == "" {
		t.Error("expected a generated event ID")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestPersistAndReload(t *testing.T) {
	store := &memStore{}

	l := New(10, store, nil)
	l.Record(Event{Method: MethodSQLInjection, Origin: "9.9.9.9", Path: "/api/products", Blocked: true})
	l.RecordRequest()

	// A fresh ledger over the same store picks up where the old one left off.
	l2 := New(10, store, nil)
	r := l2.Report()
	if r.TotalRequests != 2 {
		t.Errorf("reloaded TotalRequests = %d, want 2", r.TotalRequests)
	}
	if r.DetectedBots != 1 {
		t.Errorf("reloaded DetectedBots = %d, want 1", r.DetectedBots)
	}
	if len(l2.Events()) != 1 {
		t.Errorf("reloaded ring has %d events, want 1", len(l2.Events()))
	}
}

func TestPersistFailureDoesNotLoseState(t *testing.T) {
	store := &memStore{fail: true}

	l := New(10, store, nil)
	l.Record(Event{Method: MethodHoneypot, Blocked: true})
	l.RecordRequest()

	// In-memory state stays authoritative despite failed writes.
	r := l.Report()
	if r.TotalRequests != 2 || r.DetectedBots != 1 {
		t.Errorf("state lost after persist failure: total=%d detected=%d", r.TotalRequests, r.DetectedBots)
	}

	// Once the store recovers, the next mutation writes the full snapshot.
	store.mu.Lock()
	store.fail = false
	store.mu.Unlock()
	l.RecordRequest()

	var persisted state
	if err := json.Unmarshal(store.data, &persisted); err != nil {
		t.Fatalf("unmarshal persisted snapshot: %v", err)
	}
	if persisted.TotalRequests != 3 {
		t.Errorf("persisted TotalRequests = %d, want 3", persisted.TotalRequests)
	}
}

func TestReset(t *testing.T) {
	store := &memStore{}
	l := New(10, store, nil)
	l.Record(Event{Method: MethodCombined, Origin: "1.1.1.1", Blocked: true})

	l.Reset()

	r := l.Report()
	if r.TotalRequests != 0 || r.DetectedBots != 0 {
		t.Errorf("after reset: total=%d detected=%d, want 0/0", r.TotalRequests, r.DetectedBots)
	}
	if len(l.Events()) != 0 {
		t.Errorf("after reset: %d events in ring, want 0", len(l.Events()))
	}
	if store.saves < 2 {
		t.Errorf("reset should persist immediately, saves = %d", store.saves)
	}
}

func TestIngestBatch(t *testing.T) {
	l := New(10, nil, nil)

	l.IngestBatch([]BatchResult{
		{Test: "SQL Injection", StatusCode: 400},
		{Test: "Rapid Fire", StatusCode: 429},
		{Test: "Clean Browser", StatusCode: 200},
	})

	r := l.Report()
	if r.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", r.TotalRequests)
	}
	if r.DetectedBots != 2 {
		t.Errorf("DetectedBots = %d, want 2", r.DetectedBots)
	}
	if r.DetectionMethods["sqlinjection"] != 1 {
		t.Errorf("sqlinjection count = %d, want 1", r.DetectionMethods["sqlinjection"])
	}
	if r.DetectionMethods["rapidfire"] != 1 {
		t.Errorf("rapidfire count = %d, want 1", r.DetectionMethods["rapidfire"])
	}
	if r.SuspiciousPatterns.RapidRequests != 1 {
		t.Errorf("RapidRequests = %d, want 1", r.SuspiciousPatterns.RapidRequests)
	}
}

func TestRecentBlocked(t *testing.T) {
	l := New(100, nil, nil)
	base := time.Now()

	l.Record(Event{Method: MethodCombined, Origin: "5.5.5.5", Blocked: true, Timestamp: base.Add(-40 * time.Minute)})
	for i := 0; i < 3; i++ {
		l.Record(Event{Method: MethodCombined, Origin: "5.5.5.5", Blocked: true, Timestamp: base.Add(-time.Duration(i) * time.Minute)})
	}
	l.Record(Event{Method: MethodKnownBot, Origin: "5.5.5.5", Blocked: false, Timestamp: base})
	l.Record(Event{Method: MethodCombined, Origin: "8.8.8.8", Blocked: true, Timestamp: base})

	got := l.RecentBlocked("5.5.5.5", base.Add(-30*time.Minute))
	if got != 3 {
		t.Errorf("RecentBlocked = %d, want 3", got)
	}
}

func TestTopListsAreBounded(t *testing.T) {
	l := New(2000, nil, nil)
	for i := 0; i < 15; i++ {
		for j := 0; j <= i; j++ {
			l.Record(Event{Method: MethodRateLimit, Origin: fmt.Sprintf("10.1.0.%d", i), Blocked: true})
		}
	}

	r := l.Report()
	if len(r.TopOrigins) != 10 {
		t.Fatalf("TopOrigins has %d entries, want 10", len(r.TopOrigins))
	}
	if r.TopOrigins[0].Key != "10.1.0.14" {
		t.Errorf("top origin = %s, want 10.1.0.14", r.TopOrigins[0].Key)
	}
	if r.TopOrigins[0].Count != 15 {
		t.Errorf("top origin count = %d, want 15", r.TopOrigins[0].Count)
	}
}

func TestEmitFanOut(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []Event
	)
	l := New(10, nil, func(e Event) {
		mu.Lock()
		seen = append(seen, e)
		mu.Unlock()
	})

	l.Record(Event{Method: MethodHoneypot, Blocked: true})
	l.RecordRequest() // plain requests are not fanned out

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("emitted %d events, want 1", len(seen))
	}
	if seen[0].Method != MethodHoneypot {
		t.Errorf("emitted method = %s, want honeypot", seen[0].Method)
	}
}

func TestConcurrentRecord(t *testing.T) {
	l := New(1000, &memStore{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Record(Event{Method: MethodBehavioral, Origin: "3.3.3.3"})
				l.RecordRequest()
			}
		}()
	}
	wg.Wait()

	r := l.Report()
	if r.TotalRequests != 800 {
		t.Errorf("TotalRequests = %d, want 800", r.TotalRequests)
	}
	if r.DetectedBots != 400 {
		t.Errorf("DetectedBots = %d, want 400", r.DetectedBots)
	}
}
