// Package ledger keeps the append-only record of detection events and the
// aggregate counters the admin reporting surface is built from. All mutation
// goes through a single lock; the snapshot is persisted synchronously after
// every change and reloaded at startup.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"
)

// SuspiciousPatterns are coarse counters kept alongside the per-method ones.
type SuspiciousPatterns struct {
	RapidRequests      int64 `json:"rapidRequests"`
	HeadlessDetections int64 `json:"headlessDetections"`
	VPNProxyRequests   int64 `json:"vpnProxyRequests"`
	HoneypotTriggers   int64 `json:"honeypotTriggers"`
}

// state is the full persisted snapshot.
type state struct {
	TotalRequests    int64              `json:"totalRequests"`
	DetectedBots     int64              `json:"detectedBots"`
	DetectionMethods map[string]int64   `json:"detectionMethods"`
	Origins          map[string]int64   `json:"origins"`
	UserAgents       map[string]int64   `json:"userAgents"`
	Paths            map[string]int64   `json:"paths"`
	Countries        map[string]int64   `json:"countries"`
	HourlyBots       [24]int64          `json:"hourlyBots"`
	Suspicious       SuspiciousPatterns `json:"suspiciousPatterns"`
	LastReset        time.Time          `json:"lastReset"`
	Events           []Event            `json:"events"`
}

func newState(now time.Time) state {
	return state{
		DetectionMethods: make(map[string]int64),
		Origins:          make(map[string]int64),
		UserAgents:       make(map[string]int64),
		Paths:            make(map[string]int64),
		Countries:        make(map[string]int64),
		LastReset:        now,
	}
}

// CountEntry is one row of a top-N listing.
type CountEntry struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// HourSlot is one slot of the 24-hour bot histogram.
type HourSlot struct {
	Hour int   `json:"hour"`
	Bots int64 `json:"bots"`
}

// Report is the read-only aggregate snapshot served to the admin surface.
type Report struct {
	TimeFrame          string             `json:"timeFrame"`
	TotalRequests      int64              `json:"totalRequests"`
	DetectedBots       int64              `json:"detectedBots"`
	LegitimateRequests int64              `json:"legitimateRequests"`
	BotPercentage      string             `json:"botPercentage"`
	DetectionMethods   map[string]int64   `json:"detectionMethods"`
	SuspiciousPatterns SuspiciousPatterns `json:"suspiciousPatterns"`
	TopOrigins         []CountEntry       `json:"topOrigins"`
	TopUserAgents      []CountEntry       `json:"topUserAgents"`
	TopCountries       []CountEntry       `json:"topCountries"`
	TopPaths           []CountEntry       `json:"topPaths"`
	HourlyDistribution []HourSlot         `json:"hourlyDistribution"`
	AverageBotsPerHour string             `json:"averageBotsPerHour"`
	GeneratedAt        time.Time          `json:"generatedAt"`
}

// BatchResult is one externally produced test outcome folded in by IngestBatch.
type BatchResult struct {
	Test       string `json:"test"`
	StatusCode int    `json:"status_code"`
}

// Ledger owns the detection log and its aggregate counters.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	store    Store
	emit     func(Event) // optional sink fan-out, called outside the lock
	now      func() time.Time
	st       state
}

// New builds a ledger with the given ring capacity, loading any snapshot the
// store already holds. A nil store keeps everything in memory.
func New(capacity int, store Store, emit func(Event)) *Ledger {
	l := &Ledger{
		capacity: capacity,
		store:    store,
		emit:     emit,
		now:      time.Now,
	}
	l.st = newState(l.now())
	if store != nil {
		if data, err := store.Load(context.Background()); err == nil {
			var loaded state
			if jerr := json.Unmarshal(data, &loaded); jerr == nil {
				mergeState(&l.st, loaded)
			} else {
				log.Printf("ledger: discarding malformed snapshot: %v", jerr)
			}
		} else if !errors.Is(err, ErrNoSnapshot) {
			log.Printf("ledger: could not load snapshot: %v", err)
		}
	}
	return l
}

// mergeState copies a loaded snapshot over the fresh default structure so new
// fields keep their zero values when an older snapshot is read.
func mergeState(dst *state, src state) {
	dst.TotalRequests = src.TotalRequests
	dst.DetectedBots = src.DetectedBots
	dst.HourlyBots = src.HourlyBots
	dst.Suspicious = src.Suspicious
	if !src.LastReset.IsZero() {
		dst.LastReset = src.LastReset
	}
	for k, v := range src.DetectionMethods {
		dst.DetectionMethods[k] = v
	}
	for k, v := range src.Origins {
		dst.Origins[k] = v
	}
	for k, v := range src.UserAgents {
		dst.UserAgents[k] = v
	}
	for k, v := range src.Paths {
		dst.Paths[k] = v
	}
	for k, v := range src.Countries {
		dst.Countries[k] = v
	}
	dst.Events = append(dst.Events, src.Events...)
}

// Record appends a detection event, updates every aggregate counter, persists
// the snapshot, and fans the event out to the configured sinks. A detection
// also counts as a request, so detectedBots can never exceed totalRequests.
func (l *Ledger) Record(e Event) {
	e.normalize(l.now())

	l.mu.Lock()
	l.st.TotalRequests++
	l.st.DetectedBots++
	l.st.DetectionMethods[string(e.Method)]++
	if e.Origin != "" {
		l.st.Origins[e.Origin]++
	}
	if e.UserAgent != "" {
		l.st.UserAgents[e.UserAgent]++
	}
	if e.Path != "" {
		l.st.Paths[e.Path]++
	}
	if e.Geo != nil && e.Geo.Country != "" {
		l.st.Countries[e.Geo.Country]++
	}
	l.st.HourlyBots[e.Timestamp.Hour()]++

	switch e.Method {
	case MethodHeadless:
		l.st.Suspicious.HeadlessDetections++
	case MethodRateLimit:
		l.st.Suspicious.RapidRequests++
	case MethodHoneypot:
		l.st.Suspicious.HoneypotTriggers++
	}
	if e.Geo != nil && (e.Geo.Proxy || e.Geo.Hosting) {
		l.st.Suspicious.VPNProxyRequests++
	}

	l.st.Events = append(l.st.Events, e)
	if over := len(l.st.Events) - l.capacity; over > 0 {
		l.st.Events = append(l.st.Events[:0:0], l.st.Events[over:]...)
	}
	l.persistLocked()
	l.mu.Unlock()

	if l.emit != nil {
		l.emit(e)
	}
}

// RecordRequest counts a request that passed all checks.
func (l *Ledger) RecordRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st.TotalRequests++
	l.persistLocked()
}

// persistLocked writes the snapshot through the store. Persistence failures
// are logged and swallowed: the in-memory state stays authoritative and the
// next mutation writes the whole snapshot again anyway.
func (l *Ledger) persistLocked() {
	if l.store == nil {
		return
	}
	data, err := json.Marshal(l.st)
	if err != nil {
		log.Printf("ledger: marshal snapshot: %v", err)
		return
	}
	if err := l.store.Save(context.Background(), data); err != nil {
		log.Printf("ledger: persist failed, retrying on next mutation: %v", err)
	}
}

// Report builds the read-only aggregate snapshot.
func (l *Ledger) Report() Report {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hours := now.Sub(l.st.LastReset).Hours()

	pct := "0.00%"
	if l.st.TotalRequests > 0 {
		pct = fmt.Sprintf("%.2f%%", float64(l.st.DetectedBots)/float64(l.st.TotalRequests)*100)
	}

	hourly := make([]HourSlot, 24)
	for h := 0; h < 24; h++ {
		hourly[h] = HourSlot{Hour: h, Bots: l.st.HourlyBots[h]}
	}

	return Report{
		TimeFrame:          fmt.Sprintf("%.2f hours", hours),
		TotalRequests:      l.st.TotalRequests,
		DetectedBots:       l.st.DetectedBots,
		LegitimateRequests: l.st.TotalRequests - l.st.DetectedBots,
		BotPercentage:      pct,
		DetectionMethods:   copyCounts(l.st.DetectionMethods),
		SuspiciousPatterns: l.st.Suspicious,
		TopOrigins:         topN(l.st.Origins, 10),
		TopUserAgents:      topN(l.st.UserAgents, 10),
		TopCountries:       topN(l.st.Countries, 10),
		TopPaths:           topN(l.st.Paths, 10),
		HourlyDistribution: hourly,
		AverageBotsPerHour: fmt.Sprintf("%.2f", float64(l.st.DetectedBots)/maxFloat(hours, 1)),
		GeneratedAt:        now,
	}
}

// Reset atomically replaces all counters and the event ring with empty state.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.st = newState(l.now())
	l.persistLocked()
}

// IngestBatch folds externally produced test results into the counters
// without going through the request pipeline. Any non-200 outcome counts as a
// detection under a normalized form of the test name.
func (l *Ledger) IngestBatch(results []BatchResult) {
	if len(results) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range results {
		l.st.TotalRequests++
		if r.StatusCode == 200 {
			continue
		}
		l.st.DetectedBots++
		method := normalizeTestName(r.Test)
		if method != "" {
			l.st.DetectionMethods[method]++
		}
		if r.StatusCode == 429 {
			l.st.Suspicious.RapidRequests++
		}
	}
	l.persistLocked()
}

// RecentBlocked counts blocked events from one origin since the given time,
// derived from the event ring rather than stored separately.
func (l *Ledger) RecentBlocked(origin string, since time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for i := len(l.st.Events) - 1; i >= 0; i-- {
		e := l.st.Events[i]
		if e.Timestamp.Before(since) {
			break
		}
		if e.Blocked && e.Origin == origin {
			n++
		}
	}
	return n
}

// Events returns a copy of the current ring contents, oldest first.
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.st.Events))
	copy(out, l.st.Events)
	return out
}

func normalizeTestName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "")
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func topN(m map[string]int64, n int) []CountEntry {
	entries := make([]CountEntry, 0, len(m))
	for k, v := range m {
		entries = append(entries, CountEntry{Key: k, Count: v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
