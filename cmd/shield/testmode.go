package main

import (
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Deva-cpp/nextbuy-shield/internal/ledger"
)

// generateSampleEvents creates representative detection events for verifying
// sink connectivity end to end.
func generateSampleEvents() []ledger.Event {
	now := time.Now()

	return []ledger.Event{
		{
			ID:         uuid.New().String(),
			Timestamp:  now,
			Method:     ledger.MethodHeadless,
			Origin:     "203.0.113.42",
			UserAgent:  "Mozilla/5.0 HeadlessChrome/120.0",
			Path:       "/api/products",
			HTTPMethod: "GET",
			Severity:   ledger.SeverityCritical,
			Blocked:    true,
			Details:    map[string]any{"browser": "Chrome", "os": "Linux"},
		},
		{
			ID:         uuid.New().String(),
			Timestamp:  now.Add(1 * time.Second),
			Method:     ledger.MethodHoneypot,
			Origin:     "198.51.100.7",
			UserAgent:  "python-requests/2.31",
			Path:       "/api/bot-protection/contact-form",
			HTTPMethod: "POST",
			Severity:   ledger.SeverityHigh,
			Blocked:    true,
			Details:    map[string]any{"honeypotFields": []string{"website"}},
		},
		{
			ID:         uuid.New().String(),
			Timestamp:  now.Add(2 * time.Second),
			Method:     ledger.MethodIPAnalysis,
			Origin:     "203.0.113.99",
			UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
			Path:       "/api/checkout",
			HTTPMethod: "POST",
			Severity:   ledger.SeverityMedium,
			Details:    map[string]any{"ipScore": 0.9},
			Geo:        &ledger.GeoInfo{Country: "Netherlands", Hosting: true},
		},
		{
			ID:         uuid.New().String(),
			Timestamp:  now.Add(3 * time.Second),
			Method:     ledger.MethodRateLimit,
			Origin:     "192.0.2.88",
			UserAgent:  "curl/8.4.0",
			Path:       "/api/auth/login",
			HTTPMethod: "POST",
			Severity:   ledger.SeverityHigh,
			Blocked:    true,
			Details:    map[string]any{"type": "auth"},
		},
	}
}

// runTestMode pushes the sample events through the sink fan-out so each
// configured destination can be checked without real traffic.
func runTestMode(emitFn func(ledger.Event)) {
	log.Println("TEST MODE: sending sample detection events")

	events := generateSampleEvents()
	for i, e := range events {
		log.Printf("sending event %d/%d: %s (%s)", i+1, len(events), e.Method, e.ID)
		emitFn(e)
		if i < len(events)-1 {
			time.Sleep(200 * time.Millisecond)
		}
	}

	log.Println("TEST MODE: done")
}
