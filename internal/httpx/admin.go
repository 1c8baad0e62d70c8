package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/Deva-cpp/nextbuy-shield/internal/ledger"
)

// BotMetrics serves the aggregate detection report.
func (e Env) BotMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, e.Ledger.Report())
}

// ResetBotMetrics clears every counter and the event ring.
func (e Env) ResetBotMetrics(w http.ResponseWriter, r *http.Request) {
	e.Ledger.Reset()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Bot metrics reset",
	})
}

// IngestBotMetrics folds externally produced test results into the
// counters. The body is either a bare array of results or an object with a
// "results" array.
func (e Env) IngestBotMetrics(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid ingest payload"})
		return
	}

	var results []ledger.BatchResult
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &results); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid ingest payload"})
			return
		}
	} else {
		var wrapped struct {
			Results []ledger.BatchResult `json:"results"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid ingest payload"})
			return
		}
		results = wrapped.Results
	}

	e.Ledger.IngestBatch(results)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"ingested": len(results),
	})
}
