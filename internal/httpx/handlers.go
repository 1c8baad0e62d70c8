package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/Deva-cpp/nextbuy-shield/internal/detect"
	"github.com/Deva-cpp/nextbuy-shield/internal/ledger"
)

func (e Env) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// CaptchaVerification accepts a completed challenge and lowers the stored
// risk for the caller's device fingerprint. Token validation against the
// challenge provider happens upstream; an empty token is the only rejection
// here.
func (e Env) CaptchaVerification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CaptchaToken string `json:"captchaToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CaptchaToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Captcha token is required",
		})
		return
	}

	if sig := SignalsFrom(r.Context()); sig != nil {
		e.Devices.LowerRisk(sig.Fingerprint)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Verification successful",
	})
}

// LogBehavior scores a client-submitted telemetry payload on its own,
// outside a protected form submission. High scores are recorded as
// behavioral detections.
func (e Env) LogBehavior(w http.ResponseWriter, r *http.Request) {
	var body struct {
		InteractionData *detect.Telemetry `json:"interactionData"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "Invalid telemetry payload",
		})
		return
	}

	score := detect.ScoreBehavior(body.InteractionData, e.Cfg.FormFillFastMs)
	if score > 0.7 {
		sig := SignalsFrom(r.Context())
		evt := ledger.Event{
			Method:     ledger.MethodBehavioral,
			UserAgent:  r.UserAgent(),
			Path:       r.URL.Path,
			HTTPMethod: r.Method,
			Details:    map[string]any{"behaviorScore": score, "source": "log-behavior"},
			Blocked:    true,
		}
		if sig != nil {
			evt.Origin = sig.Origin
		}
		e.Ledger.Record(evt)

		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":   "Suspicious behavior detected",
			"message": "Security verification required",
		})
		return
	}

	// The score stays server-side.
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ContactForm is the demo protected submission endpoint. Reaching the
// handler at all means the pipeline accepted the request; honeypot hits are
// answered upstream with an identical-looking success.
func (e Env) ContactForm(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Message received",
	})
}

// TestProbe echoes the classification signals for a request that made it
// through the pipeline. Used by integration tests and manual probing.
func (e Env) TestProbe(w http.ResponseWriter, r *http.Request) {
	sig := SignalsFrom(r.Context())
	if sig == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"fingerprint": sig.Fingerprint,
		"scores": map[string]float64{
			"userAgent": sig.UAScore,
			"ip":        sig.OriginScore,
			"behavior":  sig.BehaviorScore,
			"combined":  sig.Combined,
		},
		"origin": sig.OriginMeta,
	})
}
