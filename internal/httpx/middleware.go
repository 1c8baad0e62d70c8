package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Deva-cpp/nextbuy-shield/internal/detect"
)

type ctxKey int

const signalsKey ctxKey = 0

// SignalsFrom returns the classification signals the Protect middleware
// attached to the request, if any.
func SignalsFrom(ctx context.Context) *detect.Signals {
	s, _ := ctx.Value(signalsKey).(*detect.Signals)
	return s
}

// clientPayload is the envelope the pipeline cares about inside a JSON body.
// The full body is still passed along for honeypot and injection checks.
type clientPayload struct {
	InteractionData *detect.Telemetry `json:"interactionData"`
	CaptchaToken    string            `json:"captchaToken"`
}

// Protect runs every request through the classification pipeline before the
// actual handler. Rejections are rendered exactly as the pipeline shaped
// them; accepted requests continue with the signals on the context and the
// body restored for downstream handlers.
func (e Env) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		req := &detect.Request{
			Origin:         clientIP(r, e.Cfg.TrustProxy),
			UserAgent:      r.UserAgent(),
			AcceptLanguage: r.Header.Get("Accept-Language"),
			Accept:         r.Header.Get("Accept"),
			Path:           r.URL.Path,
			Method:         r.Method,
			Query:          r.URL.Query(),
			Bypass:         r.Header.Get(e.Cfg.BypassHeader) != "",
		}

		if hasJSONBody(r) {
			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, e.Cfg.MaxBodyBytes))
			if err != nil {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
					"error": "Request body too large",
				})
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var parsed map[string]any
			if json.Unmarshal(body, &parsed) == nil {
				req.Body = parsed
				var payload clientPayload
				if json.Unmarshal(body, &payload) == nil {
					req.Telemetry = payload.InteractionData
					req.CaptchaToken = payload.CaptchaToken
				}
			}
		}

		sig, rej := e.Engine.Evaluate(r.Context(), req)
		if rej != nil {
			if e.Metrics != nil {
				e.Metrics.IncrementRequests("blocked")
				e.Metrics.ObservePipelineDuration("blocked", time.Since(start))
			}
			writeJSON(w, rej.Status, rej.Body)
			return
		}

		if e.Metrics != nil {
			e.Metrics.IncrementRequests("allowed")
			e.Metrics.ObservePipelineDuration("allowed", time.Since(start))
		}
		ctx := context.WithValue(r.Context(), signalsKey, sig)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates the admin surface: requests must come from loopback or
// present the configured API key.
func (e Env) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isLoopback(r.RemoteAddr) {
			next.ServeHTTP(w, r)
			return
		}
		if e.Cfg.AdminAPIKey != "" && r.Header.Get("X-API-Key") == e.Cfg.AdminAPIKey {
			next.ServeHTTP(w, r)
			return
		}
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error": "Access denied",
		})
	})
}

func hasJSONBody(r *http.Request) bool {
	if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
		return false
	}
	ct := r.Header.Get("Content-Type")
	return ct == "" || strings.Contains(ct, "application/json")
}

// clientIP extracts the request origin. X-Forwarded-For is only consulted
// when the deployment declares a trusted proxy in front of the service.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
