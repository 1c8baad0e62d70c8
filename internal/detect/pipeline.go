package detect

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Deva-cpp/nextbuy-shield/internal/ledger"
)

// OriginResolver resolves the reputation of a network origin. It must never
// fail: lookup problems degrade to a neutral score inside the resolver.
type OriginResolver interface {
	Resolve(ctx context.Context, origin string) (float64, OriginMeta)
}

// Limiter decides whether one more request is allowed for a key. The counter
// store behind it belongs to the limiter alone.
type Limiter interface {
	Allow(key string) bool
}

// Recorder is the slice of the detection ledger the pipeline needs.
type Recorder interface {
	Record(e ledger.Event)
	RecordRequest()
	RecentBlocked(origin string, since time.Time) int
}

// Rejection is a short-circuiting pipeline outcome, rendered by the HTTP
// layer exactly as given.
type Rejection struct {
	Status int
	Body   map[string]any
	Method ledger.Method
}

// Engine runs the per-request classification pipeline. Stages execute
// strictly in order and each either adds fields to the signals or rejects.
type Engine struct {
	Rules   *Rules
	Geo     OriginResolver
	General Limiter
	Auth    Limiter
	Ledger  Recorder
	Devices *DeviceStore

	AuthPaths      []string
	ExemptPaths    []string
	FormFillFastMs int64

	// AuthFailureWindow escalates repeated blocked attempts from one origin
	// on auth paths; AuthFailureMax is the tolerated count inside it.
	AuthFailureWindow time.Duration
	AuthFailureMax    int

	now func() time.Time
}

type stage func(ctx context.Context, req *Request, sig *Signals) *Rejection

// Evaluate runs the full pipeline for one request. A nil Rejection means the
// caller should continue normal handling. Evaluate never returns an error:
// every failure mode degrades to a conservative score or a generic rejection.
func (e *Engine) Evaluate(ctx context.Context, req *Request) (*Signals, *Rejection) {
	sig := &Signals{
		Origin:      req.Origin,
		UserAgent:   req.UserAgent,
		Fingerprint: Fingerprint(req.UserAgent, req.AcceptLanguage, req.Accept, req.Origin),
		// Neutral until telemetry says otherwise.
		BehaviorScore: 0.5,
	}

	if req.Bypass || e.exempt(req.Path) {
		return sig, nil
	}

	stages := []stage{
		e.honeypotStage,
		e.injectionStage,
		e.originStage,
		e.identityStage,
		e.behaviorStage,
		e.rateLimitStage,
		e.authFailureStage,
		e.aggregateStage,
	}
	for _, st := range stages {
		if rej := st(ctx, req, sig); rej != nil {
			return sig, rej
		}
	}

	e.Ledger.RecordRequest()
	return sig, nil
}

func (e *Engine) exempt(path string) bool {
	for _, p := range e.ExemptPaths {
		if path == p {
			return true
		}
	}
	return false
}

func (e *Engine) isAuthPath(path string) bool {
	for _, p := range e.AuthPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// honeypotStage checks the raw body for filled decoy fields. It must come
// before every other body-based check and always answers with a synthetic
// success so the adversary learns nothing.
func (e *Engine) honeypotStage(ctx context.Context, req *Request, sig *Signals) *Rejection {
	filled := e.Rules.CheckHoneypot(req.Body)
	if len(filled) == 0 {
		return nil
	}

	e.Ledger.Record(ledger.Event{
		Method:     ledger.MethodHoneypot,
		Origin:     req.Origin,
		UserAgent:  req.UserAgent,
		Path:       req.Path,
		HTTPMethod: req.Method,
		Details:    map[string]any{"honeypotFields": filled},
		Blocked:    true,
	})
	return &Rejection{
		Status: http.StatusOK,
		Body:   map[string]any{"success": true},
		Method: ledger.MethodHoneypot,
	}
}

// injectionStage rejects probes before they can spend anyone's rate budget.
// The offending value goes into the audit event, never into the response.
func (e *Engine) injectionStage(ctx context.Context, req *Request, sig *Signals) *Rejection {
	match, found := e.Rules.FindInjection(req.Body, req.Query, req.PathParams)
	if !found {
		return nil
	}

	e.Ledger.Record(ledger.Event{
		Method:     ledger.MethodSQLInjection,
		Origin:     req.Origin,
		UserAgent:  req.UserAgent,
		Path:       req.Path,
		HTTPMethod: req.Method,
		Details: map[string]any{
			"maliciousField": match.Field,
			"category":       match.Category,
			"body":           req.Body,
			"query":          req.Query,
			"params":         req.PathParams,
		},
		Blocked: true,
	})
	return &Rejection{
		Status: http.StatusBadRequest,
		Body: map[string]any{
			"error":   "Invalid input detected",
			"message": "Please check your input and try again",
		},
		Method: ledger.MethodSQLInjection,
	}
}

// originStage resolves origin reputation. The resolver degrades internally,
// so this stage can never short-circuit.
func (e *Engine) originStage(ctx context.Context, req *Request, sig *Signals) *Rejection {
	score, meta := e.Geo.Resolve(ctx, req.Origin)
	sig.OriginScore = score
	sig.OriginMeta = meta

	if score > 0.7 {
		e.Ledger.Record(ledger.Event{
			Method:     ledger.MethodIPAnalysis,
			Origin:     req.Origin,
			UserAgent:  req.UserAgent,
			Path:       req.Path,
			HTTPMethod: req.Method,
			Details:    map[string]any{"ipScore": score, "geoData": meta},
			Geo:        geoInfo(meta),
		})
	}
	return nil
}

func (e *Engine) identityStage(ctx context.Context, req *Request, sig *Signals) *Rejection {
	c := e.Rules.ClassifyUserAgent(req.UserAgent)
	sig.UAScore = c.Score
	sig.Reason = c.Reason
	sig.KnownAutomation = c.KnownAutomation
	sig.LegitimateCrawler = c.LegitimateCrawler

	switch c.Reason {
	case ReasonHeadless:
		e.Ledger.Record(ledger.Event{
			Method:     ledger.MethodHeadless,
			Origin:     req.Origin,
			UserAgent:  req.UserAgent,
			Path:       req.Path,
			HTTPMethod: req.Method,
			Details:    map[string]any{"browser": c.Browser, "os": c.OS},
			Geo:        geoInfo(sig.OriginMeta),
		})
	case ReasonKnownBot:
		e.Ledger.Record(ledger.Event{
			Method:     ledger.MethodKnownBot,
			Origin:     req.Origin,
			UserAgent:  req.UserAgent,
			Path:       req.Path,
			HTTPMethod: req.Method,
			Details:    map[string]any{"botType": "known_crawler", "browser": c.Browser, "os": c.OS},
			Geo:        geoInfo(sig.OriginMeta),
		})
	}
	return nil
}

func (e *Engine) behaviorStage(ctx context.Context, req *Request, sig *Signals) *Rejection {
	sig.BehaviorScore = ScoreBehavior(req.Telemetry, e.FormFillFastMs)

	if sig.BehaviorScore > 0.7 {
		e.Ledger.Record(ledger.Event{
			Method:     ledger.MethodBehavioral,
			Origin:     req.Origin,
			UserAgent:  req.UserAgent,
			Path:       req.Path,
			HTTPMethod: req.Method,
			Details:    map[string]any{"behaviorScore": sig.BehaviorScore},
			Geo:        geoInfo(sig.OriginMeta),
		})
	}
	return nil
}

// rateLimitStage is a hard stop: over the limit, nothing downstream runs.
func (e *Engine) rateLimitStage(ctx context.Context, req *Request, sig *Signals) *Rejection {
	limiter, key, kind := e.General, req.Origin+"-"+req.UserAgent, "api"
	message := "Too many requests, please try again later."
	if e.isAuthPath(req.Path) {
		limiter, key, kind = e.Auth, req.Origin, "auth"
		message = "Too many login attempts, please try again later."
	}
	if limiter == nil || limiter.Allow(key) {
		return nil
	}

	e.Ledger.Record(ledger.Event{
		Method:     ledger.MethodRateLimit,
		Origin:     req.Origin,
		UserAgent:  req.UserAgent,
		Path:       req.Path,
		HTTPMethod: req.Method,
		Details:    map[string]any{"type": kind},
		Geo:        geoInfo(sig.OriginMeta),
		Blocked:    true,
	})
	return &Rejection{
		Status: http.StatusTooManyRequests,
		Body:   map[string]any{"error": message},
		Method: ledger.MethodRateLimit,
	}
}

// authFailureStage escalates auth-path requests from an origin with too many
// recently blocked attempts, unless the caller presents a challenge token.
// The count is derived from the ledger ring, not stored separately.
func (e *Engine) authFailureStage(ctx context.Context, req *Request, sig *Signals) *Rejection {
	if !e.isAuthPath(req.Path) || req.CaptchaToken != "" {
		return nil
	}
	window := e.AuthFailureWindow
	if window == 0 {
		window = 30 * time.Minute
	}
	max := e.AuthFailureMax
	if max == 0 {
		max = 3
	}
	recent := e.Ledger.RecentBlocked(req.Origin, e.clock().Add(-window))
	if recent <= max {
		return nil
	}

	e.Ledger.Record(ledger.Event{
		Method:     ledger.MethodCombined,
		Origin:     req.Origin,
		UserAgent:  req.UserAgent,
		Path:       req.Path,
		HTTPMethod: req.Method,
		Details:    map[string]any{"detectionReason": "auth_failure_window", "recentBlocked": recent},
		Geo:        geoInfo(sig.OriginMeta),
		Blocked:    true,
	})
	return challengeRejection("Suspicious activity detected")
}

func (e *Engine) aggregateStage(ctx context.Context, req *Request, sig *Signals) *Rejection {
	d := Aggregate(sig, req.CaptchaToken)

	if d.ChallengeSatisfied {
		e.Devices.LowerRisk(sig.Fingerprint)
		return nil
	}
	if !d.Block {
		return nil
	}

	e.Ledger.Record(ledger.Event{
		Method:     ledger.MethodCombined,
		Origin:     req.Origin,
		UserAgent:  req.UserAgent,
		Path:       req.Path,
		HTTPMethod: req.Method,
		Details: map[string]any{
			"detectionReason": d.Reason,
			"botScoreComponents": map[string]float64{
				"userAgent": sig.UAScore,
				"ip":        sig.OriginScore,
				"behavior":  sig.BehaviorScore,
			},
			"combinedScore": d.Combined,
			"action":        "blocked",
		},
		Geo:     geoInfo(sig.OriginMeta),
		Blocked: true,
	})

	if d.Reason == ReasonHeadless {
		return challengeRejection("Automated browser detected")
	}
	return challengeRejection("Suspicious activity detected")
}

func challengeRejection(errText string) *Rejection {
	return &Rejection{
		Status: http.StatusForbidden,
		Body: map[string]any{
			"error":          errText,
			"message":        "Security verification required",
			"requireCaptcha": true,
		},
		Method: ledger.MethodCombined,
	}
}

// geoInfo maps resolved origin metadata into the ledger's aggregate form.
func geoInfo(m OriginMeta) *ledger.GeoInfo {
	if m.Country == "" && !m.Proxy && !m.Hosting {
		return nil
	}
	return &ledger.GeoInfo{Country: m.Country, Proxy: m.Proxy, Hosting: m.Hosting}
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}
