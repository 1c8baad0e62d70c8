// Package detect implements the request-classification core: per-request
// signal extraction, the scoring heuristics, and the ordered pipeline that
// turns them into an allow/challenge/block verdict.
package detect

import "net/url"

// Point is one pointer-movement sample.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Telemetry is the client-submitted interaction payload. Pointer fields are
// optional; absence is modelled with nil so it is never mistaken for zero.
type Telemetry struct {
	MouseMovements []Point  `json:"mouseMovements"`
	ClickSpeed     *float64 `json:"clickSpeed"`   // average inter-click ms
	FormFillTime   *float64 `json:"formFillTime"` // last form completion ms
}

// Request carries everything the pipeline consumes for one inbound request.
// The HTTP layer builds it once; stages never touch the raw *http.Request.
type Request struct {
	Origin         string
	UserAgent      string
	AcceptLanguage string
	Accept         string
	Path           string
	Method         string

	Body       map[string]any
	Query      url.Values
	PathParams map[string]string

	Telemetry    *Telemetry
	CaptchaToken string

	// Bypass marks a trusted internal test probe; it skips all detection.
	Bypass bool
}

// Signals is the per-request scoring state. Stages only ever add fields; the
// value is discarded at the end of the request.
type Signals struct {
	Origin      string
	UserAgent   string
	Fingerprint string

	OriginScore   float64
	UAScore       float64
	BehaviorScore float64

	KnownAutomation   bool
	LegitimateCrawler bool
	Reason            string

	OriginMeta OriginMeta
	Combined   float64
	SuspectBot bool
}

// OriginMeta is the resolved origin reputation metadata carried on signals
// and into detection events.
type OriginMeta struct {
	Local   bool   `json:"local,omitempty"`
	Private bool   `json:"private,omitempty"`
	Country string `json:"country,omitempty"`
	CC      string `json:"countryCode,omitempty"`
	Region  string `json:"region,omitempty"`
	City    string `json:"city,omitempty"`
	ISP     string `json:"isp,omitempty"`
	Org     string `json:"org,omitempty"`
	AS      string `json:"as,omitempty"`
	Proxy   bool   `json:"proxy,omitempty"`
	Hosting bool   `json:"hosting,omitempty"`
	Error   string `json:"error,omitempty"`
}
