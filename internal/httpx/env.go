// Package httpx is the HTTP surface of the shield: the protected API
// routes, the admin reporting endpoints, and the middleware that runs every
// request through the classification pipeline.
package httpx

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Deva-cpp/nextbuy-shield/internal/detect"
	"github.com/Deva-cpp/nextbuy-shield/internal/ledger"
	"github.com/Deva-cpp/nextbuy-shield/internal/metrics"
	cfg "github.com/Deva-cpp/nextbuy-shield/pkg/config"
)

type Env struct {
	Cfg     cfg.Config
	Engine  *detect.Engine
	Ledger  *ledger.Ledger
	Devices *detect.DeviceStore
	Metrics *metrics.Metrics // optional
}

// Router builds the full route tree. Everything under /api runs through the
// classification middleware; the admin subtree adds its own access guard on
// top.
func (e Env) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", e.Cfg.BypassHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", e.Health)

	r.Route("/api", func(api chi.Router) {
		api.Use(e.Protect)

		api.Route("/bot-protection", func(bp chi.Router) {
			bp.Post("/captcha-verification", e.CaptchaVerification)
			bp.Post("/log-behavior", e.LogBehavior)
			bp.Post("/contact-form", e.ContactForm)
			bp.Post("/test", e.TestProbe)
		})

		api.Route("/admin/bot-metrics", func(ad chi.Router) {
			ad.Use(e.RequireAdmin)
			ad.Get("/", e.BotMetrics)
			ad.Post("/reset", e.ResetBotMetrics)
			ad.Post("/ingest", e.IngestBotMetrics)
		})
	})

	return r
}

func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s ua=%q dur=%s", r.Method, r.URL.Path, r.UserAgent(), time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
