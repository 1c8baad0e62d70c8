package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Deva-cpp/nextbuy-shield/internal/detect"
	"github.com/Deva-cpp/nextbuy-shield/internal/geoip"
	"github.com/Deva-cpp/nextbuy-shield/internal/httpx"
	"github.com/Deva-cpp/nextbuy-shield/internal/ledger"
	"github.com/Deva-cpp/nextbuy-shield/internal/metrics"
	"github.com/Deva-cpp/nextbuy-shield/internal/ratelimit"
	"github.com/Deva-cpp/nextbuy-shield/internal/sink"
	"github.com/Deva-cpp/nextbuy-shield/pkg/config"
)

func main() {
	cfg := config.Load()

	rules := detect.DefaultRules()
	if cfg.RulesPath != "" {
		loaded, err := detect.LoadRules(cfg.RulesPath)
		if err != nil {
			log.Fatalf("load rules %s: %v", cfg.RulesPath, err)
		}
		rules = loaded
		log.Printf("rules loaded from %s", cfg.RulesPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.NewMetrics()
	metricsSrv := metrics.NewServer(metrics.LoadConfig())
	_ = metricsSrv.Start(ctx)

	sinks := buildSinks(cfg)
	for _, s := range sinks {
		if err := s.Start(ctx); err != nil {
			log.Fatalf("start %s sink: %v", s.Name(), err)
		}
		log.Printf("sink %s started", s.Name())
	}
	emit := func(e ledger.Event) {
		m.IncrementDetections(string(e.Method), string(e.Severity))
		for _, s := range sinks {
			if err := s.Enqueue(e); err != nil {
				m.IncrementSinkErrors(s.Name(), "enqueue")
				log.Printf("sink %s: %v", s.Name(), err)
			}
		}
	}

	if os.Getenv("TEST_MODE") == "1" {
		runTestMode(emit)
		for _, s := range sinks {
			_ = s.Close()
		}
		return
	}

	var store ledger.Store
	switch cfg.StoreBackend {
	case "redis":
		store = ledger.NewRedisStore(cfg.RedisAddr, cfg.RedisKey)
	default:
		store = ledger.NewFileStore(cfg.MetricsFile)
	}
	led := ledger.New(cfg.LedgerCapacity, store, emit)

	geo, err := geoip.New(cfg.GeoAPIURL, cfg.GeoTimeout, cfg.GeoCacheSize, cfg.HighRiskCountries)
	if err != nil {
		log.Fatalf("geoip: %v", err)
	}

	general := ratelimit.New(cfg.APIRateMax, cfg.APIRateWindow)
	defer general.Close()
	auth := ratelimit.New(cfg.AuthRateMax, cfg.AuthRateWindow)
	defer auth.Close()

	devices := detect.NewDeviceStore(cfg.GeoCacheSize)
	engine := &detect.Engine{
		Rules:          rules,
		Geo:            geo,
		General:        general,
		Auth:           auth,
		Ledger:         led,
		Devices:        devices,
		AuthPaths:      cfg.AuthPaths,
		ExemptPaths:    cfg.ExemptPaths,
		FormFillFastMs: cfg.FormFillFastMs,
	}

	env := httpx.Env{
		Cfg:     cfg,
		Engine:  engine,
		Ledger:  led,
		Devices: devices,
		Metrics: m,
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      env.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("shield listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			log.Printf("close %s sink: %v", s.Name(), err)
		}
	}
}

// buildSinks assembles the detection fan-out from the OUTPUTS list.
func buildSinks(cfg config.Config) []sink.Sink {
	var sinks []sink.Sink
	for _, out := range cfg.Outputs {
		switch out {
		case "log":
			sinks = append(sinks, sink.NewLogSink())
		case "kafka":
			sinks = append(sinks, sink.NewKafkaSinkFromEnv())
		case "postgres":
			pg, err := sink.NewPGSink(cfg.PGDSN, os.Getenv("PG_TABLE"))
			if err != nil {
				log.Fatalf("postgres sink: %v", err)
			}
			sinks = append(sinks, pg)
		case "nats":
			sinks = append(sinks, sink.NewNATSSink(os.Getenv("NATS_URL"), os.Getenv("NATS_SUBJECT")))
		default:
			log.Printf("unknown output %q ignored", out)
		}
	}
	return sinks
}
