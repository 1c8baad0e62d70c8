package geoip

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Deva-cpp/nextbuy-shield/internal/detect"
)

var highRisk = []string{"CN", "RU", "KP", "IR", "VN", "BD", "PK", "ID"}

func newServer(t *testing.T, body string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newResolver(t *testing.T, baseURL string) *Resolver {
	t.Helper()
	r, err := New(baseURL, 2*time.Second, 16, highRisk)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestResolveLocalAddresses(t *testing.T) {
	r := newResolver(t, "http://unused.invalid")

	tests := []struct {
		origin  string
		score   float64
		country string
	}{
		{"127.0.0.1", 0.3, "localhost"},
		{"::1", 0.3, "localhost"},
		{"10.0.0.5", 0.4, "private"},
		{"192.168.1.20", 0.4, "private"},
		{"172.16.0.1", 0.4, "private"},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			score, meta := r.Resolve(context.Background(), tt.origin)
			if score != tt.score {
				t.Errorf("score = %v, want %v", score, tt.score)
			}
			if meta.Country != tt.country {
				t.Errorf("country = %q, want %q", meta.Country, tt.country)
			}
			if meta.Error != "" {
				t.Errorf("local classification should never reach the network: %v", meta.Error)
			}
		})
	}
}

func TestResolveExternalScoring(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{
			"plain residential",
			`{"status":"success","country":"Germany","countryCode":"DE","isp":"Deutsche Telekom"}`,
			0.3,
		},
		{
			"high risk country",
			`{"status":"success","country":"China","countryCode":"CN","isp":"China Telecom"}`,
			0.6,
		},
		{
			"proxy flag",
			`{"status":"success","country":"Germany","countryCode":"DE","isp":"Some ISP","proxy":true}`,
			0.7,
		},
		{
			"hosting isp keyword",
			`{"status":"success","country":"United States","countryCode":"US","isp":"DigitalOcean, LLC","hosting":true}`,
			0.9,
		},
		{
			"suspicious asn",
			`{"status":"success","country":"United States","countryCode":"US","isp":"Comcast","as":"AS15169 Google LLC"}`,
			0.4,
		},
		{
			"everything stacks and caps",
			`{"status":"success","country":"Russia","countryCode":"RU","isp":"VPN Hosting Ltd","as":"AS13335 Cloudflare","proxy":true,"hosting":true}`,
			1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.body, nil)
			r := newResolver(t, srv.URL)

			score, meta := r.Resolve(context.Background(), "203.0.113.9")
			if score != tt.want {
				t.Errorf("score = %v, want %v", score, tt.want)
			}
			if meta.Error != "" {
				t.Errorf("unexpected error: %v", meta.Error)
			}
		})
	}
}

func TestResolveCaches(t *testing.T) {
	var hits int32
	srv := newServer(t, `{"status":"success","country":"Germany","countryCode":"DE"}`, &hits)
	r := newResolver(t, srv.URL)

	for i := 0; i < 3; i++ {
		if score, _ := r.Resolve(context.Background(), "203.0.113.9"); score != 0.3 {
			t.Fatalf("score = %v", score)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("lookup hits = %d, want 1", n)
	}
}

func TestResolveFailureIsNeutral(t *testing.T) {
	tests := []struct {
		name string
		base func(t *testing.T) string
	}{
		{
			"unreachable service",
			func(t *testing.T) string { return "http://127.0.0.1:1" },
		},
		{
			"service error status",
			func(t *testing.T) string {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusBadGateway)
				}))
				t.Cleanup(srv.Close)
				return srv.URL
			},
		},
		{
			"api-level failure",
			func(t *testing.T) string {
				return newServer(t, `{"status":"fail","message":"reserved range"}`, nil).URL
			},
		},
		{
			"malformed body",
			func(t *testing.T) string {
				return newServer(t, `{not json`, nil).URL
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver(t, tt.base(t))
			score, meta := r.Resolve(context.Background(), "203.0.113.9")
			if score != 0.5 {
				t.Errorf("score = %v, want neutral 0.5", score)
			}
			if meta.Error == "" {
				t.Error("failure reason should be recorded on the metadata")
			}
		})
	}
}

func TestResolveFailureNotCached(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"status":"success","country":"Germany","countryCode":"DE"}`))
	}))
	t.Cleanup(srv.Close)
	r := newResolver(t, srv.URL)

	if score, _ := r.Resolve(context.Background(), "203.0.113.9"); score != 0.5 {
		t.Fatalf("first resolve score = %v, want neutral", score)
	}
	if score, _ := r.Resolve(context.Background(), "203.0.113.9"); score != 0.3 {
		t.Errorf("second resolve score = %v, want recovered 0.3", score)
	}
}

var _ detect.OriginResolver = (*Resolver)(nil)
