package httpx

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		trustProxy bool
		want       string
	}{
		{"remote addr", "203.0.113.9:4132", "", false, "203.0.113.9"},
		{"xff ignored without trust", "203.0.113.9:4132", "198.51.100.7", false, "203.0.113.9"},
		{"xff honored with trust", "10.0.0.2:80", "198.51.100.7", true, "198.51.100.7"},
		{"first xff hop wins", "10.0.0.2:80", "198.51.100.7, 10.0.0.1", true, "198.51.100.7"},
		{"trust without xff falls back", "203.0.113.9:4132", "", true, "203.0.113.9"},
		{"ipv6", "[::1]:9000", "", false, "::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsLoopback(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:9000", true},
		{"[::1]:9000", true},
		{"127.0.0.1", true},
		{"203.0.113.9:9000", false},
		{"10.0.0.2:80", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		if got := isLoopback(tt.addr); got != tt.want {
			t.Errorf("isLoopback(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
