package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSchemeMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		forceHTTPS bool
		tls        bool
		want       string
	}{
		{name: "平文HTTP", forceHTTPS: false, tls: false, want: "http://example.com/steam-login/callback"},
		{name: "HTTPS強制", forceHTTPS: true, tls: false, want: "https://example.com/steam-login/callback"},
		{name: "TLS接続", forceHTTPS: false, tls: true, want: "https://example.com/steam-login/callback"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := NewSchemeMiddleware(tt.forceHTTPS)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = AbsoluteURL(r, "/steam-login/callback")
			}))

			req := httptest.NewRequest(http.MethodGet, "/steam-login/trigger", nil)
			req.Host = "example.com"
			if tt.tls {
				req.TLS = &tls.ConnectionState{}
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("AbsoluteURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSchemeMiddleware_DoesNotMutateOriginalRequest(t *testing.T) {
	handler := NewSchemeMiddleware(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if req.URL.Scheme != "" {
		t.Errorf("original request scheme = %q, want empty", req.URL.Scheme)
	}
}

func TestAbsoluteURL_WithoutMiddleware(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "localhost:8080"

	if got := AbsoluteURL(req, "/app"); got != "http://localhost:8080/app" {
		t.Errorf("AbsoluteURL() = %q, want %q", got, "http://localhost:8080/app")
	}
}
