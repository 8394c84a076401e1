package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STEAM_API_KEY", "test-api-key")
	t.Setenv("SECRET_KEY", "test-secret-key")
	t.Setenv("LOG_LEVEL", "INFO")
}

func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

// noDotenv は存在しない.envファイルのパスを返す。
func noDotenv(t *testing.T) string {
	return filepath.Join(t.TempDir(), ".env")
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, l, err := Init(&buf, noDotenv(t))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil || l == nil {
		t.Fatal("expected non-nil config and logger")
	}
	if cfg.SteamAPIKey != "test-api-key" {
		t.Errorf("SteamAPIKey = %q, want test-api-key", cfg.SteamAPIKey)
	}

	// グローバルロガーがJSON出力に設定されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_LogLevelIsApplied(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "error")

	var buf bytes.Buffer
	if _, _, err := Init(&buf, noDotenv(t)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	slog.Default().Warn("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("WARN log should be filtered at ERROR level, got: %s", buf.String())
	}
}

func TestInit_UnknownLogLevel_WarnsAndFallsBack(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")

	var buf bytes.Buffer
	if _, _, err := Init(&buf, noDotenv(t)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !strings.Contains(buf.String(), "unknown LOG_LEVEL") {
		t.Errorf("expected warning about unknown LOG_LEVEL, got: %s", buf.String())
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	unsetEnv(t, "STEAM_API_KEY")
	unsetEnv(t, "SECRET_KEY")

	var buf bytes.Buffer
	cfg, l, err := Init(&buf, noDotenv(t))
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil || l != nil {
		t.Error("expected nil config and logger on error")
	}
}

func TestNewHandler_WiresRoutes(t *testing.T) {
	setTestEnv(t)

	cfg, _, err := Init(io.Discard, noDotenv(t))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	reg := prometheus.NewRegistry()
	h, cleanup, err := NewHandler(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)), reg)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	defer cleanup()

	tests := []struct {
		path   string
		status int
	}{
		{path: "/health", status: http.StatusOK},
		{path: "/", status: http.StatusOK},
		{path: "/app", status: http.StatusSeeOther},
		{path: "/owned-games", status: http.StatusBadRequest},
		{path: "/static/app.js", status: http.StatusOK},
		{path: "/metrics", status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.status {
				t.Errorf("GET %s status = %d, want %d", tt.path, w.Code, tt.status)
			}
		})
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	unsetEnv(t, "STEAM_API_KEY")
	unsetEnv(t, "SECRET_KEY")

	var buf bytes.Buffer
	err := Run(context.Background(), &buf, []string{"serve", "--env-file", noDotenv(t)})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_Serve_ShutsDownOnCancel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("SERVER_PORT", freePort(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, io.Discard, []string{"serve", "--env-file", noDotenv(t)})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run(serve) error = %v, want nil after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRun_Healthcheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	_, port, err := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	if err != nil {
		t.Fatalf("failed to parse server URL: %v", err)
	}

	if err := Run(context.Background(), io.Discard, []string{"healthcheck", "--port", port}); err != nil {
		t.Errorf("healthcheck error = %v, want nil", err)
	}
}

func TestRun_Healthcheck_Unhealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, port, _ := net.SplitHostPort(strings.TrimPrefix(server.URL, "http://"))
	t.Setenv("SERVER_PORT", port)

	if err := Run(context.Background(), io.Discard, []string{"healthcheck"}); err == nil {
		t.Error("healthcheck should fail for non-200 status")
	}
}

func TestRun_Healthcheck_NoServer(t *testing.T) {
	if err := Run(context.Background(), io.Discard, []string{"healthcheck", "--port", freePort(t)}); err == nil {
		t.Error("healthcheck should fail when nothing is listening")
	}
}

// freePort は未使用のTCPポート番号を返す。
func freePort(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer l.Close()
	_, port, _ := net.SplitHostPort(l.Addr().String())
	return port
}
