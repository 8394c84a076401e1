// Package app はアプリケーションの初期化と起動を行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/hitoshi/steamctx/internal/config"
	"github.com/hitoshi/steamctx/internal/handler"
	"github.com/hitoshi/steamctx/internal/library"
	"github.com/hitoshi/steamctx/internal/logger"
	"github.com/hitoshi/steamctx/internal/metrics"
	"github.com/hitoshi/steamctx/internal/middleware"
	"github.com/hitoshi/steamctx/internal/security"
	"github.com/hitoshi/steamctx/internal/session"
	"github.com/hitoshi/steamctx/internal/steam"
	"github.com/hitoshi/steamctx/internal/web"
)

// shutdownTimeout はグレースフルシャットダウンの最大待ち時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数（と.envファイル）からConfigを読み込み、設定に応じたロガーをグローバルに設定する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer, dotenvPath string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFrom(dotenvPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, ok := logger.ParseLevel(cfg.LogLevel)
	l := logger.SetupDefault(w, logger.Options{Level: level, Debug: cfg.Debug})
	if !ok {
		l.Warn("unknown LOG_LEVEL, falling back to default",
			slog.String("log_level", cfg.LogLevel),
			slog.String("default", logger.DefaultLevel.String()),
		)
	}

	return cfg, l, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINTまたはSIGTERMを受信するとctxをキャンセルする。
func Run(ctx context.Context, w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return NewCommand(w).Run(ctx, append([]string{"steamctx"}, args...))
}

func serveAction(w io.Writer) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, l, err := Init(w, cmd.String(flagEnvFile))
		if err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}
		return serve(ctx, cfg, l)
	}
}

// NewHandler は設定から全依存関係をワイヤリングし、HTTPハンドラーを返す。
// 返されるcleanupはバックグラウンド処理の停止に使用する。
func NewHandler(cfg *config.Config, l *slog.Logger, reg *prometheus.Registry) (http.Handler, func(), error) {
	collector := metrics.NewCollector(reg)

	// 1. Steamへの通信（https/443のみ許可）
	outbound := security.NewOutboundClient(cfg.SteamHTTPTimeout)
	steamClient := steam.NewClient(
		outbound, cfg.SteamAPIKey, steam.NewGamesCache(),
		security.NewDescriptionSanitizer(), collector, l,
	)
	verifier := steam.NewLoginVerifier(outbound, collector, l)

	// 2. エンリッチメント
	policy := library.PartialResults
	if cfg.EnrichmentFailAll {
		policy = library.FailAll
	}
	libraryService := library.NewService(steamClient, library.Options{
		Concurrency: cfg.DetailsConcurrency,
		Policy:      policy,
	}, collector, l)

	// 3. セッションと画面
	sessions, err := session.NewManager(session.Options{
		SecretKey: cfg.SecretKey,
		MaxAge:    time.Duration(cfg.SessionMaxAge) * time.Second,
		Secure:    cfg.CookieSecure(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load templates: %w", err)
	}

	// 4. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.PerMinuteRateLimiterConfig(cfg.RateLimitContext))

	router := handler.NewRouter(&handler.RouterDeps{
		Sessions:    sessions,
		ForceHTTPS:  cfg.StaticHTTPSRedirect,
		CSRF:        middleware.CSRFConfig{CookieSecure: cfg.CookieSecure()},
		RateLimiter: limiter,
		Logger:      l,
		Metrics:     collector,
		Gatherer:    reg,
		Verifier:    verifier,
		Library:     libraryService,
		OwnedGames:  steamClient,
		Renderer:    renderer,
	})

	return router, limiter.Stop, nil
}

// newRegistry はアプリケーションとランタイムのメトリクスを登録するレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serve はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルシャットダウンを行う。
func serve(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	h, cleanup, err := NewHandler(cfg, l, newRegistry())
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // エンリッチメントは最大50件の上流呼び出しを含む
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("HTTP server starting",
			slog.String("addr", server.Addr),
			slog.Bool("force_https", cfg.StaticHTTPSRedirect),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	l.Info("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	l.Info("HTTP server stopped gracefully")
	return nil
}

func healthcheckAction(ctx context.Context, cmd *cli.Command) error {
	return runHealthcheck(ctx, cmd.String(flagPort))
}

// runHealthcheck はローカルの /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%s/health", port), nil)
	if err != nil {
		return fmt.Errorf("failed to build health check request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// Main はプロセスのエントリーポイントから呼ばれ、終了コードを返す。
func Main() int {
	if err := Run(context.Background(), os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
