package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/steamctx/internal/metrics"
	"github.com/hitoshi/steamctx/internal/middleware"
	"github.com/hitoshi/steamctx/internal/web"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Sessions    SessionManager
	ForceHTTPS  bool
	CSRF        middleware.CSRFConfig
	RateLimiter *middleware.RateLimiter // nilの場合はレート制限なし
	Logger      *slog.Logger

	// メトリクス
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer // nilの場合は /metrics を公開しない

	// ログイン
	Verifier LoginVerifier

	// ライブラリ
	Library    LibraryService
	OwnedGames OwnedGamesFetcher
	Renderer   Renderer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Scheme → SecurityHeaders → Session → Logging → CSRF
//
// ライブラリ画面はRequireSessionの内側に配置し、/generate-context にはレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSchemeMiddleware(deps.ForceHTTPS))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewSessionMiddleware(deps.Sessions))
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

	loginHandler := NewLoginHandler(deps.Verifier, deps.Sessions, deps.Metrics, logger)
	libraryHandler := NewLibraryHandler(deps.Library, deps.Renderer, logger)
	ownedGamesHandler := NewOwnedGamesHandler(deps.OwnedGames, logger)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Handle("/static/*", web.StaticHandler())

	// --- 認証不要のルート ---
	r.Get(pathIndex, libraryHandler.Index)
	r.Get("/steam-login/trigger", loginHandler.Trigger)
	r.Get(pathLoginCallback, loginHandler.Callback)
	r.Get("/logout", loginHandler.Logout)
	r.Get("/owned-games", ownedGamesHandler.List)

	// --- ログインが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewRequireSessionMiddleware(pathIndex))

		r.Get(pathApp, libraryHandler.App)
		r.Get("/playground", libraryHandler.App)

		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.Middleware()).Post("/generate-context", libraryHandler.GenerateContext)
		} else {
			r.Post("/generate-context", libraryHandler.GenerateContext)
		}
	})

	return r
}

// healthHandler はプロセスの稼働確認用に200を返す。
// GET /health
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
