// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/steamctx/internal/metrics"
	"github.com/hitoshi/steamctx/internal/middleware"
	"github.com/hitoshi/steamctx/internal/model"
)

// ルートパス
const (
	pathIndex         = "/"
	pathApp           = "/app"
	pathLoginCallback = "/steam-login/callback"
)

// LoginVerifier はSteam OpenIDログインの開始と検証を行うインターフェース。
// steam.LoginVerifierが実装する。
type LoginVerifier interface {
	GenerateLoginURL(callbackURL string) string
	ProcessPostLoginParams(ctx context.Context, params url.Values) (string, error)
}

// SessionManager はログインセッションの発行と破棄を行うインターフェース。
// session.Managerが実装する。
type SessionManager interface {
	middleware.SessionStore
	Login(w http.ResponseWriter, steamID string) error
}

// LoginHandler はSteamログイン関連のHTTPハンドラー。
type LoginHandler struct {
	verifier LoginVerifier
	sessions SessionManager
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewLoginHandler はLoginHandlerを生成する。
func NewLoginHandler(verifier LoginVerifier, sessions SessionManager, collector metrics.MetricsCollector, logger *slog.Logger) *LoginHandler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LoginHandler{
		verifier: verifier,
		sessions: sessions,
		metrics:  collector,
		logger:   logger,
	}
}

// Trigger はSteamのログイン画面へリダイレクトする。
// GET /steam-login/trigger
func (h *LoginHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	callback := middleware.AbsoluteURL(r, pathLoginCallback)
	http.Redirect(w, r, h.verifier.GenerateLoginURL(callback), http.StatusSeeOther)
}

// Callback はSteamからの戻りを検証し、成功時はセッションを発行する。
// 検証に失敗した場合は理由をログに記録してトップページへ戻す。
// GET /steam-login/callback
func (h *LoginHandler) Callback(w http.ResponseWriter, r *http.Request) {
	steamID, err := h.verifier.ProcessPostLoginParams(r.Context(), r.URL.Query())
	if err != nil {
		h.metrics.RecordLogin(false)

		reason := "unknown"
		var loginErr *model.LoginError
		if errors.As(err, &loginErr) {
			reason = string(loginErr.Reason)
		}
		h.logger.Warn("steam login failed",
			slog.String("reason", reason),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, pathIndex, http.StatusSeeOther)
		return
	}

	if err := h.sessions.Login(w, steamID); err != nil {
		h.metrics.RecordLogin(false)
		h.logger.Error("failed to issue session",
			slog.String("steam_id", steamID),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, pathIndex, http.StatusSeeOther)
		return
	}

	h.metrics.RecordLogin(true)
	h.logger.Info("steam login succeeded", slog.String("steam_id", steamID))
	http.Redirect(w, r, pathApp, http.StatusSeeOther)
}

// Logout はセッションを破棄してトップページへリダイレクトする。
// GET /logout
func (h *LoginHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Logout(w)
	http.Redirect(w, r, pathIndex, http.StatusSeeOther)
}
