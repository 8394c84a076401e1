// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/steamctx/internal/session"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// steamIDContextKey はリクエストコンテキストにSteam IDを格納するためのキー。
var steamIDContextKey = contextKey("steam_id")

// SessionStore はセッションの読み取りと破棄に必要なインターフェース。
// session.Managerの部分集合として定義する。
type SessionStore interface {
	SteamID(r *http.Request) (string, error)
	Logout(w http.ResponseWriter)
}

// NewSessionMiddleware はセッションCookieを読み取り、
// 有効であればSteam IDをリクエストコンテキストに注入するミドルウェアを返す。
// 未ログインのリクエストもそのまま通す。
// 改ざん・期限切れのCookieは未ログインとして扱い、Cookieを削除する。
func NewSessionMiddleware(store SessionStore) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			steamID, err := store.SteamID(r)
			if err != nil {
				if !errors.Is(err, session.ErrNoSession) {
					slog.Warn("invalid session cookie",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					store.Logout(w)
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), steamIDContextKey, steamID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewRequireSessionMiddleware は未ログインのリクエストをredirectToへ誘導するミドルウェアを返す。
// HTMXリクエストにはHX-Redirectヘッダーで画面遷移を指示する。
// NewSessionMiddlewareの後に配置する。
func NewRequireSessionMiddleware(redirectTo string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := SteamIDFromContext(r.Context()); err != nil {
				if IsHTMXRequest(r) {
					w.Header().Set("HX-Redirect", redirectTo)
					w.WriteHeader(http.StatusOK)
					return
				}
				http.Redirect(w, r, redirectTo, http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsHTMXRequest はHTMXが発行したリクエストかどうかを判定する。
func IsHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

// SteamIDFromContext はリクエストコンテキストからSteam IDを取得する。
// セッションミドルウェアを通過したログイン済みリクエストでのみ有効。
func SteamIDFromContext(ctx context.Context) (string, error) {
	steamID, ok := ctx.Value(steamIDContextKey).(string)
	if !ok || steamID == "" {
		return "", fmt.Errorf("steam ID not found in context")
	}
	return steamID, nil
}

// ContextWithSteamID はコンテキストにSteam IDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSteamID(ctx context.Context, steamID string) context.Context {
	return context.WithValue(ctx, steamIDContextKey, steamID)
}
