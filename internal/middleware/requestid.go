package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// requestIDHeader はリクエストIDを受け渡すヘッダー名。
const requestIDHeader = "X-Request-ID"

var requestIDContextKey = contextKey("request_id")

// NewRequestIDMiddleware はリクエストごとにIDを割り当てるミドルウェアを返す。
// 受信したX-Request-IDがUUID形式であれば引き継ぎ、そうでなければ新規に生成する。
// IDはレスポンスヘッダーとリクエストコンテキストに設定する。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if parsed, err := uuid.Parse(id); err == nil {
				id = parsed.String()
			} else {
				id = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, id)
			ctx := context.WithValue(r.Context(), requestIDContextKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext はリクエストコンテキストからリクエストIDを取得する。
// 未設定の場合は空文字列を返す。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// ContextWithRequestID はコンテキストにリクエストIDを注入する。
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}
