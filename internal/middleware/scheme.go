package middleware

import (
	"net/http"
	"net/url"
)

// NewSchemeMiddleware はリクエストURLのスキームとホストを確定させるミドルウェアを返す。
// forceHTTPSがtrueの場合はTLS終端プロキシの背後でもスキームをhttpsとして扱う。
// 後続のハンドラーはAbsoluteURLで自サイトの絶対URLを生成できる。
func NewSchemeMiddleware(forceHTTPS bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme := "http"
			if forceHTTPS || r.TLS != nil {
				scheme = "https"
			}

			r2 := r.Clone(r.Context())
			r2.URL.Scheme = scheme
			r2.URL.Host = r.Host
			next.ServeHTTP(w, r2)
		})
	}
}

// AbsoluteURL はリクエストと同じスキーム・ホストでpathの絶対URLを返す。
func AbsoluteURL(r *http.Request, path string) string {
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}

	u := url.URL{Scheme: scheme, Host: host, Path: path}
	return u.String()
}
