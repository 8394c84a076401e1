package security

import (
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes はSteamへの外向きリクエストで許可されるURLスキーム。
// Steam Web API・ストアAPI・OpenIDエンドポイントはいずれもhttpsで提供される。
var allowedSchemes = []string{"https"}

// NewOutboundClient はSteamへのリクエストに使うSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlのデフォルト設定により以下がブロックされる:
//   - プライベートIPアドレス (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
//   - ループバックアドレス (127.0.0.0/8, ::1)
//   - リンクローカルアドレス (169.254.0.0/16, fe80::/10)
//
// 加えてhttpsスキームと443番ポートのみを許可する。
// timeoutはリクエスト全体（接続からボディ読み込みまで）に適用される。
func NewOutboundClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}
