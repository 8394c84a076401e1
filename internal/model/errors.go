package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, steam, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeMissingSteamID = "MISSING_STEAM_ID"
	ErrCodeUpstreamFailed = "UPSTREAM_FAILED"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeRateLimited    = "RATE_LIMITED"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewMissingSteamIDError はsteamidクエリパラメータ未指定エラーを生成する。
func NewMissingSteamIDError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingSteamID,
		Message:  "steamid: Query parameter missing",
		Category: "validation",
		Action:   "steamid クエリパラメータにSteam IDを指定してください。",
	}
}

// NewUpstreamFailedError はSteam API呼び出し失敗エラーを生成する。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func NewUpstreamFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  "Steamからのデータ取得に失敗しました。",
		Category: "steam",
		Action:   "しばらく待ってから再度お試しください。Steamプロフィールのゲーム情報が公開されているかも確認してください。",
	}
}

// NewUnauthorizedError は未ログインエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "Steamでログインしてください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// LoginFailureReason はSteamログイン検証の失敗理由。
type LoginFailureReason string

const (
	// LoginBadStatus は検証リクエストが200以外を返したことを示す。
	LoginBadStatus LoginFailureReason = "bad_status"
	// LoginInvalidAssertion は検証レスポンスに is_valid:true が含まれないことを示す。
	LoginInvalidAssertion LoginFailureReason = "invalid_assertion"
	// LoginMissingSignature はコールバックに openid.signed が含まれないことを示す。
	LoginMissingSignature LoginFailureReason = "missing_signature"
	// LoginMissingIdentifier は claimed_id からSteam IDを抽出できないことを示す。
	LoginMissingIdentifier LoginFailureReason = "missing_identifier"
	// LoginTransport は検証リクエスト自体が失敗したことを示す。
	LoginTransport LoginFailureReason = "transport"
)

// LoginError はSteam OpenID 2.0ログインの失敗を表す。
// ルート層は Reason で分岐し、常にログインページへリダイレクトする。
type LoginError struct {
	Reason LoginFailureReason
	Detail string
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *LoginError) Error() string {
	msg := fmt.Sprintf("steam login failed (%s)", e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap は元のエラーを返す。
func (e *LoginError) Unwrap() error {
	return e.Err
}

// UpstreamError はSteam Web API / ストアAPI呼び出しの失敗を表す。
// 診断用に元のリクエストとレスポンスの情報を保持する。
type UpstreamError struct {
	Method     string
	URL        string // APIキーはマスク済み
	StatusCode int    // レスポンスを受け取れなかった場合は0
	Body       string // レスポンスボディの先頭部分
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("steam request %s %s failed: %v", e.Method, e.URL, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("steam request %s %s failed with status %d: %v", e.Method, e.URL, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("steam request %s %s failed with status %d", e.Method, e.URL, e.StatusCode)
	}
}

// Unwrap は元のエラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// HasResponse はレスポンスを受信できていたかどうかを返す。
func (e *UpstreamError) HasResponse() bool {
	return e.StatusCode != 0
}

// IsUpstreamError はerrのチェーンにUpstreamErrorが含まれるかを判定する。
func IsUpstreamError(err error) bool {
	var upErr *UpstreamError
	return errors.As(err, &upErr)
}
