package steam

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/hitoshi/steamctx/internal/metrics"
	"github.com/hitoshi/steamctx/internal/model"
)

const (
	// defaultOpenIDEndpoint はSteam OpenID 2.0プロバイダのエンドポイント。
	defaultOpenIDEndpoint = "https://steamcommunity.com/openid/login"

	openIDNamespace  = "http://specs.openid.net/auth/2.0"
	identifierSelect = "http://specs.openid.net/auth/2.0/identifier_select"

	// validAssertionMarker は検証レスポンスが有効な署名を示すときに含まれる行。
	validAssertionMarker = "is_valid:true"
)

// steamIDPattern はclaimed_idからSteam IDを抽出する。
// Steamが案内する部分一致のパターンとは異なり、claimed_id全体が一致する場合だけ受け付ける。
var steamIDPattern = regexp.MustCompile(`^https://steamcommunity\.com/openid/id/(\d+)$`)

// baseValidationKeys はcheck_authenticationリクエストに常に引き継ぐパラメータ。
var baseValidationKeys = []string{
	"openid.assoc_handle",
	"openid.signed",
	"openid.sig",
	"openid.ns",
}

// LoginVerifier はSteam OpenID 2.0によるログインを扱う。
// ログインURLの生成と、コールバックパラメータのcheck_authentication検証を行う。
type LoginVerifier struct {
	http     *resty.Client
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	endpoint string // テスト用にエンドポイントを差し替え可能
}

// NewLoginVerifier はLoginVerifierの新しいインスタンスを生成する。
func NewLoginVerifier(httpClient *http.Client, collector metrics.MetricsCollector, logger *slog.Logger) *LoginVerifier {
	return &LoginVerifier{
		http:     newRestyClient(httpClient),
		logger:   logger,
		metrics:  collector,
		endpoint: defaultOpenIDEndpoint,
	}
}

// GenerateLoginURL はユーザーをリダイレクトさせるSteamログインURLを生成する。
// return_toとrealmにはcallbackURLをそのまま使用する。
// 同一の入力に対して常に同一の文字列を返す。
func (v *LoginVerifier) GenerateLoginURL(callbackURL string) string {
	params := url.Values{}
	params.Set("openid.ns", openIDNamespace)
	params.Set("openid.mode", "checkid_setup")
	params.Set("openid.return_to", callbackURL)
	params.Set("openid.realm", callbackURL)
	params.Set("openid.identity", identifierSelect)
	params.Set("openid.claimed_id", identifierSelect)

	return v.endpoint + "?" + params.Encode()
}

// ProcessPostLoginParams はログイン後のコールバックパラメータを検証し、Steam IDを返す。
// openid.signedが無い場合は通信を行わずに失敗する。
// 失敗時は常に*model.LoginErrorを返す。リトライは行わない。
func (v *LoginVerifier) ProcessPostLoginParams(ctx context.Context, params url.Values) (string, error) {
	validation, err := buildValidationParams(params)
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := v.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(validation).
		Get(v.endpoint)
	v.metrics.RecordUpstreamLatency(metrics.EndpointOpenIDCheck, time.Since(start))
	if err != nil {
		v.metrics.RecordUpstreamFailure(metrics.EndpointOpenIDCheck)
		return "", &model.LoginError{Reason: model.LoginTransport, Err: err}
	}
	v.metrics.RecordUpstreamStatus(metrics.EndpointOpenIDCheck, resp.StatusCode())

	if resp.StatusCode() != http.StatusOK {
		v.metrics.RecordUpstreamFailure(metrics.EndpointOpenIDCheck)
		return "", &model.LoginError{
			Reason: model.LoginBadStatus,
			Detail: fmt.Sprintf("status %d, body %q", resp.StatusCode(), excerpt(resp.Body())),
		}
	}

	body := resp.String()
	if !strings.Contains(body, validAssertionMarker) {
		return "", &model.LoginError{
			Reason: model.LoginInvalidAssertion,
			Detail: fmt.Sprintf("response does not contain %s: %q", validAssertionMarker, excerpt(resp.Body())),
		}
	}

	matched := steamIDPattern.FindStringSubmatch(params.Get("openid.claimed_id"))
	if matched == nil {
		return "", &model.LoginError{
			Reason: model.LoginMissingIdentifier,
			Detail: fmt.Sprintf("claimed_id %q", params.Get("openid.claimed_id")),
		}
	}

	return matched[1], nil
}

// buildValidationParams はcheck_authenticationリクエスト用のパラメータを組み立てる。
// openid.signedに列挙された各フィールドを引き継ぎ、modeをcheck_authenticationに差し替える。
func buildValidationParams(params url.Values) (url.Values, error) {
	signed := params.Get("openid.signed")
	if signed == "" {
		return nil, &model.LoginError{Reason: model.LoginMissingSignature}
	}

	validation := url.Values{}
	for _, key := range baseValidationKeys {
		if _, ok := params[key]; ok {
			validation.Set(key, params.Get(key))
		}
	}

	for _, suffix := range strings.Split(signed, ",") {
		key := "openid." + suffix
		if _, ok := validation[key]; ok {
			continue
		}
		if _, ok := params[key]; !ok {
			return nil, &model.LoginError{
				Reason: model.LoginInvalidAssertion,
				Detail: fmt.Sprintf("signed field %s is missing", key),
			}
		}
		validation.Set(key, params.Get(key))
	}

	validation.Set("openid.mode", "check_authentication")
	return validation, nil
}
