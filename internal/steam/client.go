// Package steam はSteamとの連携機能を提供する。
// OpenID 2.0ログイン検証、Steam Web API（所有ゲーム一覧）とストアAPI（ゲーム詳細）の
// 呼び出し、およびその結果のインメモリキャッシュを含む。
package steam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/steamctx/internal/metrics"
	"github.com/hitoshi/steamctx/internal/model"
	"github.com/hitoshi/steamctx/internal/security"
)

const (
	// defaultOwnedGamesEndpoint は所有ゲーム一覧APIのエンドポイント。
	defaultOwnedGamesEndpoint = "https://api.steampowered.com/IPlayerService/GetOwnedGames/v0001/"
	// defaultAppDetailsEndpoint はストアのゲーム詳細APIのエンドポイント。
	defaultAppDetailsEndpoint = "https://store.steampowered.com/api/appdetails"

	userAgent = "steamctx/1.0"

	// maxErrorBodyBytes はエラーに保持するレスポンスボディの最大バイト数。
	maxErrorBodyBytes = 512

	redacted = "REDACTED"
)

// Client はSteam Web APIとストアAPIのクライアント。
// 取得結果はGamesCacheに保存し、同一キーへの同時取得はsingleflightで1回にまとめる。
type Client struct {
	http      *resty.Client
	apiKey    string
	cache     *GamesCache
	sanitizer security.DescriptionSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	inflight  singleflight.Group

	// テスト用にエンドポイントを差し替え可能
	ownedGamesEndpoint string
	appDetailsEndpoint string
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(
	httpClient *http.Client,
	apiKey string,
	cache *GamesCache,
	sanitizer security.DescriptionSanitizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Client {
	return &Client{
		http:               newRestyClient(httpClient),
		apiKey:             apiKey,
		cache:              cache,
		sanitizer:          sanitizer,
		metrics:            collector,
		logger:             logger,
		ownedGamesEndpoint: defaultOwnedGamesEndpoint,
		appDetailsEndpoint: defaultAppDetailsEndpoint,
	}
}

// newRestyClient は指定されたhttp.Clientを使うrestyクライアントを生成する。
// タイムアウトやSSRF防止はhttp.Client側で設定済みであることを前提とする。
func newRestyClient(httpClient *http.Client) *resty.Client {
	return resty.NewWithClient(httpClient).
		SetHeader("User-Agent", userAgent).
		SetRetryCount(0)
}

// ownedGamesResponse は所有ゲーム一覧APIのレスポンス。
// 各要素は個別にデコードし、不正な要素だけを除外する。
type ownedGamesResponse struct {
	Response struct {
		GameCount int               `json:"game_count"`
		Games     []json.RawMessage `json:"games"`
	} `json:"response"`
}

// ownedGameRecord は所有ゲーム一覧の1要素。
// 必須フィールドの欠落を検出するためにポインタで受ける。
type ownedGameRecord struct {
	AppID           *int    `json:"appid"`
	Name            *string `json:"name"`
	PlaytimeForever *int    `json:"playtime_forever"`
	ImgIconURL      *string `json:"img_icon_url"`
	RTimeLastPlayed *int64  `json:"rtime_last_played"`
}

// GetOwnedGames は指定されたSteam IDの所有ゲーム一覧を取得する。
// キャッシュにあれば通信を行わずに返す。
// プレイ時間が0以下のゲームと必須フィールドが欠けた要素は除外する。
// 並べ替えや件数の切り詰めは行わない。
func (c *Client) GetOwnedGames(ctx context.Context, steamID string) ([]model.OwnedGame, error) {
	if games, ok := c.cache.OwnedGames(steamID); ok {
		c.metrics.RecordCacheLookup(metrics.CacheOwnedGames, true)
		c.logger.Debug("所有ゲーム一覧をキャッシュから返します", slog.String("steam_id", steamID))
		return games, nil
	}
	c.metrics.RecordCacheLookup(metrics.CacheOwnedGames, false)

	v, err := c.shared(ctx, "owned:"+steamID, func(ctx context.Context) (any, error) {
		if games, ok := c.cache.OwnedGames(steamID); ok {
			return games, nil
		}
		games, err := c.fetchOwnedGames(ctx, steamID)
		if err != nil {
			return nil, err
		}
		c.cache.StoreOwnedGames(steamID, games)
		return games, nil
	})
	if err != nil {
		return nil, err
	}

	// singleflightの結果は呼び出し元間で共有されるためコピーして返す
	games := v.([]model.OwnedGame)
	return append([]model.OwnedGame(nil), games...), nil
}

func (c *Client) fetchOwnedGames(ctx context.Context, steamID string) ([]model.OwnedGame, error) {
	params := url.Values{}
	params.Set("steamid", steamID)
	params.Set("key", c.apiKey)
	params.Set("include_played_free_games", "true")
	params.Set("include_appinfo", "true")

	body, err := c.get(ctx, metrics.EndpointOwnedGames, c.ownedGamesEndpoint, params)
	if err != nil {
		c.logger.Error("所有ゲーム一覧の取得に失敗しました",
			slog.String("steam_id", steamID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	var payload ownedGamesResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		c.metrics.RecordUpstreamFailure(metrics.EndpointOwnedGames)
		return nil, &model.UpstreamError{
			Method: http.MethodGet,
			URL:    redactURL(c.ownedGamesEndpoint, params),
			Body:   excerpt(body),
			Err:    fmt.Errorf("failed to decode owned games response: %w", err),
		}
	}

	games := make([]model.OwnedGame, 0, len(payload.Response.Games))
	if len(payload.Response.Games) == 0 {
		c.logger.Warn("所有ゲーム一覧が空でした",
			slog.String("steam_id", steamID),
			slog.String("response", excerpt(body)),
		)
		return games, nil
	}

	for _, raw := range payload.Response.Games {
		rec, ok := c.decodeOwnedGame(raw)
		if !ok || *rec.PlaytimeForever <= 0 {
			continue
		}
		games = append(games, rec.toOwnedGame())
	}

	return games, nil
}

// decodeOwnedGame は所有ゲーム一覧の1要素をデコードする。
// 必須フィールドが欠けている要素はログに記録してfalseを返す。
func (c *Client) decodeOwnedGame(raw json.RawMessage) (ownedGameRecord, bool) {
	var rec ownedGameRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		c.logger.Error("所有ゲームの要素をデコードできませんでした",
			slog.String("game", string(raw)),
			slog.String("error", err.Error()),
		)
		return ownedGameRecord{}, false
	}

	if rec.AppID == nil || rec.Name == nil || rec.PlaytimeForever == nil ||
		rec.ImgIconURL == nil || rec.RTimeLastPlayed == nil {
		c.logger.Error("所有ゲームの要素に必須フィールドがありません",
			slog.String("game", string(raw)),
		)
		return ownedGameRecord{}, false
	}

	return rec, true
}

// toOwnedGame は必須フィールドがそろったレコードをOwnedGameに変換する。
func (r ownedGameRecord) toOwnedGame() model.OwnedGame {
	return model.OwnedGame{
		AppID:      *r.AppID,
		Name:       *r.Name,
		Playtime:   minutesToHours(*r.PlaytimeForever),
		IconID:     *r.ImgIconURL,
		LastPlayed: *r.RTimeLastPlayed,
	}
}

// minutesToHours はプレイ時間（分）を小数第1位に丸めた時間に変換する。
// 丸めは2進数の値そのものに対して行い、ちょうど中間の値は偶数側に寄せる。
func minutesToHours(minutes int) float64 {
	if minutes <= 0 {
		return 0
	}
	h, _ := strconv.ParseFloat(strconv.FormatFloat(float64(minutes)/60, 'f', 1, 64), 64)
	return h
}

// shared は同一キーへの同時取得を1回にまとめて実行する。
// 共有される取得は呼び出し元のキャンセルから切り離し、http.Clientのタイムアウトだけで打ち切る。
// 各呼び出し元は自分のctxがキャンセルされた時点で待機をやめる。
func (c *Client) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(key, func() (any, error) {
		return fn(detached)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// appDetailsRecord はストアAPIレスポンスのdata部分。
type appDetailsRecord struct {
	Type         string        `json:"type"`
	Name         string        `json:"name"`
	AboutTheGame string        `json:"about_the_game"`
	Categories   []description `json:"categories"`
	Genres       []description `json:"genres"`
}

type description struct {
	Description string `json:"description"`
}

// GetGameDetails は指定されたApp IDのゲーム詳細を取得する。
// キャッシュにあれば（「ゲームではない」結果を含めて）通信を行わずに返す。
// ストア上の種別がgame以外の場合はnil, nilを返し、その結果もキャッシュする。
func (c *Client) GetGameDetails(ctx context.Context, appID int) (*model.GameDetails, error) {
	if details, ok := c.cache.GameDetails(appID); ok {
		c.metrics.RecordCacheLookup(metrics.CacheAppDetails, true)
		return details, nil
	}
	c.metrics.RecordCacheLookup(metrics.CacheAppDetails, false)

	v, err := c.shared(ctx, "details:"+strconv.Itoa(appID), func(ctx context.Context) (any, error) {
		if details, ok := c.cache.GameDetails(appID); ok {
			return details, nil
		}
		details, err := c.fetchGameDetails(ctx, appID)
		if err != nil {
			return nil, err
		}
		c.cache.StoreGameDetails(appID, details)
		return details, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*model.GameDetails), nil
}

func (c *Client) fetchGameDetails(ctx context.Context, appID int) (*model.GameDetails, error) {
	key := strconv.Itoa(appID)
	params := url.Values{}
	params.Set("appids", key)

	body, err := c.get(ctx, metrics.EndpointAppDetails, c.appDetailsEndpoint, params)
	if err != nil {
		c.logger.Error("ゲーム詳細の取得に失敗しました",
			slog.Int("app_id", appID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	var payload map[string]struct {
		Success bool              `json:"success"`
		Data    *appDetailsRecord `json:"data"`
	}
	decodeErr := json.Unmarshal(body, &payload)
	if decodeErr == nil && payload[key].Data == nil {
		decodeErr = fmt.Errorf("app %d has no data record", appID)
	}
	if decodeErr != nil {
		c.metrics.RecordUpstreamFailure(metrics.EndpointAppDetails)
		return nil, &model.UpstreamError{
			Method: http.MethodGet,
			URL:    redactURL(c.appDetailsEndpoint, params),
			Body:   excerpt(body),
			Err:    fmt.Errorf("failed to decode app details response: %w", decodeErr),
		}
	}

	data := payload[key].Data
	if data.Type != model.GameTypeGame {
		c.logger.Warn("App IDがゲームではありません",
			slog.Int("app_id", appID),
			slog.String("type", data.Type),
		)
		return nil, nil
	}

	return &model.GameDetails{
		AppID:       appID,
		Name:        data.Name,
		Description: c.sanitizer.Sanitize(data.AboutTheGame),
		Categories:  flattenDescriptions(data.Categories),
		Genres:      flattenDescriptions(data.Genres),
		Type:        model.GameTypeGame,
	}, nil
}

func flattenDescriptions(items []description) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Description)
	}
	return out
}

// get はGETリクエストを送信し、2xxレスポンスのボディを返す。
// 通信エラーと2xx以外のレスポンスは*model.UpstreamErrorとして返す。
// エラーに含まれるURLのAPIキーはマスクする。
func (c *Client) get(ctx context.Context, endpointName, endpoint string, params url.Values) ([]byte, error) {
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParamsFromValues(params).
		Get(endpoint)
	c.metrics.RecordUpstreamLatency(endpointName, time.Since(start))

	safeURL := redactURL(endpoint, params)
	if err != nil {
		c.metrics.RecordUpstreamFailure(endpointName)
		return nil, &model.UpstreamError{
			Method: http.MethodGet,
			URL:    safeURL,
			Err:    redactError(err, safeURL),
		}
	}

	c.metrics.RecordUpstreamStatus(endpointName, resp.StatusCode())
	if !resp.IsSuccess() {
		c.metrics.RecordUpstreamFailure(endpointName)
		return nil, &model.UpstreamError{
			Method:     http.MethodGet,
			URL:        safeURL,
			StatusCode: resp.StatusCode(),
			Body:       excerpt(resp.Body()),
		}
	}

	return resp.Body(), nil
}

// redactURL はAPIキーをマスクしたリクエストURLを返す。
func redactURL(endpoint string, params url.Values) string {
	masked := url.Values{}
	for k, v := range params {
		masked[k] = append([]string(nil), v...)
	}
	if masked.Has("key") {
		masked.Set("key", redacted)
	}
	return endpoint + "?" + masked.Encode()
}

// redactError は通信エラーに含まれるURLをマスク済みのURLに置き換える。
func redactError(err error, safeURL string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{Op: urlErr.Op, URL: safeURL, Err: urlErr.Err}
	}
	return err
}

// excerpt はレスポンスボディの先頭部分を返す。
func excerpt(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes]) + "..."
	}
	return string(body)
}
