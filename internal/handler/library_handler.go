package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/steamctx/internal/library"
	"github.com/hitoshi/steamctx/internal/middleware"
	"github.com/hitoshi/steamctx/internal/model"
	"github.com/hitoshi/steamctx/internal/web"
)

// LibraryService はライブラリ画面が必要とするサービスインターフェース。
// library.Serviceが実装する。
type LibraryService interface {
	Games(ctx context.Context, steamID string, key model.SortKey) ([]model.OwnedGame, error)
	Context(ctx context.Context, steamID string, key model.SortKey) (*library.ContextResult, error)
}

// Renderer は画面の描画を行うインターフェース。
// web.Rendererが実装する。
type Renderer interface {
	Page(w http.ResponseWriter, status int, name string, data any) error
	Partial(w http.ResponseWriter, status int, name string, data any) error
}

// LibraryHandler はログイン画面とライブラリ画面のHTTPハンドラー。
type LibraryHandler struct {
	service  LibraryService
	renderer Renderer
	logger   *slog.Logger
}

// NewLibraryHandler はLibraryHandlerを生成する。
func NewLibraryHandler(service LibraryService, renderer Renderer, logger *slog.Logger) *LibraryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LibraryHandler{
		service:  service,
		renderer: renderer,
		logger:   logger,
	}
}

// Index はログイン画面を表示する。ログイン済みの場合はライブラリ画面へリダイレクトする。
// GET /
func (h *LibraryHandler) Index(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.SteamIDFromContext(r.Context()); err == nil {
		http.Redirect(w, r, pathApp, http.StatusSeeOther)
		return
	}

	h.render(w, r, http.StatusOK, web.PageLogin, newBase(r))
}

// App は所有ゲーム一覧を表示する。
// HTMXリクエストには #library のパーシャルのみを返す。
// GET /app?order_by=playtime|last_played
func (h *LibraryHandler) App(w http.ResponseWriter, r *http.Request) {
	view := newLibraryView(r, r.URL.Query().Get("order_by"))

	games, err := h.service.Games(r.Context(), view.SteamID, view.SortKey)
	if err != nil {
		h.logger.Error("failed to get owned games",
			slog.String("steam_id", view.SteamID),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		view.Error = web.NewErrorView(model.NewUpstreamFailedError())
		h.renderLibrary(w, r, http.StatusBadGateway, view)
		return
	}

	view.Games = games
	h.renderLibrary(w, r, http.StatusOK, view)
}

// GenerateContext は所有ゲームにストア詳細を付与し、ゲーマーコンテキストを生成する。
// POST /generate-context (form: order_by)
func (h *LibraryHandler) GenerateContext(w http.ResponseWriter, r *http.Request) {
	view := newLibraryView(r, r.PostFormValue("order_by"))

	result, err := h.service.Context(r.Context(), view.SteamID, view.SortKey)
	if err != nil {
		h.logger.Error("failed to generate gamer context",
			slog.String("steam_id", view.SteamID),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
			slog.String("error", err.Error()),
		)
		view.Error = web.NewErrorView(model.NewUpstreamFailedError())
		h.renderLibrary(w, r, http.StatusBadGateway, view)
		return
	}

	view.Games = result.Games
	view.Context = result
	view.Markdown = result.Markdown()
	h.renderLibrary(w, r, http.StatusOK, view)
}

// renderLibrary はHTMXリクエストならパーシャル、それ以外ならページ全体を描画する。
func (h *LibraryHandler) renderLibrary(w http.ResponseWriter, r *http.Request, status int, view web.LibraryView) {
	if middleware.IsHTMXRequest(r) {
		if err := h.renderer.Partial(w, status, web.PartialLibrary, view); err != nil {
			h.renderFailed(w, err)
		}
		return
	}
	h.render(w, r, status, web.PageApp, view)
}

func (h *LibraryHandler) render(w http.ResponseWriter, r *http.Request, status int, page string, data any) {
	if err := h.renderer.Page(w, status, page, data); err != nil {
		h.renderFailed(w, err)
	}
}

func (h *LibraryHandler) renderFailed(w http.ResponseWriter, err error) {
	h.logger.Error("failed to render template", slog.String("error", err.Error()))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func newBase(r *http.Request) web.Base {
	steamID, _ := middleware.SteamIDFromContext(r.Context())
	return web.Base{
		SteamID:   steamID,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
	}
}

// newLibraryView は許可リストで検証した並び替えキーでテンプレートデータを初期化する。
func newLibraryView(r *http.Request, rawOrderBy string) web.LibraryView {
	key, _ := model.ParseSortKey(rawOrderBy)
	return web.LibraryView{
		Base:     newBase(r),
		SortKey:  key,
		SortKeys: model.SortKeys,
	}
}
