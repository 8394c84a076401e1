// Package web は画面テンプレートと静的ファイルを提供する。
// テンプレートと静的ファイルはバイナリに埋め込む。
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/steamctx/internal/library"
	"github.com/hitoshi/steamctx/internal/model"
)

//go:embed templates
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// ページテンプレート名
const (
	PageLogin = "login"
	PageApp   = "app"
)

// パーシャルテンプレート名（HTMXで #library を差し替える単位）
const (
	PartialLibrary = "library"
)

var pageNames = []string{PageLogin, PageApp}

// Base は全ページ共通のテンプレートデータ。
type Base struct {
	SteamID   string
	CSRFToken string
}

// ErrorView は画面に表示するエラー状態。
type ErrorView struct {
	Title   string
	Message string
	Action  string
}

// NewErrorView はAPIErrorを画面表示用に変換する。
func NewErrorView(apiErr *model.APIError) *ErrorView {
	return &ErrorView{
		Title:   "Something went wrong",
		Message: apiErr.Message,
		Action:  apiErr.Action,
	}
}

// LibraryView はライブラリ画面と #library パーシャルのテンプレートデータ。
type LibraryView struct {
	Base
	SortKey  model.SortKey
	SortKeys []model.SortKey
	Games    []model.OwnedGame
	// Context はエンリッチメント実行後のみ設定される。
	Context  *library.ContextResult
	Markdown string
	Error    *ErrorView
}

var funcs = template.FuncMap{
	"hours": func(h float64) string {
		return fmt.Sprintf("%.1f", h)
	},
	"date": func(ts int64) string {
		if ts <= 0 {
			return "never"
		}
		return time.Unix(ts, 0).UTC().Format("2006-01-02")
	},
	"join": strings.Join,
	// description はbluemondayでサニタイズ済みのHTMLのみを受け取る。
	"description": func(s string) template.HTML {
		return template.HTML(s)
	},
}

// Renderer はテンプレートを描画する。
type Renderer struct {
	pages    map[string]*template.Template
	partials *template.Template
}

// NewRenderer は埋め込みテンプレートを解析してRendererを生成する。
// ページごとにレイアウトとパーシャルを複製した独立のテンプレートセットを持つ。
func NewRenderer() (*Renderer, error) {
	base, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
		"templates/layout.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base templates: %w", err)
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone base templates: %w", err)
		}
		page, err := clone.ParseFS(templateFS, "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse page %s: %w", name, err)
		}
		pages[name] = page
	}

	return &Renderer{pages: pages, partials: base}, nil
}

// Page はレイアウト付きのページを描画する。
func (r *Renderer) Page(w http.ResponseWriter, status int, name string, data any) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return render(w, status, t, "layout", data)
}

// Partial はHTMXの差し替え用にパーシャルのみを描画する。
func (r *Renderer) Partial(w http.ResponseWriter, status int, name string, data any) error {
	return render(w, status, r.partials, name, data)
}

// render はバッファに描画してからレスポンスを書き込む。
// テンプレートエラー時は何も書き込まずにエラーを返す。
func render(w http.ResponseWriter, status int, t *template.Template, name string, data any) error {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// StaticHandler は埋め込み静的ファイルを配信するハンドラーを返す。
// /static/ 配下にマウントすることを前提とする。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServerFS(sub))
}
