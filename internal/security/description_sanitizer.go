// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizer はSteamストアのゲーム説明文（about_the_game）をサニタイズし、
// テンプレートへ埋め込む前にXSSのリスクを取り除く。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 安全なタグと属性のみを通過させる。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer はゲーム説明文HTMLのサニタイズ機能のインターフェースを定義する。
type DescriptionSanitizer interface {
	// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// descriptionSanitizer はDescriptionSanitizerの実装。
// bluemondayのポリシーはスレッドセーフであり、複数のgoroutineから共有できる。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, h1, h2, h3, ul, ol, li, strong, em, b, i, u, a, img
//   - script, iframe, style および全てのon*イベント属性は除去
//   - imgのsrc属性とaのhref属性: httpsスキームのみ許可
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()

	// ストアの説明文はbbcode由来の見出しやリストを多用する
	p.AllowElements(
		"p", "br", "h1", "h2", "h3",
		"ul", "ol", "li",
		"strong", "em", "b", "i", "u",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &descriptionSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLをサニタイズして安全なHTMLを返す。
func (s *descriptionSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
