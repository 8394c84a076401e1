package library

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/steamctx/internal/model"
)

// RenderMarkdown はエンリッチ済みゲームの一覧からプレーンテキストの
// ゲーマーコンテキスト文書（Markdown）を生成する。
// 説明文のHTMLはテキストに変換する。
func RenderMarkdown(steamID string, entries []model.EnrichedGame) string {
	var b strings.Builder

	b.WriteString("# Gamer context\n\n")
	fmt.Fprintf(&b, "Steam ID: %s\n", steamID)
	fmt.Fprintf(&b, "Games: %d\n", len(entries))

	for _, e := range entries {
		b.WriteString("\n")
		fmt.Fprintf(&b, "## %s\n\n", e.Game.Name)
		fmt.Fprintf(&b, "- Playtime: %s hours\n", strconv.FormatFloat(e.Game.Playtime, 'f', 1, 64))
		if e.Game.LastPlayed > 0 {
			fmt.Fprintf(&b, "- Last played: %s\n", time.Unix(e.Game.LastPlayed, 0).UTC().Format(time.DateOnly))
		}
		if e.Details == nil {
			continue
		}
		if len(e.Details.Genres) > 0 {
			fmt.Fprintf(&b, "- Genres: %s\n", strings.Join(e.Details.Genres, ", "))
		}
		if len(e.Details.Categories) > 0 {
			fmt.Fprintf(&b, "- Categories: %s\n", strings.Join(e.Details.Categories, ", "))
		}
		if text := HTMLToText(e.Details.Description); text != "" {
			b.WriteString("\n")
			b.WriteString(text)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// blockElements はテキスト変換時に段落の区切りとして扱う要素。
var blockElements = map[string]bool{
	"p": true, "div": true, "h1": true, "h2": true, "h3": true,
	"ul": true, "ol": true, "blockquote": true,
}

// HTMLToText はHTML断片をプレーンテキストに変換する。
// 段落や見出しは空行で区切り、liは「- 」で始まる行、brは改行にする。
// 連続する空白は1つにまとめる。
func HTMLToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}

	var lines []string
	var current strings.Builder

	flush := func() {
		if line := strings.Join(strings.Fields(current.String()), " "); line != "" && line != "-" {
			lines = append(lines, line)
		}
		current.Reset()
	}
	paragraph := func() {
		flush()
		if n := len(lines); n > 0 && lines[n-1] != "" {
			lines = append(lines, "")
		}
	}

	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if tokenizer.Err() != io.EOF {
				return strings.TrimSpace(fragment)
			}
			flush()
			return strings.TrimSpace(strings.Join(lines, "\n"))

		case html.TextToken:
			current.Write(tokenizer.Text())

		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			switch {
			case tag == "br":
				flush()
			case tag == "li":
				flush()
				current.WriteString("- ")
			case blockElements[tag]:
				paragraph()
			}

		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			tag := string(name)
			switch {
			case tag == "li":
				flush()
			case blockElements[tag]:
				paragraph()
			}
		}
	}
}
