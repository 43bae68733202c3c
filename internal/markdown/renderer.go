// Package markdown はMarkdown原文から表示用HTMLへの変換を提供する。
//
// 変換はgoldmarkで行い、出力HTMLは必ずContentSanitizerService
// でサニタイズしてから返す。生HTMLブロックを含むMarkdownも
// サニタイズ後は安全なHTMLになる。
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Sanitizer はレンダリング結果のHTMLサニタイズに必要なインターフェース。
// security.ContentSanitizerServiceの部分集合として定義する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Renderer はMarkdown→サニタイズ済みHTML変換器。
// goldmarkのパーサーはスレッドセーフであり、複数リクエストから共有できる。
type Renderer struct {
	md        goldmark.Markdown
	sanitizer Sanitizer
}

// NewRenderer はRendererを生成する。
// GFM拡張（テーブル、打ち消し線、自動リンク）を有効にする。
func NewRenderer(sanitizer Sanitizer) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			// 生HTMLはいったん通し、後段のサニタイザで除去する
			html.WithUnsafe(),
		),
	)
	return &Renderer{
		md:        md,
		sanitizer: sanitizer,
	}
}

// Render はMarkdown原文をサニタイズ済みHTMLに変換する。
func (r *Renderer) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return r.sanitizer.Sanitize(buf.String()), nil
}
