package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は外部へ送り出す記事タイトル・要約をプレーンテキストに変換するインターフェース。
// 上流のスコアリングサービスが生成した文字列にHTMLが混入していても、
// 配信先でそのままレンダリングされないようにする。
type TextSanitizerService interface {
	// Text は全てのタグを除去し、実体参照を戻し、連続する空白を1つにまとめた文字列を返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Text(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなため、複数のゴルーチンから共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// script/style要素は中身ごと除去し、それ以外のタグは中のテキストだけを残す。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Text はHTML混じりの文字列をプレーンテキストにする。
func (s *textSanitizer) Text(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	return strings.Join(strings.Fields(html.UnescapeString(stripped)), " ")
}
