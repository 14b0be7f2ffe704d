// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は外部由来のテキスト（AI分析結果など）からHTMLを除去し、
// 商品フィールドにそのまま保存できるプレーンテキストに変換する。
// SSRFGuard はURLからの画像取り込みで内部ネットワークへのアクセスを防ぐ。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキスト化のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize はタグをすべて除去し、前後の空白を取り除いたテキストを返す。
	// 空文字列の入力には空文字列を返す。
	Sanitize(text string) string
}

// TextSanitizer はbluemondayのStrictPolicyでタグを除去する。
// ポリシーは生成後に変更しないため並行に使用できる。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はHTMLタグとscript/styleの中身を除去する。
// StrictPolicyがエスケープした文字実体参照は元の文字に戻す。
func (s *TextSanitizer) Sanitize(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(text)))
}

// SanitizeAll はスライスの各要素をサニタイズし、空になった要素を除く。
func (s *TextSanitizer) SanitizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if clean := s.Sanitize(v); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

// compile-time interface check
var _ TextSanitizerService = (*TextSanitizer)(nil)
