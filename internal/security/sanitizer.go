// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// FieldSanitizerService はユーザー入力フィールドのサニタイズ機能のインターフェース。
// 廃棄物ログの備考、会社説明などの自由記述フィールドの保存前に使用される。
type FieldSanitizerService interface {
	// Sanitize は入力からマークアップを全て除去したプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(input string) string
}

// fieldSanitizer はFieldSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type fieldSanitizer struct {
	policy *bluemonday.Policy
}

// NewFieldSanitizer はFieldSanitizerServiceの新しいインスタンスを生成する。
// 自由記述フィールドはHTMLとして表示しないため、許可タグなしの
// StrictPolicyで全てのマークアップを除去する。
func NewFieldSanitizer() *fieldSanitizer {
	return &fieldSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からマークアップを全て除去したプレーンテキストを返す。
// StrictPolicyはタグ除去後にエンティティへエスケープするため、
// 表示用のプレーンテキストに戻すべくアンエスケープしてから返す。
func (s *fieldSanitizer) Sanitize(input string) string {
	if input == "" {
		return ""
	}
	cleaned := s.policy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}

// compile-time interface check
var _ FieldSanitizerService = (*fieldSanitizer)(nil)
