// Package security はアプリケーションのセキュリティ機能を提供する。
//
// MessageSanitizerService はチャットメッセージ本文をサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// チャット本文はプレーンテキストとして扱うため、bluemondayの
// StrictPolicyで全タグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MessageSanitizerService はメッセージ本文のサニタイズ機能のインターフェースを定義する。
// メッセージの保存前に使用される。
type MessageSanitizerService interface {
	// Sanitize は本文から全HTMLタグを除去し、プレーンテキストを返す。
	// 連続する空白・改行は1つのスペースに畳み込み、前後の空白を取り除く。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// messageSanitizer はMessageSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type messageSanitizer struct {
	policy *bluemonday.Policy
}

// NewMessageSanitizer はMessageSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyを使用し、scriptタグを含むあらゆるHTML要素を除去する。
func NewMessageSanitizer() *messageSanitizer {
	return &messageSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は本文から全HTMLタグを除去し、プレーンテキストを返す。
// StrictPolicyは残ったテキストをHTMLエンティティへエスケープするため、
// プレーンテキストとして保存できるようにエスケープを戻す。
func (s *messageSanitizer) Sanitize(raw string) string {
	stripped := s.policy.Sanitize(raw)
	plain := html.UnescapeString(stripped)
	return strings.TrimSpace(strings.Join(strings.Fields(plain), " "))
}
