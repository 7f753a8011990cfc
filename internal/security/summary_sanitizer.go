// Package security はアプリケーションのセキュリティ機能を提供する。
//
// SummarySanitizer はデバイスから入力された会議タイトルからマークアップを除去し、
// カレンダーに書き込む前にプレーンテキストへ正規化する。
// bluemondayのStrictPolicyを使用し、全てのタグを除去する。
package security

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// MaxSummaryLength は会議タイトルの最大文字数（rune数）。
const MaxSummaryLength = 200

// SummarySanitizer は会議タイトルのサニタイズ機能のインターフェースを定義する。
type SummarySanitizer interface {
	// Sanitize はタグを除去し、前後の空白を取り除き、最大文字数で切り詰めた文字列を返す。
	// HTMLエスケープは元に戻すため、"A & B" は "A & B" のまま返る。
	// 空文字列や空白のみの入力には空文字列を返す。
	Sanitize(raw string) string
}

// summarySanitizer はSummarySanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type summarySanitizer struct {
	policy *bluemonday.Policy
}

// NewSummarySanitizer はSummarySanitizerの新しいインスタンスを生成する。
func NewSummarySanitizer() *summarySanitizer {
	return &summarySanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタイトルをプレーンテキストに正規化する。
func (s *summarySanitizer) Sanitize(raw string) string {
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.Join(strings.Fields(text), " ")

	if utf8.RuneCountInString(text) > MaxSummaryLength {
		runes := []rune(text)
		text = string(runes[:MaxSummaryLength])
	}
	return text
}
