package security

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は投稿本文やトレンド名をプレーンテキストに正規化する。
// 生成プロバイダの出力と、フィード・HTMLから取り出した見出しの両方に適用する。
type TextSanitizer interface {
	// Sanitize はHTMLタグを除去し、実体参照を戻し、空白を1つにまとめる。
	// script/styleの中身は本文として残らない。
	Sanitize(raw string) string
}

// textSanitizer はbluemondayのStrictPolicyでタグを全て除去する。
// Policyはスレッドセーフなので複数goroutineから共有してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はTextSanitizerを実装する。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	stripped := s.policy.Sanitize(raw)
	// StrictPolicyは&や'をエスケープするため、プレーンテキストに戻す
	unescaped := html.UnescapeString(stripped)
	return collapseSpace(unescaped)
}

// collapseSpace は制御文字を取り除き、連続する空白を1つのスペースにまとめる。
// 改行は段落の区切りとして1つだけ残す。
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSpace := false
	pendingNewline := false
	for _, r := range s {
		switch {
		case r == '\n':
			pendingNewline = true
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r):
			continue
		default:
			if b.Len() > 0 {
				if pendingNewline {
					b.WriteByte('\n')
				} else if pendingSpace {
					b.WriteByte(' ')
				}
			}
			pendingSpace, pendingNewline = false, false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TruncateRunes はsをlimit文字（rune数）以内に切り詰める。
// 語の途中で切れる場合は直前の空白まで戻し、末尾に省略記号を付ける。
// limitが0以下の場合は切り詰めない。
func TruncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit == 1 {
		return "…"
	}

	runes := []rune(s)
	cut := runes[:limit-1]
	if i := lastSpace(cut); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + "…"
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return -1
}
