// Package llm はコンテンツ生成と判定で使用するLLMクライアントを提供する。
package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// プロバイダ名。
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Request は1回の補完リクエスト。
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	// Temperature がnilの場合はプロバイダの既定値を使う。
	Temperature *float64
}

// Response は補完結果。
type Response struct {
	Text  string
	Model string
}

// Completer はプロンプトを送信してテキスト応答を得るLLMクライアント。
// 再試行は行わない。
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// StatusError はLLM APIが4xx/5xxを返したことを表す。
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Body)
}

var (
	fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	rawObject    = regexp.MustCompile(`(?s)(\{.*\})`)
)

// ExtractJSON は応答テキストからJSONオブジェクト部分を取り出す。
// コードブロック内のオブジェクトを優先し、見つからない場合は最初の{から最後の}までを返す。
// どちらもない場合は元のテキストを返す。
func ExtractJSON(text string) string {
	if m := fencedObject.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	if m := rawObject.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return strings.TrimSpace(text)
}
