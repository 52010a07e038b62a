package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hitoshi/agentskills/internal/llm"
)

const draftSystemPrompt = `You write social media posts for an automation agent.
Reply with the post text only: no quotes, no preamble, no markdown.
Use at most two hashtags. Never invent facts beyond the topic given.`

// LLMProvider はLLMに下書きを依頼するプロバイダ。
type LLMProvider struct {
	name      string
	completer llm.Completer
}

var _ Provider = (*LLMProvider)(nil)

// NewLLMProvider はLLMProviderを生成する。nameはllm.ProviderOpenAIなどのプロバイダ名。
func NewLLMProvider(name string, completer llm.Completer) *LLMProvider {
	return &LLMProvider{name: name, completer: completer}
}

// Name はProviderを実装する。
func (p *LLMProvider) Name() string { return p.name }

// Draft はProviderを実装する。
func (p *LLMProvider) Draft(ctx context.Context, req DraftRequest) (Draft, error) {
	resp, err := p.completer.Complete(ctx, llm.Request{
		System:    draftSystemPrompt,
		Prompt:    buildDraftPrompt(req),
		MaxTokens: maxTokensFor(req.MaxChars),
	})
	if err != nil {
		return Draft{}, fmt.Errorf("LLM呼び出しに失敗: %w", err)
	}

	text := strings.Trim(strings.TrimSpace(resp.Text), `"`)
	if text == "" {
		return Draft{}, errors.New("LLMが空の本文を返しました")
	}
	return Draft{Text: text, Model: resp.Model}, nil
}

func buildDraftPrompt(req DraftRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Platform: %s\n", req.Platform)
	fmt.Fprintf(&sb, "Trending topic: %s\n", req.Topic.Name)
	fmt.Fprintf(&sb, "Category: %s\n", req.Topic.Category)
	if req.Topic.SourceURL != "" {
		fmt.Fprintf(&sb, "Source: %s\n", req.Topic.SourceURL)
	}
	if req.MaxChars > 0 {
		fmt.Fprintf(&sb, "Write one post of at most %d characters.\n", req.MaxChars)
	} else {
		sb.WriteString("Write one post.\n")
	}
	return sb.String()
}

// maxTokensFor は最大文字数からトークン上限を見積もる。
func maxTokensFor(maxChars int) int {
	if maxChars <= 0 {
		return 1024
	}
	tokens := maxChars/2 + 64
	if tokens > 4096 {
		tokens = 4096
	}
	return tokens
}
