package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 1024

// AnthropicClient はAnthropic Messages APIを呼び出すCompleter。
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

var _ Completer = (*AnthropicClient)(nil)

// NewAnthropicClient はAnthropicClientを生成する。
// SDKの自動リトライは無効にする。追加のoptsはテストでのBaseURL差し替えなどに使う。
func NewAnthropicClient(apiKey, model string, opts ...option.RequestOption) *AnthropicClient {
	all := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	client := anthropic.NewClient(all...)
	return &AnthropicClient{client: &client, model: model}
}

// Complete はCompleterを実装する。
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &StatusError{
				Provider:   ProviderAnthropic,
				StatusCode: apiErr.StatusCode,
				Body:       apiErr.Error(),
			}
		}
		return nil, fmt.Errorf("call messages API: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	if text == "" {
		return nil, errors.New("anthropic returned empty response")
	}
	return &Response{Text: text, Model: string(message.Model)}, nil
}
