package trend

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// StatusClass はHTTPステータスコードに基づく取得結果の分類。
type StatusClass int

const (
	// StatusOK は取得成功（200）。
	StatusOK StatusClass = iota
	// StatusGone は取得元が存在しないか参照できない（404/410/401/403）。
	StatusGone
	// StatusThrottled は取得元が流量制限中（429）。
	StatusThrottled
	// StatusServerError は取得元のサーバーエラー（5xx）。
	StatusServerError
	// StatusUnexpected はその他のステータスコード。
	StatusUnexpected
)

// String はログとエラーメッセージ用の表記を返す。
func (c StatusClass) String() string {
	switch c {
	case StatusOK:
		return "ok"
	case StatusGone:
		return "gone"
	case StatusThrottled:
		return "throttled"
	case StatusServerError:
		return "server_error"
	default:
		return "unexpected"
	}
}

// ClassifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode == http.StatusOK:
		return StatusOK
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		return StatusGone
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return StatusGone
	case statusCode == http.StatusTooManyRequests:
		return StatusThrottled
	case statusCode >= 500:
		return StatusServerError
	default:
		return StatusUnexpected
	}
}

// StatusError は取得元が200以外を返したことを表す。
type StatusError struct {
	URL        string
	StatusCode int
	Class      StatusClass
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("取得元がHTTPステータス %d (%s) を返しました: %s", e.StatusCode, e.Class, e.URL)
}

// URLValidator は取得前のURL検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// PageFetcher はフィードとHTMLページのHTTP取得を共通化する。
// 再試行は行わない。失敗した取得元は次回の呼び出しで改めて取得される。
type PageFetcher struct {
	client      *http.Client
	validator   URLValidator
	maxBodySize int64
	metrics     Metrics
	userAgent   string
}

// NewPageFetcher はPageFetcherを生成する。
// validatorがnilの場合はURL検証を行わない。metricsがnilの場合は記録しない。
func NewPageFetcher(client *http.Client, validator URLValidator, maxBodySize int64, metrics Metrics) *PageFetcher {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if maxBodySize <= 0 {
		maxBodySize = 5 * 1024 * 1024
	}
	return &PageFetcher{
		client:      client,
		validator:   validator,
		maxBodySize: maxBodySize,
		metrics:     metrics,
		userAgent:   "agentskills/1.0 trend collector",
	}
}

// Get はURLを取得してレスポンスボディを返す。
// 200以外のステータスは*StatusErrorとなる。ボディはmaxBodySizeで打ち切る。
func (f *PageFetcher) Get(ctx context.Context, rawURL, accept string) ([]byte, error) {
	if f.validator != nil {
		if err := f.validator.ValidateURL(rawURL); err != nil {
			return nil, fmt.Errorf("URL検証に失敗: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	f.metrics.RecordHTTPStatus(resp.StatusCode)

	if class := ClassifyHTTPStatus(resp.StatusCode); class != StatusOK {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode, Class: class}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	return body, nil
}
