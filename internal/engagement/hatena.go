// Package engagement はトレンド候補のエンゲージメントスコアを算出する。
// はてなブックマーク数の対数正規化と、件数が取れない場合の順位ベースの代替スコアを提供する。
package engagement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

const (
	// defaultEndpoint ははてなブックマーク一括取得APIのエンドポイント。
	defaultEndpoint = "https://bookmark.hatenaapis.com/count/entries"
	// maxURLsPerRequest は1リクエストあたりの最大URL数。
	maxURLsPerRequest = 50
	// maxResponseSize はAPIレスポンスの読み取り上限。
	maxResponseSize = 1 << 20
)

// BookmarkCounter はURLごとのブックマーク数を取得するインターフェース。
type BookmarkCounter interface {
	Counts(ctx context.Context, urls []string) (map[string]int, error)
}

// HatenaClient ははてなブックマークAPIのクライアント。
type HatenaClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
}

// NewHatenaClient はHatenaClientを生成する。
func NewHatenaClient(httpClient *http.Client, logger *slog.Logger) *HatenaClient {
	return &HatenaClient{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   defaultEndpoint,
	}
}

// Counts は複数URLのブックマーク数を取得する。
// 50件を超える場合は分割して問い合わせる。レスポンスに含まれないURLは0件として扱う。
// いずれかの分割リクエストが失敗した場合はエラーを返す。
func (c *HatenaClient) Counts(ctx context.Context, urls []string) (map[string]int, error) {
	counts := make(map[string]int, len(urls))
	for start := 0; start < len(urls); start += maxURLsPerRequest {
		end := min(start+maxURLsPerRequest, len(urls))
		batch, err := c.fetchBatch(ctx, urls[start:end])
		if err != nil {
			return nil, err
		}
		for _, u := range urls[start:end] {
			counts[u] = batch[u]
		}
	}
	return counts, nil
}

func (c *HatenaClient) fetchBatch(ctx context.Context, urls []string) (map[string]int, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	for _, u := range urls {
		q.Add("url", u)
	}
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "agentskills/1.0 trend collector")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("はてなブックマークAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.Int("url_count", len(urls)),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("はてなブックマークAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.Int("url_count", len(urls)),
		)
		return nil, fmt.Errorf("はてなブックマークAPIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result map[string]int
	if err := json.Unmarshal(body, &result); err != nil {
		c.logger.Error("はてなブックマークAPIのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return result, nil
}
