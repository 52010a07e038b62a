package trend

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hitoshi/agentskills/internal/model"
)

const htmlAccept = "text/html, application/xhtml+xml"

// HTMLSource はトレンド一覧ページからCSSセレクタで見出しを抜き出す取得元。
// ページには公開日時がないため、全ての見出しを取得時刻で記録する。
type HTMLSource struct {
	def       SourceDef
	base      *url.URL
	fetcher   *PageFetcher
	scorer    Scorer
	sanitizer Sanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewHTMLSource はHTMLSourceを生成する。
// ItemSelectorが空の場合やURLが不正な場合はエラーを返す。
func NewHTMLSource(def SourceDef, fetcher *PageFetcher, scorer Scorer, sanitizer Sanitizer, logger *slog.Logger) (*HTMLSource, error) {
	if strings.TrimSpace(def.ItemSelector) == "" {
		return nil, fmt.Errorf("取得元 %s: item_selectorは必須です", def.Name)
	}
	base, err := url.Parse(def.URL)
	if err != nil {
		return nil, fmt.Errorf("取得元 %s: URLが不正です: %w", def.Name, err)
	}
	return &HTMLSource{
		def:       def,
		base:      base,
		fetcher:   fetcher,
		scorer:    scorer,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Name はSourceを実装する。
func (s *HTMLSource) Name() string { return s.def.Name }

// Candidates はページを取得し、ItemSelectorに一致する要素ごとに見出しとリンクを抜き出す。
func (s *HTMLSource) Candidates(ctx context.Context, q Query) ([]model.TrendCandidate, error) {
	fetchedAt := s.now()

	body, err := s.fetcher.Get(ctx, s.def.URL, htmlAccept)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("HTMLのパースに失敗: %w", err)
	}

	var entries []entry
	doc.Find(s.def.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		entries = append(entries, entry{
			title: s.extractTitle(item),
			link:  s.extractLink(item),
		})
	})

	return toCandidates(ctx, s.def, q, entries, s.scorer, s.sanitizer, fetchedAt, s.logger), nil
}

func (s *HTMLSource) extractTitle(item *goquery.Selection) string {
	if s.def.TitleSelector == "" {
		return item.Text()
	}
	return item.Find(s.def.TitleSelector).First().Text()
}

// extractLink はリンクを絶対URLに解決して返す。
// LinkSelectorが空の場合は要素自身、次に最初のaタグのhrefを使う。
func (s *HTMLSource) extractLink(item *goquery.Selection) string {
	var sel *goquery.Selection
	switch {
	case s.def.LinkSelector != "":
		sel = item.Find(s.def.LinkSelector).First()
	case goquery.NodeName(item) == "a":
		sel = item
	default:
		sel = item.Find("a[href]").First()
	}

	href, ok := sel.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := s.base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}
