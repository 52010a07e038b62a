package trend

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/agentskills/internal/model"
)

const feedAccept = "application/rss+xml, application/atom+xml, application/xml, text/xml, */*"

// FeedSource はRSS/Atomフィードの記事見出しをトレンド候補とする取得元。
// URLがフィードではなくHTMLページの場合は、headのalternateリンクからフィードを検出する。
type FeedSource struct {
	def       SourceDef
	fetcher   *PageFetcher
	scorer    Scorer
	sanitizer Sanitizer
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	discovered string
}

// NewFeedSource はFeedSourceを生成する。
func NewFeedSource(def SourceDef, fetcher *PageFetcher, scorer Scorer, sanitizer Sanitizer, logger *slog.Logger) *FeedSource {
	return &FeedSource{
		def:       def,
		fetcher:   fetcher,
		scorer:    scorer,
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// Name はSourceを実装する。
func (s *FeedSource) Name() string { return s.def.Name }

// Candidates はフィードを取得してgofeedでパースし、記事を候補に変換する。
// フィード内の掲載順をエンゲージメントの順位とみなす。
func (s *FeedSource) Candidates(ctx context.Context, q Query) ([]model.TrendCandidate, error) {
	fetchedAt := s.now()

	feed, err := s.fetchFeed(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]entry, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		e := entry{
			title:   item.Title,
			link:    item.Link,
			summary: item.Description,
		}
		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if e.link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			e.link = item.GUID
		}
		if item.PublishedParsed != nil {
			e.publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			e.publishedAt = *item.UpdatedParsed
		}
		entries = append(entries, e)
	}

	return toCandidates(ctx, s.def, q, entries, s.scorer, s.sanitizer, fetchedAt, s.logger), nil
}

// fetchFeed はフィードを取得してパースする。
// 設定URLがHTMLページだった場合は検出したフィードURLを記録し、以後はそちらを取得する。
func (s *FeedSource) fetchFeed(ctx context.Context) (*gofeed.Feed, error) {
	s.mu.Lock()
	target := s.discovered
	s.mu.Unlock()

	if target != "" {
		feed, err := s.parseURL(ctx, target)
		if err == nil {
			return feed, nil
		}
		// 検出済みのURLが使えなくなった場合は次回に検出し直す
		s.mu.Lock()
		s.discovered = ""
		s.mu.Unlock()
		return nil, err
	}

	body, err := s.fetcher.Get(ctx, s.def.URL, feedAccept)
	if err != nil {
		return nil, err
	}
	feed, parseErr := gofeed.NewParser().Parse(bytes.NewReader(body))
	if parseErr == nil {
		return feed, nil
	}

	link, ok := selectFeedLink(discoverFeedLinks(body, s.def.URL), s.def.URL)
	if !ok {
		return nil, fmt.Errorf("フィードのパースに失敗: %w", parseErr)
	}

	s.logger.Info("HTMLページからフィードを検出しました",
		slog.String("source", s.def.Name),
		slog.String("page_url", s.def.URL),
		slog.String("feed_url", link.url),
	)

	feed, err = s.parseURL(ctx, link.url)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.discovered = link.url
	s.mu.Unlock()
	return feed, nil
}

func (s *FeedSource) parseURL(ctx context.Context, rawURL string) (*gofeed.Feed, error) {
	body, err := s.fetcher.Get(ctx, rawURL, feedAccept)
	if err != nil {
		return nil, err
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗: %w", err)
	}
	return feed, nil
}
