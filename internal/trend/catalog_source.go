package trend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/agentskills/internal/model"
)

// SourceKind は取得元の種類。
type SourceKind string

const (
	// SourceKindFeed はRSS/Atomフィード。
	SourceKindFeed SourceKind = "feed"
	// SourceKindHTML はCSSセレクタで見出しを抜き出すHTMLページ。
	SourceKindHTML SourceKind = "html"
)

// SourceDef は設定ファイルで定義する1件の取得元。
type SourceDef struct {
	Name     string
	Kind     SourceKind
	URL      string
	Platform string
	Niche    string
	// Category が空の場合は見出しからClassifyで推定する。
	Category string

	// HTMLページ用のセレクタ。
	ItemSelector  string
	TitleSelector string
	LinkSelector  string
}

// Scorer は掲載順のURL一覧にエンゲージメントスコアを付与する。
type Scorer interface {
	Score(ctx context.Context, urls []string) []float64
}

// Sanitizer は見出しをプレーンテキストに正規化する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// entry は取得元から抜き出した見出し1件。
type entry struct {
	title       string
	link        string
	summary     string
	publishedAt time.Time
}

// toCandidates は見出しを候補に変換する。
// 見出しとリンクが空のものは除外し、同じリンクの重複は先頭を残す。
// 公開日時が不明な見出しは取得時刻をfetched_atとする。
func toCandidates(
	ctx context.Context,
	def SourceDef,
	q Query,
	entries []entry,
	scorer Scorer,
	sanitizer Sanitizer,
	fetchedAt time.Time,
	logger *slog.Logger,
) []model.TrendCandidate {
	kept := make([]entry, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		e.title = sanitizer.Sanitize(e.title)
		e.link = strings.TrimSpace(e.link)
		if e.title == "" || e.link == "" {
			continue
		}
		if _, dup := seen[e.link]; dup {
			continue
		}
		seen[e.link] = struct{}{}
		kept = append(kept, e)
	}

	urls := make([]string, len(kept))
	for i, e := range kept {
		urls[i] = e.link
	}
	scores := scorer.Score(ctx, urls)

	platform := model.NormalizePlatform(q.Platform)
	out := make([]model.TrendCandidate, 0, len(kept))
	for i, e := range kept {
		category := def.Category
		if category == "" {
			category = string(Classify(e.title+" "+sanitizer.Sanitize(e.summary), q.Niche))
		}
		ts := e.publishedAt
		if ts.IsZero() {
			ts = fetchedAt
		}
		out = append(out, model.TrendCandidate{
			Platform:        platform,
			Niche:           q.Niche,
			Name:            e.title,
			Category:        category,
			EngagementScore: scores[i],
			SourceURL:       e.link,
			SourceName:      def.Name,
			ContentHash:     model.ComputeCandidateHash(platform, q.Niche, e.title, e.link),
			FetchedAt:       ts.UTC(),
		})
	}

	logger.Debug("取得元から候補を抽出しました",
		slog.String("source", def.Name),
		slog.Int("entries", len(entries)),
		slog.Int("candidates", len(out)),
	)
	return out
}

// NewCatalogSource はSourceDefの種類に応じた取得元を生成する。
// Kindが空の場合はフィードとして扱う。
func NewCatalogSource(def SourceDef, fetcher *PageFetcher, scorer Scorer, sanitizer Sanitizer, logger *slog.Logger) (Source, error) {
	switch def.Kind {
	case SourceKindFeed, "":
		return NewFeedSource(def, fetcher, scorer, sanitizer, logger), nil
	case SourceKindHTML:
		return NewHTMLSource(def, fetcher, scorer, sanitizer, logger)
	default:
		return nil, fmt.Errorf("取得元 %q の種類 %q は未対応です", def.Name, def.Kind)
	}
}
