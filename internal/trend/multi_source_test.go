package trend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/agentskills/internal/model"
)

var (
	_ Source = (*MultiSource)(nil)
	_ Source = (*StaticSource)(nil)
	_ Source = (*FeedSource)(nil)
	_ Source = (*HTMLSource)(nil)
	_ Source = (*RepositorySource)(nil)
)

// namedSource は名前付きのテスト用Source。
type namedSource struct {
	name string
	fn   func(ctx context.Context, q Query) ([]model.TrendCandidate, error)
}

func (n *namedSource) Name() string { return n.name }

func (n *namedSource) Candidates(ctx context.Context, q Query) ([]model.TrendCandidate, error) {
	return n.fn(ctx, q)
}

func okSource(name string, cs ...model.TrendCandidate) *namedSource {
	return &namedSource{name: name, fn: func(context.Context, Query) ([]model.TrendCandidate, error) {
		return cs, nil
	}}
}

func failingSource(name string) *namedSource {
	return &namedSource{name: name, fn: func(context.Context, Query) ([]model.TrendCandidate, error) {
		return nil, errors.New(name + " down")
	}}
}

func TestMultiSource_PartialFailure(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiSource(newTestLogger(&buf), nil, 2,
		Route{Source: okSource("a", candidate("a1", 0.5, time.Hour))},
		Route{Source: failingSource("b")},
		Route{Source: okSource("c", candidate("c1", 0.4, time.Hour), candidate("c2", 0.3, time.Hour))},
	)

	got, err := m.Candidates(context.Background(), Query{Platform: "twitter", Niche: "fashion"})
	if err != nil {
		t.Fatalf("一部の失敗ではエラーを返すべきではない: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// ルートの登録順に連結される
	if got[0].Name != "a1" || got[1].Name != "c1" || got[2].Name != "c2" {
		t.Errorf("order = [%s %s %s], want [a1 c1 c2]", got[0].Name, got[1].Name, got[2].Name)
	}
	if !bytes.Contains(buf.Bytes(), []byte("取得元からの取得に失敗しました")) {
		t.Error("失敗した取得元がログに記録されるべき")
	}
}

func TestMultiSource_AllFail(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiSource(newTestLogger(&buf), nil, 0,
		Route{Source: failingSource("a")},
		Route{Source: failingSource("b")},
	)

	_, err := m.Candidates(context.Background(), Query{Platform: "twitter", Niche: "fashion"})
	if err == nil {
		t.Fatal("全ての取得元が失敗した場合はエラーを返すべき")
	}
}

func TestMultiSource_Routing(t *testing.T) {
	var buf bytes.Buffer
	m := NewMultiSource(newTestLogger(&buf), nil, 4,
		Route{Platform: "twitter", Niche: "fashion", Source: okSource("tw-fashion", candidate("f", 0.5, time.Hour))},
		Route{Platform: "linkedin", Source: okSource("li-any", candidate("l", 0.5, time.Hour))},
		Route{Niche: "Tech", Source: okSource("any-tech", candidate("t", 0.5, time.Hour))},
	)

	tests := []struct {
		q    Query
		want []string
	}{
		{Query{Platform: "x", Niche: "FASHION"}, []string{"f"}},
		{Query{Platform: "linkedin", Niche: "tech"}, []string{"l", "t"}},
		{Query{Platform: "instagram", Niche: "sports"}, nil},
	}

	for _, tt := range tests {
		got, err := m.Candidates(context.Background(), tt.q)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("query %+v: len = %d, want %d", tt.q, len(got), len(tt.want))
		}
		for i := range tt.want {
			if got[i].Name != tt.want[i] {
				t.Errorf("query %+v: got[%d] = %q, want %q", tt.q, i, got[i].Name, tt.want[i])
			}
		}
	}
}

func TestStaticSource_FiltersByPlatformAndNiche(t *testing.T) {
	tw := candidate("tw", 0.5, time.Hour)
	ig := candidate("ig", 0.5, time.Hour)
	ig.Platform = "instagram"
	anyPlatform := candidate("any", 0.5, time.Hour)
	anyPlatform.Platform = ""
	anyPlatform.Niche = ""

	s := NewStaticSource("static", tw, ig, anyPlatform)
	got, err := s.Candidates(context.Background(), Query{Platform: "twitter", Niche: "fashion"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[1].Platform != "twitter" {
		t.Errorf("Platform = %q, want twitter (filled from query)", got[1].Platform)
	}
}

// mockLister はCandidateListerのテスト用モック。
type mockLister struct {
	listFn func(ctx context.Context, platform, niche string, since time.Time, limit int) ([]*model.TrendCandidate, error)
}

func (m *mockLister) ListRecent(ctx context.Context, platform, niche string, since time.Time, limit int) ([]*model.TrendCandidate, error) {
	return m.listFn(ctx, platform, niche, since, limit)
}

func TestRepositorySource_Candidates(t *testing.T) {
	c := candidate("stored", 0.6, time.Hour)
	since := baseTime.Add(-72 * time.Hour)
	var gotSince time.Time
	var gotPlatform string
	lister := &mockLister{listFn: func(_ context.Context, platform, _ string, since time.Time, limit int) ([]*model.TrendCandidate, error) {
		gotSince, gotPlatform = since, platform
		if limit != 200 {
			t.Errorf("limit = %d, want 200", limit)
		}
		return []*model.TrendCandidate{&c, nil}, nil
	}}

	s := NewRepositorySource(lister, 0)

	got, err := s.Candidates(context.Background(), Query{Platform: "X", Niche: "fashion", Since: since})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "stored" {
		t.Errorf("got = %+v", got)
	}
	if !gotSince.Equal(since) {
		t.Errorf("since = %v, want %v", gotSince, since)
	}
	if gotPlatform != "twitter" {
		t.Errorf("platform = %q, want twitter", gotPlatform)
	}
}

func TestRepositorySource_Error(t *testing.T) {
	lister := &mockLister{listFn: func(context.Context, string, string, time.Time, int) ([]*model.TrendCandidate, error) {
		return nil, errors.New("db down")
	}}
	s := NewRepositorySource(lister, 10)

	if _, err := s.Candidates(context.Background(), Query{Platform: "twitter", Niche: "fashion"}); err == nil {
		t.Error("リポジトリのエラーを返すべき")
	}
}

// tableLister はtrend_candidatesへのクエリと同じ条件(fetched_at >= since、
// スコア降順、LIMIT)でメモリ上の行を返すCandidateLister。
type tableLister struct {
	rows []model.TrendCandidate
}

func (l *tableLister) ListRecent(_ context.Context, _, _ string, since time.Time, limit int) ([]*model.TrendCandidate, error) {
	var out []*model.TrendCandidate
	for i := range l.rows {
		if !l.rows[i].FetchedAt.Before(since) {
			out = append(out, &l.rows[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EngagementScore > out[j].EngagementScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// crowdedTable は8時間より古い高スコアの候補が100件、新しい低スコアの候補が2件、
// 30時間前の候補が1件ある状態を作る。
func crowdedTable() *tableLister {
	l := &tableLister{}
	for i := range 100 {
		l.rows = append(l.rows, candidate(fmt.Sprintf("old-%03d", i), 0.9, 10*time.Hour))
	}
	l.rows = append(l.rows,
		candidate("fresh-1", 0.2, time.Hour),
		candidate("fresh-2", 0.2, 2*time.Hour),
		candidate("day-old", 0.95, 30*time.Hour),
	)
	return l
}

// TestFetchTrends_RepositorySourceNotCrowdedOut は古い高スコアの候補が読み出し件数の上限を
// 埋めても、鮮度の範囲内の候補が返ることを検証する。
func TestFetchTrends_RepositorySourceNotCrowdedOut(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(NewRepositorySource(crowdedTable(), 100), &buf)

	result, err := svc.FetchTrends(context.Background(), "agent", "twitter", "fashion")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TopicCount() != 2 {
		t.Fatalf("TopicCount() = %d, want 2 fresh topics", result.TopicCount())
	}
	for _, topic := range result.Topics() {
		if !strings.HasPrefix(topic.Name(), "fresh-") {
			t.Errorf("unexpected topic %q", topic.Name())
		}
	}
}

// TestFetchTrends_RepositorySourceLongMaxAge は24時間を超えるmax_ageでも
// その範囲の候補が読み出されることを検証する。
func TestFetchTrends_RepositorySourceLongMaxAge(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestService(NewRepositorySource(crowdedTable(), 100), &buf)

	result, err := svc.FetchTrends(context.Background(), "agent", "twitter", "fashion", WithMaxAgeHours(48))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	top, ok := result.Top()
	if !ok || top.Name() != "day-old" {
		t.Errorf("Top() = %q, want day-old", top.Name())
	}
	if result.TopicCount() != MaxTopics {
		t.Errorf("TopicCount() = %d, want %d", result.TopicCount(), MaxTopics)
	}
}

// TestFetchTrends_RepositorySourceRespectsLimit は読み出し件数の上限が
// 鮮度の範囲内の候補に対して適用されることを検証する。
func TestFetchTrends_RepositorySourceRespectsLimit(t *testing.T) {
	l := &tableLister{}
	for i := range 5 {
		l.rows = append(l.rows, candidate(fmt.Sprintf("t-%d", i), float64(i+1)/10, time.Hour))
	}
	var buf bytes.Buffer
	svc := newTestService(NewRepositorySource(l, 3), &buf)

	result, err := svc.FetchTrends(context.Background(), "agent", "twitter", "fashion")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TopicCount() != 3 {
		t.Fatalf("TopicCount() = %d, want 3", result.TopicCount())
	}
	if top, _ := result.Top(); top.Name() != "t-4" {
		t.Errorf("Top().Name() = %q, want t-4", top.Name())
	}
}
