package model

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Category はトレンドトピックのカテゴリを表す。
// 定義済みの7値以外は構築時に拒否される。
type Category string

const (
	CategoryFashion       Category = "fashion"
	CategoryTech          Category = "tech"
	CategoryPolitics      Category = "politics"
	CategoryEntertainment Category = "entertainment"
	CategorySports        Category = "sports"
	CategoryBusiness      Category = "business"
	CategoryOther         Category = "other"
)

// Categories は許可されるカテゴリの一覧を定義順で返す。
func Categories() []Category {
	return []Category{
		CategoryFashion,
		CategoryTech,
		CategoryPolitics,
		CategoryEntertainment,
		CategorySports,
		CategoryBusiness,
		CategoryOther,
	}
}

// Valid はカテゴリが閉じた集合に含まれるかを返す。
func (c Category) Valid() bool {
	switch c {
	case CategoryFashion, CategoryTech, CategoryPolitics, CategoryEntertainment,
		CategorySports, CategoryBusiness, CategoryOther:
		return true
	default:
		return false
	}
}

// ParseCategory は文字列をCategoryに変換する。
// 大文字小文字の揺れは許容するが、集合外の値はValidationErrorとなる。
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", NewValidationError("category", s, "must be one of fashion, tech, politics, entertainment, sports, business, other")
	}
	return c, nil
}

const (
	// MinEngagementScore はエンゲージメントスコアの下限（含む）。
	MinEngagementScore = 0.0
	// MaxEngagementScore はエンゲージメントスコアの上限（含む）。
	MaxEngagementScore = 1.0
)

// TrendTopicParams はNewTrendTopicへの入力値。
type TrendTopicParams struct {
	Name            string
	Category        string
	EngagementScore float64
	SourceURL       string
	SourcePlatform  string
	FetchedAt       time.Time
}

// TrendTopic は1件のトレンドトピックを表す。
// NewTrendTopic以外で構築できないため、不正なTrendTopicはメモリ上に存在しない。
type TrendTopic struct {
	name            string
	category        Category
	engagementScore float64
	sourceURL       string
	sourcePlatform  string
	fetchedAt       time.Time
}

// NewTrendTopic は全フィールドを検証してTrendTopicを生成する。
// 範囲外のスコアはクランプせずに拒否する。
func NewTrendTopic(p TrendTopicParams) (TrendTopic, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return TrendTopic{}, NewValidationError("name", nil, "must not be empty")
	}

	category, err := ParseCategory(p.Category)
	if err != nil {
		return TrendTopic{}, err
	}

	if math.IsNaN(p.EngagementScore) || p.EngagementScore < MinEngagementScore || p.EngagementScore > MaxEngagementScore {
		return TrendTopic{}, NewValidationError("engagement_score", p.EngagementScore, "must be within [0.0, 1.0]")
	}

	sourceURL := strings.TrimSpace(p.SourceURL)
	if sourceURL == "" {
		return TrendTopic{}, NewValidationError("source_url", nil, "must not be empty")
	}

	platform := NormalizePlatform(p.SourcePlatform)
	if platform == "" {
		return TrendTopic{}, NewValidationError("source_platform", nil, "must not be empty")
	}

	if p.FetchedAt.IsZero() {
		return TrendTopic{}, NewValidationError("fetched_at", nil, "must be set")
	}

	return TrendTopic{
		name:            name,
		category:        category,
		engagementScore: p.EngagementScore,
		sourceURL:       sourceURL,
		sourcePlatform:  platform,
		fetchedAt:       p.FetchedAt.UTC(),
	}, nil
}

func (t TrendTopic) Name() string { return t.name }
func (t TrendTopic) Category() Category { return t.category }
func (t TrendTopic) EngagementScore() float64 { return t.engagementScore }
func (t TrendTopic) SourceURL() string { return t.sourceURL }
func (t TrendTopic) SourcePlatform() string { return t.sourcePlatform }
func (t TrendTopic) FetchedAt() time.Time { return t.fetchedAt }

// FreshAt はcutoff時点で鮮度条件を満たすかを返す。
// fetched_atがcutoffと等しい場合は保持する。
func (t TrendTopic) FreshAt(cutoff time.Time) bool {
	return !t.fetchedAt.Before(cutoff)
}

// trendTopicJSON はTrendTopicのJSON表現。
type trendTopicJSON struct {
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	EngagementScore float64   `json:"engagement_score"`
	SourceURL       string    `json:"source_url"`
	SourcePlatform  string    `json:"source_platform"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// MarshalJSON はjson.Marshalerを実装する。
func (t TrendTopic) MarshalJSON() ([]byte, error) {
	return json.Marshal(trendTopicJSON{
		Name:            t.name,
		Category:        string(t.category),
		EngagementScore: t.engagementScore,
		SourceURL:       t.sourceURL,
		SourcePlatform:  t.sourcePlatform,
		FetchedAt:       t.fetchedAt,
	})
}

// UnmarshalJSON はjson.Unmarshalerを実装する。
// デコード結果もNewTrendTopicで検証する。
func (t *TrendTopic) UnmarshalJSON(data []byte) error {
	var raw trendTopicJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	topic, err := NewTrendTopic(TrendTopicParams{
		Name:            raw.Name,
		Category:        raw.Category,
		EngagementScore: raw.EngagementScore,
		SourceURL:       raw.SourceURL,
		SourcePlatform:  raw.SourcePlatform,
		FetchedAt:       raw.FetchedAt,
	})
	if err != nil {
		return err
	}
	*t = topic
	return nil
}

// TrendResult は1回のトレンド取得の結果を表す。
// topic_countはtopicsの長さから算出するため、両者が食い違うことはない。
type TrendResult struct {
	topics         []TrendTopic
	agentID        string
	fetchTimestamp time.Time
	platform       string
}

// NewTrendResult はTrendResultを生成する。
// declaredCountはlen(topics)と一致しなければならない。
func NewTrendResult(agentID, platform string, fetchedAt time.Time, topics []TrendTopic, declaredCount int) (*TrendResult, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return nil, NewValidationError("agent_id", nil, "must not be empty")
	}
	platform = NormalizePlatform(platform)
	if platform == "" {
		return nil, NewValidationError("platform", nil, "must not be empty")
	}
	if fetchedAt.IsZero() {
		return nil, NewValidationError("fetch_timestamp", nil, "must be set")
	}
	if declaredCount != len(topics) {
		return nil, NewValidationError("topic_count", declaredCount, "must equal the number of topics")
	}
	for i := range topics {
		// ゼロ値のTrendTopicはコンストラクタを経由していない
		if topics[i].name == "" {
			return nil, NewValidationError("topics", i, "contains an unconstructed topic")
		}
	}

	copied := make([]TrendTopic, len(topics))
	copy(copied, topics)

	return &TrendResult{
		topics:         copied,
		agentID:        agentID,
		fetchTimestamp: fetchedAt.UTC(),
		platform:       platform,
	}, nil
}

// Topics はトピックのコピーを順位順で返す。
func (r *TrendResult) Topics() []TrendTopic {
	out := make([]TrendTopic, len(r.topics))
	copy(out, r.topics)
	return out
}

func (r *TrendResult) AgentID() string { return r.agentID }
func (r *TrendResult) FetchTimestamp() time.Time { return r.fetchTimestamp }
func (r *TrendResult) Platform() string { return r.platform }

// TopicCount はトピック数を返す。
func (r *TrendResult) TopicCount() int {
	return len(r.topics)
}

// Top は最上位のトピックを返す。0件の場合はfalseを返す。
func (r *TrendResult) Top() (TrendTopic, bool) {
	if len(r.topics) == 0 {
		return TrendTopic{}, false
	}
	return r.topics[0], true
}

// trendResultJSON はTrendResultのJSON表現。
type trendResultJSON struct {
	Topics         []TrendTopic `json:"topics"`
	AgentID        string       `json:"agent_id"`
	FetchTimestamp time.Time    `json:"fetch_timestamp"`
	Platform       string       `json:"platform"`
	TopicCount     int          `json:"topic_count"`
}

// MarshalJSON はjson.Marshalerを実装する。
func (r *TrendResult) MarshalJSON() ([]byte, error) {
	topics := r.topics
	if topics == nil {
		topics = []TrendTopic{}
	}
	return json.Marshal(trendResultJSON{
		Topics:         topics,
		AgentID:        r.agentID,
		FetchTimestamp: r.fetchTimestamp,
		Platform:       r.platform,
		TopicCount:     len(r.topics),
	})
}

// UnmarshalJSON はjson.Unmarshalerを実装する。
// topic_countとtopicsの不一致はValidationErrorとなる。
func (r *TrendResult) UnmarshalJSON(data []byte) error {
	var raw trendResultJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result, err := NewTrendResult(raw.AgentID, raw.Platform, raw.FetchTimestamp, raw.Topics, raw.TopicCount)
	if err != nil {
		return err
	}
	*r = *result
	return nil
}
