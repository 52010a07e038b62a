package model

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TopicRef は生成コンテンツの元になったトレンドへの値参照。
// 生成サービスはトレンドを変更しないため、ポインタではなく値で保持する。
type TopicRef struct {
	Name      string
	Category  Category
	SourceURL string
}

// TopicRefFromTrend はTrendTopicからTopicRefを生成する。
func TopicRefFromTrend(t TrendTopic) TopicRef {
	return TopicRef{
		Name:      t.Name(),
		Category:  t.Category(),
		SourceURL: t.SourceURL(),
	}
}

// TopicRefFromName はトピック名の文字列のみからTopicRefを生成する。
// カテゴリが不明なためotherとして扱う。
func TopicRefFromName(name string) TopicRef {
	return TopicRef{
		Name:     strings.TrimSpace(name),
		Category: CategoryOther,
	}
}

// GeneratedContentParams はNewGeneratedContentへの入力値。
type GeneratedContentParams struct {
	ID          string
	AgentID     string
	Text        string
	Platform    string
	Topic       TopicRef
	Provider    string
	Model       string
	GeneratedAt time.Time
}

// GeneratedContent は生成された1件のコンテンツ候補を表す。
// 生成サービスが1回の呼び出しごとに1件生成し、以後変更しない。
type GeneratedContent struct {
	id          string
	agentID     string
	text        string
	platform    string
	topic       TopicRef
	provider    string
	model       string
	generatedAt time.Time
}

// NewGeneratedContent はGeneratedContentを検証して生成する。
// IDが空の場合はUUIDを採番する。本文が空のコンテンツは生成できない。
func NewGeneratedContent(p GeneratedContentParams) (*GeneratedContent, error) {
	if strings.TrimSpace(p.AgentID) == "" {
		return nil, NewValidationError("agent_id", nil, "must not be empty")
	}
	if strings.TrimSpace(p.Text) == "" {
		return nil, NewValidationError("text", nil, "must not be empty")
	}
	platform := NormalizePlatform(p.Platform)
	if platform == "" {
		return nil, NewValidationError("platform", nil, "must not be empty")
	}
	if strings.TrimSpace(p.Topic.Name) == "" {
		return nil, NewValidationError("trend_topic", nil, "must not be empty")
	}

	category := p.Topic.Category
	if category == "" {
		category = CategoryOther
	}
	if !category.Valid() {
		return nil, NewValidationError("trend_topic.category", category, "unknown category")
	}

	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}

	generatedAt := p.GeneratedAt
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	return &GeneratedContent{
		id:       id,
		agentID:  strings.TrimSpace(p.AgentID),
		text:     p.Text,
		platform: platform,
		topic: TopicRef{
			Name:      strings.TrimSpace(p.Topic.Name),
			Category:  category,
			SourceURL: p.Topic.SourceURL,
		},
		provider:    p.Provider,
		model:       p.Model,
		generatedAt: generatedAt.UTC(),
	}, nil
}

func (c *GeneratedContent) ID() string { return c.id }
func (c *GeneratedContent) AgentID() string { return c.agentID }
func (c *GeneratedContent) Text() string { return c.text }
func (c *GeneratedContent) Platform() string { return c.platform }
func (c *GeneratedContent) Topic() TopicRef { return c.topic }
func (c *GeneratedContent) Provider() string { return c.provider }
func (c *GeneratedContent) Model() string { return c.model }
func (c *GeneratedContent) GeneratedAt() time.Time { return c.generatedAt }

// generatedContentJSON はGeneratedContentのJSON表現。
type generatedContentJSON struct {
	ID             string    `json:"content_id"`
	AgentID        string    `json:"agent_id"`
	Text           string    `json:"text"`
	Platform       string    `json:"platform"`
	TrendTopic     string    `json:"trend_topic"`
	TopicCategory  string    `json:"topic_category"`
	TopicSourceURL string    `json:"topic_source_url,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// MarshalJSON はjson.Marshalerを実装する。
func (c *GeneratedContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(generatedContentJSON{
		ID:             c.id,
		AgentID:        c.agentID,
		Text:           c.text,
		Platform:       c.platform,
		TrendTopic:     c.topic.Name,
		TopicCategory:  string(c.topic.Category),
		TopicSourceURL: c.topic.SourceURL,
		Provider:       c.provider,
		Model:          c.model,
		GeneratedAt:    c.generatedAt,
	})
}
