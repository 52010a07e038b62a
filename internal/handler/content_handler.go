package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/agentskills/internal/middleware"
	"github.com/hitoshi/agentskills/internal/model"
)

// ContentServiceInterface はコンテンツ生成ハンドラーが必要とするサービスインターフェース。
type ContentServiceInterface interface {
	Generate(ctx context.Context, agentID string, topic model.TopicRef, platform string) (*model.GeneratedContent, error)
}

// ContentHandler はコンテンツ生成のHTTPハンドラー。
type ContentHandler struct {
	service ContentServiceInterface
	logger  *slog.Logger
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(service ContentServiceInterface, logger *slog.Logger) *ContentHandler {
	return &ContentHandler{service: service, logger: logger}
}

// generateContentRequest はコンテンツ生成リクエストのボディ。
// topic_categoryとtopic_source_urlは/api/trendsの結果をそのまま渡す場合に使う。
type generateContentRequest struct {
	AgentID        string `json:"agent_id"`
	TrendTopic     string `json:"trend_topic"`
	Platform       string `json:"platform"`
	TopicCategory  string `json:"topic_category,omitempty"`
	TopicSourceURL string `json:"topic_source_url,omitempty"`
}

// GenerateContent はコンテンツ生成を処理する。
// POST /api/contents
func (h *ContentHandler) GenerateContent(w http.ResponseWriter, r *http.Request) {
	var req generateContentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	topic := model.TopicRefFromName(req.TrendTopic)
	if c := strings.ToLower(strings.TrimSpace(req.TopicCategory)); c != "" {
		topic.Category = model.Category(c)
	}
	topic.SourceURL = strings.TrimSpace(req.TopicSourceURL)

	content, err := h.service.Generate(r.Context(), agentIDOrHeader(r, req.AgentID), topic, req.Platform)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, content)
}
