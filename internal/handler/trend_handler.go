package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/agentskills/internal/middleware"
	"github.com/hitoshi/agentskills/internal/model"
	"github.com/hitoshi/agentskills/internal/trend"
)

// TrendServiceInterface はトレンドハンドラーが必要とするサービスインターフェース。
type TrendServiceInterface interface {
	FetchTrends(ctx context.Context, agentID, platform, niche string, opts ...trend.FetchOption) (*model.TrendResult, error)
}

// TrendHandler はトレンド取得のHTTPハンドラー。
type TrendHandler struct {
	service TrendServiceInterface
	logger  *slog.Logger
}

// NewTrendHandler はTrendHandlerを生成する。
func NewTrendHandler(service TrendServiceInterface, logger *slog.Logger) *TrendHandler {
	return &TrendHandler{service: service, logger: logger}
}

// fetchTrendsRequest はトレンド取得リクエストのボディ。
type fetchTrendsRequest struct {
	AgentID     string   `json:"agent_id"`
	Platform    string   `json:"platform"`
	Niche       string   `json:"niche"`
	MaxAgeHours *float64 `json:"max_age_hours,omitempty"`
}

// FetchTrends はトレンド取得を処理する。
// POST /api/trends
func (h *TrendHandler) FetchTrends(w http.ResponseWriter, r *http.Request) {
	var req fetchTrendsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var opts []trend.FetchOption
	if req.MaxAgeHours != nil {
		opts = append(opts, trend.WithMaxAgeHours(*req.MaxAgeHours))
	}

	result, err := h.service.FetchTrends(r.Context(), agentIDOrHeader(r, req.AgentID), req.Platform, req.Niche, opts...)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
