package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/agentskills/internal/middleware"
	"github.com/hitoshi/agentskills/internal/pipeline"
	"github.com/hitoshi/agentskills/internal/trend"
)

// PipelineRunnerInterface はパイプラインハンドラーが必要とするインターフェース。
type PipelineRunnerInterface interface {
	Run(ctx context.Context, agentID, platform, niche string, opts ...trend.FetchOption) (*pipeline.Result, error)
}

// PipelineHandler はトレンド取得から判定までを一括で実行するHTTPハンドラー。
type PipelineHandler struct {
	runner PipelineRunnerInterface
	logger *slog.Logger
}

// NewPipelineHandler はPipelineHandlerを生成する。
func NewPipelineHandler(runner PipelineRunnerInterface, logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{runner: runner, logger: logger}
}

// runPipelineRequest はパイプライン実行リクエストのボディ。
type runPipelineRequest struct {
	AgentID     string   `json:"agent_id"`
	Platform    string   `json:"platform"`
	Niche       string   `json:"niche"`
	MaxAgeHours *float64 `json:"max_age_hours,omitempty"`
}

// RunPipeline はパイプライン実行を処理する。
// 途中の段階で失敗した場合は統一エラーフォーマットで返す。
// POST /api/pipeline
func (h *PipelineHandler) RunPipeline(w http.ResponseWriter, r *http.Request) {
	var req runPipelineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var opts []trend.FetchOption
	if req.MaxAgeHours != nil {
		opts = append(opts, trend.WithMaxAgeHours(*req.MaxAgeHours))
	}

	result, err := h.runner.Run(r.Context(), agentIDOrHeader(r, req.AgentID), req.Platform, req.Niche, opts...)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
