package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/agentskills/internal/middleware"
	"github.com/hitoshi/agentskills/internal/model"
)

// EvaluationServiceInterface はコンテンツ判定ハンドラーが必要とするサービスインターフェース。
type EvaluationServiceInterface interface {
	Evaluate(ctx context.Context, contentID, text, platform string) (*model.JudgeDecision, error)
}

// EvaluationHandler はコンテンツ判定のHTTPハンドラー。
type EvaluationHandler struct {
	service EvaluationServiceInterface
	logger  *slog.Logger
}

// NewEvaluationHandler はEvaluationHandlerを生成する。
func NewEvaluationHandler(service EvaluationServiceInterface, logger *slog.Logger) *EvaluationHandler {
	return &EvaluationHandler{service: service, logger: logger}
}

// evaluateRequest はコンテンツ判定リクエストのボディ。
type evaluateRequest struct {
	ContentID string `json:"content_id"`
	Text      string `json:"text"`
	Platform  string `json:"platform"`
}

// EvaluateContent はコンテンツ判定を処理する。
// 低品質なコンテンツはエラーではなくREJECT/REVIEWの判定として200で返す。
// POST /api/evaluations
func (h *EvaluationHandler) EvaluateContent(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	decision, err := h.service.Evaluate(r.Context(), req.ContentID, req.Text, req.Platform)
	if err != nil {
		middleware.WriteError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, decision)
}
