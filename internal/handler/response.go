package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/agentskills/internal/middleware"
	"github.com/hitoshi/agentskills/internal/model"
)

// maxRequestBodySize はリクエストボディの最大サイズ（1MiB）。
const maxRequestBodySize = 1 << 20

// decodeJSON はリクエストボディをJSONとしてdstにデコードする。
// 失敗した場合は400のエラーレスポンスを書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		message := "リクエストボディの解析に失敗しました。"
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			message = "リクエストボディが大きすぎます。"
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  message,
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// writeJSON はvをJSONとしてステータスコードstatusで書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// agentIDOrHeader はボディのagent_idを優先し、空ならX-Agent-IDヘッダーの値を返す。
func agentIDOrHeader(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	agentID, _ := middleware.AgentIDFromContext(r.Context())
	return agentID
}
