// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/agentskills/internal/model"
)

// AgentIDHeader はエージェントIDを運ぶリクエストヘッダー名。
const AgentIDHeader = "X-Agent-ID"

// maxAgentIDLength はエージェントIDの最大文字数。
const maxAgentIDLength = 128

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// agentIDContextKey はリクエストコンテキストにエージェントIDを格納するためのキー。
var agentIDContextKey = contextKey("agent_id")

// NewAgentIDMiddleware はX-Agent-IDヘッダーを読み取り、エージェントIDをコンテキストに注入する。
// ヘッダーがないリクエストはそのまま通す。長すぎるIDは400で拒否する。
func NewAgentIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agentID := strings.TrimSpace(r.Header.Get(AgentIDHeader))
			if agentID == "" {
				next.ServeHTTP(w, r)
				return
			}
			if utf8.RuneCountInString(agentID) > maxAgentIDLength {
				WriteErrorResponse(w, http.StatusBadRequest, model.ToAPIError(
					model.NewValidationError("agent_id", nil, fmt.Sprintf("must be at most %d characters", maxAgentIDLength)),
				))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithAgentID(r.Context(), agentID)))
		})
	}
}

// AgentIDFromContext はリクエストコンテキストからエージェントIDを取得する。
func AgentIDFromContext(ctx context.Context) (string, error) {
	agentID, ok := ctx.Value(agentIDContextKey).(string)
	if !ok || agentID == "" {
		return "", fmt.Errorf("agent ID not found in context")
	}
	return agentID, nil
}

// ContextWithAgentID はコンテキストにエージェントIDを注入する。
func ContextWithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDContextKey, agentID)
}

// レート制限キーの接頭辞。
const (
	agentKeyPrefix = "agent:"
	ipKeyPrefix    = "ip:"
)

// agentKey はエージェントIDによるレート制限のキーを返す。
// エージェントIDがない場合はfalseを返す。
func agentKey(r *http.Request) (string, bool) {
	agentID, err := AgentIDFromContext(r.Context())
	if err != nil {
		return "", false
	}
	return agentKeyPrefix + agentID, true
}

// ipKey は接続元IPによるレート制限のキーを返す。
func ipKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return ipKeyPrefix + host
}
