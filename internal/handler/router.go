package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/agentskills/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusObserver    middleware.StatusObserver

	// ヘルスチェックとメトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// パイプラインの各段階
	TrendService      TrendServiceInterface
	ContentService    ContentServiceInterface
	EvaluationService EvaluationServiceInterface
	PipelineRunner    PipelineRunnerInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → AgentID → RateLimit(/api/*のみ)
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusObserver))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewAgentIDMiddleware())

	// --- レート制限の対象外 ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, logger).Health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	trendHandler := NewTrendHandler(deps.TrendService, logger)
	contentHandler := NewContentHandler(deps.ContentService, logger)
	evalHandler := NewEvaluationHandler(deps.EvaluationService, logger)
	pipelineHandler := NewPipelineHandler(deps.PipelineRunner, logger)

	// --- エージェント単位のレート制限を適用するルート ---
	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Post("/trends", trendHandler.FetchTrends)
		r.Post("/contents", contentHandler.GenerateContent)
		r.Post("/evaluations", evalHandler.EvaluateContent)
		r.Post("/pipeline", pipelineHandler.RunPipeline)
	})

	return r
}
