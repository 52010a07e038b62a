package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/agentskills/internal/config"
	"github.com/hitoshi/agentskills/internal/database"
	"github.com/hitoshi/agentskills/internal/handler"
	"github.com/hitoshi/agentskills/internal/logger"
	"github.com/hitoshi/agentskills/internal/metrics"
	"github.com/hitoshi/agentskills/internal/middleware"
	"github.com/hitoshi/agentskills/internal/repository"
	"github.com/hitoshi/agentskills/internal/trend"
	"github.com/hitoshi/agentskills/internal/worker/cleanup"
	"github.com/hitoshi/agentskills/internal/worker/collect"
)

// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
const dbPingTimeout = 5 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELに合わせてグローバルロガーを作り直す
	slog.SetDefault(logger.SetupWithLevel(w, logger.ParseLevel(cfg.LogLevel)))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。runコマンドの結果は標準出力に書き出す。
func Run(w io.Writer, args []string) error {
	return RunWithOutput(w, os.Stdout, args)
}

// RunWithOutput はRunと同じだが、runコマンドの結果の出力先をoutで指定する。
func RunWithOutput(w, out io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("trend_source", cfg.TrendSource),
		slog.String("llm_provider", cfg.LLMProvider),
		slog.String("judge_provider", cfg.JudgeProvider),
	)

	// SIGINTまたはSIGTERMでコンテキストをキャンセルする
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandRun:
		ra, ok := ParseRunArgs(args)
		if !ok {
			return errors.New("usage: run <agent_id> <platform> <niche>")
		}
		return runPipelineOnce(ctx, cfg, ra, out)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

// optionalDatabase はTREND_SOURCE=db またはDATABASE_URLが設定されている場合のみDB接続を開く。
// 接続を開かなかった場合はnilを返す。
func optionalDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.TrendSource != config.TrendSourceDB && cfg.DatabaseURL == "" {
		return nil, nil
	}
	return openDatabase(ctx, cfg)
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. DB接続（任意）
	db, err := optionalDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. パイプラインの各サービス
	svc, err := buildServices(cfg, slog.Default(), collector, db)
	if err != nil {
		return err
	}
	defer svc.Close()

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(cfg.RateLimitGeneral), slog.Default())
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusObserver:    collector,
		MetricsHandler:    metrics.Handler(registry),

		TrendService:      svc.trends,
		ContentService:    svc.generator,
		EvaluationService: svc.evaluator,
		PipelineRunner:    svc.pipeline,
	}
	if db != nil {
		deps.HealthChecker = db
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 取得元カタログの全エントリを定期的に収集してtrend_candidatesに保存し、
// 保持期間を過ぎた候補をcronスケジュールで削除する。
// ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. リポジトリとメトリクス
	repo := repository.NewPostgresCandidateRepo(db)
	collector := metrics.NewCollector(prometheus.NewRegistry())

	// 3. 収集対象の構築
	sources, err := buildCatalogSources(cfg, slog.Default(), collector)
	if err != nil {
		return err
	}
	targets := make([]collect.Target, 0, len(sources))
	for i, s := range sources {
		targets = append(targets, collect.Target{
			Source: s,
			Query:  trend.Query{Platform: cfg.Sources[i].Platform, Niche: cfg.Sources[i].Niche},
		})
	}
	candidateCollector := collect.NewCollector(targets, repo, slog.Default(), collector, cfg.FetchMaxConcurrent)

	// 4. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(repo, slog.Default())
	cleanupJob.Retention = cfg.CandidateRetention

	slog.Info("worker starting",
		slog.Duration("fetch_interval", cfg.FetchInterval),
		slog.Int("max_concurrent", cfg.FetchMaxConcurrent),
		slog.Int("targets", len(targets)),
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
	)

	// 収集スケジューラとクリーンアップジョブを並行して実行し、
	// どちらかが失敗した場合はもう一方も停止する
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		candidateCollector.Start(gctx, cfg.FetchInterval)
		return nil
	})
	g.Go(func() error {
		if err := cleanupJob.Start(gctx, cfg.CleanupSchedule); err != nil {
			return fmt.Errorf("cleanup scheduler failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runPipelineOnce はパイプラインを1回実行し、結果をJSONでoutに書き出す。
// 途中の段階で失敗した場合もそれまでの結果を書き出してからエラーを返す。
func runPipelineOnce(ctx context.Context, cfg *config.Config, ra RunArgs, out io.Writer) error {
	db, err := optionalDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	collector := metrics.NewCollector(prometheus.NewRegistry())
	svc, err := buildServices(cfg, slog.Default(), collector, db)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, runErr := svc.pipeline.Run(ctx, ra.AgentID, ra.Platform, ra.Niche)

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("pipeline failed: %w", runErr)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.Redacted()
}
