// Package config は環境変数とYAMLの取得元カタログからアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// トレンド取得元の種類（TREND_SOURCE）。
const (
	TrendSourceFeeds  = "feeds"
	TrendSourceDB     = "db"
	TrendSourceStatic = "static"
)

// 生成プロバイダ（LLM_PROVIDER）。
const (
	LLMProviderTemplate  = "template"
	LLMProviderOpenAI    = "openai"
	LLMProviderAnthropic = "anthropic"
)

// 判定プロバイダ（JUDGE_PROVIDER）。
const (
	JudgeProviderHeuristic = "heuristic"
	JudgeProviderLLM       = "llm"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort string

	// Database
	DatabaseURL string

	// Trend
	TrendSource    string
	TrendMaxAge    time.Duration
	TrendCacheSize int
	RedisURL       string
	SourcesFile    string
	Sources        []SourceEntry

	// Fetch
	FetchTimeout       time.Duration
	FetchMaxSize       int64
	FetchMaxConcurrent int
	FetchInterval      time.Duration

	// Generation
	LLMProvider      string
	LLMEndpoint      string
	LLMAPIKey        string
	LLMModel         string
	LLMRatePerMinute int

	// Evaluation
	JudgeProvider      string
	JudgeSamples       int
	JudgeApproveAt     float64
	JudgeRejectBelow   float64
	JudgeMinConfidence float64
	BannedTerms        []string

	// Engagement
	HatebuEnabled bool

	// Cleanup
	CandidateRetention time.Duration
	CleanupSchedule    string

	// Rate Limit
	RateLimitGeneral int

	// CORS
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 不足・不正な値はまとめて1つのエラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:  getEnvString("SERVER_PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		TrendSource:    strings.ToLower(getEnvString("TREND_SOURCE", TrendSourceFeeds)),
		TrendMaxAge:    getEnvDuration("TREND_MAX_AGE", 8*time.Hour),
		TrendCacheSize: getEnvInt("TREND_CACHE_SIZE", 256),
		RedisURL:       os.Getenv("REDIS_URL"),
		SourcesFile:    os.Getenv("SOURCES_FILE"),

		FetchTimeout:       getEnvDuration("FETCH_TIMEOUT", 10*time.Second),
		FetchMaxSize:       getEnvInt64("FETCH_MAX_SIZE", 5242880),
		FetchMaxConcurrent: getEnvInt("FETCH_MAX_CONCURRENT", 10),
		FetchInterval:      getEnvDuration("FETCH_INTERVAL", 15*time.Minute),

		LLMProvider:      strings.ToLower(getEnvString("LLM_PROVIDER", LLMProviderTemplate)),
		LLMEndpoint:      os.Getenv("LLM_ENDPOINT"),
		LLMAPIKey:        os.Getenv("LLM_API_KEY"),
		LLMRatePerMinute: getEnvInt("LLM_RATE_PER_MINUTE", 60),

		JudgeProvider:      strings.ToLower(getEnvString("JUDGE_PROVIDER", JudgeProviderHeuristic)),
		JudgeSamples:       getEnvInt("JUDGE_SAMPLES", 3),
		JudgeApproveAt:     getEnvFloat("JUDGE_APPROVE_AT", 0.75),
		JudgeRejectBelow:   getEnvFloat("JUDGE_REJECT_BELOW", 0.35),
		JudgeMinConfidence: getEnvFloat("JUDGE_MIN_CONFIDENCE", 0.6),
		BannedTerms:        getEnvList("BANNED_TERMS"),

		HatebuEnabled: getEnvBool("HATEBU_ENABLED", false),

		CandidateRetention: getEnvDuration("CANDIDATE_RETENTION", 72*time.Hour),
		CleanupSchedule:    getEnvString("CLEANUP_SCHEDULE", "@hourly"),

		RateLimitGeneral:  getEnvInt("RATE_LIMIT_GENERAL", 120),
		CORSAllowedOrigin: getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		LogLevel:          getEnvString("LOG_LEVEL", "info"),
	}

	cfg.LLMModel = getEnvString("LLM_MODEL", defaultModel(cfg.LLMProvider))

	var problems []string

	switch cfg.TrendSource {
	case TrendSourceFeeds, TrendSourceStatic:
	case TrendSourceDB:
		if cfg.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL (required when TREND_SOURCE=db)")
		}
	default:
		problems = append(problems, fmt.Sprintf("TREND_SOURCE=%q (want feeds, db or static)", cfg.TrendSource))
	}

	switch cfg.LLMProvider {
	case LLMProviderTemplate:
	case LLMProviderOpenAI, LLMProviderAnthropic:
		if cfg.LLMAPIKey == "" {
			problems = append(problems, fmt.Sprintf("LLM_API_KEY (required when LLM_PROVIDER=%s)", cfg.LLMProvider))
		}
	default:
		problems = append(problems, fmt.Sprintf("LLM_PROVIDER=%q (want template, openai or anthropic)", cfg.LLMProvider))
	}

	switch cfg.JudgeProvider {
	case JudgeProviderHeuristic:
	case JudgeProviderLLM:
		if cfg.LLMProvider == LLMProviderTemplate {
			problems = append(problems, "LLM_PROVIDER (JUDGE_PROVIDER=llm needs openai or anthropic)")
		}
	default:
		problems = append(problems, fmt.Sprintf("JUDGE_PROVIDER=%q (want heuristic or llm)", cfg.JudgeProvider))
	}

	if cfg.JudgeSamples < 1 {
		problems = append(problems, "JUDGE_SAMPLES (must be >= 1)")
	}
	if cfg.TrendMaxAge <= 0 {
		problems = append(problems, "TREND_MAX_AGE (must be positive)")
	}

	if cfg.SourcesFile != "" {
		sources, err := LoadSources(cfg.SourcesFile)
		if err != nil {
			problems = append(problems, fmt.Sprintf("SOURCES_FILE (%v)", err))
		}
		cfg.Sources = sources
	} else {
		sources, err := DefaultSources()
		if err != nil {
			problems = append(problems, fmt.Sprintf("default sources (%v)", err))
		}
		cfg.Sources = sources
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration: %s", strings.Join(problems, ", "))
	}

	return cfg, nil
}

// defaultModel はプロバイダごとのデフォルトモデル名を返す。
func defaultModel(provider string) string {
	if provider == LLMProviderAnthropic {
		return "claude-3-5-haiku-latest"
	}
	return "gpt-4o-mini"
}

// RequireDatabase はDATABASE_URLが設定されているかを検証する。
// worker・migrateコマンドの起動時に使用する。
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("required environment variables are not set: [DATABASE_URL]")
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvList はカンマ区切りの値を空要素を除いて返す。
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
