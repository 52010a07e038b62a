// Package generate はトレンドトピックからプラットフォーム向けの投稿候補を生成する。
package generate

import (
	"context"

	"github.com/hitoshi/agentskills/internal/model"
)

// DraftRequest は生成プロバイダへの依頼内容。
type DraftRequest struct {
	AgentID  string
	Topic    model.TopicRef
	Platform string
	// MaxChars はプラットフォームの最大文字数。0は無制限。
	MaxChars int
}

// Draft は生成プロバイダが返す下書き。
type Draft struct {
	Text  string
	Model string
}

// Provider は投稿本文の下書きを作る外部協力者。
type Provider interface {
	// Name はログ・メトリクス・GeneratedContentに記録するプロバイダ名を返す。
	Name() string

	// Draft は下書きを返す。障害時はエラーを返し、代替の本文を返してはならない。
	Draft(ctx context.Context, req DraftRequest) (Draft, error)
}
