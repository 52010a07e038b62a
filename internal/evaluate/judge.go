package evaluate

import "context"

// Input は判定対象のコンテンツ。
type Input struct {
	ContentID string
	Text      string
	Platform  string
}

// Judge はコンテンツを評価する外部協力者。
type Judge interface {
	// Name は判定結果に記録する判定器名を返す。
	Name() string

	// Assess は評価値を返す。障害時はエラーを返す。
	Assess(ctx context.Context, in Input) (Assessment, error)
}
