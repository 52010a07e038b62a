// Package model はパイプライン3段階で共有するデータ契約を定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, trend, generation, evaluation, system
	Action   string // 呼び出し元向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeFetchFailed      = "FETCH_FAILED"
	ErrCodeGenerationFailed = "GENERATION_FAILED"
	ErrCodeEvaluationFailed = "EVALUATION_FAILED"
	ErrCodeNoTrends         = "NO_TRENDS"
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ValidationError はレコードのフィールドが宣言されたドメイン外の値で構築されたことを表す。
// 呼び出し元の入力誤りであり、内部で回復やリトライは行わない。
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s=%v: %s", e.Field, e.Value, e.Reason)
}

// NewValidationError はValidationErrorを生成する。
// サービス層が呼び出し引数を検証する際にも使用する。
func NewValidationError(field string, value any, reason string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// FetchError はトレンド取得元の障害を表す。
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("trend fetch failed (%s): %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// GenerationError はコンテンツ生成プロバイダの障害を表す。
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("content generation failed (%s): %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// EvaluationError は判定プロバイダの障害、または不正な入力を表す。
// 低品質なコンテンツはエラーではなくREJECT/REVIEWとして返す。
type EvaluationError struct {
	Op  string
	Err error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("content evaluation failed (%s): %v", e.Op, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// ErrNoTrends は取得元が正常に応答したが有効なトレンドが0件だったことを表す。
// FetchErrorとは区別される。
var ErrNoTrends = errors.New("no fresh trends available")

// ToAPIError はパイプラインのエラーをAPIErrorに変換する。
// 既知のエラー種別に該当しない場合はINTERNAL_ERRORを返す。
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return &APIError{
			Code:     ErrCodeValidationFailed,
			Message:  vErr.Error(),
			Category: "validation",
			Action:   "入力値を確認してください。",
		}
	}

	var fErr *FetchError
	if errors.As(err, &fErr) {
		return &APIError{
			Code:     ErrCodeFetchFailed,
			Message:  fErr.Error(),
			Category: "trend",
			Action:   "トレンド取得元の状態を確認し、しばらく待ってから再度お試しください。",
		}
	}

	var gErr *GenerationError
	if errors.As(err, &gErr) {
		return &APIError{
			Code:     ErrCodeGenerationFailed,
			Message:  gErr.Error(),
			Category: "generation",
			Action:   "生成プロバイダの設定と状態を確認してください。",
		}
	}

	var eErr *EvaluationError
	if errors.As(err, &eErr) {
		return &APIError{
			Code:     ErrCodeEvaluationFailed,
			Message:  eErr.Error(),
			Category: "evaluation",
			Action:   "判定プロバイダの状態を確認し、入力を見直してください。",
		}
	}

	if errors.Is(err, ErrNoTrends) {
		return &APIError{
			Code:     ErrCodeNoTrends,
			Message:  "鮮度の条件を満たすトレンドがありません。",
			Category: "trend",
			Action:   "max_age_hoursを広げるか、別のニッチを指定してください。",
		}
	}

	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
