// Package evaluate は生成コンテンツを判定し、APPROVE/REVIEW/REJECTのいずれかを返す。
package evaluate

import (
	"fmt"
	"math"

	"github.com/hitoshi/agentskills/internal/model"
)

// Assessment は判定器が返す評価値。
// ScoreとConfidenceは[0,1]を想定するが、範囲外やNaNもDecideで扱う。
type Assessment struct {
	Score      float64
	Confidence float64
	Flags      []string
	Rationale  string
	// Abstain は判定器が結論を出せなかったことを表す。
	Abstain bool
}

// Policy は評価値を判定に変換する閾値。
type Policy struct {
	// ApproveAt 以上のスコアはAPPROVE。
	ApproveAt float64
	// RejectBelow 未満のスコアはREJECT。
	RejectBelow float64
	// MinConfidence 未満の確信度は一律REVIEW。
	MinConfidence float64
	// HardBlockFlags のいずれかが立っていればスコアに関係なくREJECT。
	HardBlockFlags []string
}

// DefaultHardBlockFlags は既定で即REJECTとなるフラグ。
var DefaultHardBlockFlags = []string{
	FlagBannedTerm,
	FlagOverLimit,
	"hate",
	"harassment",
	"sexual",
	"violence",
	"self_harm",
}

// DefaultPolicy は既定の判定閾値を返す。
func DefaultPolicy() Policy {
	flags := make([]string, len(DefaultHardBlockFlags))
	copy(flags, DefaultHardBlockFlags)
	return Policy{
		ApproveAt:      0.75,
		RejectBelow:    0.35,
		MinConfidence:  0.6,
		HardBlockFlags: flags,
	}
}

// Validate は閾値の整合性を検証する。
func (p Policy) Validate() error {
	for name, v := range map[string]float64{
		"approve_at":     p.ApproveAt,
		"reject_below":   p.RejectBelow,
		"min_confidence": p.MinConfidence,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return model.NewValidationError(name, v, "must be within [0.0, 1.0]")
		}
	}
	if p.RejectBelow > p.ApproveAt {
		return model.NewValidationError("reject_below", p.RejectBelow, "must not exceed approve_at")
	}
	return nil
}

func (p Policy) hardBlocked(flags []string) (string, bool) {
	for _, f := range flags {
		for _, b := range p.HardBlockFlags {
			if f == b {
				return f, true
			}
		}
	}
	return "", false
}

// Decide は評価値をポリシーに従って判定に変換する。
// 純粋関数であり、どの入力に対しても3値のいずれかと理由を返す。
// 確信を持てない入力はREVIEWに落とす。
func Decide(a Assessment, p Policy) (model.Verdict, string) {
	if a.Abstain {
		if a.Rationale != "" {
			return model.VerdictReview, a.Rationale
		}
		return model.VerdictReview, "judge abstained"
	}
	if !inUnit(a.Score) || !inUnit(a.Confidence) {
		return model.VerdictReview, "assessment values out of range"
	}

	if flag, ok := p.hardBlocked(a.Flags); ok && a.Confidence >= p.MinConfidence {
		return model.VerdictReject, fmt.Sprintf("blocked by flag %q", flag)
	}

	if a.Confidence < p.MinConfidence {
		return model.VerdictReview, fmt.Sprintf("confidence %.2f below %.2f", a.Confidence, p.MinConfidence)
	}

	switch {
	case a.Score >= p.ApproveAt:
		return model.VerdictApprove, fmt.Sprintf("score %.2f at or above %.2f", a.Score, p.ApproveAt)
	case a.Score < p.RejectBelow:
		return model.VerdictReject, fmt.Sprintf("score %.2f below %.2f", a.Score, p.RejectBelow)
	default:
		return model.VerdictReview, fmt.Sprintf("score %.2f between thresholds", a.Score)
	}
}

func inUnit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
