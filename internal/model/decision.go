package model

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

// Verdict はコンテンツ判定の最終分類を表す。
type Verdict string

const (
	// VerdictApprove はそのまま公開してよい判定。
	VerdictApprove Verdict = "APPROVE"
	// VerdictReview は人手確認が必要な判定。確信を持って判断できない場合もここに落とす。
	VerdictReview Verdict = "REVIEW"
	// VerdictReject は公開不可の判定。
	VerdictReject Verdict = "REJECT"
)

// Verdicts は許可される判定の一覧を返す。
func Verdicts() []Verdict {
	return []Verdict{VerdictApprove, VerdictReview, VerdictReject}
}

// Valid は判定が閉じた集合に含まれるかを返す。
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApprove, VerdictReview, VerdictReject:
		return true
	default:
		return false
	}
}

// ParseVerdict は文字列をVerdictに変換する。集合外の値はValidationErrorとなる。
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(strings.ToUpper(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", NewValidationError("verdict", s, "must be one of APPROVE, REVIEW, REJECT")
	}
	return v, nil
}

// JudgeDecisionParams はNewJudgeDecisionへの入力値。
type JudgeDecisionParams struct {
	ContentID  string
	Verdict    string
	Score      float64
	Confidence float64
	Rationale  string
	Flags      []string
	Judge      string
	DecidedAt  time.Time
}

// JudgeDecision は1件のコンテンツ判定結果を表す。
// 生成された時点で終端状態であり、以後の遷移はない。
type JudgeDecision struct {
	contentID  string
	verdict    Verdict
	score      float64
	confidence float64
	rationale  string
	flags      []string
	judge      string
	decidedAt  time.Time
}

// NewJudgeDecision はJudgeDecisionを検証して生成する。
func NewJudgeDecision(p JudgeDecisionParams) (*JudgeDecision, error) {
	contentID := strings.TrimSpace(p.ContentID)
	if contentID == "" {
		return nil, NewValidationError("content_id", nil, "must not be empty")
	}

	verdict, err := ParseVerdict(p.Verdict)
	if err != nil {
		return nil, err
	}

	if !unitInterval(p.Score) {
		return nil, NewValidationError("score", p.Score, "must be within [0.0, 1.0]")
	}
	if !unitInterval(p.Confidence) {
		return nil, NewValidationError("confidence", p.Confidence, "must be within [0.0, 1.0]")
	}

	decidedAt := p.DecidedAt
	if decidedAt.IsZero() {
		decidedAt = time.Now()
	}

	var flags []string
	if len(p.Flags) > 0 {
		flags = make([]string, len(p.Flags))
		copy(flags, p.Flags)
	}

	return &JudgeDecision{
		contentID:  contentID,
		verdict:    verdict,
		score:      p.Score,
		confidence: p.Confidence,
		rationale:  p.Rationale,
		flags:      flags,
		judge:      p.Judge,
		decidedAt:  decidedAt.UTC(),
	}, nil
}

func unitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func (d *JudgeDecision) ContentID() string { return d.contentID }
func (d *JudgeDecision) Verdict() Verdict { return d.verdict }
func (d *JudgeDecision) Score() float64 { return d.score }
func (d *JudgeDecision) Confidence() float64 { return d.confidence }
func (d *JudgeDecision) Rationale() string { return d.rationale }
func (d *JudgeDecision) Judge() string { return d.judge }
func (d *JudgeDecision) DecidedAt() time.Time { return d.decidedAt }

// Flags は判定時に検出されたフラグのコピーを返す。
func (d *JudgeDecision) Flags() []string {
	out := make([]string, len(d.flags))
	copy(out, d.flags)
	return out
}

// judgeDecisionJSON はJudgeDecisionのJSON表現。
type judgeDecisionJSON struct {
	ContentID  string    `json:"content_id"`
	Verdict    string    `json:"verdict"`
	Score      float64   `json:"score"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale"`
	Flags      []string  `json:"flags"`
	Judge      string    `json:"judge,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// MarshalJSON はjson.Marshalerを実装する。
func (d *JudgeDecision) MarshalJSON() ([]byte, error) {
	flags := d.flags
	if flags == nil {
		flags = []string{}
	}
	return json.Marshal(judgeDecisionJSON{
		ContentID:  d.contentID,
		Verdict:    string(d.verdict),
		Score:      d.score,
		Confidence: d.confidence,
		Rationale:  d.rationale,
		Flags:      flags,
		Judge:      d.judge,
		DecidedAt:  d.decidedAt,
	})
}

// UnmarshalJSON はjson.Unmarshalerを実装する。
// 集合外のverdictを含むJSONはValidationErrorとなる。
func (d *JudgeDecision) UnmarshalJSON(data []byte) error {
	var raw judgeDecisionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decision, err := NewJudgeDecision(JudgeDecisionParams{
		ContentID:  raw.ContentID,
		Verdict:    raw.Verdict,
		Score:      raw.Score,
		Confidence: raw.Confidence,
		Rationale:  raw.Rationale,
		Flags:      raw.Flags,
		Judge:      raw.Judge,
		DecidedAt:  raw.DecidedAt,
	})
	if err != nil {
		return err
	}
	*d = *decision
	return nil
}
