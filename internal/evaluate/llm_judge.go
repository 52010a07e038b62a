package evaluate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hitoshi/agentskills/internal/llm"
)

const judgeSystemPrompt = `You review social media posts before they are published.
Answer with a single JSON object and nothing else:
{"score": <0..1 quality and safety>, "confidence": <0..1>, "flags": [<zero or more of "hate", "harassment", "sexual", "violence", "self_harm", "misinformation", "spam">], "rationale": "<one sentence>"}`

// judgeTemperature は判定のサンプリング温度。揺れを抑えるため0に固定する。
const judgeTemperature = 0.0

// LLMJudge はLLMにJSON形式の評価を依頼する判定器。
// 温度0でも評価が揺れることがあるため、ConsensusJudgeと組み合わせて使う。
type LLMJudge struct {
	name      string
	completer llm.Completer
}

var _ Judge = (*LLMJudge)(nil)

// NewLLMJudge はLLMJudgeを生成する。
func NewLLMJudge(name string, completer llm.Completer) *LLMJudge {
	return &LLMJudge{name: name, completer: completer}
}

// Name はJudgeを実装する。
func (j *LLMJudge) Name() string { return "llm:" + j.name }

type judgeAnswer struct {
	Score      *float64 `json:"score"`
	Confidence *float64 `json:"confidence"`
	Flags      []string `json:"flags"`
	Rationale  string   `json:"rationale"`
}

// Assess はJudgeを実装する。
// 応答がJSONとして解釈できない場合やscore/confidenceが欠けている場合はエラーを返す。
func (j *LLMJudge) Assess(ctx context.Context, in Input) (Assessment, error) {
	temperature := judgeTemperature
	resp, err := j.completer.Complete(ctx, llm.Request{
		System:      judgeSystemPrompt,
		Prompt:      buildJudgePrompt(in),
		MaxTokens:   256,
		Temperature: &temperature,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("LLM呼び出しに失敗: %w", err)
	}
	return parseJudgeAnswer(resp.Text)
}

func buildJudgePrompt(in Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Platform: %s\n", in.Platform)
	sb.WriteString("Post:\n<<<\n")
	sb.WriteString(in.Text)
	sb.WriteString("\n>>>\n")
	return sb.String()
}

func parseJudgeAnswer(text string) (Assessment, error) {
	var ans judgeAnswer
	if err := json.Unmarshal([]byte(llm.ExtractJSON(text)), &ans); err != nil {
		return Assessment{}, fmt.Errorf("判定結果のパースに失敗: %w (response was: %.200s)", err, text)
	}
	if ans.Score == nil || ans.Confidence == nil {
		return Assessment{}, fmt.Errorf("判定結果にscoreまたはconfidenceがありません: %.200s", text)
	}

	flags := make([]string, 0, len(ans.Flags))
	for _, f := range ans.Flags {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			flags = append(flags, f)
		}
	}
	return Assessment{
		Score:      *ans.Score,
		Confidence: *ans.Confidence,
		Flags:      flags,
		Rationale:  strings.TrimSpace(ans.Rationale),
	}, nil
}
