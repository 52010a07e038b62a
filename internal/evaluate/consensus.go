package evaluate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/agentskills/internal/model"
)

// DefaultSettledSize はConsensusJudgeが確定判定を記憶する入力数の既定値。
const DefaultSettledSize = 4096

// ConsensusJudge は確率的な判定器を複数回実行し、全回の判定が一致した場合のみ
// その評価を採用する。一致しない場合はAbstainを立てた評価を返し、DecideでREVIEWとなる。
//
// APPROVEまたはREJECTに確定した評価は本文とプラットフォームごとに記憶し、
// 同じ入力には再度サンプリングせずに記憶した評価を返す。
// 同時に届いた同じ入力が逆の判定に確定した場合、後から確定した側はREVIEWとなる。
// 記憶はLRUで上限を持ち、追い出された入力は改めてサンプリングされる。
type ConsensusJudge struct {
	judge   Judge
	samples int
	policy  Policy
	settled *lru.Cache[string, settledAssessment]
}

type settledAssessment struct {
	verdict    model.Verdict
	assessment Assessment
}

var _ Judge = (*ConsensusJudge)(nil)

// NewConsensusJudge はConsensusJudgeを生成する。samplesが1未満の場合は1とする。
func NewConsensusJudge(judge Judge, samples int, policy Policy) *ConsensusJudge {
	if samples < 1 {
		samples = 1
	}
	settled, err := lru.New[string, settledAssessment](DefaultSettledSize)
	if err != nil {
		// サイズが正の定数のため発生しない
		panic(fmt.Sprintf("evaluate: lru.New: %v", err))
	}
	return &ConsensusJudge{judge: judge, samples: samples, policy: policy, settled: settled}
}

// Name はJudgeを実装する。
func (c *ConsensusJudge) Name() string {
	return fmt.Sprintf("consensus(%s x%d)", c.judge.Name(), c.samples)
}

// Assess はJudgeを実装する。
// いずれかの試行が失敗した場合はエラーを返す。
func (c *ConsensusJudge) Assess(ctx context.Context, in Input) (Assessment, error) {
	key := settleKey(in)
	if s, ok := c.settled.Get(key); ok {
		return s.assessment.clone(), nil
	}

	merged, err := c.sample(ctx, in)
	if err != nil {
		return Assessment{}, err
	}

	v, _ := Decide(merged, c.policy)
	if v != model.VerdictApprove && v != model.VerdictReject {
		return merged, nil
	}

	prev, found, _ := c.settled.PeekOrAdd(key, settledAssessment{verdict: v, assessment: merged.clone()})
	if found && prev.verdict != v {
		merged.Abstain = true
		merged.Confidence = 0
		merged.Rationale = fmt.Sprintf("%s conflicts with settled %s", v, prev.verdict)
	}
	return merged, nil
}

// sample は判定器をsamples回並行に実行し、結果をまとめる。
// 各回の判定が割れた場合はAbstainを立てる。
func (c *ConsensusJudge) sample(ctx context.Context, in Input) (Assessment, error) {
	results := make([]Assessment, c.samples)

	g, gctx := errgroup.WithContext(ctx)
	for i := range c.samples {
		g.Go(func() error {
			a, err := c.judge.Assess(gctx, in)
			if err != nil {
				return fmt.Errorf("sample %d: %w", i, err)
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Assessment{}, err
	}

	counts := make(map[model.Verdict]int, 3)
	for _, a := range results {
		v, _ := Decide(a, c.policy)
		counts[v]++
	}

	merged := merge(results)
	if len(counts) > 1 {
		merged.Abstain = true
		merged.Confidence = 0
		merged.Rationale = "samples disagreed: " + formatCounts(counts)
		return merged, nil
	}

	// 平均をとった結果が各回の判定と食い違う場合も一致とはみなさない
	for v := range counts {
		if got, _ := Decide(merged, c.policy); got != v {
			merged.Abstain = true
			merged.Confidence = 0
			merged.Rationale = fmt.Sprintf("merged assessment does not match unanimous %s", v)
		}
	}
	return merged, nil
}

// settleKey は判定を記憶する単位であるプラットフォームと本文から鍵を作る。
func settleKey(in Input) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(in.Platform))))
	h.Write([]byte{0})
	h.Write([]byte(in.Text))
	return hex.EncodeToString(h.Sum(nil))
}

func (a Assessment) clone() Assessment {
	a.Flags = append([]string(nil), a.Flags...)
	return a
}

// merge はスコアの平均、確信度の最小値、フラグの和集合をとる。
func merge(results []Assessment) Assessment {
	var sum float64
	minConf := 1.0
	seen := make(map[string]struct{})
	var flags []string
	rationale := ""

	for _, a := range results {
		sum += a.Score
		if math.IsNaN(a.Confidence) || a.Confidence < minConf {
			minConf = a.Confidence
		}
		for _, f := range a.Flags {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				flags = append(flags, f)
			}
		}
		if rationale == "" {
			rationale = a.Rationale
		}
	}

	return Assessment{
		Score:      sum / float64(len(results)),
		Confidence: minConf,
		Flags:      flags,
		Rationale:  rationale,
	}
}

func formatCounts(counts map[model.Verdict]int) string {
	parts := make([]string, 0, len(counts))
	for v, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", v, n))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
