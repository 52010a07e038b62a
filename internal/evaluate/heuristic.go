package evaluate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/agentskills/internal/model"
)

// HeuristicJudgeが立てるフラグ。
const (
	FlagBannedTerm    = "banned_term"
	FlagOverLimit     = "over_limit"
	FlagShouting      = "shouting"
	FlagLinkSpam      = "link_spam"
	FlagHashtagSpam   = "hashtag_spam"
	FlagRepeatedChars = "repeated_chars"
	FlagTooShort      = "too_short"
)

// HeuristicJudgeName はHeuristicJudgeの判定器名。
const HeuristicJudgeName = "heuristic"

const (
	maxLinks          = 2
	maxHashtags       = 5
	shoutingRatio     = 0.6
	shoutingMinLetter = 10
	minRunes          = 10
	heuristicConf     = 0.8
)

var (
	linkPattern     = regexp.MustCompile(`https?://\S+`)
	hashtagPattern  = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	defaultBanWords = []string{"guaranteed returns", "free money", "click here", "dm for promo"}
)

// penalties は各フラグでスコアから差し引く値。
var penalties = map[string]float64{
	FlagShouting:      0.3,
	FlagLinkSpam:      0.3,
	FlagHashtagSpam:   0.2,
	FlagRepeatedChars: 0.15,
	FlagTooShort:      0.3,
}

// HeuristicJudge は文字数・禁止語・大文字の多用・リンクやハッシュタグの乱用などを
// 決定的に評価する判定器。同じ入力には常に同じ評価を返す。
type HeuristicJudge struct {
	bannedTerms []string
}

var _ Judge = (*HeuristicJudge)(nil)

// NewHeuristicJudge はHeuristicJudgeを生成する。
// bannedTermsが空の場合は既定の禁止語を使用する。照合は大文字小文字を区別しない。
func NewHeuristicJudge(bannedTerms ...string) *HeuristicJudge {
	if len(bannedTerms) == 0 {
		bannedTerms = defaultBanWords
	}
	terms := make([]string, 0, len(bannedTerms))
	for _, t := range bannedTerms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			terms = append(terms, t)
		}
	}
	return &HeuristicJudge{bannedTerms: terms}
}

// Name はJudgeを実装する。
func (j *HeuristicJudge) Name() string { return HeuristicJudgeName }

// Assess はJudgeを実装する。
func (j *HeuristicJudge) Assess(ctx context.Context, in Input) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, err
	}

	var flags []string
	var reasons []string
	score := 1.0

	lower := strings.ToLower(in.Text)
	for _, term := range j.bannedTerms {
		if strings.Contains(lower, term) {
			flags = append(flags, FlagBannedTerm)
			reasons = append(reasons, fmt.Sprintf("contains banned term %q", term))
			score = 0
			break
		}
	}

	runes := utf8.RuneCountInString(in.Text)
	if limit := model.CharLimit(in.Platform); limit > 0 && runes > limit {
		flags = append(flags, FlagOverLimit)
		reasons = append(reasons, fmt.Sprintf("%d characters exceeds %s limit %d", runes, in.Platform, limit))
		score = 0
	}

	checks := []struct {
		flag   string
		hit    bool
		reason string
	}{
		{FlagTooShort, runes < minRunes, "text is too short"},
		{FlagShouting, isShouting(in.Text), "mostly uppercase"},
		{FlagLinkSpam, len(linkPattern.FindAllString(in.Text, -1)) > maxLinks, "too many links"},
		{FlagHashtagSpam, len(hashtagPattern.FindAllString(in.Text, -1)) > maxHashtags, "too many hashtags"},
		{FlagRepeatedChars, hasRepeatedRun(in.Text, 5), "repeated characters"},
	}
	for _, c := range checks {
		if !c.hit {
			continue
		}
		flags = append(flags, c.flag)
		reasons = append(reasons, c.reason)
		score -= penalties[c.flag]
	}
	if score < 0 {
		score = 0
	}

	rationale := "no issues found"
	if len(reasons) > 0 {
		rationale = strings.Join(reasons, "; ")
	}
	return Assessment{
		Score:      score,
		Confidence: heuristicConf,
		Flags:      flags,
		Rationale:  rationale,
	}, nil
}

// isShouting は英字の大半が大文字かどうかを返す。
func isShouting(s string) bool {
	letters, upper := 0, 0
	for _, r := range linkPattern.ReplaceAllString(s, "") {
		if !unicode.IsLetter(r) || !unicode.In(r, unicode.Latin) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return letters >= shoutingMinLetter && float64(upper)/float64(letters) > shoutingRatio
}

// hasRepeatedRun は空白以外の同じ文字がn回以上連続するかを返す。
func hasRepeatedRun(s string, n int) bool {
	var prev rune
	run := 0
	for _, r := range s {
		if r == prev && !unicode.IsSpace(r) {
			run++
			if run >= n {
				return true
			}
			continue
		}
		prev = r
		run = 1
	}
	return false
}
