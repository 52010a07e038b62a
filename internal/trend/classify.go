package trend

import (
	"strings"
	"unicode"

	"github.com/hitoshi/agentskills/internal/model"
)

// categoryKeywords はカテゴリ推定に使うキーワード。
// 語単位で照合するため、複合語は含めない。
var categoryKeywords = map[model.Category][]string{
	model.CategoryFashion: {
		"fashion", "style", "outfit", "runway", "designer", "couture", "streetwear",
		"apparel", "wardrobe", "sneakers", "vogue", "model", "textile", "beauty", "makeup",
	},
	model.CategoryTech: {
		"tech", "technology", "ai", "software", "app", "startup", "chip", "chips", "robot",
		"cloud", "crypto", "blockchain", "smartphone", "iphone", "android", "developer",
		"programming", "cyber", "llm", "gadget",
	},
	model.CategoryPolitics: {
		"election", "elections", "government", "minister", "parliament", "senate", "congress",
		"policy", "president", "vote", "campaign", "diplomacy", "sanctions", "politics", "law",
	},
	model.CategoryEntertainment: {
		"movie", "film", "music", "album", "concert", "celebrity", "tv", "series", "netflix",
		"festival", "actor", "actress", "singer", "award", "awards", "trailer", "anime",
	},
	model.CategorySports: {
		"football", "soccer", "basketball", "tennis", "cricket", "olympics", "marathon",
		"match", "league", "cup", "championship", "athlete", "goal", "nba", "nfl", "fifa",
	},
	model.CategoryBusiness: {
		"business", "market", "markets", "stocks", "economy", "earnings", "revenue",
		"investment", "investor", "ipo", "merger", "acquisition", "bank", "inflation", "trade",
	},
}

// Classify はテキストとニッチからカテゴリを推定する。
// キーワードの出現数が最も多いカテゴリを返す。テキストから判断できない場合は
// ニッチ自体をカテゴリ名またはキーワードとして解釈し、それでも決まらなければotherを返す。
// 同数の場合はmodel.Categories()の定義順で先のカテゴリを優先する。
func Classify(text, niche string) model.Category {
	tokens := tokenize(text)

	best := model.CategoryOther
	bestHits := 0
	for _, c := range model.Categories() {
		hits := 0
		for _, kw := range categoryKeywords[c] {
			hits += tokens[kw]
		}
		if hits > bestHits {
			best, bestHits = c, hits
		}
	}
	if bestHits > 0 {
		return best
	}

	return classifyNiche(niche)
}

func classifyNiche(niche string) model.Category {
	if c, err := model.ParseCategory(niche); err == nil {
		return c
	}
	nicheTokens := tokenize(niche)
	for _, c := range model.Categories() {
		for _, kw := range categoryKeywords[c] {
			if nicheTokens[kw] > 0 {
				return c
			}
		}
	}
	return model.CategoryOther
}

// tokenize は英数字の連続を小文字の語として数える。ハッシュタグの#は区切りとして扱う。
func tokenize(s string) map[string]int {
	counts := make(map[string]int)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		counts[f]++
	}
	return counts
}
