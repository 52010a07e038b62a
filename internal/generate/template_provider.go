package generate

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/hitoshi/agentskills/internal/model"
)

// TemplateProviderName はTemplateProviderのプロバイダ名。
const TemplateProviderName = "template"

// categoryTemplates はカテゴリごとの本文テンプレート。%sはトピック名。
var categoryTemplates = map[model.Category]string{
	model.CategoryFashion:       "%s is everywhere this week. Which look are you trying first?",
	model.CategoryTech:          "Everyone is talking about %s. Here is what it could change for builders.",
	model.CategoryPolitics:      "%s is shaping today's conversation. What matters most to you here?",
	model.CategoryEntertainment: "%s has the timeline buzzing. Are you watching?",
	model.CategorySports:        "%s just raised the stakes. Who are you backing?",
	model.CategoryBusiness:      "%s is on every market watcher's radar. What's your take?",
	model.CategoryOther:         "%s is trending right now. What do you think?",
}

// TemplateProvider はカテゴリ別テンプレートから決定的に下書きを作るプロバイダ。
// 外部APIを呼ばないため、オフライン動作とテストに使用する。
type TemplateProvider struct{}

var _ Provider = TemplateProvider{}

// NewTemplateProvider はTemplateProviderを生成する。
func NewTemplateProvider() TemplateProvider {
	return TemplateProvider{}
}

// Name はProviderを実装する。
func (TemplateProvider) Name() string { return TemplateProviderName }

// Draft はProviderを実装する。
func (TemplateProvider) Draft(ctx context.Context, req DraftRequest) (Draft, error) {
	if err := ctx.Err(); err != nil {
		return Draft{}, err
	}

	format, ok := categoryTemplates[req.Topic.Category]
	if !ok {
		format = categoryTemplates[model.CategoryOther]
	}

	text := fmt.Sprintf(format, req.Topic.Name)
	if tag := Hashtag(req.Topic.Name); tag != "" {
		text += " " + tag
	}
	return Draft{Text: text, Model: "category-v1"}, nil
}

// Hashtag はトピック名から英数字のみのハッシュタグを作る。
// 各語の先頭を大文字にして連結する。英数字が含まれない場合は空文字を返す。
func Hashtag(name string) string {
	var b strings.Builder
	for _, word := range strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}
