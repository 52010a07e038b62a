package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_sources.yaml
var defaultSourcesYAML []byte

// DefaultSources は組み込みの取得元カタログを返す。
func DefaultSources() ([]SourceEntry, error) {
	return ParseSources(defaultSourcesYAML)
}

// SourcesCatalog はSOURCES_FILEで指定するYAMLの取得元カタログ。
//
//	sources:
//	  - name: vogue-runway
//	    kind: feed
//	    url: https://example.com/runway/rss
//	    platform: instagram
//	    niche: fashion
//	    category: fashion
//	  - name: tech-ranking
//	    kind: html
//	    url: https://example.com/ranking
//	    platform: twitter
//	    niche: tech
//	    selectors:
//	      item: li.entry
//	      title: a.title
//	      link: a.title
type SourcesCatalog struct {
	Sources []SourceEntry `yaml:"sources"`
}

// SourceEntry はカタログ内の1件の取得元。
type SourceEntry struct {
	Name      string          `yaml:"name"`
	Kind      string          `yaml:"kind"`
	URL       string          `yaml:"url"`
	Platform  string          `yaml:"platform"`
	Niche     string          `yaml:"niche"`
	Category  string          `yaml:"category"`
	Selectors SelectorsConfig `yaml:"selectors"`
}

// SelectorsConfig はHTMLページ用のCSSセレクタ。
type SelectorsConfig struct {
	Item  string `yaml:"item"`
	Title string `yaml:"title"`
	Link  string `yaml:"link"`
}

// LoadSources はYAMLの取得元カタログを読み込んで検証する。
func LoadSources(path string) ([]SourceEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("取得元カタログの読み込みに失敗: %w", err)
	}
	return ParseSources(raw)
}

// ParseSources はYAMLの取得元カタログを解析して検証する。
// kindが空の場合はfeedとして扱う。
func ParseSources(raw []byte) ([]SourceEntry, error) {
	var catalog SourcesCatalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("取得元カタログの解析に失敗: %w", err)
	}

	seen := make(map[string]bool, len(catalog.Sources))
	for i := range catalog.Sources {
		s := &catalog.Sources[i]
		s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
		if s.Kind == "" {
			s.Kind = "feed"
		}

		switch {
		case s.Name == "":
			return nil, fmt.Errorf("sources[%d]: name is required", i)
		case seen[s.Name]:
			return nil, fmt.Errorf("sources[%d]: duplicate name %q", i, s.Name)
		case s.URL == "":
			return nil, fmt.Errorf("sources[%d] %s: url is required", i, s.Name)
		case s.Platform == "" || s.Niche == "":
			return nil, fmt.Errorf("sources[%d] %s: platform and niche are required", i, s.Name)
		case s.Kind != "feed" && s.Kind != "html":
			return nil, fmt.Errorf("sources[%d] %s: unknown kind %q", i, s.Name, s.Kind)
		case s.Kind == "html" && s.Selectors.Item == "":
			return nil, fmt.Errorf("sources[%d] %s: selectors.item is required for html sources", i, s.Name)
		}
		seen[s.Name] = true
	}

	return catalog.Sources, nil
}
