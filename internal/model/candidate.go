package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// TrendCandidate は取得元から得た未検証のトレンド候補を表す。
// 収集ワーカーが保存し、トレンド取得サービスがTrendTopicに変換する。
// 変換に失敗した候補は結果に含めない。
type TrendCandidate struct {
	ID              string
	Platform        string
	Niche           string
	Name            string
	Category        string
	EngagementScore float64
	SourceURL       string
	SourceName      string
	ContentHash     string
	FetchedAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ToTopic はNewTrendTopicで候補を検証してTrendTopicに変換する。
func (c TrendCandidate) ToTopic() (TrendTopic, error) {
	return NewTrendTopic(TrendTopicParams{
		Name:            c.Name,
		Category:        c.Category,
		EngagementScore: c.EngagementScore,
		SourceURL:       c.SourceURL,
		SourcePlatform:  c.Platform,
		FetchedAt:       c.FetchedAt,
	})
}

// ComputeCandidateHash は(platform, niche, name, source_url)のSHA-256ハッシュを計算する。
// 同じ見出しを同じ取得元から繰り返し収集した場合の重複判定に使用する。
func ComputeCandidateHash(platform, niche, name, sourceURL string) string {
	data := fmt.Sprintf("%s|%s|%s|%s",
		NormalizePlatform(platform),
		strings.ToLower(strings.TrimSpace(niche)),
		strings.ToLower(strings.TrimSpace(name)),
		strings.TrimSpace(sourceURL),
	)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
