package model

import "strings"

// 既知のプラットフォーム名。
const (
	PlatformTwitter   = "twitter"
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformLinkedIn  = "linkedin"
	PlatformThreads   = "threads"
	PlatformFacebook  = "facebook"
	PlatformYouTube   = "youtube"
)

// platformCharLimits はプラットフォームごとの投稿本文の最大文字数（rune数）。
var platformCharLimits = map[string]int{
	PlatformTwitter:   280,
	PlatformInstagram: 2200,
	PlatformTikTok:    2200,
	PlatformLinkedIn:  3000,
	PlatformThreads:   500,
	PlatformFacebook:  63206,
	PlatformYouTube:   5000,
}

// platformAliases は表記揺れを正規名に寄せる。
var platformAliases = map[string]string{
	"x":  PlatformTwitter,
	"ig": PlatformInstagram,
}

// NormalizePlatform はプラットフォーム名を小文字化して正規名に変換する。
// 未知のプラットフォームも拒否せずにそのまま返す。
func NormalizePlatform(platform string) string {
	p := strings.ToLower(strings.TrimSpace(platform))
	if alias, ok := platformAliases[p]; ok {
		return alias
	}
	return p
}

// CharLimit はプラットフォームの最大文字数を返す。
// 未知のプラットフォームの場合は0（無制限）を返す。
func CharLimit(platform string) int {
	return platformCharLimits[NormalizePlatform(platform)]
}

// KnownPlatform はプラットフォームが既知かどうかを返す。
func KnownPlatform(platform string) bool {
	_, ok := platformCharLimits[NormalizePlatform(platform)]
	return ok
}
