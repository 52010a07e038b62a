package evaluate

import (
	"context"
	"strings"
	"testing"

	"github.com/hitoshi/agentskills/internal/model"
)

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

func TestHeuristicJudge_Assess(t *testing.T) {
	j := NewHeuristicJudge()
	p := DefaultPolicy()

	tests := []struct {
		name      string
		text      string
		platform  string
		wantFlags []string
		want      model.Verdict
	}{
		{
			name:     "clean post",
			text:     "Addis Fashion Week brought bold colours to the runway this year. Which look was your favourite? #AFW",
			platform: "twitter",
			want:     model.VerdictApprove,
		},
		{
			name:      "banned term",
			text:      "Guaranteed returns if you join today, DM me",
			platform:  "twitter",
			wantFlags: []string{FlagBannedTerm},
			want:      model.VerdictReject,
		},
		{
			name:      "over platform limit",
			text:      strings.Repeat("nice ", 60),
			platform:  "twitter",
			wantFlags: []string{FlagOverLimit},
			want:      model.VerdictReject,
		},
		{
			name:      "shouting only",
			text:      "THIS IS THE BEST DEAL EVER, DO NOT MISS IT",
			platform:  "twitter",
			wantFlags: []string{FlagShouting},
			want:      model.VerdictReview,
		},
		{
			name:      "link spam",
			text:      "Check these out https://a.example https://b.example https://c.example",
			platform:  "linkedin",
			wantFlags: []string{FlagLinkSpam},
			want:      model.VerdictReview,
		},
		{
			name:      "too short",
			text:      "ok",
			platform:  "twitter",
			wantFlags: []string{FlagTooShort},
			want:      model.VerdictReview,
		},
		{
			name:      "repeated characters",
			text:      "Sooooooo good to see everyone at the show",
			platform:  "instagram",
			wantFlags: []string{FlagRepeatedChars},
			want:      model.VerdictApprove,
		},
		{
			name:      "several penalties",
			text:      "HUGE SALE TODAY ONLY FOR EVERYONE https://a.example https://b.example https://c.example #a #b #c #d #e #f",
			platform:  "facebook",
			wantFlags: []string{FlagShouting, FlagLinkSpam, FlagHashtagSpam},
			want:      model.VerdictReject,
		},
		{
			name:     "unknown platform has no limit",
			text:     strings.Repeat("lovely ", 2000),
			platform: "mastodon",
			want:     model.VerdictApprove,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := j.Assess(context.Background(), Input{ContentID: "c1", Text: tt.text, Platform: tt.platform})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, f := range tt.wantFlags {
				if !hasFlag(a.Flags, f) {
					t.Errorf("flags = %v, want %q", a.Flags, f)
				}
			}
			if len(tt.wantFlags) == 0 && len(a.Flags) != 0 {
				t.Errorf("flags = %v, want none", a.Flags)
			}
			if got, reason := Decide(a, p); got != tt.want {
				t.Errorf("verdict = %s, want %s (score %.2f, reason %s)", got, tt.want, a.Score, reason)
			}
		})
	}
}

func TestHeuristicJudge_CustomTerms(t *testing.T) {
	j := NewHeuristicJudge("  Spoiler ", "")
	a, err := j.Assess(context.Background(), Input{Text: "Huge SPOILER about the finale tonight", Platform: "twitter"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasFlag(a.Flags, FlagBannedTerm) || a.Score != 0 {
		t.Errorf("assessment = %+v, want banned term", a)
	}

	// 既定の禁止語は置き換えられる
	a, _ = j.Assess(context.Background(), Input{Text: "free money for everyone who reads this", Platform: "twitter"})
	if hasFlag(a.Flags, FlagBannedTerm) {
		t.Errorf("default terms should not apply: %v", a.Flags)
	}
}

func TestHasRepeatedRun(t *testing.T) {
	if !hasRepeatedRun("yessss!", 4) {
		t.Error("expected run of 4")
	}
	if hasRepeatedRun("a     b", 3) {
		t.Error("whitespace runs should be ignored")
	}
	if hasRepeatedRun("abab", 2) {
		t.Error("no repeated run expected")
	}
}
