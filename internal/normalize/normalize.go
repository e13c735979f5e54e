// Package normalize canonicalizes raw model phrases into comparable keys.
package normalize

import (
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
	"golang.org/x/text/unicode/norm"
)

var (
	regionPrefixExpr = regexp.MustCompile(`^[A-Z]{2,3}[\s:-]+`)
	spaceRunExpr     = regexp.MustCompile(`\s+`)
	nonWordExpr      = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
)

// Key reduces a raw product phrase to its canonical comparable form.
// The reduction is deterministic, pure and idempotent: Key(Key(s)) == Key(s).
// The region-prefix strip only fires on uppercase tokens, so the lowercased
// output of a previous pass is never stripped again.
func Key(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	s = gomoji.RemoveEmojis(s)
	s = stripLeadingFlag(s)
	s = regionPrefixExpr.ReplaceAllString(s, "")
	s = nonWordExpr.ReplaceAllString(s, "")
	s = spaceRunExpr.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	s = norm.NFKC.String(s)

	return strings.TrimSpace(s)
}

// stripLeadingFlag removes one 2-codepoint regional-indicator sequence at the
// start of the string. Usually a no-op after emoji removal; kept for inputs
// where the emoji table lags behind newly allocated flags.
func stripLeadingFlag(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) >= 2 && isRegionalIndicator(runes[0]) && isRegionalIndicator(runes[1]) {
		return string(runes[2:])
	}
	return s
}

func isRegionalIndicator(r rune) bool {
	return r >= 0x1F1E6 && r <= 0x1F1FF
}
