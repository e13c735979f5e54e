// Package classify derives brand/lineup/model/region from raw listing names.
package classify

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"PriceScanner/internal/domain"
)

// UnknownBrand marks names whose lineup keyword is not recognized.
const UnknownBrand = "Unknown"

// Booster is an optional statistical second stage. It is consulted only for
// low-confidence results and may fill missing fields; the deterministic
// keyword stage stays authoritative.
type Booster interface {
	Boost(ctx context.Context, rawName string, guess domain.Classified) (domain.Classified, error)
}

// Known lineup keyword to brand. The first raw-name token found here fixes
// both lineup and brand.
var defaultLineups = map[string]string{
	"iphone":  "Apple",
	"ipad":    "Apple",
	"macbook": "Apple",
	"imac":    "Apple",
	"watch":   "Apple",
	"airpods": "Apple",
	"galaxy":  "Samsung",
	"note":    "Samsung",
	"pixel":   "Google",
	"redmi":   "Xiaomi",
	"poco":    "Xiaomi",
	"mi":      "Xiaomi",
}

// Closed set of color words that terminate the model token scan.
var colorWords = map[string]struct{}{
	"teal": {}, "blue": {}, "black": {}, "white": {}, "natural": {},
	"gray": {}, "gold": {}, "pink": {}, "red": {},
}

// Classifier is the deterministic keyword/heuristic entity stage.
type Classifier struct {
	lineups map[string]string
	booster Booster
}

// New builds a classifier with the static lineup table. The booster may be
// nil; classification is fully functional without it.
func New(booster Booster) *Classifier {
	return &Classifier{lineups: defaultLineups, booster: booster}
}

// Classify maps a raw listing name and its region marker to a structured
// identity with a confidence grade. More specific names never grade lower.
func (c *Classifier) Classify(ctx context.Context, rawName, regionMarker string) domain.Classified {
	tokens := strings.Fields(rawName)

	result := domain.Classified{
		Brand:  UnknownBrand,
		Region: DecodeRegion(regionMarker),
	}

	lineupIdx := -1
	for i, tok := range tokens {
		if brand, ok := c.lineups[strings.ToLower(tok)]; ok {
			result.Lineup = strings.ToLower(tok)
			result.Brand = brand
			lineupIdx = i
			break
		}
	}

	result.Model = buildModel(tokens, lineupIdx, rawName)
	result.Confidence = grade(result)

	if result.Confidence == domain.ConfidenceLow && c.booster != nil {
		if boosted, err := c.booster.Boost(ctx, rawName, result); err == nil {
			result = merge(result, boosted)
		}
	}

	return result
}

// buildModel scans tokens after the lineup keyword, stopping at the first
// color word, or at a purely 2-4 digit numeral once at least one model token
// was accumulated (generation numerals lead, storage-size numerals trail).
func buildModel(tokens []string, lineupIdx int, rawName string) string {
	titler := cases.Title(language.Und)

	var parts []string
	for _, tok := range tokens[lineupIdx+1:] {
		lower := strings.ToLower(tok)
		if _, isColor := colorWords[lower]; isColor {
			break
		}
		if len(parts) > 0 && isShortNumeral(tok) {
			break
		}
		parts = append(parts, titler.String(lower))
	}

	if len(parts) == 0 {
		return rawName
	}
	return strings.Join(parts, " ")
}

func isShortNumeral(tok string) bool {
	if len(tok) < 2 || len(tok) > 4 {
		return false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func grade(c domain.Classified) domain.Confidence {
	if c.Brand == UnknownBrand || len(strings.Fields(c.Model)) < 2 {
		return domain.ConfidenceLow
	}
	return domain.ConfidenceHigh
}

// merge adopts fields the booster filled in, then re-grades. The boosted
// result can only raise confidence, never lower it.
func merge(base, boosted domain.Classified) domain.Classified {
	out := base
	if base.Brand == UnknownBrand && boosted.Brand != "" && boosted.Brand != UnknownBrand {
		out.Brand = boosted.Brand
	}
	if boosted.Model != "" && len(strings.Fields(boosted.Model)) > len(strings.Fields(out.Model)) {
		out.Model = boosted.Model
	}
	if out.Lineup == "" && boosted.Lineup != "" {
		out.Lineup = boosted.Lineup
	}

	out.Confidence = grade(out)
	if base.Confidence == domain.ConfidenceHigh {
		out.Confidence = domain.ConfidenceHigh
	}
	return out
}

// DecodeRegion turns a 2-codepoint regional-indicator sequence into its
// lowercase country code ("\U0001F1FA\U0001F1F8" -> "us"). Total over all
// flags; anything else decodes to the empty region.
func DecodeRegion(marker string) string {
	runes := []rune(marker)
	if len(runes) != 2 {
		return ""
	}
	const base = 0x1F1E6
	for _, r := range runes {
		if r < base || r > 0x1F1FF {
			return ""
		}
	}
	return string([]rune{runes[0] - base + 'a', runes[1] - base + 'a'})
}
