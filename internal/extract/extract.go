// Package extract splits message bodies into candidate price listings.
package extract

import (
	"regexp"
	"strings"

	"PriceScanner/internal/domain"
)

// A price token is a run of 5-7 decimal digits not adjacent to more digits.
var priceExpr = regexp.MustCompile(`(?:^|[^0-9])([0-9]{5,7})(?:[^0-9]|$)`)

// Lines parses a message body as a newline-delimited sequence of independent
// listing lines. Lines without a price token are not listings and yield
// nothing. Flag glyphs adjacent to the price token mark regions; several
// flags fan out into one listing per flag, and without a flag the region
// marker stays empty.
// Output order follows input line order.
func Lines(body string) []domain.Listing {
	var listings []domain.Listing
	for _, line := range strings.Split(body, "\n") {
		listings = append(listings, parseLine(strings.TrimSpace(line))...)
	}
	return listings
}

func parseLine(line string) []domain.Listing {
	if line == "" {
		return nil
	}

	loc := priceExpr.FindStringSubmatchIndex(line)
	if loc == nil {
		return nil
	}
	priceStart, priceEnd := loc[2], loc[3]

	price := 0
	for _, d := range line[priceStart:priceEnd] {
		price = price*10 + int(d-'0')
	}

	flags := trailingFlags(line[priceEnd:])
	if len(flags) == 0 {
		flags = precedingFlags(line[:priceStart])
	}

	rawName := strings.TrimSpace(stripFlags(line[:priceStart]))
	rawName = strings.TrimLeft(rawName, "•-: ")
	rawName = strings.TrimSpace(rawName)

	if len(flags) == 0 {
		return []domain.Listing{{RawName: rawName, Price: price}}
	}

	listings := make([]domain.Listing, 0, len(flags))
	for _, flag := range flags {
		listings = append(listings, domain.Listing{
			RawName:      rawName,
			Price:        price,
			RegionMarker: flag,
		})
	}
	return listings
}

// trailingFlags collects consecutive 2-codepoint regional-indicator sequences
// following the price token, allowing whitespace between them.
func trailingFlags(rest string) []string {
	var flags []string
	runes := []rune(rest)
	i := 0
	for {
		for i < len(runes) && isSpace(runes[i]) {
			i++
		}
		if i+1 >= len(runes) || !isRegionalIndicator(runes[i]) || !isRegionalIndicator(runes[i+1]) {
			break
		}
		flags = append(flags, string(runes[i:i+2]))
		i += 2
	}
	return flags
}

// precedingFlags collects flag sequences sitting between the name and the
// price token ("Name 🇺🇸 89900" form), nearest-first in reading order.
func precedingFlags(prefix string) []string {
	var flags []string
	runes := []rune(prefix)
	i := len(runes)
	for {
		for i > 0 && isSpace(runes[i-1]) {
			i--
		}
		if i < 2 || !isRegionalIndicator(runes[i-2]) || !isRegionalIndicator(runes[i-1]) {
			break
		}
		flags = append(flags, string(runes[i-2:i]))
		i -= 2
	}
	for l, r := 0, len(flags)-1; l < r; l, r = l+1, r-1 {
		flags[l], flags[r] = flags[r], flags[l]
	}
	return flags
}

func stripFlags(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if !isRegionalIndicator(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isRegionalIndicator(r rune) bool {
	return r >= 0x1F1E6 && r <= 0x1F1FF
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == 0x00A0
}
