// Package price converts raw scraped price text into canonical Toman values.
package price

import (
	"strconv"
	"strings"
)

// rialThreshold marks the value above which a parsed number is assumed to be
// denominated in Rial rather than Toman. No unit tag accompanies scraped
// numbers, so this stays a heuristic.
const rialThreshold = 100_000_000

// digitFolder maps Persian and Arabic-Indic digits to their ASCII
// counterparts and drops every separator seen in Torob price strings.
var digitFolder = strings.NewReplacer(
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	",", "", "،", "", "٬", "", " ", "", " ", "",
)

// Normalize parses a raw numeric price substring into a canonical integer
// Toman amount. Thousands separators and Persian digits are folded first;
// values above the Rial threshold are divided by 10. Unparsable input yields
// 0, which callers must treat as "no signal", never as a valid price.
func Normalize(raw string) int64 {
	cleaned := digitFolder.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0
	}

	value, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil || value < 0 {
		return 0
	}

	if value > rialThreshold {
		value /= 10
	}

	return value
}

// FoldDigits rewrites Persian and Arabic-Indic digits in s to ASCII without
// touching anything else. The extractor uses it so a single set of ASCII
// regular expressions covers both scripts.
func FoldDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '۰' && r <= '۹':
			b.WriteRune('0' + (r - '۰'))
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
