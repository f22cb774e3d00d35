// Package extract pulls a best-effort minimum price out of a Torob search
// results page. The markup and currency formatting of the source are not
// stable, so extraction cascades from specific patterns to increasingly
// generic ones.
package extract

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"smokhtari/torobworker/internal/price"
)

// ErrNoProducts is returned when a document carries no pricing signal at all.
// Callers treat it as a failed search, not as a transport error.
var ErrNoProducts = errors.New("no products found in search results")

// PartialMessage marks a page that shows products without a readable price
const PartialMessage = "products found but price not extractable"

// maxDiagnosticPrices caps AllPrices; the full list only serves diagnostics
const maxDiagnosticPrices = 10

// noiseFloor filters junk numbers (counts, ratings) from the broad scan
const noiseFloor = 1000

// Result is the outcome of one extraction pass
type Result struct {
	MinPrice      *int64  `json:"min_price"`
	FoundProducts int     `json:"found_products"`
	AllPrices     []int64 `json:"all_prices,omitempty"`
	Err           string  `json:"error,omitempty"`
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	// Ordered strategies, most specific first. Patterns run against the
	// digit-folded, whitespace-collapsed document.
	strategies = []*regexp.Regexp{
		// price-labelled element with currency suffix
		regexp.MustCompile(`(?i)class="[^"]*price[^"]*"[^>]*>\s*([0-9][0-9,،٬]*)\s*تومان`),
		// amount-labelled element with currency suffix
		regexp.MustCompile(`(?i)class="[^"]*amount[^"]*"[^>]*>\s*([0-9][0-9,،٬]*)\s*تومان`),
		// any bare number followed by the primary currency word
		regexp.MustCompile(`([0-9][0-9,،٬]*)\s*تومان`),
		// any bare number followed by the secondary currency unit
		regexp.MustCompile(`([0-9][0-9,،٬]*)\s*ریال`),
	}

	// Fallback scan: any plausible number on a page that mentions a
	// currency word at all, even when markup separates the two
	broadScanRe = regexp.MustCompile(`([0-9][0-9,،٬]{3,})`)

	currencyWords = []string{"تومان", "ریال"}

	// Literal marker words that indicate products are present even when no
	// price could be read out of the page
	productMarkers = []string{"محصول", "کالا", "فروشنده"}
)

// Extract parses a raw search-results document. The query is echoed only for
// diagnostics and never drives matching. Returns ErrNoProducts when the page
// has no product signal at all.
func Extract(html, query string) (*Result, error) {
	collapsed := whitespaceRe.ReplaceAllString(price.FoldDigits(html), " ")

	for _, re := range strategies {
		if result := matchPrices(re, collapsed, 0); result != nil {
			return result, nil
		}
	}

	// Broad fallback scan; small numbers are noise and pages without any
	// currency word carry no pricing signal worth scanning
	if containsAny(collapsed, currencyWords) {
		if result := matchPrices(broadScanRe, collapsed, noiseFloor); result != nil {
			return result, nil
		}
	}

	if hasProductSignal(html, collapsed) {
		return &Result{
			MinPrice:      nil,
			FoundProducts: 1,
			Err:           PartialMessage,
		}, nil
	}

	return nil, ErrNoProducts
}

// matchPrices runs one strategy and builds a Result when it produced at least
// one normalized price above the floor
func matchPrices(re *regexp.Regexp, doc string, floor int64) *Result {
	matches := re.FindAllStringSubmatch(doc, -1)
	if len(matches) == 0 {
		return nil
	}

	var prices []int64
	for _, m := range matches {
		if v := price.Normalize(m[1]); v > floor {
			prices = append(prices, v)
		}
	}
	if len(prices) == 0 {
		return nil
	}

	// FoundProducts stays the raw match count; min comes from the deduped
	// set. The asymmetry mirrors what the source reports and changing it
	// would silently alter observable statistics.
	found := len(prices)
	deduped := dedupeSorted(prices)
	if len(deduped) > maxDiagnosticPrices {
		deduped = deduped[:maxDiagnosticPrices]
	}

	min := deduped[0]
	return &Result{
		MinPrice:      &min,
		FoundProducts: found,
		AllPrices:     deduped,
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func dedupeSorted(prices []int64) []int64 {
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	out := prices[:0]
	var last int64 = -1
	for _, p := range prices {
		if p != last {
			out = append(out, p)
			last = p
		}
	}
	return out
}

// hasProductSignal checks for generic "product exists" markup: product-ish
// class names or literal marker words
func hasProductSignal(html, collapsed string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err == nil {
		if doc.Find(`[class*="product"], [class*="result-item"], [data-product-id]`).Length() > 0 {
			return true
		}
	}

	// An explicit "nothing found" page mentions products without having any
	if strings.Contains(collapsed, "یافت نشد") {
		return false
	}

	for _, marker := range productMarkers {
		if strings.Contains(collapsed, marker) {
			return true
		}
	}
	return false
}
