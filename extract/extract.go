// Package extract turns noisy Persian/Arabic market chatter into numeric
// price candidates.
package extract

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/iranianx/rate/farsi"
)

const (
	// window radius (in runes) around a keyword hit
	windowRadius = 60

	// DefaultEURUSDRatio is the assumed global EUR/USD market ratio used
	// for disambiguating unlabeled USD/EUR number pairs
	DefaultEURUSDRatio = 1.18

	// DefaultRatioTolerancePct is the accepted deviation from the
	// EUR/USD ratio, in percentage points
	DefaultRatioTolerancePct = 7
)

var (
	// Iranian mobile numbers, with an optional +98 country prefix
	phonePattern = regexp.MustCompile(`(\+?98[-\s]?)?9[\s-]?\d{2}[\s-]?\d{3}[\s-]?\d{4}\b`)

	// Clock times: 8:30, 08:30:15, 8.05
	clockPattern = regexp.MustCompile(`\b\d{1,2}[:.]\d{2}(:\d{2})?\b`)

	// Dates: 2025-08-31, 1404/06/09, 08/31
	longDatePattern  = regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`)
	shortDatePattern = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}\b`)

	// Price tokens: grouped thousands, k-shorthand, bare 2-6 digit runs.
	// Alternative order matters, the first match at a position wins.
	numberPattern = regexp.MustCompile(`\d{1,3}([,\s]\d{3})+|\d{2,3}(\.\d{1,2})?\s*[kK]|\d{2,6}`)

	// Unit counts next to a currency word ("100 دلار"), not prices
	quantityPattern = regexp.MustCompile(`(\d{1,4})\s*(تا\s*)?(دلار|یورو|usd|eur|USD|EUR|\$|€)`)

	groupSeparators = strings.NewReplacer(",", "", " ", "")
)

// Band is the plausible magnitude range for a currency class. A zero Band
// accepts everything.
type Band struct {
	Min float64
	Max float64
}

// Contains reports whether the value falls inside the band
func (b Band) Contains(v float64) bool {
	if b.Min == 0 && b.Max == 0 {
		return true
	}

	return v >= b.Min && v <= b.Max
}

// Candidate is a single extracted price with the text window it came from
type Candidate struct {
	Span  string
	Value float64
}

// StripNoise removes phone numbers, clock times and dates from already
// normalized text. This must run before any number matching, or these
// tokens pollute the candidate set.
func StripNoise(s string) string {
	s = phonePattern.ReplaceAllString(s, " ")
	s = clockPattern.ReplaceAllString(s, " ")
	s = longDatePattern.ReplaceAllString(s, " ")
	s = shortDatePattern.ReplaceAllString(s, " ")

	return strings.Join(strings.Fields(s), " ")
}

// Numbers extracts raw numeric tokens from normalized text, expanding
// k-shorthand (93k -> 93000, 92.7k -> 92700) and dropping group separators.
// No magnitude scaling is applied here.
func Numbers(s string) []float64 {
	matches := numberPattern.FindAllString(StripNoise(s), -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]float64, 0, len(matches))

	for _, m := range matches {
		v, ok := parseNumber(m)
		if !ok {
			continue
		}

		out = append(out, v)
	}

	return out
}

// parseNumber parses one matched number token, expanding the k-shorthand
// and dropping group separators
func parseNumber(m string) (float64, bool) {
	m = strings.TrimSpace(m)

	if k := strings.TrimRight(m, "kK"); k != m {
		v, err := strconv.ParseFloat(strings.TrimSpace(k), 64)
		if err != nil {
			return 0, false
		}

		return math.Round(v * 1000), true
	}

	v, err := strconv.ParseFloat(groupSeparators.Replace(m), 64)
	if err != nil {
		return 0, false
	}

	return v, true
}

// scale applies the thousands-shorthand heuristic: a bare 2-3 digit number
// is a thousands-shorthand without the k suffix (93 means 93,000 Toman),
// values >= 10,000 are taken literally, and the ambiguous 4-digit middle
// ground is discarded.
func scale(v float64) (float64, bool) {
	switch {
	case v >= 10000:
		return v, true
	case v >= 10 && v <= 999:
		return v * 1000, true
	default:
		return 0, false
	}
}

// Values extracts scaled, band-filtered price values from raw text
func Values(text string, band Band) []float64 {
	raw := Numbers(farsi.Normalize(text))
	if len(raw) == 0 {
		return nil
	}

	out := make([]float64, 0, len(raw))

	for _, v := range raw {
		scaled, ok := scale(v)
		if !ok || !band.Contains(scaled) {
			continue
		}

		out = append(out, scaled)
	}

	return out
}

// Phone finds the first Iranian mobile number in the text, reduced to its
// bare digits. Sellers repost with fresh ids, so the phone number is the
// stable identity for crowd posts.
func Phone(text string) string {
	m := phonePattern.FindString(farsi.Normalize(text))
	if m == "" {
		return ""
	}

	var digits strings.Builder

	for _, r := range m {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	return strings.TrimPrefix(digits.String(), "98")
}

// Quantities finds unit counts adjacent to a currency word, so "100 دلار"
// does not masquerade as a 100,000 Toman price
func Quantities(text string) map[float64]struct{} {
	normalized := farsi.Normalize(text)

	out := make(map[float64]struct{})

	for _, m := range quantityPattern.FindAllStringSubmatch(normalized, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}

		out[v] = struct{}{}
	}

	return out
}

// token is one plausible price with its byte offsets in the text it was
// found in
type token struct {
	value  float64
	lo, hi int
}

// distance is the byte gap between the token and a keyword occupying
// [kwLo, kwHi); overlap counts as zero
func (t token) distance(kwLo, kwHi int) int {
	switch {
	case t.lo >= kwHi:
		return t.lo - kwHi
	case t.hi <= kwLo:
		return kwLo - t.hi
	default:
		return 0
	}
}

// maskNoise overwrites phone numbers, clock times and dates with filler
// of the same byte length, keeping every other offset intact
func maskNoise(s string) string {
	blank := func(m string) string {
		return strings.Repeat("#", len(m))
	}

	s = phonePattern.ReplaceAllStringFunc(s, blank)
	s = clockPattern.ReplaceAllStringFunc(s, blank)
	s = longDatePattern.ReplaceAllStringFunc(s, blank)
	s = shortDatePattern.ReplaceAllStringFunc(s, blank)

	return s
}

// locate finds scaled, band-filtered price tokens with their offsets.
// Noise is masked in place rather than stripped, so the offsets stay
// aligned with the input.
func locate(s string, band Band) []token {
	masked := maskNoise(s)

	var out []token

	for _, loc := range numberPattern.FindAllStringIndex(masked, -1) {
		v, ok := parseNumber(masked[loc[0]:loc[1]])
		if !ok {
			continue
		}

		scaled, ok := scale(v)
		if !ok || !band.Contains(scaled) {
			continue
		}

		out = append(out, token{value: scaled, lo: loc[0], hi: loc[1]})
	}

	return out
}

// Candidates finds plausible prices near the given keywords, ordered by
// keyword proximity first and text position second. When no keyword-anchored
// number exists, it falls back to the first plausible number anywhere in
// the text.
func Candidates(text string, keywords []string, band Band) []Candidate {
	normalized := farsi.Normalize(text)

	quantities := Quantities(normalized)

	admit := func(v float64) bool {
		// Quantities are matched pre-scaling, so check both forms
		if _, isQty := quantities[v]; isQty {
			return false
		}

		if _, isQty := quantities[v/1000]; isQty {
			return false
		}

		return true
	}

	type anchored struct {
		candidate Candidate
		distance  int
		position  int
	}

	var found []anchored

	runes := []rune(normalized)

	for _, kw := range keywords {
		needle := farsi.Normalize(kw)
		if needle == "" {
			continue
		}

		offset := 0

		for {
			idx := strings.Index(normalized[offset:], needle)
			if idx == -1 {
				break
			}

			// Convert the byte index to a rune index for windowing
			start := len([]rune(normalized[:offset+idx]))

			lo := max(0, start-windowRadius)
			hi := min(len(runes), start+len([]rune(needle))+windowRadius)

			span := string(runes[lo:hi])

			// Keyword bounds in span-local bytes, for the distance key
			kwLo := len(string(runes[lo:start]))
			kwHi := kwLo + len(needle)

			for _, tok := range locate(span, band) {
				if !admit(tok.value) {
					continue
				}

				found = append(found, anchored{
					candidate: Candidate{Span: span, Value: tok.value},
					distance:  tok.distance(kwLo, kwHi),
					position:  len(string(runes[:lo])) + tok.lo,
				})
			}

			offset += idx + len(needle)
		}
	}

	if len(found) == 0 {
		// No keyword-anchored number, take the first plausible one overall
		var out []Candidate

		for _, tok := range locate(normalized, band) {
			if !admit(tok.value) {
				continue
			}

			out = append(out, Candidate{Span: normalized, Value: tok.value})
		}

		return out
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].distance != found[j].distance {
			return found[i].distance < found[j].distance
		}

		return found[i].position < found[j].position
	})

	// The same number can land in overlapping keyword windows, keep its
	// closest occurrence only
	seen := make(map[int]struct{}, len(found))
	out := make([]Candidate, 0, len(found))

	for _, a := range found {
		if _, ok := seen[a.position]; ok {
			continue
		}

		seen[a.position] = struct{}{}

		out = append(out, a.candidate)
	}

	return out
}

// SplitUSDEUR tries to read an unlabeled number pair as (USD, EUR): the pair
// is accepted when the larger/smaller ratio lands within tolerancePct of the
// configured EUR/USD market ratio.
func SplitUSDEUR(nums []float64, ratio, tolerancePct float64) (float64, float64, bool) {
	if len(nums) < 2 {
		return 0, 0, false
	}

	if ratio <= 0 {
		ratio = DefaultEURUSDRatio
	}

	if tolerancePct <= 0 {
		tolerancePct = DefaultRatioTolerancePct
	}

	// Unique, ascending values
	seen := make(map[float64]struct{}, len(nums))
	unique := make([]float64, 0, len(nums))

	for _, n := range nums {
		if _, ok := seen[n]; ok || n <= 0 {
			continue
		}

		seen[n] = struct{}{}
		unique = append(unique, n)
	}

	for i := 0; i < len(unique); i++ {
		for j := 0; j < len(unique); j++ {
			if i == j {
				continue
			}

			small, big := unique[i], unique[j]
			if small >= big {
				continue
			}

			pct := (big/small - 1) * 100

			if math.Abs(pct-(ratio-1)*100) <= tolerancePct {
				return small, big, true
			}
		}
	}

	return 0, 0, false
}
