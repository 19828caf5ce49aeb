package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/iranianx/rate/farsi"
)

// Shape selects the extraction logic for a source
type Shape string

const (
	// ShapeSingle is a single keyword-anchored value (ranges averaged)
	ShapeSingle Shape = "single"

	// ShapeBuySellMid is an explicit buy/sell split with a derived mid
	ShapeBuySellMid Shape = "buy-sell-mid"

	// ShapeDualCurrency is a USD+EUR post disambiguated per line
	ShapeDualCurrency Shape = "dual-currency"
)

// Rule is the declarative extraction rule for one source
type Rule struct {
	Needle  string
	Shape   Shape
	Include []string
	Exclude []string
}

// Matches reports whether a post text passes the rule's include/exclude
// keyword filters. The needle, when set, is required as well.
func (r Rule) Matches(text string) bool {
	if r.Needle != "" &&
		!strings.Contains(farsi.Normalize(text), farsi.Normalize(r.Needle)) {
		return false
	}

	if len(r.Include) > 0 && !farsi.ContainsAny(text, r.Include) {
		return false
	}

	return !farsi.ContainsAny(text, r.Exclude)
}

// Quote is a price extracted from a single post. Value is always set and
// never zero; Buy/Sell/Min/Max are present only when the source provided
// them.
type Quote struct {
	Buy  *float64
	Sell *float64
	Min  *float64
	Max  *float64

	Value float64
	Raw   string
}

// Extraction is the outcome of running a rule against post text
type Extraction struct {
	USD *Quote
	EUR *Quote
}

// Config carries the extraction tunables, calibrated per currency class
type Config struct {
	USDBand Band
	EURBand Band

	EURUSDRatio       float64
	RatioTolerancePct float64
}

// DefaultConfig returns extraction defaults for the Toman cash market
func DefaultConfig() Config {
	return Config{
		USDBand:           Band{Min: 80_000, Max: 130_000},
		EURBand:           Band{Min: 85_000, Max: 160_000},
		EURUSDRatio:       DefaultEURUSDRatio,
		RatioTolerancePct: DefaultRatioTolerancePct,
	}
}

var (
	buyPattern  = regexp.MustCompile(`خرید\s*[:\-]?\s*([0-9][0-9.,\s]*)`)
	sellPattern = regexp.MustCompile(`فروش\s*[:\-]?\s*([0-9][0-9.,\s]*)`)

	tetherRatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`نرخ\s*تتر[^0-9]*([0-9][0-9.,\s]*)`),
		regexp.MustCompile(`تتر\s*[:\-]?\s*([0-9][0-9.,\s]*)`),
	}

	// Iraqi Dinar magnitudes overlap the USD/EUR band, so any line that
	// mentions it is excluded outright
	dinarPattern = regexp.MustCompile(`(^|\s)(دینار|عراق|IQD|iqd|د\.ع)(\s|$)`)

	eurMarkers = []string{"EUR", "eur", "€", "یورو"}
	usdMarkers = []string{"USD", "usd", "$", "دلار"}

	// "دلار استرالیا" / "دلار کانادا" are different markets
	usdFalseFriends = []string{"استرالیا", "کانادا"}
)

// Parse dispatches to the shape-specific parser for the rule
func Parse(rule Rule, cfg Config, text string) Extraction {
	switch rule.Shape {
	case ShapeBuySellMid:
		return Extraction{USD: ParseBuySell(text, rule, cfg)}
	case ShapeDualCurrency:
		usd, eur := ParseDual(text, rule.Needle, cfg)

		return Extraction{USD: usd, EUR: eur}
	default:
		return Extraction{USD: ParseSingle(text, rule, cfg.USDBand)}
	}
}

// ParseSingle extracts one value from lines matching the rule, averaging
// the min/max of paired low/high notation. Returns nil when no plausible
// number is found.
func ParseSingle(text string, rule Rule, band Band) *Quote {
	lines := farsi.NormalizeLines(text)

	matching := make([]string, 0, len(lines))

	for _, line := range lines {
		if farsi.ContainsAny(line, rule.Include) && !farsi.ContainsAny(line, rule.Exclude) {
			matching = append(matching, line)
		}
	}

	target := matching
	if len(target) == 0 {
		target = lines
	}

	var nums []float64

	for _, line := range target {
		nums = append(nums, Values(line, band)...)
	}

	if len(nums) == 0 {
		return nil
	}

	if len(nums) >= 2 {
		lo, hi := minMax(nums)
		avg := math.Round((lo + hi) / 2)

		return &Quote{
			Value: avg,
			Min:   ptr(lo),
			Max:   ptr(hi),
			Raw:   strings.Join(target, " | "),
		}
	}

	return &Quote{
		Value: nums[0],
		Raw:   target[0],
	}
}

// ParseBuySell extracts labeled buy/sell values, swapping a mislabeled
// pair (sell must be >= buy: the trader sells higher than they buy) and
// deriving mid. Falls back to the single-value parser when neither label
// is present.
func ParseBuySell(text string, rule Rule, cfg Config) *Quote {
	normalized := farsi.Normalize(text)

	buy := matchLabeled(buyPattern, normalized)
	sell := matchLabeled(sellPattern, normalized)

	if buy == 0 && sell == 0 {
		base := ParseSingle(text, rule, cfg.USDBand)
		if base == nil {
			return nil
		}

		return &Quote{
			Value: base.Value,
			Raw:   base.Raw,
		}
	}

	if buy != 0 && sell != 0 && sell < buy {
		buy, sell = sell, buy
	}

	q := &Quote{Raw: normalized}

	switch {
	case buy != 0 && sell != 0:
		q.Buy, q.Sell = ptr(buy), ptr(sell)
		q.Value = math.Round((buy + sell) / 2)
	case buy != 0:
		q.Buy = ptr(buy)
		q.Value = buy
	default:
		q.Sell = ptr(sell)
		q.Value = sell
	}

	return q
}

// ParseTether extracts a USDT quote: labeled buy/sell when present, a
// combined "نرخ تتر N" phrasing otherwise
func ParseTether(text string) *Quote {
	normalized := farsi.Normalize(text)

	buy := matchLabeled(buyPattern, normalized)
	sell := matchLabeled(sellPattern, normalized)

	if buy != 0 && sell != 0 && sell < buy {
		buy, sell = sell, buy
	}

	q := &Quote{Raw: normalized}

	switch {
	case buy != 0 && sell != 0:
		q.Buy, q.Sell = ptr(buy), ptr(sell)
		q.Value = math.Round((buy + sell) / 2)
	case sell != 0:
		q.Sell = ptr(sell)
		q.Value = sell
	case buy != 0:
		q.Buy = ptr(buy)
		q.Value = buy
	default:
		for _, pattern := range tetherRatePatterns {
			if rate := matchLabeled(pattern, normalized); rate != 0 {
				q.Value = rate

				break
			}
		}
	}

	if q.Value == 0 {
		return nil
	}

	return q
}

// ParseDual extracts USD and EUR from a single post. The needle line (when
// present) is read first: EUR-marked ranges are averaged, anything else is
// treated as USD. Remaining lines are then scanned for whichever currency
// is still missing, and an unlabeled pair is split by the EUR/USD market
// ratio as a last resort. Lines mentioning the Iraqi Dinar are dropped
// before anything else.
func ParseDual(text, needle string, cfg Config) (*Quote, *Quote) {
	allLines := farsi.NormalizeLines(text)

	lines := make([]string, 0, len(allLines))

	for _, line := range allLines {
		if dinarPattern.MatchString(line) {
			continue
		}

		lines = append(lines, line)
	}

	var usd, eur *Quote

	eurFromLine := func(line string) *Quote {
		nums := Values(line, cfg.EURBand)
		if len(nums) == 0 {
			return nil
		}

		lo, hi := minMax(nums)

		return &Quote{
			Value: math.Round((lo + hi) / 2),
			Min:   ptr(lo),
			Max:   ptr(hi),
			Raw:   line,
		}
	}

	usdFromLine := func(line string) *Quote {
		nums := Values(line, cfg.USDBand)
		if len(nums) == 0 {
			return nil
		}

		return &Quote{
			Value: nums[0],
			Raw:   line,
		}
	}

	// Priority: the line carrying the needle phrase
	if needle != "" {
		normalizedNeedle := farsi.Normalize(needle)

		for _, line := range lines {
			if !strings.Contains(line, normalizedNeedle) {
				continue
			}

			if isEURLine(line) {
				eur = eurFromLine(line)
			} else {
				usd = usdFromLine(line)
			}

			break
		}
	}

	// Lines carrying both currency markers are ambiguous per-line, leave
	// them to the ratio split below
	if eur == nil {
		for _, line := range lines {
			if !isEURLine(line) || isUSDLine(line) {
				continue
			}

			if eur = eurFromLine(line); eur != nil {
				break
			}
		}
	}

	if usd == nil {
		for _, line := range lines {
			if !isUSDLine(line) || isEURLine(line) {
				continue
			}

			if usd = usdFromLine(line); usd != nil {
				break
			}
		}
	}

	// Currency labels may sit apart from their numbers: fall back to
	// splitting an unlabeled pair by the market ratio
	if usd == nil || eur == nil {
		joined := strings.Join(lines, " ")

		if farsi.ContainsAny(joined, usdMarkers) && farsi.ContainsAny(joined, eurMarkers) {
			nums := Values(joined, Band{})

			if small, big, ok := SplitUSDEUR(nums, cfg.EURUSDRatio, cfg.RatioTolerancePct); ok {
				if usd == nil && cfg.USDBand.Contains(small) {
					usd = &Quote{Value: small, Raw: joined}
				}

				if eur == nil && cfg.EURBand.Contains(big) {
					eur = &Quote{Value: big, Raw: joined}
				}
			}
		}
	}

	return usd, eur
}

// matchLabeled pulls the number following a label pattern, returning 0
// when absent
func matchLabeled(pattern *regexp.Regexp, normalized string) float64 {
	m := pattern.FindStringSubmatch(normalized)
	if m == nil {
		return 0
	}

	var digits strings.Builder

	for _, r := range m[1] {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	if digits.Len() == 0 {
		return 0
	}

	v, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil {
		return 0
	}

	return v
}

func isEURLine(line string) bool {
	return farsi.ContainsAny(line, eurMarkers)
}

func isUSDLine(line string) bool {
	if !farsi.ContainsAny(line, usdMarkers) {
		return false
	}

	// "دلار" alone may refer to a different dollar market
	if !strings.Contains(line, "$") &&
		!strings.Contains(strings.ToLower(line), "usd") &&
		farsi.ContainsAny(line, usdFalseFriends) {
		return false
	}

	return true
}

func minMax(nums []float64) (float64, float64) {
	lo, hi := nums[0], nums[0]

	for _, n := range nums[1:] {
		lo = min(lo, n)
		hi = max(hi, n)
	}

	return lo, hi
}

func ptr(v float64) *float64 {
	return &v
}
