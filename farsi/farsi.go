// Package farsi canonicalizes Persian/Arabic script so keyword matching
// and number extraction are script-invariant.
package farsi

import "strings"

// digitMap translates Persian (U+06F0..) and Arabic-Indic (U+0660..) digit
// glyphs, plus the Arabic decimal/thousands separators and comma, to ASCII.
var digitMap = map[rune]rune{
	'۰': '0', '۱': '1', '۲': '2', '۳': '3', '۴': '4',
	'۵': '5', '۶': '6', '۷': '7', '۸': '8', '۹': '9',
	'٠': '0', '١': '1', '٢': '2', '٣': '3', '٤': '4',
	'٥': '5', '٦': '6', '٧': '7', '٨': '8', '٩': '9',
	'٫': '.', '٬': ',', '،': ',',
}

// Digits converts digit and separator glyphs to their ASCII equivalents,
// leaving everything else (including layout) untouched.
func Digits(s string) string {
	if s == "" {
		return s
	}

	return strings.Map(func(r rune) rune {
		if mapped, ok := digitMap[r]; ok {
			return mapped
		}

		return r
	}, s)
}

// Normalize canonicalizes a Persian/Arabic text fragment:
//   - digit and separator glyphs become ASCII
//   - Arabic letter variants become Persian canonical forms (ي→ی, ك→ک)
//   - ZWNJ and combining diacritics become single spaces, so adjacent
//     words are never fused into a spurious token
//   - tatweel (kashida) is dropped, it only stretches a word visually
//   - whitespace runs collapse to one space, output is trimmed
//
// Total on any input, and idempotent.
func Normalize(s string) string {
	if s == "" {
		return s
	}

	var sb strings.Builder

	sb.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\u0640': // tatweel
			continue
		case r == '\u200c': // ZWNJ
			sb.WriteRune(' ')
		case r >= '\u064b' && r <= '\u0652': // combining diacritics
			sb.WriteRune(' ')
		case r == '\u064a': // Arabic yeh
			sb.WriteRune('ی')
		case r == '\u0643': // Arabic kaf
			sb.WriteRune('ک')
		default:
			if mapped, ok := digitMap[r]; ok {
				sb.WriteRune(mapped)

				continue
			}

			sb.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(sb.String()), " ")
}

// NormalizeLines normalizes each non-empty line separately, preserving the
// line structure parsers rely on for per-line currency markers.
func NormalizeLines(s string) []string {
	rawLines := strings.Split(s, "\n")
	out := make([]string, 0, len(rawLines))

	for _, line := range rawLines {
		normalized := Normalize(line)
		if normalized == "" {
			continue
		}

		out = append(out, normalized)
	}

	return out
}

// ContainsAny reports whether the normalized text contains any of the
// given keywords (themselves normalized before matching).
func ContainsAny(text string, keywords []string) bool {
	normalized := Normalize(text)

	for _, kw := range keywords {
		if kw == "" {
			continue
		}

		if strings.Contains(normalized, Normalize(kw)) {
			return true
		}
	}

	return false
}
