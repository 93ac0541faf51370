// Package normalize cleans raw OCR and layout-extraction text into the
// values that end up in the exported price tables.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	spaceRun     = regexp.MustCompile(`\s{2,}`)
	bareHashUnit = regexp.MustCompile(`\b(\d+)\s*h/s\b`)
	slashZero    = regexp.MustCompile(`(?i)(\d)/0\s*Th`)
	nonDigit     = regexp.MustCompile(`[^0-9]`)
	availCyr     = regexp.MustCompile(`(?i)(?:в|b)\s*на[лн]ич[ие][a-zа-я]*`)
	availLat     = regexp.MustCompile(`(?i)B\s*H[an]+u[yu]+n`)
	ruMonth      = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(янв\p{L}*|фев\p{L}*|мар\p{L}*|апр\p{L}*|ма[йя]|июн\p{L}*|июл\p{L}*|авг\p{L}*|сен\p{L}*|окт\p{L}*|ноя\p{L}*|дек\p{L}*)`)
	dayCount     = regexp.MustCompile(`(\d+\s*-\s*\d+|\d+)\s+(\p{L}+)`)
	digitLetter  = regexp.MustCompile(`(\d)([A-Za-zА-Яа-яЁё])`)
	dollarSuffix = regexp.MustCompile(`\b(\d+)\s*s1?\b`)
	leadingBars  = regexp.MustCompile(`^[|Il]+\s*`)
)

// Available is the canonical in-stock label.
const Available = "В наличии"

var unitFixes = strings.NewReplacer(
	"Мh/s", "Mh/s",
	"Мх/s", "Mh/s",
)

// Null trims s and maps dash-like placeholders to the empty null marker.
func Null(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "", "-", "–", "—":
		return ""
	}
	return s
}

// CollapseSpaces squeezes runs of whitespace to a single space and trims.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// FixUnits repairs Cyrillic look-alikes in hashrate units and restores a
// dropped magnitude prefix: a bare "<n> h/s" becomes Gh/s below 1000 and
// Mh/s from 1000 up.
func FixUnits(s string) string {
	s = unitFixes.Replace(s)
	m := bareHashUnit.FindStringSubmatchIndex(s)
	if m == nil {
		return s
	}
	n, err := strconv.Atoi(s[m[2]:m[3]])
	if err != nil {
		return s
	}
	unit := "Mh/s"
	if n < 1000 {
		unit = "Gh/s"
	}
	return s[:m[0]] + s[m[2]:m[3]] + " " + unit + s[m[1]:]
}

// SlashZero fixes "1/0 Th" read where the template prints "170 Th".
func SlashZero(s string) string {
	return slashZero.ReplaceAllString(s, "${1}70 Th")
}

// Digits keeps only ASCII digits.
func Digits(s string) string {
	return nonDigit.ReplaceAllString(s, "")
}

// HasDigit reports whether s contains an ASCII digit.
func HasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

// Availability rewrites OCR variants of "в наличии" to Available.
func Availability(s string) string {
	return availCyr.ReplaceAllString(s, Available)
}

// AvailabilityLatin handles the variant where every letter was read as a
// Latin look-alike ("B Hanuyun" and friends).
func AvailabilityLatin(s string) string {
	return availLat.ReplaceAllString(s, Available)
}

// Months capitalizes Russian month names and their abbreviations.
func Months(s string) string {
	return ruMonth.ReplaceAllStringFunc(s, func(m string) string {
		r, size := utf8.DecodeRuneInString(m)
		if unicode.IsLetter(r) {
			return capitalize(m)
		}
		return m[:size] + capitalize(m[size:])
	})
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

// DayCounts rewrites "<n> <short word>" and "<a>-<b> <short word>" as days,
// since delivery terms in scans come out as "14 gHei" and similar. Words
// followed by "/" are units and stay untouched.
func DayCounts(s string) string {
	idx := dayCount.FindAllStringSubmatchIndex(s, -1)
	if idx == nil {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range idx {
		start, end := m[0], m[1]
		word := s[m[4]:m[5]]
		if n := utf8.RuneCountInString(word); n < 2 || n > 4 {
			continue
		}
		if start > 0 {
			if r, _ := utf8.DecodeLastRuneInString(s[:start]); unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
				continue
			}
		}
		if end < len(s) && s[end] == '/' {
			continue
		}
		b.WriteString(s[last:start])
		b.WriteString(s[m[2]:m[3]])
		b.WriteString(" дней")
		last = end
	}
	b.WriteString(s[last:])
	return b.String()
}

// SpaceDigitLetter separates a number from a glued unit: "9050Mh/s" -> "9050 Mh/s".
func SpaceDigitLetter(s string) string {
	return digitLetter.ReplaceAllString(s, "${1} ${2}")
}

// DollarSuffix turns a misread "$" after a price ("3700 s", "3700s1") back
// into "$".
func DollarSuffix(s string) string {
	return dollarSuffix.ReplaceAllString(s, "${1} $$")
}

// LeadingBars strips table-border residue from the start of a cell.
func LeadingBars(s string) string {
	return leadingBars.ReplaceAllString(s, "")
}
