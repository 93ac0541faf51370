package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// KnownModels are the canonical miner names seen on vendor price lists.
var KnownModels = []string{
	"S21+", "S21 XP", "T21", "S21 Pro", "L9", "L7", "S19k pro",
	"S21+Hyd", "S21i+Hyd", "S21 XP Hyd", "M60s 18,5 W", "M61 19,9 W",
	"M60s+ 17 W", "DG 1+",
}

// DefaultCutoff is the minimum similarity for snapping to a known model.
const DefaultCutoff = 0.75

var (
	cyrToLat = strings.NewReplacer(
		"А", "A", "В", "B", "Е", "E", "К", "K", "М", "M", "Н", "H",
		"О", "O", "Р", "P", "С", "C", "Т", "T", "У", "Y", "Х", "X",
		"а", "a", "с", "c", "е", "e", "о", "o", "р", "p", "у", "y",
	)
	dgIt = regexp.MustCompile(`(?i)^DG\s+it`)
)

// ModelFixer repairs OCR'd model names.
type ModelFixer struct {
	Known  []string
	Cutoff float64
}

// NewModelFixer uses KnownModels when known is empty.
func NewModelFixer(known []string, cutoff float64) *ModelFixer {
	if len(known) == 0 {
		known = KnownModels
	}
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	return &ModelFixer{Known: known, Cutoff: cutoff}
}

// Fix transliterates look-alike Cyrillic letters, applies the manual
// overrides, then snaps to the closest known model if it is similar enough.
func (f *ModelFixer) Fix(s string) string {
	t := cyrToLat.Replace(strings.TrimSpace(s))
	if t == "" {
		return ""
	}

	switch strings.ToUpper(t) {
	case "LS", "L5", "L$":
		return "L9"
	}
	if strings.HasPrefix(t, "$") {
		t = "S" + t[1:]
	}
	if dgIt.MatchString(t) {
		return "DG 1+"
	}
	return f.closest(t)
}

func (f *ModelFixer) closest(t string) string {
	best, bestScore := "", -1.0
	for _, k := range f.Known {
		if score := similarity(t, k); score > bestScore {
			best, bestScore = k, score
		}
	}
	if bestScore >= f.Cutoff {
		return best
	}
	return t
}

// similarity is 1 - levenshtein/longer, in [0, 1].
func similarity(a, b string) float64 {
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 1
	}
	return 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(n)
}
