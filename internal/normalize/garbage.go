package normalize

import (
	"fmt"
	"strings"

	"github.com/dgallion1/pricebot/internal/tabular"
)

// Policy decides how the price and hashrate checks combine.
type Policy string

const (
	// PolicyAnd keeps a row when a price column AND the hashrate column have digits.
	PolicyAnd Policy = "and"
	// PolicyOr keeps a row when either has a digit.
	PolicyOr Policy = "or"
	// PolicyNone keeps every row.
	PolicyNone Policy = "none"
)

// ParsePolicy accepts "and", "or", "none"; empty means none.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyAnd, PolicyOr, PolicyNone:
		return p, nil
	case "":
		return PolicyNone, nil
	default:
		return "", fmt.Errorf("unknown garbage policy %q", s)
	}
}

// GarbageFilter drops rows that carry neither a price nor a hashrate.
type GarbageFilter struct {
	Policy         Policy   `yaml:"policy"`
	PriceColumns   []string `yaml:"price_columns"`
	HashrateColumn string   `yaml:"hashrate_column"`
}

// Keep reports whether a row survives. cols maps the table header.
func (g GarbageFilter) Keep(row, cols []string) bool {
	if g.Policy == PolicyNone || g.Policy == "" {
		return true
	}
	price := false
	for _, name := range g.PriceColumns {
		if i := indexOf(cols, name); i >= 0 && i < len(row) && HasDigit(row[i]) {
			price = true
			break
		}
	}
	hash := false
	if i := indexOf(cols, g.HashrateColumn); i >= 0 && i < len(row) {
		hash = HasDigit(row[i])
	}
	if g.Policy == PolicyOr {
		return price || hash
	}
	return price && hash
}

// Apply returns t without the garbage rows.
func (g GarbageFilter) Apply(t tabular.Table) tabular.Table {
	return t.Filter(func(row []string) bool { return g.Keep(row, t.Columns) })
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
