package normalize

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/pricebot/internal/ocr"
	"github.com/dgallion1/pricebot/internal/tabular"
)

// ErrWidthMismatch means a layout table did not come out with the number of
// columns its template prints.
var ErrWidthMismatch = errors.New("table width mismatch")

// Normalizer cleans one vendor's raw table.
type Normalizer interface {
	// Cell cleans a single value for the named column.
	Cell(value, column string) string
	// Table cleans a whole raw table, drops junk rows and may reject the
	// table outright.
	Table(t tabular.Table) (tabular.Table, error)
}

// Options configure a normalizer from its vendor profile.
type Options struct {
	Header  []string
	Garbage GarbageFilter
	Models  *ModelFixer
}

func (o Options) models() *ModelFixer {
	if o.Models == nil {
		return NewModelFixer(nil, 0)
	}
	return o.Models
}

// Lookup returns the normalizer registered under name.
func Lookup(name string, opts Options) (Normalizer, error) {
	switch strings.ToLower(name) {
	case "ibmm":
		return &IBMM{Header: opts.Header}, nil
	case "uminers":
		return &Uminers{Header: opts.Header, Garbage: opts.Garbage, Models: opts.models()}, nil
	case "promminer":
		return &Promminer{Header: opts.Header, Garbage: opts.Garbage}, nil
	case "generic", "":
		return Generic{}, nil
	default:
		return nil, fmt.Errorf("unknown normalizer %q", name)
	}
}

// Generic only nulls placeholders and squeezes whitespace.
type Generic struct{}

func (Generic) Cell(v, _ string) string {
	return CollapseSpaces(Null(v))
}

func (g Generic) Table(t tabular.Table) (tabular.Table, error) {
	return t.Map(g.Cell).DropEmptyColumns().DropEmptyRows(), nil
}

// IBMM cleans coordinate-sliced tables from the IBMM template.
type IBMM struct {
	Header []string
}

func (IBMM) Cell(v, _ string) string {
	return Null(v)
}

func (n *IBMM) Table(t tabular.Table) (tabular.Table, error) {
	t = t.Map(n.Cell).DropEmptyColumns()

	t = t.Filter(func(r []string) bool {
		if len(r) == 0 {
			return false
		}
		if strings.ToLower(r[0]) == "модель" {
			return false
		}
		// model only, or a wrapped name spilling into the second column
		if len(r) < 3 || tabular.RowEmpty(r[2:]) {
			return false
		}
		return true
	})

	if t.Width() != len(n.Header) {
		return tabular.Table{}, fmt.Errorf("%w: expected %d columns, got %d", ErrWidthMismatch, len(n.Header), t.Width())
	}
	return tabular.Table{Columns: slices.Clone(n.Header), Rows: t.Rows}, nil
}

// Uminers cleans per-cell OCR output from the Uminers template.
type Uminers struct {
	Header  []string
	Garbage GarbageFilter
	Models  *ModelFixer
}

func (n *Uminers) Cell(v, column string) string {
	t := Null(v)
	if t == "" {
		return ""
	}
	switch ocr.KindOf(column) {
	case ocr.Model:
		return n.Models.Fix(t)
	case ocr.Note:
		return strings.TrimSpace(Months(Availability(t)))
	}
	t = FixUnits(SlashZero(unitFixes.Replace(t)))
	t = Months(Availability(t))
	return CollapseSpaces(t)
}

func (n *Uminers) Table(t tabular.Table) (tabular.Table, error) {
	t = fitHeader(t, n.Header)
	t = t.Map(func(v, column string) string {
		if slices.Contains(n.Garbage.PriceColumns, column) {
			return Digits(v)
		}
		return v
	})
	t = n.Garbage.Apply(t)
	return t.Map(n.Cell), nil
}

// Promminer cleans per-cell OCR output from the Promminer template.
type Promminer struct {
	Header  []string
	Garbage GarbageFilter
}

func (Promminer) Cell(v, _ string) string {
	t := LeadingBars(strings.TrimSpace(v))
	t = unitFixes.Replace(t)
	t = AvailabilityLatin(t)
	t = DayCounts(t)
	t = SpaceDigitLetter(t)
	t = DollarSuffix(t)
	t = FixUnits(t)
	return CollapseSpaces(t)
}

func (n *Promminer) Table(t tabular.Table) (tabular.Table, error) {
	t = fitHeader(t, n.Header)
	t = t.Filter(func(r []string) bool {
		return len(r) > 0 && utf8.RuneCountInString(r[0]) > 3
	})
	t = t.Map(n.Cell)
	return n.Garbage.Apply(t), nil
}

// fitHeader relabels a positional OCR table with the profile header,
// dropping any extra columns.
func fitHeader(t tabular.Table, header []string) tabular.Table {
	if len(header) == 0 {
		return t
	}
	return tabular.FromRows(t.Rows, header)
}
