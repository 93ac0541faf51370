package parser

import (
	"math"
	"sort"

	"github.com/dgallion1/pricebot/internal/tabular"
)

const (
	// streamGap is the horizontal gap, in multiples of the font height,
	// that separates two cells on one line.
	streamGap = 1.0
	// anchorTolerance merges column starts closer than this many points.
	anchorTolerance = 8.0
	// ruleTolerance merges ruling line positions closer than this.
	ruleTolerance = 2.0
)

// streamTables finds runs of consecutive multi-cell lines and aligns each
// run into a table by clustering the x positions where cells start.
func streamTables(pages []pdfPage) []tabular.Table {
	var tables []tabular.Table
	for _, pg := range pages {
		var run [][]textCell
		flush := func() {
			if len(run) >= 2 {
				if t := alignRun(run); !t.Empty() {
					tables = append(tables, t)
				}
			}
			run = nil
		}
		for _, l := range lines(pg.Words) {
			cells := splitCells(l)
			if len(cells) < 2 {
				flush()
				continue
			}
			run = append(run, cells)
		}
		flush()
	}
	return tables
}

type textCell struct {
	X    float64
	Text string
}

func splitCells(l []word) []textCell {
	var out []textCell
	for i, w := range l {
		if i > 0 && w.X-l[i-1].right() <= w.H*streamGap {
			out[len(out)-1].Text += " " + w.S
			continue
		}
		out = append(out, textCell{X: w.X, Text: w.S})
	}
	return out
}

func alignRun(run [][]textCell) tabular.Table {
	var xs []float64
	for _, r := range run {
		for _, c := range r {
			xs = append(xs, c.X)
		}
	}
	anchors := clusterPositions(xs, anchorTolerance)

	rows := make([][]string, 0, len(run))
	for _, r := range run {
		row := make([]string, len(anchors))
		for _, c := range r {
			i := nearest(anchors, c.X)
			if row[i] != "" {
				row[i] += " "
			}
			row[i] += c.Text
		}
		rows = append(rows, row)
	}
	return headed(rows)
}

// latticeTables builds one grid per page from drawn ruling lines and
// cell borders, then drops words into the grid cells.
func latticeTables(pages []pdfPage) []tabular.Table {
	var tables []tabular.Table
	for _, pg := range pages {
		var xs, ys []float64
		for _, r := range pg.Rules {
			w, h := r.X1-r.X0, r.Bottom-r.Top
			switch {
			case h <= ruleTolerance && w > ruleTolerance:
				ys = append(ys, (r.Top+r.Bottom)/2)
			case w <= ruleTolerance && h > ruleTolerance:
				xs = append(xs, (r.X0+r.X1)/2)
			case w > ruleTolerance && h > ruleTolerance:
				xs = append(xs, r.X0, r.X1)
				ys = append(ys, r.Top, r.Bottom)
			}
		}
		cols := clusterPositions(xs, ruleTolerance)
		rowsY := clusterPositions(ys, ruleTolerance)
		if len(cols) < 2 || len(rowsY) < 2 {
			continue
		}

		grid := make([][]string, len(rowsY)-1)
		for i := range grid {
			grid[i] = make([]string, len(cols)-1)
		}
		for _, l := range lines(pg.Words) {
			for _, w := range l {
				ri := interval(rowsY, w.centerY())
				ci := interval(cols, w.centerX())
				if ri < 0 || ci < 0 {
					continue
				}
				if grid[ri][ci] != "" {
					grid[ri][ci] += " "
				}
				grid[ri][ci] += w.S
			}
		}

		var rows [][]string
		for _, r := range grid {
			if !tabular.RowEmpty(r) {
				rows = append(rows, r)
			}
		}
		if t := headed(rows); !t.Empty() {
			tables = append(tables, t.DropEmptyColumns())
		}
	}
	return tables
}

// clusterPositions sorts positions and merges those within tol, returning
// each cluster's first position.
func clusterPositions(vs []float64, tol float64) []float64 {
	if len(vs) == 0 {
		return nil
	}
	s := append([]float64(nil), vs...)
	sort.Float64s(s)
	out := []float64{s[0]}
	last := s[0]
	for _, v := range s[1:] {
		if v-last > tol {
			out = append(out, v)
		}
		last = v
	}
	return out
}

func nearest(anchors []float64, x float64) int {
	best, dist := 0, math.Inf(1)
	for i, a := range anchors {
		if d := math.Abs(a - x); d < dist {
			best, dist = i, d
		}
	}
	return best
}

// interval returns i such that edges[i] <= v < edges[i+1], or -1.
func interval(edges []float64, v float64) int {
	if v < edges[0] || v >= edges[len(edges)-1] {
		return -1
	}
	return sort.SearchFloat64s(edges, v+1e-9) - 1
}

// headed turns the first row into the header when it is complete and
// unique, and uses positional names otherwise.
func headed(rows [][]string) tabular.Table {
	if len(rows) < 2 {
		return tabular.FromRows(rows, nil)
	}
	seen := map[string]bool{}
	for _, h := range rows[0] {
		if h == "" || seen[h] {
			return tabular.FromRows(rows, nil)
		}
		seen[h] = true
	}
	return tabular.FromRows(rows[1:], rows[0])
}
