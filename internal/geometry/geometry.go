// Package geometry turns a rendered table region into a grid of cells:
// row bands come from clustering ink contours, column edges are projected
// from configured PDF-point dividers.
package geometry

import (
	"image"
	"math"
	"sort"
)

// PointsPerInch is the PDF user-space resolution.
const PointsPerInch = 72.0

// Scale returns the pixels-per-point factor for a render DPI.
func Scale(dpi float64) float64 {
	return dpi / PointsPerInch
}

// Area is a table region in PDF points, measured from the top-left corner.
type Area struct {
	Top    float64 `yaml:"top"`
	Left   float64 `yaml:"left"`
	Bottom float64 `yaml:"bottom"`
	Right  float64 `yaml:"right"`
}

// AreaFromSlice accepts the [top, left, bottom, right] form.
func AreaFromSlice(v []float64) Area {
	var a Area
	if len(v) == 4 {
		a = Area{Top: v[0], Left: v[1], Bottom: v[2], Right: v[3]}
	}
	return a
}

// Contains reports whether the point (x, y) in points lies inside the area.
func (a Area) Contains(x, y float64) bool {
	return x >= a.Left && x <= a.Right && y >= a.Top && y <= a.Bottom
}

// Pixels scales the area to pixel coordinates and clips it to bounds.
func (a Area) Pixels(scale float64, bounds image.Rectangle) image.Rectangle {
	r := image.Rect(
		int(a.Left*scale), int(a.Top*scale),
		int(a.Right*scale), int(a.Bottom*scale),
	).Add(bounds.Min)
	return r.Intersect(bounds)
}

// Band is a half-open pixel interval [Start, End) along one axis.
type Band struct {
	Start int
	End   int
}

// Height returns End-Start.
func (b Band) Height() int {
	return b.End - b.Start
}

// BandOptions tune row clustering.
type BandOptions struct {
	// Boxes with height <= MinHeight are treated as noise.
	MinHeight int `yaml:"min_height"`
	// Boxes closer than MergeGap pixels to the current band join it.
	MergeGap int `yaml:"merge_gap"`
	// Bands with height <= MinBand (before padding) are dropped.
	MinBand int `yaml:"min_band"`
	// Pad grows each band on both sides.
	Pad int `yaml:"pad"`
	// With fewer than MinRows bands, UniformRows equal slices are used instead.
	MinRows     int `yaml:"min_rows"`
	UniformRows int `yaml:"uniform_rows"`
}

// RowBands clusters contour boxes into ordered, non-overlapping row bands
// within an image of the given height.
func RowBands(boxes []image.Rectangle, height int, opt BandOptions) []Band {
	spans := make([]Band, 0, len(boxes))
	for _, b := range boxes {
		if b.Dy() > opt.MinHeight {
			spans = append(spans, Band{Start: b.Min.Y, End: b.Max.Y})
		}
	}

	merged := MergeBands(spans, opt.MergeGap)

	rows := make([]Band, 0, len(merged))
	for _, b := range merged {
		if b.Height() > opt.MinBand {
			rows = append(rows, b)
		}
	}
	rows = pad(rows, opt.Pad, height)

	if len(rows) < opt.MinRows && opt.UniformRows > 0 {
		return Uniform(height, opt.UniformRows)
	}
	return rows
}

// MergeBands sorts bands by start and greedily joins any band that begins
// less than gap pixels after the end of the current cluster. Its output is
// a fixed point: merging it again returns the same bands.
func MergeBands(bands []Band, gap int) []Band {
	if len(bands) == 0 {
		return nil
	}
	sorted := append([]Band(nil), bands...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	out := []Band{sorted[0]}
	for _, b := range sorted[1:] {
		cur := &out[len(out)-1]
		if b.Start-cur.End < gap {
			cur.End = max(cur.End, b.End)
			continue
		}
		out = append(out, b)
	}
	return out
}

// pad widens bands without crossing the image edges or a neighbouring band.
func pad(bands []Band, n, height int) []Band {
	if n <= 0 {
		return bands
	}
	out := make([]Band, len(bands))
	for i, b := range bands {
		lo := max(0, b.Start-n)
		hi := min(height, b.End+n)
		if i > 0 && lo < out[i-1].End {
			lo = out[i-1].End
		}
		if i+1 < len(bands) {
			hi = min(hi, max(b.End, bands[i+1].Start))
		}
		out[i] = Band{Start: lo, End: hi}
	}
	return out
}

// Uniform slices height into n equal bands; the remainder is left unused.
func Uniform(height, n int) []Band {
	if n <= 0 || height <= 0 {
		return nil
	}
	step := height / n
	if step == 0 {
		return []Band{{Start: 0, End: height}}
	}
	out := make([]Band, n)
	for i := range out {
		out[i] = Band{Start: i * step, End: (i + 1) * step}
	}
	return out
}

// ColumnEdges converts divider positions in points to pixel edges relative
// to the table region's left side. The result always starts at 0 and ends
// at the last pixel column, clamped to [0, width-1] and de-duplicated.
func ColumnEdges(dividers []float64, left, scale float64, width int) []int {
	if width <= 0 {
		return nil
	}
	raw := make([]int, 0, len(dividers)+2)
	raw = append(raw, 0)
	for _, d := range dividers {
		raw = append(raw, int(math.Floor((d-left)*scale)))
	}
	raw = append(raw, width)

	seen := make(map[int]bool, len(raw))
	edges := make([]int, 0, len(raw))
	for _, x := range raw {
		x = max(0, min(x, width-1))
		if !seen[x] {
			seen[x] = true
			edges = append(edges, x)
		}
	}
	sort.Ints(edges)
	return edges
}

// Cell is one grid intersection.
type Cell struct {
	Row    int
	Col    int
	Rect   image.Rectangle
	Column string
}

// Grid intersects row bands with column edges. Each cell may reach overlap
// pixels into its horizontal neighbours. Columns beyond names are labelled "".
func Grid(rows []Band, edges []int, overlap, width int, names []string) [][]Cell {
	grid := make([][]Cell, 0, len(rows))
	for ri, r := range rows {
		line := make([]Cell, 0, max(0, len(edges)-1))
		for ci := 0; ci+1 < len(edges); ci++ {
			x0 := max(0, edges[ci]-overlap)
			x1 := min(width, edges[ci+1]+overlap)
			name := ""
			if ci < len(names) {
				name = names[ci]
			}
			line = append(line, Cell{
				Row:    ri,
				Col:    ci,
				Rect:   image.Rect(x0, r.Start, x1, r.End),
				Column: name,
			})
		}
		grid = append(grid, line)
	}
	return grid
}
