package parser

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	pdflib "github.com/ledongthuc/pdf"

	"github.com/dgallion1/pricebot/internal/geometry"
	"github.com/dgallion1/pricebot/internal/tabular"
)

// defaultPageHeight is A4 in points, used when a page has no MediaBox.
const defaultPageHeight = 842.0

// word is a run of glyphs on one baseline, in top-origin points.
type word struct {
	X, Top, W, H float64
	S            string
}

func (w word) right() float64   { return w.X + w.W }
func (w word) centerX() float64 { return w.X + w.W/2 }
func (w word) centerY() float64 { return w.Top + w.H/2 }

// rule is a drawn rectangle in top-origin points.
type rule struct {
	X0, Top, X1, Bottom float64
}

type pdfPage struct {
	Num    int
	Height float64
	Words  []word
	Rules  []rule
}

// readPDF loads positioned words and drawn rectangles from every page.
func readPDF(path string) ([]pdfPage, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []pdfPage
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pg, err := readPage(page, i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, pg)
	}
	return pages, nil
}

func readPage(page pdflib.Page, num int) (pg pdfPage, err error) {
	// the content stream interpreter panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read content: %v", r)
		}
	}()

	height := defaultPageHeight
	if box := page.MediaBox(); box.Len() == 4 {
		height = box.Index(3).Float64() - box.Index(1).Float64()
	}

	content := page.Content()
	pg = pdfPage{Num: num, Height: height}
	pg.Words = groupWords(content.Text, height)
	for _, r := range content.Rect {
		pg.Rules = append(pg.Rules, rule{
			X0:     math.Min(r.Min.X, r.Max.X),
			X1:     math.Max(r.Min.X, r.Max.X),
			Top:    height - math.Max(r.Min.Y, r.Max.Y),
			Bottom: height - math.Min(r.Min.Y, r.Max.Y),
		})
	}
	return pg, nil
}

// groupWords joins glyphs that sit on the same baseline with no visible gap.
func groupWords(glyphs []pdflib.Text, height float64) []word {
	var words []word
	var cur *word
	var curY, curSize float64

	flush := func() {
		if cur != nil && strings.TrimSpace(cur.S) != "" {
			cur.S = strings.TrimSpace(cur.S)
			words = append(words, *cur)
		}
		cur = nil
	}

	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}
		size := g.FontSize
		if size <= 0 {
			size = 10
		}
		sameLine := cur != nil && math.Abs(g.Y-curY) < size*0.3
		gap := 0.0
		if cur != nil {
			gap = g.X - cur.right()
		}
		if !sameLine || gap > curSize*0.25 || gap < -curSize {
			flush()
		}
		if cur == nil {
			cur = &word{X: g.X, Top: height - g.Y - size, H: size}
			curY, curSize = g.Y, size
		}
		cur.S += g.S
		cur.W = math.Max(cur.W, g.X+g.W-cur.X)
	}
	flush()
	return words
}

// lines clusters words into reading-order lines by vertical position.
func lines(words []word) [][]word {
	if len(words) == 0 {
		return nil
	}
	sorted := append([]word(nil), words...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Top < sorted[j].Top })

	var out [][]word
	line := []word{sorted[0]}
	anchor := sorted[0].centerY()
	for _, w := range sorted[1:] {
		if math.Abs(w.centerY()-anchor) <= math.Max(2, w.H*0.5) {
			line = append(line, w)
			continue
		}
		out = append(out, line)
		line = []word{w}
		anchor = w.centerY()
	}
	out = append(out, line)
	for _, l := range out {
		sort.Slice(l, func(i, j int) bool { return l[i].X < l[j].X })
	}
	return out
}

// layoutTable slices the words inside area into rows by line and into
// columns by the divider x positions. Every page contributes rows.
func layoutTable(pages []pdfPage, area geometry.Area, dividers []float64) tabular.Table {
	var rows [][]string
	for _, pg := range pages {
		var inside []word
		for _, w := range pg.Words {
			if area.Contains(w.centerX(), w.centerY()) {
				inside = append(inside, w)
			}
		}
		for _, l := range lines(inside) {
			row := make([]string, len(dividers)+1)
			for _, w := range l {
				col := sort.SearchFloat64s(dividers, w.centerX())
				if row[col] != "" {
					row[col] += " "
				}
				row[col] += w.S
			}
			rows = append(rows, row)
		}
	}
	return tabular.FromRows(rows, nil)
}

var multiSpace = regexp.MustCompile(`\s{2,}`)

// pdftotextRows is the last resort when the PDF library cannot read a
// file: it runs pdftotext -layout and splits lines on wide gaps.
func pdftotextRows(ctx context.Context, path string) ([][]string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w", err)
	}
	var rows [][]string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(strings.ReplaceAll(line, "\f", ""))
		if line == "" {
			continue
		}
		rows = append(rows, multiSpace.Split(line, -1))
	}
	return rows, nil
}
