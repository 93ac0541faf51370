package parser

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgallion1/pricebot/internal/geometry"
	"github.com/dgallion1/pricebot/internal/ocr"
	"github.com/dgallion1/pricebot/internal/tabular"
)

// ocrTable renders the first page, segments the profile's table region into
// cells and reads every cell. Rows where every cell came back empty are
// dropped. The result is positional; the normalizer applies the header.
func (e *Extractor) ocrTable(ctx context.Context, path string, p *Profile, log *slog.Logger) (tabular.Table, error) {
	page, err := e.renderer.RenderPage(ctx, path, 0, p.DPI)
	if err != nil {
		return tabular.Table{}, err
	}

	scale := geometry.Scale(p.DPI)
	region := p.Area.Pixels(scale, page.Bounds())
	if region.Empty() {
		return tabular.Table{}, fmt.Errorf("table area %v is outside the page", p.Area)
	}

	gray := geometry.Grayscale(geometry.Crop(page, region))
	gray = geometry.MedianBlur(gray, p.Image.Median)
	gray = geometry.Enhance(gray, p.Image.Contrast)
	bw := geometry.Binarize(gray)

	width, height := bw.Rect.Dx(), bw.Rect.Dy()
	rows := geometry.RowBands(geometry.Contours(bw), height, p.Bands)
	edges := geometry.ColumnEdges(p.Columns, p.Area.Left, scale, width)
	grid := geometry.Grid(rows, edges, p.Overlap, width, p.Header)
	log.Debug("segmented table", "rows", len(rows), "columns", max(0, len(edges)-1))

	texts := make([][]string, len(grid))
	for i, r := range grid {
		texts[i] = make([]string, len(r))
	}

	type job struct{ row, col int }
	var jobs []job
	for ri, r := range grid {
		for ci := range r {
			jobs = append(jobs, job{ri, ci})
		}
	}

	sem := make(chan struct{}, e.workers)
	done := make(chan struct{}, len(jobs))
	for _, j := range jobs {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return tabular.Table{}, ctx.Err()
		}
		go func(j job) {
			defer func() {
				<-sem
				done <- struct{}{}
			}()
			c := grid[j.row][j.col]
			cfg := p.OCR.Config(c.Column, c.Rect.Dx())
			txt, err := ocr.ReadCell(ctx, e.recognizer, geometry.SubGray(bw, c.Rect), p.Cell, cfg)
			if err != nil {
				log.Warn("cell ocr failed", "row", j.row, "col", j.col, "column", c.Column, "error", err)
			}
			// each goroutine owns exactly one slot
			texts[j.row][j.col] = txt
		}(j)
	}
	for range jobs {
		<-done
	}

	var data [][]string
	for _, r := range texts {
		if !tabular.RowEmpty(r) {
			data = append(data, r)
		}
	}
	return tabular.FromRows(data, nil), nil
}
