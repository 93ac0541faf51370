package parser

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/pricebot/internal/ocr"
	"github.com/dgallion1/pricebot/internal/tabular"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRoute(t *testing.T) {
	ps, err := DefaultProfiles()
	require.NoError(t, err)

	tests := map[string]string{
		"ibmm_march.pdf":           "ibmm",
		"/data/IBM-price.pdf":      "ibmm",
		"Promminer_2024.pdf":       "promminer",
		"Рустехмаш прайс.pdf":      "uminers",
		"uminers.pdf":              "uminers",
		"my ibmm price.pdf":        "default",
		"collection/asic_list.pdf": "default",
	}
	for path, want := range tests {
		assert.Equal(t, want, ps.Route(path).Name, path)
	}
	assert.Equal(t, []string{"ibmm", "promminer", "uminers", "default"}, ps.Names())
}

func TestDefaultProfilesDecode(t *testing.T) {
	ps, err := DefaultProfiles()
	require.NoError(t, err)

	ibmm := ps.Route("ibmm.pdf")
	assert.Equal(t, MethodLayout, ibmm.Method)
	assert.Len(t, ibmm.Header, 7)
	assert.Equal(t, 580.0, ibmm.Area.Right)

	prom := ps.Route("promminer.pdf")
	assert.Equal(t, 2, prom.Overlap)
	assert.Equal(t, 20, prom.Bands.UniformRows)
	assert.Equal(t, 6, prom.OCR.Config("Модель", 300).PSM)
	assert.Equal(t, "0123456789$Th/sWwГгМмдней.", prom.OCR.Config("Модель", 120).Whitelist)

	um := ps.Route("uminers.pdf")
	assert.Equal(t, ocr.NoteConfig, um.OCR.Config("Примечание", 10))
	assert.Equal(t, 100, um.Cell.MinArea)
	assert.True(t, um.FallbackGeneric)
}

func TestParseProfilesRejectsBadArea(t *testing.T) {
	_, err := ParseProfiles([]byte(`
profiles:
  - name: broken
    prefixes: [x]
    method: layout
    normalizer: ibmm
    area: [1, 2, 3]
    header: [a]
`))
	assert.Error(t, err)

	_, err = ParseProfiles([]byte(`
profiles:
  - name: broken
    prefixes: [x]
    method: magic
`))
	assert.Error(t, err)
}

// ibmmPage lays words out on the IBMM grid, one line per row, with each
// value centred in its column.
func ibmmPage(rows ...[]string) pdfPage {
	centres := []float64{80, 190, 290, 370, 435, 500, 555}
	pg := pdfPage{Num: 1, Height: 842}
	for ri, r := range rows {
		top := 130 + float64(ri)*15
		for ci, s := range r {
			if s == "" {
				continue
			}
			pg.Words = append(pg.Words, word{X: centres[ci] - 10, W: 20, Top: top, H: 10, S: s})
		}
	}
	return pg
}

func TestIBMMLayoutWidth(t *testing.T) {
	ps, err := DefaultProfiles()
	require.NoError(t, err)
	p := ps.Route("ibmm_march.pdf")

	seven := ibmmPage(
		[]string{"Модель", "Хэшрейт", "Потребление", "Цена", "Цена", "Цена", "Цена"},
		[]string{"S21", "200Th", "3500W", "540000", "6000", "530000", "5900"},
		[]string{"T21", "190Th", "3610W", "-", "4100", "", "4000"},
	)
	got, err := p.Normalizer().Table(layoutTable([]pdfPage{seven}, p.Area, p.Columns))
	require.NoError(t, err)
	assert.Equal(t, p.Header, got.Columns)
	require.Len(t, got.Rows, 2)
	assert.Equal(t, []string{"S21", "200Th", "3500W", "540000", "6000", "530000", "5900"}, got.Rows[0])
	assert.Equal(t, "", got.Rows[1][3])

	six := ibmmPage(
		[]string{"S21", "200Th", "3500W", "540000", "6000", "530000", ""},
	)
	_, err = p.Normalizer().Table(layoutTable([]pdfPage{six}, p.Area, p.Columns))
	assert.True(t, errors.Is(err, ErrWidthMismatch))
}

func TestExtractNeverFails(t *testing.T) {
	ps, err := DefaultProfiles()
	require.NoError(t, err)
	e := NewExtractor(ps, nil, nil, 2, discard())

	got := e.Extract(context.Background(), filepath.Join(t.TempDir(), "ibmm_march.pdf"))
	assert.True(t, got.Empty())

	got = e.Extract(context.Background(), filepath.Join(t.TempDir(), "notes.txt"))
	assert.True(t, got.Empty())
}

func TestStreamTables(t *testing.T) {
	pg := pdfPage{Words: []word{
		{X: 10, W: 30, Top: 100, H: 10, S: "Model"},
		{X: 100, W: 30, Top: 100, H: 10, S: "Price"},
		{X: 200, W: 30, Top: 100, H: 10, S: "Stock"},
		{X: 10, W: 20, Top: 115, H: 10, S: "S21"},
		{X: 33, W: 10, Top: 115, H: 10, S: "XP"},
		{X: 102, W: 25, Top: 115, H: 10, S: "6399"},
		{X: 198, W: 20, Top: 115, H: 10, S: "yes"},
		{X: 10, W: 100, Top: 200, H: 10, S: "footnote"},
	}}
	tables := streamTables([]pdfPage{pg})
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"Model", "Price", "Stock"}, tables[0].Columns)
	assert.Equal(t, [][]string{{"S21 XP", "6399", "yes"}}, tables[0].Rows)
}

func TestLatticeTables(t *testing.T) {
	pg := pdfPage{
		Rules: []rule{
			{X0: 0, X1: 200, Top: 99.5, Bottom: 100.5},
			{X0: 0, X1: 200, Top: 119.5, Bottom: 120.5},
			{X0: 0, X1: 200, Top: 139.5, Bottom: 140.5},
			{X0: -0.5, X1: 0.5, Top: 100, Bottom: 140},
			{X0: 99.5, X1: 100.5, Top: 100, Bottom: 140},
			{X0: 199.5, X1: 200.5, Top: 100, Bottom: 140},
		},
		Words: []word{
			{X: 10, W: 30, Top: 105, H: 10, S: "Model"},
			{X: 110, W: 30, Top: 105, H: 10, S: "Price"},
			{X: 10, W: 20, Top: 125, H: 10, S: "S21"},
			{X: 110, W: 25, Top: 125, H: 10, S: "6399"},
		},
	}
	tables := latticeTables([]pdfPage{pg})
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"Model", "Price"}, tables[0].Columns)
	assert.Equal(t, [][]string{{"S21", "6399"}}, tables[0].Rows)
}

type barRenderer struct{}

// RenderPage draws two full-width ink bars, one per table row.
func (barRenderer) RenderPage(_ context.Context, _ string, _ int, _ float64) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	black := image.NewUniform(color.Black)
	draw.Draw(img, image.Rect(10, 10, 190, 30), black, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(10, 60, 190, 80), black, image.Point{}, draw.Src)
	return img, nil
}

// columnRecognizer answers by the config it receives, which identifies the
// column kind.
type columnRecognizer struct{ blank bool }

func (r columnRecognizer) Recognize(_ context.Context, _ image.Image, cfg ocr.Config) (string, error) {
	if r.blank {
		return "\n", nil
	}
	if cfg.Whitelist == ocr.ModelConfig.Whitelist {
		return "$21+\n", nil
	}
	return "850h/s", nil
}

const ocrProfiles = `
profiles:
  - name: test
    prefixes: [uminers]
    method: ocr
    normalizer: uminers
    area: [0, 0, 100, 200]
    columns: [100]
    header: [Модель, Хэшрейт]
    dpi: 72
    bands: {min_height: 5, merge_gap: 12, min_band: 5, pad: 2}
    cell: {pad: 4, scale: 2}
    ocr: {select: column}
`

func TestOCRPipeline(t *testing.T) {
	ps, err := ParseProfiles([]byte(ocrProfiles))
	require.NoError(t, err)

	e := NewExtractor(ps, barRenderer{}, columnRecognizer{}, 3, discard())
	got := e.Extract(context.Background(), "uminers_week.pdf")

	assert.Equal(t, []string{"Модель", "Хэшрейт"}, got.Columns)
	assert.Equal(t, [][]string{{"S21+", "850 Gh/s"}, {"S21+", "850 Gh/s"}}, got.Rows)
}

func TestOCRPipelineBlankCells(t *testing.T) {
	ps, err := ParseProfiles([]byte(ocrProfiles))
	require.NoError(t, err)

	e := NewExtractor(ps, barRenderer{}, columnRecognizer{blank: true}, 3, discard())
	assert.True(t, e.Extract(context.Background(), "uminers_week.pdf").Empty())
}

func TestExtractDirCSV(t *testing.T) {
	root := t.TempDir()
	older := filepath.Join(root, "collection_20240101_100000")
	newer := filepath.Join(root, "collection_20240301_100000")
	require.NoError(t, os.MkdirAll(older, 0o755))
	require.NoError(t, os.MkdirAll(newer, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(newer, "asic.csv"), []byte("Модель,Цена\nS21, 6399\nL9,-\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(older, "stale.csv"), []byte("a\n1\n"), 0o644))

	assert.Equal(t, newer, LatestCollection(root))

	ps, err := DefaultProfiles()
	require.NoError(t, err)
	e := NewExtractor(ps, nil, nil, 1, discard())

	out := filepath.Join(root, "excel")
	written, err := e.ExtractDir(context.Background(), root, out)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(out, "asic.xlsx")}, written)

	sheets, err := tabular.ReadXLSX(written[0])
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Equal(t, []string{"Модель", "Цена"}, sheets[0].Table.Columns)
	assert.Equal(t, "6399", sheets[0].Table.Rows[0][1])
}
