// Package parser turns collected price-list files into tables. PDFs are
// routed by file name to a vendor profile: coordinate slicing of the text
// layer, OCR of a rendered page, or generic stream/lattice table detection.
package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/pricebot/internal/metrics"
	"github.com/dgallion1/pricebot/internal/normalize"
	"github.com/dgallion1/pricebot/internal/ocr"
	"github.com/dgallion1/pricebot/internal/tabular"
)

// ErrWidthMismatch is reported when a layout table does not match its
// template's column count.
var ErrWidthMismatch = normalize.ErrWidthMismatch

// SupportedExtensions lists the price-list formats the extractor reads.
var SupportedExtensions = map[string]bool{
	".pdf":  true,
	".docx": true,
	".csv":  true,
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	return SupportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Extractor routes files to their profile and runs extraction.
type Extractor struct {
	profiles   *Profiles
	renderer   PageRenderer
	recognizer ocr.Recognizer
	workers    int
	log        *slog.Logger
}

func NewExtractor(profiles *Profiles, renderer PageRenderer, recognizer ocr.Recognizer, workers int, log *slog.Logger) *Extractor {
	if workers <= 0 {
		workers = 4
	}
	return &Extractor{
		profiles:   profiles,
		renderer:   renderer,
		recognizer: recognizer,
		workers:    workers,
		log:        log,
	}
}

// Profiles returns the profile set used for routing.
func (e *Extractor) Profiles() *Profiles {
	return e.profiles
}

// Extract returns the cleaned table for one file. It never fails: any
// error is logged and yields an empty table.
func (e *Extractor) Extract(ctx context.Context, path string) tabular.Table {
	p := e.profiles.Route(path)
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".pdf" {
		p = e.profiles.Default()
	}
	log := e.log.With("file", filepath.Base(path), "profile", p.Name)

	t, err := e.extract(ctx, path, p, log)
	switch {
	case err != nil:
		if errors.Is(err, ErrWidthMismatch) {
			log.Warn("table width mismatch", "error", err)
		} else {
			log.Error("extraction failed", "error", err)
		}
		metrics.Extractions.WithLabelValues(p.Name, "error").Inc()
		return tabular.Table{}
	case t.Empty():
		log.Warn("no table extracted")
		metrics.Extractions.WithLabelValues(p.Name, "empty").Inc()
	default:
		log.Info("table extracted", "rows", t.Len(), "columns", t.Width())
		metrics.Extractions.WithLabelValues(p.Name, "ok").Inc()
		metrics.ExtractedRows.WithLabelValues(p.Name).Add(float64(t.Len()))
	}
	return t
}

func (e *Extractor) extract(ctx context.Context, path string, p *Profile, log *slog.Logger) (tabular.Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		rows, err := docxRows(path)
		if err != nil {
			return tabular.Table{}, err
		}
		return p.Normalizer().Table(headed(rows))
	case ".csv":
		rows, err := csvRows(path)
		if err != nil {
			return tabular.Table{}, err
		}
		return p.Normalizer().Table(headed(rows))
	case ".pdf":
	default:
		return tabular.Table{}, fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}

	switch p.Method {
	case MethodLayout:
		pages, err := readPDF(path)
		if err != nil {
			return tabular.Table{}, fmt.Errorf("read pdf: %w", err)
		}
		return p.Normalizer().Table(layoutTable(pages, p.Area, p.Columns))

	case MethodOCR:
		raw, err := e.ocrTable(ctx, path, p, log)
		if err != nil {
			return tabular.Table{}, fmt.Errorf("ocr: %w", err)
		}
		if raw.Empty() {
			if !p.FallbackGeneric {
				return tabular.Table{}, nil
			}
			log.Info("ocr found no rows, trying generic passes")
			return e.generic(ctx, path, log)
		}
		return p.Normalizer().Table(raw)

	default:
		return e.generic(ctx, path, log)
	}
}

// generic runs the stream pass, then the lattice pass only if stream found
// nothing, and stacks every non-empty table of the pass that succeeded.
func (e *Extractor) generic(ctx context.Context, path string, log *slog.Logger) (tabular.Table, error) {
	norm := e.profiles.Default().Normalizer()

	pages, err := readPDF(path)
	if err != nil {
		log.Warn("pdf library failed, using pdftotext", "error", err)
		rows, perr := pdftotextRows(ctx, path)
		if perr != nil {
			return tabular.Table{}, errors.Join(err, perr)
		}
		return norm.Table(headed(rows))
	}

	for _, pass := range []struct {
		name string
		find func([]pdfPage) []tabular.Table
	}{
		{"stream", streamTables},
		{"lattice", latticeTables},
	} {
		var found []tabular.Table
		for _, t := range pass.find(pages) {
			t, err := norm.Table(t)
			if err == nil && !t.Empty() {
				found = append(found, t)
			}
		}
		if len(found) > 0 {
			log.Info("generic tables found", "pass", pass.name, "tables", len(found))
			return tabular.Concat(found...), nil
		}
	}
	return tabular.Table{}, nil
}

// LatestCollection returns the newest collection_* subdirectory of dir,
// or dir itself when there is none. Names sort by their timestamp suffix.
func LatestCollection(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return dir
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "collection_") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return dir
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1])
}

// ExtractDir extracts every supported file in the newest collection under
// dir and writes <stem>.xlsx files to outDir. Files that yield no table are
// skipped. It returns the written paths.
func (e *Extractor) ExtractDir(ctx context.Context, dir, outDir string) ([]string, error) {
	src := LatestCollection(dir)
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src, err)
	}
	e.log.Info("extracting directory", "dir", src)

	var written []string
	for _, ent := range entries {
		if ent.IsDir() || !IsSupportedExtension(ent.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, err
		}
		path := filepath.Join(src, ent.Name())
		t := e.Extract(ctx, path)
		if t.Empty() {
			continue
		}
		stem := strings.TrimSuffix(ent.Name(), filepath.Ext(ent.Name()))
		out := filepath.Join(outDir, stem+".xlsx")
		if err := tabular.WriteXLSX(out, stem, t); err != nil {
			e.log.Error("write xlsx failed", "file", out, "error", err)
			continue
		}
		written = append(written, out)
	}
	return written, nil
}
