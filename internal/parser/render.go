package parser

import (
	"context"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// PageRenderer rasterizes one page of a PDF. Pages are zero-based.
type PageRenderer interface {
	RenderPage(ctx context.Context, path string, page int, dpi float64) (image.Image, error)
}

// FitzRenderer renders with MuPDF.
type FitzRenderer struct{}

func (FitzRenderer) RenderPage(ctx context.Context, path string, page int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	if page < 0 || page >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (%d pages)", page, doc.NumPage())
	}
	img, err := doc.ImageDPI(page, dpi)
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	return img, nil
}
