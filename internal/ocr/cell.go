package ocr

import (
	"context"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
)

// CellOptions control cell preprocessing before recognition.
type CellOptions struct {
	// Pad is the white border added on every side, in pixels.
	Pad int `yaml:"pad"`
	// Scale magnifies the padded cell with linear interpolation.
	Scale float64 `yaml:"scale"`
	// Blur is the Gaussian sigma; zero disables it.
	Blur float64 `yaml:"blur"`
	// Cells with fewer pixels than MinArea are skipped as empty.
	MinArea int `yaml:"min_area"`
}

// Prepare pads, scales and optionally blurs a cell image.
func Prepare(cell image.Image, opt CellOptions) image.Image {
	b := cell.Bounds()
	out := imaging.New(b.Dx()+2*opt.Pad, b.Dy()+2*opt.Pad, color.White)
	out = imaging.Paste(out, cell, image.Pt(opt.Pad, opt.Pad))

	if opt.Scale > 0 && opt.Scale != 1 {
		w := int(float64(out.Bounds().Dx()) * opt.Scale)
		h := int(float64(out.Bounds().Dy()) * opt.Scale)
		out = imaging.Resize(out, w, h, imaging.Linear)
	}
	if opt.Blur > 0 {
		out = imaging.Blur(out, opt.Blur)
	}
	return out
}

// ReadCell recognizes one cell. Tiny cells and recognizer errors both read
// as "", so one bad cell never drops its row. The error is returned for the
// caller to log.
func ReadCell(ctx context.Context, r Recognizer, cell image.Image, opt CellOptions, cfg Config) (string, error) {
	b := cell.Bounds()
	if b.Dx()*b.Dy() < opt.MinArea || b.Empty() {
		return "", nil
	}
	txt, err := r.Recognize(ctx, Prepare(cell, opt), cfg)
	if err != nil {
		return "", err
	}
	return SingleLine(txt), nil
}

// SingleLine trims text and joins its lines with spaces.
func SingleLine(s string) string {
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, "\n", " ")
}
