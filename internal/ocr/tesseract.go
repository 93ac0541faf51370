package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// Recognizer turns a cell image into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, cfg Config) (string, error)
}

// Tesseract shells out to the tesseract binary, feeding a PNG on stdin.
type Tesseract struct {
	Bin   string
	Stats *Stats
	log   *slog.Logger
}

func NewTesseract(bin string, stats *Stats, log *slog.Logger) *Tesseract {
	if bin == "" {
		bin = "tesseract"
	}
	return &Tesseract{Bin: bin, Stats: stats, log: log}
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image, cfg Config) (string, error) {
	var png bytes.Buffer
	if err := imaging.Encode(&png, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode cell: %w", err)
	}

	args := append([]string{"stdin", "stdout"}, cfg.Args()...)
	cmd := exec.CommandContext(ctx, t.Bin, args...)
	cmd.Stdin = &png
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	t.Stats.Record(time.Since(start), err)
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if t.log != nil {
			t.log.Debug("tesseract failed", "config", cfg.String(), "stderr", msg)
		}
		return "", fmt.Errorf("tesseract: %w: %s", err, msg)
	}
	return stdout.String(), nil
}
