package ocr

import (
	"context"
	"errors"
	"image"
	"testing"
)

type fakeRecognizer struct {
	text   string
	err    error
	calls  int
	bounds image.Rectangle
	cfg    Config
}

func (f *fakeRecognizer) Recognize(_ context.Context, img image.Image, cfg Config) (string, error) {
	f.calls++
	f.bounds = img.Bounds()
	f.cfg = cfg
	return f.text, f.err
}

func TestConfigArgs(t *testing.T) {
	got := NumericConfig.String()
	want := "--oem 3 --psm 7 -l eng -c tessedit_char_whitelist=0123456789,."
	if got != want {
		t.Errorf("Args = %q, want %q", got, want)
	}
	if got := NoteConfig.String(); got != "--oem 3 --psm 7 -l rus" {
		t.Errorf("note config has whitelist: %q", got)
	}
	if got := (Config{}).String(); got != "--oem 3 --psm 7 -l eng" {
		t.Errorf("zero config defaults = %q", got)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		column string
		want   Kind
	}{
		{"Модель", Model},
		{"Хэшрейт", Hashrate},
		{"Цена у.е./$", Numeric},
		{"Цена ₽", Numeric},
		{"Примечание", Note},
		{"Срок поставки", Note},
	}
	for _, tt := range tests {
		if got := KindOf(tt.column); got != tt.want {
			t.Errorf("KindOf(%q) = %v, want %v", tt.column, got, tt.want)
		}
	}
	if ConfigFor(Hashrate).Whitelist != "0123456789TGtgMmHh/" {
		t.Error("hashrate config lost its whitelist")
	}
}

func TestPrepareSize(t *testing.T) {
	cell := image.NewGray(image.Rect(0, 0, 30, 10))
	out := Prepare(cell, CellOptions{Pad: 4, Scale: 2})
	if got := out.Bounds().Size(); got != image.Pt(76, 36) {
		t.Errorf("prepared size = %v, want (76,36)", got)
	}
}

func TestReadCell(t *testing.T) {
	ctx := context.Background()
	cell := image.NewGray(image.Rect(0, 0, 20, 10))
	opt := CellOptions{Pad: 4, Scale: 2, MinArea: 100}

	r := &fakeRecognizer{text: "  S21\nXP \n"}
	got, err := ReadCell(ctx, r, cell, opt, ModelConfig)
	if err != nil {
		t.Fatal(err)
	}
	if got != "S21 XP" {
		t.Errorf("ReadCell = %q", got)
	}
	if r.cfg.Whitelist != ModelConfig.Whitelist {
		t.Error("config not passed through")
	}

	small := image.NewGray(image.Rect(0, 0, 9, 10))
	r = &fakeRecognizer{text: "x"}
	if got, _ := ReadCell(ctx, r, small, opt, ModelConfig); got != "" || r.calls != 0 {
		t.Errorf("small cell should be skipped, got %q after %d calls", got, r.calls)
	}

	r = &fakeRecognizer{err: errors.New("boom")}
	got, err = ReadCell(ctx, r, cell, opt, ModelConfig)
	if err == nil || got != "" {
		t.Errorf("expected empty text and error, got %q, %v", got, err)
	}
}
