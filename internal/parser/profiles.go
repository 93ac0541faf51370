package parser

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgallion1/pricebot/internal/geometry"
	"github.com/dgallion1/pricebot/internal/normalize"
	"github.com/dgallion1/pricebot/internal/ocr"
)

//go:embed profiles.yaml
var defaultProfiles []byte

// Extraction methods.
const (
	MethodLayout  = "layout"
	MethodOCR     = "ocr"
	MethodGeneric = "generic"
)

// ImageOptions tune preprocessing of the cropped table region.
type ImageOptions struct {
	Median   int     `yaml:"median"`
	Contrast float64 `yaml:"contrast"`
}

// OCRSelect picks the tesseract config for a cell.
type OCRSelect struct {
	// "column" chooses by column kind, "width" by cell width.
	Select      string     `yaml:"select"`
	NarrowWidth int        `yaml:"narrow_width"`
	Narrow      ocr.Config `yaml:"narrow"`
	Wide        ocr.Config `yaml:"wide"`
}

// Config returns the config for a cell of the given column and pixel width.
func (s OCRSelect) Config(column string, width int) ocr.Config {
	if s.Select == "width" {
		if width < s.NarrowWidth {
			return s.Narrow
		}
		return s.Wide
	}
	return ocr.ConfigFor(ocr.KindOf(column))
}

// Profile is one vendor template. Profiles are immutable once loaded.
type Profile struct {
	Name            string                  `yaml:"name"`
	Prefixes        []string                `yaml:"prefixes"`
	Method          string                  `yaml:"method"`
	NormalizerName  string                  `yaml:"normalizer"`
	RawArea         []float64               `yaml:"area"`
	Columns         []float64               `yaml:"columns"`
	Header          []string                `yaml:"header"`
	DPI             float64                 `yaml:"dpi"`
	Image           ImageOptions            `yaml:"image"`
	Bands           geometry.BandOptions    `yaml:"bands"`
	Cell            ocr.CellOptions         `yaml:"cell"`
	Overlap         int                     `yaml:"overlap"`
	OCR             OCRSelect               `yaml:"ocr"`
	FallbackGeneric bool                    `yaml:"fallback_generic"`
	Garbage         normalize.GarbageFilter `yaml:"garbage"`

	Area geometry.Area `yaml:"-"`
	norm normalize.Normalizer
}

// Normalizer returns the profile's cleaning rules.
func (p *Profile) Normalizer() normalize.Normalizer {
	return p.norm
}

// Profiles is an ordered profile set; the last profile without prefixes is
// the default.
type Profiles struct {
	list []*Profile
	def  *Profile
}

// DefaultProfiles returns the embedded vendor templates.
func DefaultProfiles() (*Profiles, error) {
	return ParseProfiles(defaultProfiles)
}

// LoadProfiles reads a profiles file, or the embedded set when path is "".
func LoadProfiles(path string) (*Profiles, error) {
	if path == "" {
		return DefaultProfiles()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	return ParseProfiles(data)
}

// ParseProfiles decodes and validates a profiles document.
func ParseProfiles(data []byte) (*Profiles, error) {
	var doc struct {
		Profiles []*Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	ps := &Profiles{}
	models := normalize.NewModelFixer(nil, 0)
	for _, p := range doc.Profiles {
		if err := p.init(models); err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.Name, err)
		}
		if len(p.Prefixes) == 0 {
			ps.def = p
			continue
		}
		ps.list = append(ps.list, p)
	}
	if ps.def == nil {
		ps.def = &Profile{Name: "default", Method: MethodGeneric, norm: normalize.Generic{}}
	}
	return ps, nil
}

func (p *Profile) init(models *normalize.ModelFixer) error {
	switch p.Method {
	case MethodLayout, MethodOCR:
		if len(p.RawArea) != 4 {
			return fmt.Errorf("area needs 4 values, got %d", len(p.RawArea))
		}
		if len(p.Header) == 0 {
			return fmt.Errorf("%s profile needs a header", p.Method)
		}
	case MethodGeneric:
	default:
		return fmt.Errorf("unknown method %q", p.Method)
	}
	if p.DPI <= 0 {
		p.DPI = 300
	}
	for i, pre := range p.Prefixes {
		p.Prefixes[i] = strings.ToLower(pre)
	}
	p.Area = geometry.AreaFromSlice(p.RawArea)

	n, err := normalize.Lookup(p.NormalizerName, normalize.Options{
		Header:  p.Header,
		Garbage: p.Garbage,
		Models:  models,
	})
	if err != nil {
		return err
	}
	p.norm = n
	return nil
}

// Route picks the profile for a file by its lowercased name stem. Profiles
// are tried in order; no match returns the default profile.
func (ps *Profiles) Route(path string) *Profile {
	base := filepath.Base(path)
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	for _, p := range ps.list {
		for _, pre := range p.Prefixes {
			if strings.HasPrefix(stem, pre) {
				return p
			}
		}
	}
	return ps.def
}

// Default returns the generic profile.
func (ps *Profiles) Default() *Profile {
	return ps.def
}

// Names lists the vendor profiles in match order.
func (ps *Profiles) Names() []string {
	names := make([]string, 0, len(ps.list)+1)
	for _, p := range ps.list {
		names = append(names, p.Name)
	}
	return append(names, ps.def.Name)
}
