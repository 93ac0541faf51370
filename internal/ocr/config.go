// Package ocr reads text out of single table cells with an external
// tesseract binary.
package ocr

import (
	"strconv"
	"strings"
)

// Config is one tesseract invocation profile.
type Config struct {
	Lang      string `yaml:"lang"`
	PSM       int    `yaml:"psm"`
	OEM       int    `yaml:"oem"`
	Whitelist string `yaml:"whitelist"`
}

// Args renders the config as tesseract command-line flags.
func (c Config) Args() []string {
	oem, psm, lang := c.OEM, c.PSM, c.Lang
	if oem == 0 {
		oem = 3
	}
	if psm == 0 {
		psm = 7
	}
	if lang == "" {
		lang = "eng"
	}
	args := []string{"--oem", strconv.Itoa(oem), "--psm", strconv.Itoa(psm), "-l", lang}
	if c.Whitelist != "" {
		args = append(args, "-c", "tessedit_char_whitelist="+c.Whitelist)
	}
	return args
}

func (c Config) String() string {
	return strings.Join(c.Args(), " ")
}

// Kind is the logical type of a column, which decides its character set.
type Kind int

const (
	Mixed Kind = iota
	Model
	Hashrate
	Numeric
	Note
)

func (k Kind) String() string {
	switch k {
	case Model:
		return "model"
	case Hashrate:
		return "hashrate"
	case Numeric:
		return "numeric"
	case Note:
		return "note"
	default:
		return "mixed"
	}
}

var (
	NumericConfig  = Config{Lang: "eng", PSM: 7, OEM: 3, Whitelist: "0123456789,."}
	HashrateConfig = Config{Lang: "eng", PSM: 7, OEM: 3, Whitelist: "0123456789TGtgMmHh/"}
	ModelConfig    = Config{Lang: "eng", PSM: 7, OEM: 3,
		Whitelist: "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/ -"}
	NoteConfig  = Config{Lang: "rus", PSM: 7, OEM: 3}
	MixedConfig = Config{Lang: "rus+eng", PSM: 6, OEM: 3}
)

// ConfigFor returns the default config for a column kind.
func ConfigFor(k Kind) Config {
	switch k {
	case Model:
		return ModelConfig
	case Hashrate:
		return HashrateConfig
	case Numeric:
		return NumericConfig
	case Note:
		return NoteConfig
	default:
		return MixedConfig
	}
}

// KindOf guesses a column kind from its header label.
func KindOf(column string) Kind {
	c := strings.ToLower(strings.TrimSpace(column))
	switch {
	case c == "модель" || c == "model":
		return Model
	case c == "хэшрейт" || c == "hashrate":
		return Hashrate
	case strings.HasPrefix(c, "цена") || strings.HasPrefix(c, "price"):
		return Numeric
	default:
		return Note
	}
}
