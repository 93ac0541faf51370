package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dgallion1/pricebot/internal/config"
	"github.com/dgallion1/pricebot/internal/ocr"
	"github.com/dgallion1/pricebot/internal/tabular"
)

func newExtractCmd() *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "extract <file|dir>",
		Short: "Extract price tables from PDF files into xlsx",
		Long: `Extract runs the vendor-aware table extraction on one price list or on
the newest collection directory under dir, writing one xlsx per file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := newLogger(cfg)
			if outDir == "" {
				outDir = cfg.ExcelDir
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			extractor, err := newExtractor(cfg, ocr.NewStats(time.Hour), log)
			if err != nil {
				return err
			}

			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if info.IsDir() {
				written, err := extractor.ExtractDir(cmd.Context(), args[0], outDir)
				for _, path := range written {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", color.GreenString("✓"), path)
				}
				if err != nil {
					return err
				}
				if len(written) == 0 {
					return fmt.Errorf("no tables extracted from %s", args[0])
				}
				return nil
			}

			t := extractor.Extract(cmd.Context(), args[0])
			if t.Empty() {
				return fmt.Errorf("no table extracted from %s", args[0])
			}
			name := filepath.Base(args[0])
			stem := strings.TrimSuffix(name, filepath.Ext(name))
			out := filepath.Join(outDir, stem+".xlsx")
			if err := tabular.WriteXLSX(out, stem, t); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d rows, %d columns)\n", color.GreenString("✓"), out, t.Len(), t.Width())
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default EXCEL_DIR)")
	return cmd
}
