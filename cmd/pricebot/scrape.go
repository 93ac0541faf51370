package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dgallion1/pricebot/internal/config"
)

func newScrapeCmd() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape the web catalog into xlsx and csv",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if url != "" {
				cfg.ScraperURL = url
			}
			job := newScraper(cfg, newLogger(cfg))
			products, files, err := job.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d products\n", color.GreenString("✓"), len(products))
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), "  "+f)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "catalog URL (overrides SCRAPER_URL)")
	return cmd
}
