package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dgallion1/pricebot/internal/config"
	"github.com/dgallion1/pricebot/internal/ocr"
	"github.com/dgallion1/pricebot/internal/pipeline"
)

func newCollectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Run one collection now and print its report",
		Long: `Collect downloads the newest price list from every chat of the collect
folder, extracts tables, scrapes the catalog and publishes the result,
exactly like the /collect chat command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			log := newLogger(cfg)

			client, closeTelegram, err := newTelegram(cfg, log)
			if err != nil {
				return err
			}
			defer closeTelegram()

			extractor, err := newExtractor(cfg, ocr.NewStats(time.Hour), log)
			if err != nil {
				return err
			}
			svc, err := newService(cmd.Context(), cfg, client, extractor, log)
			if err != nil {
				return err
			}

			orch := pipeline.NewOrchestrator(cfg, svc, log.With("component", "pipeline"))
			run := pipeline.NewRun(pipeline.TriggerCLI)
			snap := orch.Execute(cmd.Context(), run)

			out := cmd.OutOrStdout()
			if snap.Report != "" {
				fmt.Fprintln(out, snap.Report)
			}
			for _, e := range snap.Progress.Errors {
				fmt.Fprintf(out, "%s %s\n", color.YellowString("!"), e)
			}
			if snap.SheetURL != "" {
				fmt.Fprintf(out, "%s %s\n", color.GreenString("✓"), snap.SheetURL)
			}
			if snap.Status == pipeline.StatusFailed {
				return fmt.Errorf("run %s failed", snap.ID)
			}
			return nil
		},
	}
}
