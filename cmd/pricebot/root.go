package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/dgallion1/pricebot/internal/api"
	"github.com/dgallion1/pricebot/internal/collect"
	"github.com/dgallion1/pricebot/internal/config"
	"github.com/dgallion1/pricebot/internal/forward"
	"github.com/dgallion1/pricebot/internal/ocr"
	"github.com/dgallion1/pricebot/internal/pipeline"
	"github.com/dgallion1/pricebot/internal/telegram"
)

func newRootCmd() *cobra.Command {
	var mode string

	rootCmd := &cobra.Command{
		Use:   "pricebot",
		Short: "Telegram price-list bot",
		Long: `pricebot forwards messages between Telegram chats and collects vendor
price lists (PDF) from a chat folder, turning them into spreadsheets
published to Google Sheets.

Without a subcommand it runs the bot and its admin API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if mode != "" {
				cfg.Mode = mode
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg)
		},
	}
	rootCmd.Flags().StringVar(&mode, "mode", "", "run mode: full, forward-only or collect-only (overrides MODE)")

	rootCmd.AddCommand(newExtractCmd(), newScrapeCmd(), newCollectCmd())
	return rootCmd
}

func runBot(ctx context.Context, cfg config.Config) error {
	log := newLogger(cfg)

	client, closeTelegram, err := newTelegram(cfg, log)
	if err != nil {
		return err
	}
	defer closeTelegram()

	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	log.Info("bot authorized", "id", me.ID, "username", me.Username, "mode", cfg.Mode)

	listener := telegram.NewListener(client, log.With("component", "listener"))
	deps := api.Deps{}

	var engine *forward.Engine
	if cfg.Forwarding() {
		fwd, err := setupForwarding(ctx, cfg, client, log)
		if err != nil {
			return err
		}
		deps.Forwarding = &fwd
		engine = forward.NewEngine(fwd, client, me.ID, forward.DefaultOptions(), log.With("component", "forward"))
		listener.Handle(engine.Handle)
	}

	var (
		orch      *pipeline.Orchestrator
		scheduler *collect.Scheduler
	)
	if cfg.Collecting() {
		stats := ocr.NewStats(time.Hour)
		extractor, err := newExtractor(cfg, stats, log)
		if err != nil {
			return err
		}
		svc, err := newService(ctx, cfg, client, extractor, log)
		if err != nil {
			return err
		}
		orch = pipeline.NewOrchestrator(cfg, svc, log.With("component", "pipeline"))
		orch.Start(ctx)

		cmd := collect.NewCommand(client, svc, orch, client.Folders(), cfg.AdminsFolder, log.With("component", "command"))
		listener.Handle(cmd.Handle)

		if cfg.CollectCron != "" {
			scheduler = collect.NewScheduler(cfg.CollectCron, orch, log.With("component", "scheduler"))
			if err := scheduler.Start(); err != nil {
				orch.Stop()
				return err
			}
		}
		deps.Runs = orch
		deps.Extractor = extractor
		deps.OCRStats = stats
	}

	srv := api.NewServer(deps, log, cfg)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		listener.Run(ctx)
	}()

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "error", err)
		}
	}()

	log.Info("server starting", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}

	wg.Wait()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if orch != nil {
		orch.Stop()
	}
	if engine != nil {
		engine.Wait()
	}
	log.Info("server stopped")
	return nil
}

// setupForwarding loads the saved routes. Without a saved file it asks on
// the terminal, and fails when stdin is not one.
func setupForwarding(ctx context.Context, cfg config.Config, client *telegram.Client, log *slog.Logger) (forward.Config, error) {
	store := forward.NewConfigStore(cfg.ForwardConfigFile, log.With("component", "forward"))
	fwd, found, err := store.Load()
	if err != nil {
		return forward.Config{}, err
	}
	if !found {
		if !isatty.IsTerminal(os.Stdin.Fd()) {
			return forward.Config{}, fmt.Errorf("%s not found; run once on a terminal to set up forwarding", store.Path())
		}
		folder, ok := client.Folders().Find(cfg.ForwardFolder)
		if !ok {
			return forward.Config{}, fmt.Errorf("folder %q not found", cfg.ForwardFolder)
		}
		chats := forward.Candidates(ctx, client, folder)
		if len(chats) == 0 {
			return forward.Config{}, fmt.Errorf("folder %q has no reachable chats", cfg.ForwardFolder)
		}
		fwd, err = forward.InteractiveSetup(os.Stdin, os.Stdout, cfg.ForwardFolder, chats)
		if err != nil {
			return forward.Config{}, err
		}
		if err := store.Save(fwd); err != nil {
			return forward.Config{}, err
		}
	}
	fwd, err = store.Validate(ctx, client, fwd)
	if err != nil {
		return forward.Config{}, err
	}
	log.Info("forwarding configured", "sources", len(fwd.SourceChatIDs))
	return fwd, nil
}
