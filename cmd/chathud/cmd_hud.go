package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chathud/cmd/chathud/ui"
	"chathud/internal/hud"
	"chathud/internal/logging"
	"chathud/internal/server"
	"chathud/internal/store"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var hudServe bool

// hudCmd runs the overlay. The root command does the same.
var hudCmd = &cobra.Command{
	Use:   "hud",
	Short: "Start the suggestion overlay",
	Long: `Starts the overlay over an input line. Type, press the toggle key
(ctrl+@ / ctrl+space by default) to see stored fragments matching the input,
and enter to copy one into the line. Enter on the line itself prints it to
stdout and exits, so the overlay composes with shell pipelines.

F1..F7 (or alt+1..alt+7) scrape the corresponding site from the active tab,
alt+s checks which site selectors still match and alt+g logs the page.`,
	RunE: runHUD,
}

func runHUD(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	model := ui.NewModel(ui.Options{
		Context:        ctx,
		Pipeline:       a.service,
		Cache:          a.cache,
		Sites:          a.service.Dispatcher().Sites().All(),
		ToggleKey:      cfg.HUD.ToggleKey,
		MaxSuggestions: cfg.HUD.MaxSuggestions,
		Theme:          cfg.HUD.Theme,
		CheckOnStart:   cfg.HUD.CheckOnStart,
	})
	p := tea.NewProgram(model, tea.WithContext(ctx), tea.WithOutput(os.Stderr))

	if cfg.HUD.WatchStore && a.store.Path() != store.MemoryPath {
		w, err := hud.NewWatcher(a.store.Path(), 200*time.Millisecond, func() {
			p.Send(ui.StoreChangedMsg{})
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			logging.Get(logging.CategoryHUD).Warn("store watch disabled: %v", err)
		}
		defer func() { _ = w.Stop() }()
	}

	if hudServe {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		srv := server.New(server.Deps{Service: a.service, Cache: a.cache, Store: a.store, Logger: logger})
		go func() {
			if err := srv.ListenAndServe(srvCtx, cfg.Server.Listen); err != nil {
				logging.Get(logging.CategoryServer).Error("%v", err)
			}
		}()
	}

	logging.HUD("overlay started")
	final, err := p.Run()
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("overlay: %w", err)
	}
	if m, ok := final.(ui.Model); ok && m.Accepted() != "" {
		fmt.Fprintln(cmd.OutOrStdout(), m.Accepted())
	}
	return nil
}
