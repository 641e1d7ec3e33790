package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"chathud/internal/browser"
	"chathud/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// browserCmd manages the Chrome instance scrapes run against.
var browserCmd = &cobra.Command{
	Use:   "browser",
	Short: "Launch or attach to the Chrome instance chathud scrapes",
}

var browserLaunchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch Chrome and keep it running for other commands",
	Long: `Launches Chrome and writes its control URL to the data directory so
that scrape, check, grab and the overlay attach to it. Log in to your chat
sites in this window. The browser closes when this command exits.`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{logAnnotation: logToStderr},
	RunE:        browserLaunch,
}

var browserOpenCmd = &cobra.Command{
	Use:   "open [url]",
	Short: "Open a tab in the launched browser and make it the active one",
	Args:  cobra.ExactArgs(1),
	RunE:  browserOpen,
}

var browserSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List known browser sessions",
	Args:  cobra.NoArgs,
	RunE:  browserSessions,
}

// browserLaunch launches the browser instance
func browserLaunch(cmd *cobra.Command, args []string) error {
	logger.Info("Launching browser")

	bc := browserConfig()
	bc.DebuggerURL = cfg.Browser.DebuggerURL
	mgr := browser.NewSessionManager(bc)
	if err := mgr.Start(cmd.Context()); err != nil {
		return fmt.Errorf("failed to start session manager: %w", err)
	}

	controlFile := cfg.ControlFile()
	if err := os.MkdirAll(filepath.Dir(controlFile), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(controlFile, []byte(mgr.ControlURL()), 0o644); err != nil {
		return fmt.Errorf("write control file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Browser launched. Control URL: %s\n", mgr.ControlURL())
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl+C to shutdown")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-cmd.Context().Done():
	}

	if err := os.Remove(controlFile); err != nil && !os.IsNotExist(err) {
		logging.Get(logging.CategoryBrowser).Warn("failed to remove browser control file: %v", err)
	}
	return mgr.Shutdown(context.Background())
}

// browserOpen creates a session in the running browser
func browserOpen(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	bc := browserConfig()
	if bc.DebuggerURL == "" {
		return fmt.Errorf("no running browser: start one with 'chathud browser launch' or set browser.debugger_url")
	}
	mgr := browser.NewSessionManager(bc)
	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session manager: %w", err)
	}
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	session, err := mgr.CreateSession(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	logger.Info("Session created", zap.String("id", session.ID), zap.String("url", session.URL))
	fmt.Fprintf(cmd.OutOrStdout(), "Session created: %s\nURL: %s\n", session.ID, session.URL)
	return nil
}

func browserSessions(cmd *cobra.Command, args []string) error {
	mgr := browser.NewSessionManager(browserConfig())
	sessions, err := mgr.Load()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No sessions.")
		return nil
	}
	active, _ := mgr.Active()
	for _, s := range sessions {
		mark := " "
		if s.ID == active.ID {
			mark = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\t%s\t%s\t%s\n", mark, s.ID, s.Status, s.LastActive.Format("2006-01-02 15:04"), s.URL)
	}
	return nil
}
