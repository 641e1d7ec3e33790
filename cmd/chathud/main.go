// Package main implements the chathud CLI: the suggestion overlay, one-shot
// scrape commands, the fragment store browser and the local HTTP API.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chathud/internal/config"
	"chathud/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	cfgPath string
	verbose bool
	timeout time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// logAnnotation selects where a command's logs go. The overlay owns the
// terminal, so by default logs go to a file.
const (
	logAnnotation = "log"
	logToStderr   = "stderr"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "chathud",
	Short: "Scrape chat pages into a local store and search them from an overlay",
	Long: `chathud scrapes the messages of AI chat pages open in Chrome into a
local SQLite store and offers them back as suggestions in a terminal overlay.

Run without arguments to start the overlay.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(".env", filepath.Join(filepath.Dir(cfgPath), ".env")); err != nil {
			return err
		}
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if verbose {
			c.Logging.DebugMode = true
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", cfgPath, err)
		}
		cfg = c

		dir := cfg.LogDir()
		if verbose || cmd.Annotations[logAnnotation] == logToStderr {
			dir = ""
		}
		logger, err = logging.Initialize(cfg.Logging, dir)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
	RunE: runHUD,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", config.DefaultConfigPath(), "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout for one-shot commands")

	rootCmd.Flags().BoolVar(&hudServe, "serve", false, "Also serve the HTTP API while the overlay runs")
	hudCmd.Flags().BoolVar(&hudServe, "serve", false, "Also serve the HTTP API while the overlay runs")

	scrapeCmd.Flags().StringVar(&scrapeFromFile, "from-file", "", "Extract from a saved HTML page instead of the active tab")
	scrapeCmd.Flags().StringVar(&scrapeSelector, "selector", "", "Override the site's selector (with --from-file)")
	checkCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the report as JSON")
	grabCmd.Flags().BoolVar(&grabMarkdown, "markdown", false, "Render the page as Markdown")
	grabCmd.Flags().StringVarP(&grabOutput, "output", "o", "", "Write to a file instead of stdout")

	searchCmd.Flags().BoolVarP(&longOutput, "long", "l", false, "Show id, site and time")
	listCmd.Flags().StringVar(&listSite, "site", "", "Only fragments scraped from this site")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "Show at most n fragments, newest last")
	listCmd.Flags().BoolVarP(&longOutput, "long", "l", false, "Show id, site and time")

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (default from config)")

	browserCmd.AddCommand(browserLaunchCmd)
	browserCmd.AddCommand(browserOpenCmd)
	browserCmd.AddCommand(browserSessionsCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(hudCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(grabCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sitesCmd)
	rootCmd.AddCommand(browserCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
