package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"chathud/cmd/chathud/ui"
	"chathud/internal/dispatch"

	"github.com/charmbracelet/glamour"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

var (
	scrapeFromFile string
	scrapeSelector string
	jsonOutput     bool
	grabMarkdown   bool
	grabOutput     string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [site]",
	Short: "Scrape one site's messages from the active tab into the store",
	Long: `Extracts the text of every element matching the site's selector in the
active browser tab and appends it to the store.

With --from-file the same extraction runs over a saved HTML page.

Example:
  chathud scrape chatgpt
  chathud scrape claude --from-file ~/Downloads/chat.html`,
	Args: cobra.ExactArgs(1),
	RunE: runScrape,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report which site selectors match in the active tab",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

var grabCmd = &cobra.Command{
	Use:   "grab",
	Short: "Print the active tab's document",
	Args:  cobra.NoArgs,
	RunE:  runGrab,
}

// printNotices writes status lines colored by level.
func printNotices(w io.Writer, notices []dispatch.Notice) {
	styles := ui.NewStyles(ui.ThemeFor(cfg.HUD.Theme))
	for _, n := range notices {
		fmt.Fprintln(w, styles.Status(n.Level).Render(n.Text))
	}
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	site := args[0]
	var rep dispatch.ScrapeReport
	if scrapeFromFile != "" {
		f, ferr := os.Open(scrapeFromFile)
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		rep, err = a.service.ScrapeHTML(ctx, site, scrapeSelector, f)
	} else {
		if scrapeSelector != "" {
			return fmt.Errorf("--selector requires --from-file; add the selector under sites: in the config instead")
		}
		rep, err = a.service.Scrape(ctx, site)
	}
	printNotices(cmd.OutOrStdout(), rep.Notices)
	return err
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, notices, err := a.service.CheckSchemas(ctx)
	if err != nil {
		printNotices(cmd.ErrOrStderr(), notices)
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printNotices(cmd.OutOrStdout(), notices)
	return nil
}

func runGrab(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	page, notices, err := a.service.Grab(ctx)
	if err != nil {
		printNotices(cmd.ErrOrStderr(), notices)
		return err
	}

	out := page.HTML
	if grabMarkdown {
		md, err := dispatch.ToMarkdown(page.HTML, page.URL)
		if err != nil {
			return err
		}
		out = md
		if grabOutput == "" {
			if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
				if rendered, err := r.Render(md); err == nil {
					out = rendered
				}
			}
		}
	}

	if grabOutput != "" {
		if err := os.MkdirAll(filepath.Dir(grabOutput), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(grabOutput, []byte(out), 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%d bytes) from %s\n", grabOutput, len(out), page.URL)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}
