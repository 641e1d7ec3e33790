package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"chathud/internal/dispatch"
	"chathud/internal/store"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	longOutput bool
	listSite   string
	listLimit  int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Print stored fragments containing the query (case-insensitive)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSearch,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print stored fragments in insertion order",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show fragment counts per site",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the registered sites and their selectors",
	Args:  cobra.NoArgs,
	RunE:  runSites,
}

func printFragments(w io.Writer, fragments []store.Fragment) {
	for _, f := range fragments {
		if longOutput {
			site := f.Site
			if site == "" {
				site = "-"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", f.ID, site, f.CreatedAt.Format("2006-01-02 15:04:05"), strings.Join(strings.Fields(f.Text), " "))
			continue
		}
		fmt.Fprintln(w, f.Text)
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cache.Reload(cmd.Context()); err != nil {
		return err
	}
	query := ""
	if len(args) == 1 {
		query = args[0]
	}
	printFragments(cmd.OutOrStdout(), a.cache.Filter(query))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	all, err := a.store.All(cmd.Context())
	if err != nil {
		return err
	}
	if listSite != "" {
		filtered := all[:0]
		for _, f := range all {
			if strings.EqualFold(f.Site, listSite) {
				filtered = append(filtered, f)
			}
		}
		all = filtered
	}
	if listLimit > 0 && len(all) > listLimit {
		all = all[len(all)-listLimit:]
	}
	printFragments(cmd.OutOrStdout(), all)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.store.GetStats(cmd.Context())
	if err != nil {
		return err
	}
	sites := make([]string, 0, len(stats))
	total := 0
	for site, n := range stats {
		sites = append(sites, site)
		total += n
	}
	sort.Strings(sites)

	t := table.New().Headers("SITE", "FRAGMENTS")
	for _, site := range sites {
		name := site
		if name == "" {
			name = "(unknown)"
		}
		t.Row(name, strconv.Itoa(stats[site]))
	}
	t.Row("total", strconv.Itoa(total))

	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	fmt.Fprintf(cmd.OutOrStdout(), "store: %s\n", a.store.Path())
	return nil
}

func runSites(cmd *cobra.Command, args []string) error {
	reg := dispatch.NewRegistry(cfg.Sites)
	t := table.New().Headers("KEY", "SITE", "NAME", "SELECTOR")
	for i, site := range reg.All() {
		keyHint := ""
		if i < 9 {
			keyHint = fmt.Sprintf("F%d", i+1)
		}
		t.Row(keyHint, site.Name, site.Display, site.Selector)
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}
