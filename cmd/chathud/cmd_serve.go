package main

import (
	"os"
	"os/signal"
	"syscall"

	"chathud/internal/server"

	"github.com/spf13/cobra"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scrape pipeline and fragment search over HTTP",
	Long: `Starts the local HTTP API:

  POST /v1/dispatch              extension wire protocol round trip
  POST /v1/sites/{site}/scrape   scrape and store
  POST /v1/schemas/check         selector health for the active tab
  GET  /v1/page                  active tab document (?format=markdown)
  GET  /v1/fragments?q=          suggestion search
  GET  /v1/sites                 registered sites
  GET  /healthz, /metrics`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{logAnnotation: logToStderr},
	RunE:        runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cache.Reload(ctx); err != nil {
		return err
	}

	addr := serveListen
	if addr == "" {
		addr = cfg.Server.Listen
	}
	srv := server.New(server.Deps{Service: a.service, Cache: a.cache, Store: a.store, Logger: logger})
	return srv.ListenAndServe(ctx, addr)
}
