package main

import (
	"context"
	"os"
	"strings"

	"chathud/internal/browser"
	"chathud/internal/dispatch"
	"chathud/internal/hud"
	"chathud/internal/logging"
	"chathud/internal/store"

	"go.uber.org/zap"
)

// app is the wired pipeline shared by the commands.
type app struct {
	store   *store.LocalStore
	cache   *hud.Cache
	browser *browser.SessionManager
	service *dispatch.Service
}

// browserConfig maps the config file onto the session manager. Without a
// configured debugger URL, a browser started by "chathud browser launch" is
// reused through its control file.
func browserConfig() browser.Config {
	bc := browser.Config{
		DebuggerURL:       cfg.Browser.DebuggerURL,
		Launch:            cfg.Browser.Launch,
		Headless:          cfg.Browser.Headless,
		Stealth:           cfg.Browser.Stealth,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		NavigationTimeout: cfg.GetNavigationTimeout(),
		SessionStore:      cfg.SessionStore(),
	}
	if bc.DebuggerURL == "" {
		if data, err := os.ReadFile(cfg.ControlFile()); err == nil {
			if url := strings.TrimSpace(string(data)); url != "" {
				bc.DebuggerURL = url
				logger.Debug("using launched browser", zap.String("control_url", url))
			}
		}
	}
	return bc
}

// openApp opens the store and builds the pipeline. The browser connects
// lazily on the first request that needs it.
func openApp() (*app, error) {
	st, err := store.NewLocalStore(cfg.StorePath())
	if err != nil {
		return nil, err
	}
	cache := hud.NewCache(st)
	mgr := browser.NewSessionManager(browserConfig())

	d := dispatch.New(mgr, dispatch.NewRegistry(cfg.Sites),
		dispatch.WithMaxFragmentBytes(cfg.Extract.MaxFragmentBytes),
		dispatch.WithSchemaConcurrency(cfg.Extract.SchemaConcurrency),
		dispatch.WithEvalTimeout(cfg.GetEvalTimeout()),
	)
	svc := dispatch.NewService(d, st, cache, cfg.Store.Trim)

	logging.Boot("store %s opened, %d sites registered", st.Path(), d.Sites().Len())
	return &app{store: st, cache: cache, browser: mgr, service: svc}, nil
}

// Close drops the browser connection and closes the store.
func (a *app) Close() {
	if a.browser.IsConnected() {
		if err := a.browser.Shutdown(context.Background()); err != nil {
			logging.Get(logging.CategoryBrowser).Warn("shutdown: %v", err)
		}
	}
	if err := a.store.Close(); err != nil {
		logging.Get(logging.CategoryStore).Warn("close: %v", err)
	}
}
