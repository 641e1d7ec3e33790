package dispatch

import (
	"context"
	"fmt"
	"io"
	"strings"

	"chathud/internal/extract"
	"chathud/internal/logging"
	"chathud/internal/protocol"
	"chathud/internal/store"
)

// Level is the severity of a status notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is one status line.
type Notice struct {
	Level Level
	Text  string
}

func notice(l Level, format string, args ...any) Notice {
	return Notice{Level: l, Text: fmt.Sprintf(format, args...)}
}

// Appender persists fragments. *store.LocalStore implements it.
type Appender interface {
	Append(ctx context.Context, site string, texts []string) ([]store.Fragment, error)
}

// Reloader refreshes a read-only copy of the store. *hud.Cache implements it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Service is the scrape pipeline: dispatch, store, reload.
type Service struct {
	dispatcher *Dispatcher
	store      Appender
	cache      Reloader
	trim       bool
}

// NewService wires a pipeline. cache may be nil.
func NewService(d *Dispatcher, s Appender, cache Reloader, trim bool) *Service {
	return &Service{dispatcher: d, store: s, cache: cache, trim: trim}
}

// Dispatcher returns the underlying dispatcher.
func (s *Service) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// ScrapeReport is the outcome of one scrape.
type ScrapeReport struct {
	Result  protocol.ScrapeResult
	Stored  []store.Fragment
	Notices []Notice
}

// Scrape runs one scrape of site and stores what it found. A scrape that
// yields no fragments writes nothing. The returned error is the first
// failure; the report's notices describe it for display either way.
func (s *Service) Scrape(ctx context.Context, site string) (ScrapeReport, error) {
	display := s.display(site)

	payload, err := s.dispatcher.Do(ctx, protocol.ScrapeSite{Site: site})
	if err != nil {
		return ScrapeReport{Notices: []Notice{notice(LevelError, "Scraping %s error: %v", display, err)}}, err
	}
	res, ok := payload.(protocol.ScrapeResult)
	if !ok {
		err := fmt.Errorf("unexpected payload %T", payload)
		return ScrapeReport{Notices: []Notice{notice(LevelError, "Scraping %s error: %v", display, err)}}, err
	}
	return s.record(ctx, display, res)
}

// ScrapeHTML runs the same pipeline over a saved page instead of the live
// tab. An empty selector uses the site's registered one.
func (s *Service) ScrapeHTML(ctx context.Context, site, selector string, r io.Reader) (ScrapeReport, error) {
	display := s.display(site)
	fail := func(err error) (ScrapeReport, error) {
		return ScrapeReport{Notices: []Notice{notice(LevelError, "Scraping %s error: %v", display, err)}}, err
	}

	if selector == "" {
		known, err := s.dispatcher.Sites().Lookup(site)
		if err != nil {
			return fail(err)
		}
		selector = known.Selector
	}
	res, err := extract.FromHTML(r, selector, extract.WithMaxFragmentBytes(s.dispatcher.maxBytes))
	if err != nil {
		return fail(err)
	}
	return s.record(ctx, display, protocol.ScrapeResult{Site: site, Selector: selector, Result: res})
}

func (s *Service) display(site string) string {
	if known, err := s.dispatcher.Sites().Lookup(site); err == nil {
		return known.Display
	}
	return site
}

// record stores a scrape result and builds its notices.
func (s *Service) record(ctx context.Context, display string, res protocol.ScrapeResult) (ScrapeReport, error) {
	rep := ScrapeReport{Result: res}

	st := res.Status
	rep.Notices = append(rep.Notices, notice(LevelInfo, "Scraping %s: %d/%d", display, st.Processed, st.Total))
	if len(st.Errors) > 0 {
		rep.Notices = append(rep.Notices, notice(LevelError, "Errors: %s", strings.Join(st.Errors, ", ")))
	}

	texts := res.Fragments
	if s.trim {
		texts = trimFragments(texts)
	}
	if len(texts) > 0 {
		stored, err := s.store.Append(ctx, res.Site, texts)
		if err != nil {
			rep.Notices = append(rep.Notices, notice(LevelError, "Error storing fragments: %v", err))
			return rep, err
		}
		rep.Stored = stored
		rep.Notices = append(rep.Notices, notice(LevelSuccess, "Stored %d fragments.", len(stored)))

		if s.cache != nil {
			if err := s.cache.Reload(ctx); err != nil {
				logging.Get(logging.CategoryDispatch).Warn("cache reload after scrape: %v", err)
				rep.Notices = append(rep.Notices, notice(LevelWarning, "Suggestion cache reload failed: %v", err))
			}
		}
	}

	rep.Notices = append(rep.Notices, notice(LevelSuccess, "%s scraping completed.", display))
	logging.Dispatch("scraped %s: %d/%d, stored %d", res.Site, st.Processed, st.Total, len(rep.Stored))
	return rep, nil
}

// CheckSchemas reports which site selectors still match in the active tab.
func (s *Service) CheckSchemas(ctx context.Context) (protocol.SchemaReport, []Notice, error) {
	payload, err := s.dispatcher.Do(ctx, protocol.CheckSchemas{})
	if err != nil {
		return protocol.SchemaReport{}, []Notice{notice(LevelError, "Schema check error: %v", err)}, err
	}
	report, ok := payload.(protocol.SchemaReport)
	if !ok {
		err := fmt.Errorf("unexpected payload %T", payload)
		return protocol.SchemaReport{}, []Notice{notice(LevelError, "Schema check error: %v", err)}, err
	}

	notices := make([]Notice, 0, len(report.States))
	for _, st := range report.States {
		display := s.display(st.Site)
		level := LevelSuccess
		if !st.Working {
			level = LevelWarning
		}
		notices = append(notices, notice(level, "%s schema: %s", display, st.Label()))
	}
	return report, notices, nil
}

// Grab returns the active tab's document.
func (s *Service) Grab(ctx context.Context) (protocol.PageContent, []Notice, error) {
	payload, err := s.dispatcher.Do(ctx, protocol.GrabPageContent{})
	if err != nil {
		return protocol.PageContent{}, []Notice{notice(LevelError, "Grab page error: %v", err)}, err
	}
	page, ok := payload.(protocol.PageContent)
	if !ok {
		err := fmt.Errorf("unexpected payload %T", payload)
		return protocol.PageContent{}, []Notice{notice(LevelError, "Grab page error: %v", err)}, err
	}
	logging.Dispatch("grabbed %d bytes from %s", len(page.HTML), page.URL)
	return page, []Notice{notice(LevelInfo, "Page content logged to console.")}, nil
}

func trimFragments(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
