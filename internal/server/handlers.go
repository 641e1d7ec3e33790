package server

import (
	"errors"
	"io"
	"net/http"

	"chathud/internal/browser"
	"chathud/internal/dispatch"
	"chathud/internal/protocol"
	"chathud/internal/store"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

type noticeJSON struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

type errorJSON struct {
	Error   string       `json:"error"`
	Notices []noticeJSON `json:"notices,omitempty"`
}

type scrapeJSON struct {
	Result  protocol.ScrapeResult `json:"result"`
	Stored  int                   `json:"stored"`
	Notices []noticeJSON          `json:"notices"`
}

type schemasJSON struct {
	Report  protocol.SchemaReport `json:"report"`
	Notices []noticeJSON          `json:"notices"`
}

type pageJSON struct {
	protocol.PageContent
	Markdown string `json:"markdown,omitempty"`
}

type fragmentsJSON struct {
	Query     string           `json:"query"`
	Total     int              `json:"total"`
	Fragments []store.Fragment `json:"fragments"`
}

type siteJSON struct {
	Name     string `json:"name"`
	Display  string `json:"display"`
	Selector string `json:"selector"`
}

func notices(ns []dispatch.Notice) []noticeJSON {
	out := make([]noticeJSON, len(ns))
	for i, n := range ns {
		out[i] = noticeJSON{Level: n.Level.String(), Text: n.Text}
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

// statusFor maps pipeline errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrUnknownSite), errors.Is(err, protocol.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, browser.ErrNoActiveTab), errors.Is(err, browser.ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	count := -1
	if s.deps.Store != nil {
		if n, err := s.deps.Store.Count(r.Context()); err == nil {
			count = n
		} else {
			s.writeJSON(w, http.StatusServiceUnavailable, errorJSON{Error: err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "fragments": count})
}

// handleDispatch runs one protocol round trip without touching the store.
// The body and the response use the protocol wire format; the extension's
// camel-case action names are accepted.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
		return
	}
	req, err := protocol.DecodeRequest(body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, protocol.ErrUnknownAction) {
			status = http.StatusNotFound
		}
		s.writeJSON(w, status, errorJSON{Error: err.Error()})
		return
	}

	resp := s.deps.Service.Dispatcher().Handle(r.Context(), req)
	out, err := protocol.EncodeResponse(resp)
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, errorJSON{Error: err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	sites := s.deps.Service.Dispatcher().Sites().All()
	out := make([]siteJSON, len(sites))
	for i, site := range sites {
		out[i] = siteJSON{Name: site.Name, Display: site.Display, Selector: site.Selector}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	site := chi.URLParam(r, "site")
	rep, err := s.deps.Service.Scrape(r.Context(), site)
	if err != nil {
		s.writeJSON(w, statusFor(err), errorJSON{Error: err.Error(), Notices: notices(rep.Notices)})
		return
	}
	s.writeJSON(w, http.StatusOK, scrapeJSON{
		Result:  rep.Result,
		Stored:  len(rep.Stored),
		Notices: notices(rep.Notices),
	})
}

func (s *Server) handleCheckSchemas(w http.ResponseWriter, r *http.Request) {
	report, ns, err := s.deps.Service.CheckSchemas(r.Context())
	if err != nil {
		s.writeJSON(w, statusFor(err), errorJSON{Error: err.Error(), Notices: notices(ns)})
		return
	}
	s.writeJSON(w, http.StatusOK, schemasJSON{Report: report, Notices: notices(ns)})
}

func (s *Server) handleGrab(w http.ResponseWriter, r *http.Request) {
	page, ns, err := s.deps.Service.Grab(r.Context())
	if err != nil {
		s.writeJSON(w, statusFor(err), errorJSON{Error: err.Error(), Notices: notices(ns)})
		return
	}
	out := pageJSON{PageContent: page}
	if r.URL.Query().Get("format") == "markdown" {
		md, err := dispatch.ToMarkdown(page.HTML, page.URL)
		if err != nil {
			s.writeJSON(w, http.StatusInternalServerError, errorJSON{Error: err.Error()})
			return
		}
		out.Markdown = md
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleFragments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if r.URL.Query().Get("reload") == "true" {
		if err := s.deps.Cache.Reload(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, errorJSON{Error: err.Error()})
			return
		}
	}
	matches := s.deps.Cache.Filter(q)
	if matches == nil {
		matches = []store.Fragment{}
	}
	s.writeJSON(w, http.StatusOK, fragmentsJSON{
		Query:     q,
		Total:     s.deps.Cache.Len(),
		Fragments: matches,
	})
}
