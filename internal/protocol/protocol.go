// Package protocol defines the request/response messages exchanged between
// the overlay and the scrape dispatcher. Requests and payloads are closed
// sets: every variant lives in this file and carries an unexported marker
// method, so type switches over them can be checked for exhaustiveness.
package protocol

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"chathud/internal/extract"
)

// Action names a request on the wire.
type Action string

const (
	ActionCheckSchemas    Action = "check-schemas"
	ActionGrabPageContent Action = "grab-page-content"

	scrapePrefix = "scrape-"
)

// Camel-case names sent by the browser extension ("scrapeChatGPT",
// "checkSchemas", "grabPageContent"), compared lowercased.
const (
	legacyScrapePrefix = "scrape"
	legacyCheckSchemas = "checkschemas"
	legacyGrabPage     = "grabpagecontent"
)

// ErrUnknownAction is returned when an action string matches no variant.
var ErrUnknownAction = errors.New("unknown action")

// ScrapeAction returns the action name for scraping site.
func ScrapeAction(site string) Action {
	return Action(scrapePrefix + strings.ToLower(site))
}

// IsScrape reports whether a is a scrape-<site> action and returns the site.
func (a Action) IsScrape() (string, bool) {
	site, ok := strings.CutPrefix(string(a), scrapePrefix)
	return site, ok && site != ""
}

// Request is one of ScrapeSite, CheckSchemas or GrabPageContent.
type Request interface {
	Action() Action
	isRequest()
}

// ScrapeSite asks for the text of every element matching the site's
// selector in the active tab. Selector overrides the registry when set.
type ScrapeSite struct {
	Site     string
	Selector string
}

// CheckSchemas asks whether each registered site's selector still matches
// anything in the active tab.
type CheckSchemas struct{}

// GrabPageContent asks for the active tab's serialised document.
type GrabPageContent struct{}

func (r ScrapeSite) Action() Action    { return ScrapeAction(r.Site) }
func (CheckSchemas) Action() Action    { return ActionCheckSchemas }
func (GrabPageContent) Action() Action { return ActionGrabPageContent }

func (ScrapeSite) isRequest()      {}
func (CheckSchemas) isRequest()    {}
func (GrabPageContent) isRequest() {}

// ParseAction builds the request for an action name. The extension's
// camel-case names are accepted as aliases.
func ParseAction(action string, selector string) (Request, error) {
	a := Action(strings.ToLower(strings.TrimSpace(action)))
	switch a {
	case ActionCheckSchemas, legacyCheckSchemas:
		return CheckSchemas{}, nil
	case ActionGrabPageContent, legacyGrabPage:
		return GrabPageContent{}, nil
	}
	if site, ok := a.IsScrape(); ok {
		return ScrapeSite{Site: site, Selector: selector}, nil
	}
	if site, ok := strings.CutPrefix(string(a), legacyScrapePrefix); ok && site != "" && !strings.HasPrefix(site, "-") {
		return ScrapeSite{Site: site, Selector: selector}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// Payload is one of ScrapeResult, SchemaReport or PageContent.
type Payload interface {
	isPayload()
}

// ScrapeResult carries the fragments extracted for one site.
type ScrapeResult struct {
	Site     string `json:"site"`
	Selector string `json:"selector"`
	URL      string `json:"url,omitempty"`
	extract.Result
}

// SchemaState is the health of one site's selector.
type SchemaState struct {
	Site        string    `json:"site"`
	Selector    string    `json:"selector"`
	Working     bool      `json:"working"`
	Count       int       `json:"count"`
	LastChecked time.Time `json:"last_checked"`
	Err         string    `json:"error,omitempty"`
}

// Label renders the state the way the status line shows it.
func (s SchemaState) Label() string {
	if s.Working {
		return "Working"
	}
	return "Stale"
}

// SchemaReport lists states in registry order.
type SchemaReport struct {
	URL    string        `json:"url,omitempty"`
	States []SchemaState `json:"states"`
}

// Lookup returns the state for site.
func (r SchemaReport) Lookup(site string) (SchemaState, bool) {
	for _, s := range r.States {
		if strings.EqualFold(s.Site, site) {
			return s, true
		}
	}
	return SchemaState{}, false
}

// PageContent is the serialised document of the active tab.
type PageContent struct {
	URL  string `json:"url,omitempty"`
	HTML string `json:"html"`
}

func (ScrapeResult) isPayload() {}
func (SchemaReport) isPayload() {}
func (PageContent) isPayload()  {}

// Response carries either a payload or an error string, never both.
type Response struct {
	Action Action
	Result Payload
	Err    string
}

// OK reports whether the response carries a result.
func (r Response) OK() bool { return r.Err == "" }

// Failed builds an error response for req.
func Failed(req Request, err error) Response {
	r := Response{Err: err.Error()}
	if req != nil {
		r.Action = req.Action()
	}
	return r
}

// Succeeded builds a result response for req.
func Succeeded(req Request, p Payload) Response {
	return Response{Action: req.Action(), Result: p}
}
