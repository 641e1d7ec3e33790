// Package dispatch routes overlay requests to the active browser tab and
// turns the answers into protocol responses. Every request is one round
// trip: nothing is retried, queued or batched.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"chathud/internal/extract"
	"chathud/internal/logging"
	"chathud/internal/metrics"
	"chathud/internal/protocol"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

// Dispatcher handles protocol requests against an Executor.
type Dispatcher struct {
	exec        Executor
	sites       *Registry
	maxBytes    int
	concurrency int
	evalTimeout time.Duration
	now         func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMaxFragmentBytes bounds the size of a single fragment. Larger
// elements are reported as per-element errors.
func WithMaxFragmentBytes(n int) Option {
	return func(d *Dispatcher) { d.maxBytes = n }
}

// WithSchemaConcurrency limits how many selector counts run at once.
func WithSchemaConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithEvalTimeout bounds each request. Zero leaves requests unbounded.
func WithEvalTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.evalTimeout = t }
}

// WithClock replaces time.Now for schema timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// New creates a Dispatcher.
func New(exec Executor, sites *Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		exec:        exec,
		sites:       sites,
		concurrency: 4,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Sites returns the registry the dispatcher resolves scrapes against.
func (d *Dispatcher) Sites() *Registry {
	return d.sites
}

// Handle runs req and returns its response. Failures are reported in
// Response.Err rather than as a Go error.
func (d *Dispatcher) Handle(ctx context.Context, req protocol.Request) protocol.Response {
	payload, err := d.Do(ctx, req)
	if err != nil {
		return protocol.Failed(req, err)
	}
	return protocol.Succeeded(req, payload)
}

// Do runs req and returns its payload, keeping the error chain intact for
// callers that branch on sentinel errors.
func (d *Dispatcher) Do(ctx context.Context, req protocol.Request) (protocol.Payload, error) {
	if d.evalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.evalTimeout)
		defer cancel()
	}

	start := time.Now()
	var (
		payload protocol.Payload
		err     error
		kind    string
	)
	switch r := req.(type) {
	case protocol.ScrapeSite:
		kind = "scrape"
		payload, err = d.scrape(ctx, r)
	case protocol.CheckSchemas:
		kind = "check"
		payload, err = d.checkSchemas(ctx)
	case protocol.GrabPageContent:
		kind = "grab"
		payload, err = d.grab(ctx)
	default:
		kind = "unknown"
		err = fmt.Errorf("%w: %T", protocol.ErrUnknownAction, req)
	}

	metrics.DispatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	metrics.DispatchTotal.WithLabelValues(kind, metrics.Outcome(err)).Inc()

	if err != nil {
		logging.Get(logging.CategoryDispatch).Warn("%s failed: %v", kind, err)
		return nil, err
	}
	logging.DispatchDebug("%s completed in %v", kind, time.Since(start))
	return payload, nil
}

func (d *Dispatcher) scrape(ctx context.Context, r protocol.ScrapeSite) (protocol.ScrapeResult, error) {
	selector := r.Selector
	if selector == "" {
		site, err := d.sites.Lookup(r.Site)
		if err != nil {
			return protocol.ScrapeResult{}, err
		}
		selector = site.Selector
	}

	url, err := d.exec.ActiveURL(ctx)
	if err != nil {
		return protocol.ScrapeResult{}, err
	}
	raw, err := d.exec.Evaluate(ctx, extract.Script, selector, d.maxBytes)
	if err != nil {
		return protocol.ScrapeResult{}, err
	}
	res, err := extract.Decode(raw)
	if err != nil {
		return protocol.ScrapeResult{}, err
	}

	label := d.siteLabel(r.Site)
	metrics.FragmentsExtracted.WithLabelValues(label).Add(float64(len(res.Fragments)))
	metrics.ExtractionErrors.WithLabelValues(label).Add(float64(len(res.Status.Errors)))
	return protocol.ScrapeResult{Site: r.Site, Selector: selector, URL: url, Result: res}, nil
}

// customSiteLabel labels metrics for scrapes of sites outside the registry.
const customSiteLabel = "custom"

func (d *Dispatcher) siteLabel(name string) string {
	if site, err := d.sites.Lookup(name); err == nil {
		return site.Name
	}
	return customSiteLabel
}

func (d *Dispatcher) checkSchemas(ctx context.Context) (protocol.SchemaReport, error) {
	url, err := d.exec.ActiveURL(ctx)
	if err != nil {
		return protocol.SchemaReport{}, err
	}

	sites := d.sites.All()
	states := make([]protocol.SchemaState, len(sites))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, site := range sites {
		g.Go(func() error {
			state := protocol.SchemaState{Site: site.Name, Selector: site.Selector}
			raw, err := d.exec.Evaluate(gctx, extract.CountScript, site.Selector)
			if err == nil {
				err = json.Unmarshal(raw, &state.Count)
			}
			if err != nil {
				state.Err = err.Error()
			}
			state.Working = err == nil && state.Count > 0
			state.LastChecked = d.now()
			states[i] = state

			working := 0.0
			if state.Working {
				working = 1
			}
			metrics.SchemaState.WithLabelValues(site.Name).Set(working)
			return nil
		})
	}
	_ = g.Wait()

	return protocol.SchemaReport{URL: url, States: states}, nil
}

func (d *Dispatcher) grab(ctx context.Context) (protocol.PageContent, error) {
	url, err := d.exec.ActiveURL(ctx)
	if err != nil {
		return protocol.PageContent{}, err
	}
	raw, err := d.exec.Evaluate(ctx, extract.OuterHTMLScript)
	if err != nil {
		return protocol.PageContent{}, err
	}
	var html string
	if err := json.Unmarshal(raw, &html); err != nil {
		return protocol.PageContent{}, fmt.Errorf("decode page content: %w", err)
	}
	return protocol.PageContent{URL: url, HTML: html}, nil
}
