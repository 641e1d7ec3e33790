// Package extract collects the text content of elements matching a CSS
// selector. The live path runs Script inside a browser tab; FromHTML applies
// the same contract to a saved HTML document.
package extract

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// ErrInconsistent is returned when a decoded result violates the
// processed/total/errors accounting.
var ErrInconsistent = errors.New("extract: inconsistent result")

// Status summarises one extraction pass.
type Status struct {
	Total     int      `json:"total"`
	Processed int      `json:"processed"`
	Errors    []string `json:"errors"`
}

// Result is the outcome of running an extraction against a page.
// Fragments are in document order.
type Result struct {
	Fragments []string `json:"fragments"`
	Status    Status   `json:"status"`
}

// Empty reports whether the pass produced nothing worth storing.
func (r Result) Empty() bool {
	return len(r.Fragments) == 0
}

// Validate checks Processed == len(Fragments) and
// Processed + len(Errors) == Total.
func (r Result) Validate() error {
	if r.Status.Processed != len(r.Fragments) {
		return fmt.Errorf("%w: processed=%d fragments=%d", ErrInconsistent, r.Status.Processed, len(r.Fragments))
	}
	if r.Status.Processed+len(r.Status.Errors) != r.Status.Total {
		return fmt.Errorf("%w: processed=%d errors=%d total=%d",
			ErrInconsistent, r.Status.Processed, len(r.Status.Errors), r.Status.Total)
	}
	return nil
}

// Decode parses the JSON value returned by Script.
func Decode(raw []byte) (Result, error) {
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, fmt.Errorf("decode extraction result: %w", err)
	}
	if res.Fragments == nil {
		res.Fragments = []string{}
	}
	if res.Status.Errors == nil {
		res.Status.Errors = []string{}
	}
	if err := res.Validate(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// collector accumulates fragments and per-element errors the same way the
// in-page script does.
type collector struct {
	maxBytes int
	res      Result
}

func newCollector(total, maxBytes int) *collector {
	return &collector{
		maxBytes: maxBytes,
		res: Result{
			Fragments: make([]string, 0, total),
			Status:    Status{Total: total, Errors: []string{}},
		},
	}
}

func (c *collector) add(text string) {
	if c.maxBytes > 0 && len(text) > c.maxBytes {
		c.res.Status.Errors = append(c.res.Status.Errors, fmt.Sprintf("fragment exceeds %d bytes", c.maxBytes))
		return
	}
	c.res.Fragments = append(c.res.Fragments, text)
	c.res.Status.Processed++
}
