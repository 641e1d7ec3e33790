package extract

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// Option tunes an extraction pass.
type Option func(*options)

type options struct {
	maxBytes int
}

// WithMaxFragmentBytes makes elements whose text is longer than n bytes count
// as per-element errors. Zero disables the limit.
func WithMaxFragmentBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

// FromHTML runs the extraction contract over a static HTML document.
func FromHTML(r io.Reader, selector string, opts ...Option) (Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	sel, err := ParseSelector(selector)
	if err != nil {
		return Result{}, err
	}
	doc, err := html.Parse(r)
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}

	nodes := sel.QueryAll(doc)
	c := newCollector(len(nodes), o.maxBytes)
	for _, n := range nodes {
		c.add(TextContent(n))
	}
	return c.res, nil
}

// Count returns the number of elements matching selector in a static
// document.
func Count(r io.Reader, selector string) (int, error) {
	sel, err := ParseSelector(selector)
	if err != nil {
		return 0, err
	}
	doc, err := html.Parse(r)
	if err != nil {
		return 0, fmt.Errorf("parse html: %w", err)
	}
	return len(sel.QueryAll(doc)), nil
}

// TextContent concatenates every descendant text node, like the DOM
// property of the same name.
func TextContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
