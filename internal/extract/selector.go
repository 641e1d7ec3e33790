package extract

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// ErrUnsupportedSelector is returned for selector syntax the static engine
// does not implement (pseudo-classes, sibling combinators).
var ErrUnsupportedSelector = errors.New("unsupported selector")

// Selector is a parsed selector list. Supported syntax:
//   - tag, *, .class, #id, [attr], [attr=val] and compounds of those
//   - descendant (space) and child (>) combinators
//   - comma-separated groups
//   - backslash escapes in identifiers (".md\:prose")
type Selector struct {
	raw    string
	groups [][]step
}

type attrMatch struct {
	key    string
	val    string
	hasVal bool
}

type compound struct {
	tag     string
	id      string
	classes []string
	attrs   []attrMatch
}

// step is one compound plus the combinator linking it to the step on its left.
type step struct {
	compound
	comb byte
}

// ParseSelector parses a selector list.
func ParseSelector(s string) (*Selector, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty selector", ErrUnsupportedSelector)
	}
	sel := &Selector{raw: raw}
	for _, g := range splitOutside(raw, ',') {
		steps, err := parseComplex(strings.TrimSpace(g))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", raw, err)
		}
		sel.groups = append(sel.groups, steps)
	}
	return sel, nil
}

// String returns the selector as written.
func (s *Selector) String() string { return s.raw }

// Match reports whether the element matches any group.
func (s *Selector) Match(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, g := range s.groups {
		if matchSteps(n, g, len(g)-1) {
			return true
		}
	}
	return false
}

// QueryAll returns matching elements below root in document order,
// mirroring document.querySelectorAll.
func (s *Selector) QueryAll(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if s.Match(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(root)
	return out
}

func matchSteps(n *html.Node, steps []step, i int) bool {
	if !steps[i].matches(n) {
		return false
	}
	if i == 0 {
		return true
	}
	if steps[i].comb == '>' {
		p := parentElement(n)
		return p != nil && matchSteps(p, steps, i-1)
	}
	for p := parentElement(n); p != nil; p = parentElement(p) {
		if matchSteps(p, steps, i-1) {
			return true
		}
	}
	return false
}

func parentElement(n *html.Node) *html.Node {
	p := n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return p
}

func (c compound) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if c.tag != "" && c.tag != "*" && !strings.EqualFold(n.Data, c.tag) {
		return false
	}
	if c.id != "" && attr(n, "id") != c.id {
		return false
	}
	if len(c.classes) > 0 {
		have := strings.Fields(attr(n, "class"))
		for _, want := range c.classes {
			if !contains(have, want) {
				return false
			}
		}
	}
	for _, a := range c.attrs {
		val, ok := lookupAttr(n, a.key)
		if !ok || (a.hasVal && val != a.val) {
			return false
		}
	}
	return true
}

func parseComplex(g string) ([]step, error) {
	if g == "" {
		return nil, fmt.Errorf("%w: empty group", ErrUnsupportedSelector)
	}
	var steps []step
	var comb byte
	for i := 0; i < len(g); {
		switch c := g[i]; {
		case isSpace(c):
			if len(steps) > 0 && comb == 0 {
				comb = ' '
			}
			i++
		case c == '>':
			if len(steps) == 0 {
				return nil, fmt.Errorf("%w: leading combinator", ErrUnsupportedSelector)
			}
			comb = '>'
			i++
		default:
			cmp, n, err := parseCompound(g[i:])
			if err != nil {
				return nil, err
			}
			steps = append(steps, step{compound: cmp, comb: comb})
			comb = 0
			i += n
		}
	}
	if comb == '>' {
		return nil, fmt.Errorf("%w: trailing combinator", ErrUnsupportedSelector)
	}
	return steps, nil
}

func parseCompound(s string) (compound, int, error) {
	var c compound
	j := 0
	if s[0] == '*' {
		c.tag = "*"
		j = 1
	} else if isIdentStart(s[0]) {
		name, n := readIdent(s)
		c.tag = strings.ToLower(name)
		j = n
	}
	for j < len(s) {
		switch s[j] {
		case '.', '#':
			name, n := readIdent(s[j+1:])
			if name == "" {
				return c, 0, fmt.Errorf("%w: empty name after %q", ErrUnsupportedSelector, s[j])
			}
			if s[j] == '.' {
				c.classes = append(c.classes, name)
			} else {
				c.id = name
			}
			j += n + 1
		case '[':
			end := closingBracket(s[j:])
			if end < 0 {
				return c, 0, fmt.Errorf("%w: unclosed attribute", ErrUnsupportedSelector)
			}
			a, err := parseAttr(s[j+1 : j+end])
			if err != nil {
				return c, 0, err
			}
			c.attrs = append(c.attrs, a)
			j += end + 1
		case ' ', '\t', '\n', '\r', '>':
			if j == 0 {
				return c, 0, fmt.Errorf("%w: empty compound", ErrUnsupportedSelector)
			}
			return c, j, nil
		default:
			return c, 0, fmt.Errorf("%w: %q", ErrUnsupportedSelector, s[j:])
		}
	}
	return c, j, nil
}

func parseAttr(body string) (attrMatch, error) {
	key, val, hasVal := strings.Cut(body, "=")
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "~|^$*") {
		return attrMatch{}, fmt.Errorf("%w: attribute [%s]", ErrUnsupportedSelector, body)
	}
	a := attrMatch{key: strings.ToLower(key), hasVal: hasVal}
	if hasVal {
		a.val = strings.Trim(strings.TrimSpace(val), `"'`)
	}
	return a, nil
}

// readIdent reads an identifier, honouring backslash escapes. It returns the
// unescaped name and the number of bytes consumed.
func readIdent(s string) (string, int) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		if c == '\\' && i+1 < len(s) {
			b.WriteByte(s[i+1])
			i += 2
			continue
		}
		if !isIdentChar(c) {
			break
		}
		b.WriteByte(c)
		i++
	}
	return b.String(), i
}

// closingBracket returns the index of the ']' closing s[0] == '['.
func closingBracket(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ']':
			return i
		}
	}
	return -1
}

// splitOutside splits s on sep, ignoring separators inside brackets or quotes.
func splitOutside(s string, sep byte) []string {
	var parts []string
	var quote byte
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[':
			depth++
		case c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func isIdentStart(c byte) bool {
	return c == '_' || c == '-' || c == '\\' || c >= 0x80 ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func attr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
