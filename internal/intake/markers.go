package intake

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"
)

// Selector is a parsed marker selector: a comma group of CSS selectors, each
// optionally ending in :has-text('v'), which matches when the element's
// visible text contains v case-insensitively.
type Selector struct {
	raw  string
	alts []alternative
}

type alternative struct {
	css     cascadia.Sel
	hasText *string
}

var _ cascadia.Matcher = Selector{}

const hasTextPseudo = ":has-text("

// ParseSelector parses a marker selector.
func ParseSelector(raw string) (Selector, error) {
	sel := Selector{raw: strings.TrimSpace(raw)}
	if sel.raw == "" {
		return Selector{}, fmt.Errorf("empty selector")
	}
	for _, part := range splitTopLevel(sel.raw, ',') {
		alt, err := parseAlternative(strings.TrimSpace(part))
		if err != nil {
			return Selector{}, fmt.Errorf("selector %q: %w", raw, err)
		}
		sel.alts = append(sel.alts, alt)
	}
	return sel, nil
}

// MustParseSelector is ParseSelector for literals.
func MustParseSelector(raw string) Selector {
	s, err := ParseSelector(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Selector) String() string { return s.raw }

// Match reports whether the element n satisfies any alternative.
func (s Selector) Match(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	for _, alt := range s.alts {
		if !alt.css.Match(n) {
			continue
		}
		if alt.hasText == nil || containsFold(nodeText(n), *alt.hasText) {
			return true
		}
	}
	return false
}

// parseAlternative splits off a trailing :has-text and hands the rest to
// cascadia.
func parseAlternative(s string) (alternative, error) {
	if s == "" {
		return alternative{}, fmt.Errorf("empty alternative")
	}

	var alt alternative
	if idx := strings.Index(s, hasTextPseudo); idx >= 0 {
		open := idx + len(hasTextPseudo) - 1
		end := closing(s, open, '(', ')')
		if end < 0 {
			return alternative{}, fmt.Errorf("unterminated :has-text at %d", idx)
		}
		if strings.TrimSpace(s[end+1:]) != "" {
			return alternative{}, fmt.Errorf(":has-text must end the selector")
		}
		text := unquote(strings.TrimSpace(s[open+1 : end]))
		alt.hasText = &text
		s = strings.TrimSpace(s[:idx])
		if s == "" || strings.ContainsAny(s[len(s)-1:], ">+~") {
			s += "*"
		}
	}

	css, err := cascadia.Parse(s)
	if err != nil {
		return alternative{}, err
	}
	alt.css = css
	return alt, nil
}

// closing returns the index of the bracket closing the one at open, skipping
// quoted text.
func closing(s string, open int, left, right byte) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == left:
			depth++
		case ch == right:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits on sep outside brackets and quotes, so commas inside
// :has-text('a, b') stay with their alternative.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '[' || ch == '(':
			depth++
		case ch == ']' || ch == ')':
			depth--
		case ch == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// Document is a parsed post-submit page.
type Document struct {
	root *html.Node
}

// ParseDocument parses page HTML. The HTML5 parser recovers from malformed
// markup, so an error is only returned for reader failures.
func ParseDocument(markup string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Document{root: root}, nil
}

// Query returns the first element in document order matching sel, or nil.
func (d *Document) Query(sel Selector) *html.Node {
	return cascadia.Query(d.root, sel)
}

// Text returns the visible text of the whole document.
func (d *Document) Text() string {
	return nodeText(d.root)
}

// nodeText collects the text under n with whitespace collapsed. Script and
// style content is skipped.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style || n.DataAtom == atom.Noscript) {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// fold returns the case-folded form of s. A Caser is not safe for concurrent
// use, so one is built per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(fold(haystack), fold(needle))
}
