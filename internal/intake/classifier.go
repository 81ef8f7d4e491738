package intake

import (
	"net/url"
	"strings"

	"leadpipe/internal/leads/ports"
)

// Page is a submitted page prepared for classification.
type Page struct {
	ports.IntakePage
	doc *Document
}

// Text returns the visible page text, falling back to the raw markup when the
// page could not be parsed.
func (p Page) Text() string {
	if p.doc == nil {
		return p.HTML
	}
	return p.doc.Text()
}

// Query returns whether any element matches sel.
func (p Page) Query(sel Selector) bool {
	return p.doc != nil && p.doc.Query(sel) != nil
}

func newPage(raw ports.IntakePage) Page {
	doc, err := ParseDocument(raw.HTML)
	if err != nil {
		return Page{IntakePage: raw}
	}
	return Page{IntakePage: raw, doc: doc}
}

// Rule is one layer of the submission classifier. decided is false when the
// rule has no opinion and the next layer should run.
type Rule interface {
	Name() string
	Decide(page Page) (success, decided bool)
}

// URLRule declares success when the landing URL carries a keyword. Separators
// in the URL count as spaces so "/thank-you" matches "thank you".
type URLRule struct {
	Keywords []string
}

func (URLRule) Name() string { return "url" }

func (r URLRule) Decide(page Page) (bool, bool) {
	u := page.URL
	if unescaped, err := url.PathUnescape(u); err == nil {
		u = unescaped
	}
	u = urlSeparators.Replace(u)
	return true, containsAny(u, r.Keywords)
}

var urlSeparators = strings.NewReplacer("-", " ", "_", " ", "+", " ", "/", " ", ".", " ", "?", " ", "&", " ", "=", " ")

// ContentRule declares success when the page text carries a keyword.
type ContentRule struct {
	Keywords []string
}

func (ContentRule) Name() string { return "content" }

func (r ContentRule) Decide(page Page) (bool, bool) {
	return true, containsAny(page.Text(), r.Keywords)
}

// MarkerRule declares success when a known success element is present.
type MarkerRule struct {
	Selectors []Selector
}

func (MarkerRule) Name() string { return "marker" }

func (r MarkerRule) Decide(page Page) (bool, bool) {
	for _, sel := range r.Selectors {
		if page.Query(sel) {
			return true, true
		}
	}
	return false, false
}

// DefaultRule always decides: failure iff an error keyword is present.
type DefaultRule struct {
	FailureKeywords []string
}

func (DefaultRule) Name() string { return "default" }

func (r DefaultRule) Decide(page Page) (bool, bool) {
	return !containsAny(page.Text(), r.FailureKeywords), true
}

// Classifier runs its rules in order until one decides.
type Classifier struct {
	rules          []Rule
	fallback       DefaultRule
	errorSelectors []Selector
}

var _ ports.SubmissionClassifier = (*Classifier)(nil)

// NewClassifier builds the layered chain from a profile:
// URL keyword, page content keyword, success marker, default.
func NewClassifier(p Profile) (*Classifier, error) {
	success, err := parseSelectors(p.Success.Selectors)
	if err != nil {
		return nil, err
	}
	failure, err := parseSelectors(p.Failure.Selectors)
	if err != nil {
		return nil, err
	}
	return NewChain(
		DefaultRule{FailureKeywords: p.Failure.Keywords},
		failure,
		URLRule{Keywords: p.Success.Keywords},
		ContentRule{Keywords: p.Success.Keywords},
		MarkerRule{Selectors: success},
	), nil
}

// NewChain assembles a classifier from explicit rules. fallback runs when no
// rule decides; errorSelectors feed ExtractError.
func NewChain(fallback DefaultRule, errorSelectors []Selector, rules ...Rule) *Classifier {
	return &Classifier{rules: rules, fallback: fallback, errorSelectors: errorSelectors}
}

// Classify implements ports.SubmissionClassifier.
func (c *Classifier) Classify(raw ports.IntakePage) ports.SubmissionVerdict {
	page := newPage(raw)
	for _, rule := range c.rules {
		if success, decided := rule.Decide(page); decided {
			return ports.SubmissionVerdict{Success: success, Rule: rule.Name()}
		}
	}
	success, _ := c.fallback.Decide(page)
	return ports.SubmissionVerdict{Success: success, Rule: c.fallback.Name(), Defaulted: true}
}

// ExtractError returns the text of the first error marker with non-blank
// text, or "" when there is none.
func (c *Classifier) ExtractError(raw ports.IntakePage) string {
	page := newPage(raw)
	if page.doc == nil {
		return ""
	}
	for _, sel := range c.errorSelectors {
		if n := page.doc.Query(sel); n != nil {
			if text := nodeText(n); text != "" {
				return text
			}
		}
	}
	return ""
}

func parseSelectors(raw []string) ([]Selector, error) {
	out := make([]Selector, 0, len(raw))
	for _, r := range raw {
		sel, err := ParseSelector(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

func containsAny(haystack string, keywords []string) bool {
	folded := fold(haystack)
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" && strings.Contains(folded, fold(kw)) {
			return true
		}
	}
	return false
}
