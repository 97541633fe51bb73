// internal/browser/locator.go
package browser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Strategy names one way of finding elements on a page.
type Strategy string

const (
	ByCSS         Strategy = "css"
	ByXPath       Strategy = "xpath"
	ByText        Strategy = "text"
	ByLabel       Strategy = "label"
	ByPlaceholder Strategy = "placeholder"
	ByRole        Strategy = "role"
)

// MatchMode controls how text patterns are compared. Every mode ignores case
// and collapses whitespace before comparing.
type MatchMode string

const (
	MatchContains MatchMode = "contains"
	MatchExact    MatchMode = "exact"
	MatchRegex    MatchMode = "regex"
)

// Locator is a serializable element query. It is resolved inside the page by
// the embedded resolver script, so the same value can be logged, compared in
// tests, and sent to the browser.
type Locator struct {
	strategy Strategy
	query    string
	pattern  string
	mode     MatchMode
	hasText  string
	nth      int // 1-based; 0 keeps every match
	scope    *Locator
}

// CSS matches elements by CSS selector.
func CSS(selector string) Locator {
	return Locator{strategy: ByCSS, query: selector}
}

// XPath matches elements by XPath expression, evaluated relative to the scope.
func XPath(expr string) Locator {
	return Locator{strategy: ByXPath, query: expr}
}

// Text matches the innermost elements (limited to candidates, "*" when empty)
// whose text satisfies pattern under mode.
func Text(candidates, pattern string, mode MatchMode) Locator {
	if candidates == "" {
		candidates = "*"
	}
	return Locator{strategy: ByText, query: candidates, pattern: pattern, mode: mode}
}

// Label matches form controls associated with a label (or aria-label) whose
// text satisfies pattern.
func Label(pattern string, mode MatchMode) Locator {
	return Locator{strategy: ByLabel, pattern: pattern, mode: mode}
}

// Placeholder matches inputs and textareas by placeholder text.
func Placeholder(pattern string, mode MatchMode) Locator {
	return Locator{strategy: ByPlaceholder, pattern: pattern, mode: mode}
}

// Role matches elements with an ARIA role (native equivalents included) whose
// accessible name satisfies pattern.
func Role(role, name string, mode MatchMode) Locator {
	return Locator{strategy: ByRole, query: role, pattern: name, mode: mode}
}

// Button is shorthand for Role("button", ...).
func Button(name string, mode MatchMode) Locator {
	return Role("button", name, mode)
}

// Within restricts the locator to descendants of every element matched by scope.
func (l Locator) Within(scope Locator) Locator {
	s := scope
	l.scope = &s
	return l
}

// HasText keeps only matches whose text contains s (literal, case-insensitive).
func (l Locator) HasText(s string) Locator {
	l.hasText = s
	return l
}

// At keeps only the i-th (0-based) match.
func (l Locator) At(i int) Locator {
	l.nth = i + 1
	return l
}

// First keeps only the first match.
func (l Locator) First() Locator {
	return l.At(0)
}

// Strategy reports the locator's strategy.
func (l Locator) Strategy() Strategy { return l.strategy }

// String renders a compact, human-readable description for logs.
func (l Locator) String() string {
	var b strings.Builder
	if l.scope != nil {
		b.WriteString(l.scope.String())
		b.WriteString(" >> ")
	}
	b.WriteString(string(l.strategy))
	b.WriteString("=")
	switch l.strategy {
	case ByCSS, ByXPath:
		b.WriteString(l.query)
	case ByText:
		fmt.Fprintf(&b, "%s[%s %q]", l.query, l.mode, l.pattern)
	case ByRole:
		fmt.Fprintf(&b, "%s[%s %q]", l.query, l.mode, l.pattern)
	default:
		fmt.Fprintf(&b, "[%s %q]", l.mode, l.pattern)
	}
	if l.hasText != "" {
		fmt.Fprintf(&b, " has-text=%q", l.hasText)
	}
	if l.nth > 0 {
		fmt.Fprintf(&b, " nth=%d", l.nth-1)
	}
	return b.String()
}

// locatorSpec is the wire form consumed by the resolver script.
type locatorSpec struct {
	Strategy Strategy     `json:"strategy"`
	Query    string       `json:"query,omitempty"`
	Pattern  string       `json:"pattern,omitempty"`
	Mode     MatchMode    `json:"mode,omitempty"`
	HasText  string       `json:"hasText,omitempty"`
	Nth      int          `json:"nth,omitempty"`
	Scope    *locatorSpec `json:"scope,omitempty"`
}

func (l Locator) spec() *locatorSpec {
	s := &locatorSpec{
		Strategy: l.strategy,
		Query:    l.query,
		Pattern:  l.pattern,
		Mode:     l.mode,
		HasText:  l.hasText,
		Nth:      l.nth,
	}
	if s.Mode == "" && s.Pattern != "" {
		s.Mode = MatchContains
	}
	if l.scope != nil {
		s.Scope = l.scope.spec()
	}
	return s
}

// MarshalJSON encodes the locator in the resolver's wire form.
func (l Locator) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.spec())
}
