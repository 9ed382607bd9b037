package browser

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Strategy selects how a Locator resolves an element.
type Strategy int

const (
	// ByCSS matches against a CSS selector.
	ByCSS Strategy = iota
	// ByXPath matches against an XPath expression.
	ByXPath
	// ByText matches elements under a CSS selector whose text contains a
	// literal string.
	ByText
)

func (s Strategy) String() string {
	switch s {
	case ByCSS:
		return "css"
	case ByXPath:
		return "xpath"
	case ByText:
		return "text"
	default:
		return "unknown"
	}
}

// Locator is one rung of a fallback chain. Locators are pure values; the
// session interprets them against the live page, trying each rung in order
// until one matches or the shared budget runs out.
type Locator struct {
	Strategy Strategy
	// Selector is the CSS selector (ByCSS, ByText) or XPath expression
	// (ByXPath).
	Selector string
	// Text is the literal text to match for ByText.
	Text string
	// Exact requires the element text to equal Text (modulo surrounding
	// whitespace) instead of containing it. ERP action links reuse short
	// labels, so substring matches can land on the wrong control.
	Exact bool
	// Regex, when set, overrides Text with a raw regular expression.
	Regex string
}

// CSS builds a CSS selector locator.
func CSS(selector string) Locator {
	return Locator{Strategy: ByCSS, Selector: selector}
}

// XPath builds an XPath locator.
func XPath(expr string) Locator {
	return Locator{Strategy: ByXPath, Selector: expr}
}

// Text builds a locator matching elements under selector whose text contains
// the literal string.
func Text(selector, text string) Locator {
	return Locator{Strategy: ByText, Selector: selector, Text: text}
}

// TextExact builds a locator matching elements under selector whose trimmed
// text equals the literal string.
func TextExact(selector, text string) Locator {
	return Locator{Strategy: ByText, Selector: selector, Text: text, Exact: true}
}

// TextPattern builds a locator matching elements under selector whose text
// matches the given regular expression.
func TextPattern(selector, expr string) Locator {
	return Locator{Strategy: ByText, Selector: selector, Regex: expr}
}

// Pattern returns the regular expression used for ByText matching. Literal
// text is quoted so ERP labels with regex metacharacters match literally.
func (l Locator) Pattern() string {
	if l.Regex != "" {
		return l.Regex
	}
	if l.Exact {
		return `^\s*` + regexp.QuoteMeta(l.Text) + `\s*$`
	}
	return regexp.QuoteMeta(l.Text)
}

func (l Locator) String() string {
	switch {
	case l.Strategy == ByText && l.Regex != "":
		return fmt.Sprintf("text(%s, /%s/)", l.Selector, l.Regex)
	case l.Strategy == ByText && l.Exact:
		return fmt.Sprintf("text=(%s, %q)", l.Selector, l.Text)
	case l.Strategy == ByText:
		return fmt.Sprintf("text(%s, %q)", l.Selector, l.Text)
	default:
		return fmt.Sprintf("%s(%s)", l.Strategy, l.Selector)
	}
}

// Describe renders a chain for logs and errors.
func Describe(chain []Locator) string {
	parts := make([]string, 0, len(chain))
	for _, l := range chain {
		parts = append(parts, l.String())
	}
	return strings.Join(parts, " | ")
}

// rungBudget computes the wait granted to the next rung when rungsLeft rungs
// still have to share the remaining budget. A rung that matches early leaves
// its unused share to the rungs after it.
func rungBudget(remaining time.Duration, rungsLeft int) time.Duration {
	if rungsLeft <= 0 || remaining <= 0 {
		return 0
	}
	return remaining / time.Duration(rungsLeft)
}
