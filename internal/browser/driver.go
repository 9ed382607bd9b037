// Package browser owns the Chrome connection the pairing workflow drives.
// It wraps go-rod behind a small Driver surface so workflow logic stays
// testable without a live browser.
package browser

import (
	"context"
	"fmt"
	"time"
)

// Driver is the page surface the pairing workflow needs. *Session is the
// production implementation; tests substitute fakes.
type Driver interface {
	// Navigate loads a URL and waits for the load event.
	Navigate(ctx context.Context, url string) error
	// CurrentURL reports the page's current location.
	CurrentURL() (string, error)
	// Find walks a locator chain under a shared budget and returns the
	// first match.
	Find(ctx context.Context, budget time.Duration, chain ...Locator) (Element, error)
	// FindAll waits for the first rung that matches anything and returns
	// every element that rung matches.
	FindAll(ctx context.Context, budget time.Duration, chain ...Locator) ([]Element, error)
	// HTML returns the serialized page.
	HTML() (string, error)
	// Screenshot captures the full page as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// WaitStable blocks until the DOM stops mutating for d.
	WaitStable(ctx context.Context, d time.Duration) error
}

// Element is a located page element. Scoped Find calls search within it.
type Element interface {
	Click(ctx context.Context) error
	// Input replaces the element's current value with text.
	Input(ctx context.Context, text string) error
	Text() (string, error)
	// Attribute returns the attribute value, or "" when absent.
	Attribute(name string) (string, error)
	Visible() (bool, error)
	Find(ctx context.Context, budget time.Duration, chain ...Locator) (Element, error)
	FindAll(ctx context.Context, budget time.Duration, chain ...Locator) ([]Element, error)
}

// NotFoundError reports that no locator in a chain matched within the budget.
type NotFoundError struct {
	Chain  string
	Budget time.Duration
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no element matched %s within %s", e.Chain, e.Budget)
}
