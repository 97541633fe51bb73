// internal/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a locator resolves to no element.
var ErrNotFound = errors.New("element not found")

// ErrNoNewTab is returned when no new tab opened within the wait budget.
var ErrNoNewTab = errors.New("no new tab opened")

// PageInfo is a snapshot of what a tab currently shows.
type PageInfo struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Page is the set of primitives the automation needs from a browser tab.
// Element operations act on the first element the locator resolves to and
// return ErrNotFound when there is none.
type Page interface {
	Count(ctx context.Context, loc Locator) (int, error)
	Texts(ctx context.Context, loc Locator) ([]string, error)
	Visible(ctx context.Context, loc Locator) (bool, error)

	// Click scrolls the element into view and dispatches a trusted mouse click.
	Click(ctx context.Context, loc Locator) error
	// DispatchClick invokes the element's click() directly, bypassing overlays.
	DispatchClick(ctx context.Context, loc Locator) error
	Fill(ctx context.Context, loc Locator, value string) error
	Value(ctx context.Context, loc Locator) (string, error)
	Checked(ctx context.Context, loc Locator) (bool, error)
	// SetChecked toggles a checkbox or radio with a trusted click when needed.
	SetChecked(ctx context.Context, loc Locator, checked bool) error
	// ForceChecked writes the checked property and fires input/change.
	ForceChecked(ctx context.Context, loc Locator, checked bool) error
	Notify(ctx context.Context, loc Locator, events ...string) error

	Evaluate(ctx context.Context, script string, res interface{}) error
	Info(ctx context.Context) (PageInfo, error)
	Screenshot(ctx context.Context) ([]byte, error)
	BringToFront(ctx context.Context) error
	Close(ctx context.Context) error
}

// TabWaiter is armed before an action that opens a tab, then waited on.
type TabWaiter interface {
	Wait(ctx context.Context, timeout time.Duration) (Page, error)
	Cancel()
}

// TabSource exposes the directory tab and lets callers catch newly opened tabs.
type TabSource interface {
	Directory() Page
	ExpectTab(ctx context.Context) TabWaiter
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitVisible polls until loc is visible or timeout elapses. Lookup errors
// other than context cancellation are treated as "not yet visible".
func WaitVisible(ctx context.Context, p Page, loc Locator, timeout, interval time.Duration) error {
	err := Poll(ctx, timeout, interval, func() bool {
		ok, err := p.Visible(ctx, loc)
		return err == nil && ok
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("%s not visible after %s: %w", loc, timeout, ErrNotFound)
	}
	return err
}

// WaitAttached polls until loc resolves to at least one element.
func WaitAttached(ctx context.Context, p Page, loc Locator, timeout, interval time.Duration) error {
	err := Poll(ctx, timeout, interval, func() bool {
		n, err := p.Count(ctx, loc)
		return err == nil && n > 0
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("%s not attached after %s: %w", loc, timeout, ErrNotFound)
	}
	return err
}

// First returns the first locator of the chain that resolves to an element.
func First(ctx context.Context, p Page, chain ...Locator) (Locator, error) {
	for _, loc := range chain {
		n, err := p.Count(ctx, loc)
		if ctx.Err() != nil {
			return Locator{}, ctx.Err()
		}
		if err == nil && n > 0 {
			return loc, nil
		}
	}
	return Locator{}, fmt.Errorf("none of %d locators matched: %w", len(chain), ErrNotFound)
}

// FirstVisible waits up to timeout for any locator of the chain to become
// visible and returns it. Earlier entries win when several are visible.
func FirstVisible(ctx context.Context, p Page, timeout, interval time.Duration, chain ...Locator) (Locator, error) {
	var found Locator
	err := Poll(ctx, timeout, interval, func() bool {
		for _, loc := range chain {
			if ok, err := p.Visible(ctx, loc); err == nil && ok {
				found = loc
				return true
			}
			if ctx.Err() != nil {
				return false
			}
		}
		return false
	})
	switch {
	case err == nil:
		return found, nil
	case ctx.Err() != nil:
		return Locator{}, ctx.Err()
	default:
		return Locator{}, fmt.Errorf("none of %d locators visible after %s: %w", len(chain), timeout, ErrNotFound)
	}
}

// FirstAttached waits up to timeout for any locator of the chain to resolve
// to at least one element, visible or not.
func FirstAttached(ctx context.Context, p Page, timeout, interval time.Duration, chain ...Locator) (Locator, error) {
	var found Locator
	err := Poll(ctx, timeout, interval, func() bool {
		loc, err := First(ctx, p, chain...)
		found = loc
		return err == nil
	})
	switch {
	case err == nil:
		return found, nil
	case ctx.Err() != nil:
		return Locator{}, ctx.Err()
	default:
		return Locator{}, fmt.Errorf("none of %d locators attached after %s: %w", len(chain), timeout, ErrNotFound)
	}
}
