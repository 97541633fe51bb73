package autofill

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sbr-tools/sbr-cli/internal/browser"
	"github.com/sbr-tools/sbr-cli/internal/config"
)

var confirmEditButton = browser.Button(`ya,\s*edit!?$`, browser.MatchRegex)

// TabController manages the form tab opened by an edit click.
type TabController struct {
	tabs     browser.TabSource
	timeouts config.TimeoutConfig
	form     config.FormConfig
	logger   *zap.Logger
}

// NewTabController creates a controller over tabs.
func NewTabController(tabs browser.TabSource, timeouts config.TimeoutConfig, form config.FormConfig, logger *zap.Logger) *TabController {
	return &TabController{tabs: tabs, timeouts: timeouts, form: form, logger: logger.Named("tabs")}
}

// ConfirmEdit clicks the optional "Ya, edit!" prompt on the directory tab and
// then pauses for the form to open. It reports whether the prompt was shown.
func (c *TabController) ConfirmEdit(ctx context.Context) (bool, error) {
	dir := c.tabs.Directory()
	shown := false
	if err := browser.WaitVisible(ctx, dir, confirmEditButton, c.timeouts.MaxWait, c.timeouts.PollInterval); err == nil {
		if err := dir.Click(ctx, confirmEditButton); err != nil {
			c.logger.Warn("Edit confirmation prompt could not be clicked.", zap.Error(err))
		} else {
			shown = true
		}
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return shown, browser.Sleep(ctx, c.timeouts.EditClickPause)
}

// Open waits for the form tab caught by waiter and brings it to the front.
func (c *TabController) Open(ctx context.Context, waiter browser.TabWaiter) (browser.Page, error) {
	page, err := waiter.Wait(ctx, c.timeouts.MaxWait)
	if err != nil {
		return nil, err
	}
	if err := page.BringToFront(ctx); err != nil {
		c.logger.Warn("Could not focus form tab.", zap.Error(err))
	}
	return page, nil
}

// formLandmarks are controls whose presence means the edit form rendered.
var formLandmarks = append(append(append([]browser.Locator{}, notesFields...), submitButtons...), cancelButtons...)

// DetectLock watches the new tab until either an edit-lock message or a form
// landmark shows up, giving up after MaxWait. It returns the matching pattern
// when the record is locked.
func (c *TabController) DetectLock(ctx context.Context, page browser.Page) (string, bool) {
	if !c.form.LockProbe || len(c.form.LockPatterns) == 0 {
		return "", false
	}

	var pattern string
	err := browser.Poll(ctx, c.timeouts.MaxWait, c.timeouts.PollInterval, func() bool {
		info, err := page.Info(ctx)
		if err != nil {
			c.logger.Debug("Lock check could not read the page.", zap.Error(err))
			return false
		}
		if p, ok := MatchLock(info, c.form.LockPatterns); ok {
			pattern = p
			return true
		}
		return anyVisible(ctx, page, formLandmarks)
	})
	if err != nil {
		c.logger.Debug("Lock check saw neither a lock message nor the form.", zap.Error(err))
	}
	return pattern, pattern != ""
}

// MatchLock reports the first pattern found, case-insensitively, in the
// page's title, text or URL.
func MatchLock(info browser.PageInfo, patterns []string) (string, bool) {
	haystack := strings.Join([]string{info.Title, info.Text, info.URL}, "\n")
	for _, pattern := range patterns {
		if containsFold(haystack, pattern) {
			return pattern, true
		}
	}
	return "", false
}

func anyVisible(ctx context.Context, page browser.Page, locs []browser.Locator) bool {
	for _, loc := range locs {
		if visible(ctx, page, loc) {
			return true
		}
	}
	return false
}

// Close closes the form tab and returns focus to the directory.
func (c *TabController) Close(ctx context.Context, page browser.Page) error {
	if page != nil {
		if err := page.Close(ctx); err != nil {
			c.logger.Warn("Form tab did not close cleanly.", zap.Error(err))
		}
	}
	return c.Return(ctx)
}

// Return focuses the directory tab and waits for it to settle.
func (c *TabController) Return(ctx context.Context) error {
	if err := c.tabs.Directory().BringToFront(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("focus directory tab: %w", err)
	}
	return browser.Sleep(ctx, c.timeouts.ReturnPause)
}
