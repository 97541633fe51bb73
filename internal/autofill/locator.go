package autofill

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/sbr-tools/sbr-cli/internal/browser"
	"github.com/sbr-tools/sbr-cli/internal/config"
	"github.com/sbr-tools/sbr-cli/internal/sheet"
)

const (
	editButtonSelector = "td div.d-flex.align-items-center.col-actions a.btn-edit-perusahaan"
	clearOverlaysJS    = `document.querySelectorAll('.tooltip,.modal-backdrop').forEach(e => e.remove())`
)

// DirectoryLocator finds a row in the directory table and clicks its edit control.
type DirectoryLocator struct {
	page     browser.Page
	table    string
	timeouts config.TimeoutConfig
	logger   *zap.Logger
}

// NewDirectoryLocator binds a locator to the directory tab.
func NewDirectoryLocator(page browser.Page, table string, timeouts config.TimeoutConfig, logger *zap.Logger) *DirectoryLocator {
	return &DirectoryLocator{page: page, table: table, timeouts: timeouts, logger: logger.Named("locator")}
}

func (d *DirectoryLocator) rows() browser.Locator {
	return browser.CSS(d.table + " tbody > tr")
}

// editChain lists the edit controls tried for a table row, primary first.
func editChain(row browser.Locator, positional bool) []browser.Locator {
	fallback := browser.XPath(".//td[div[contains(@class,'col-actions')]]//a[1]")
	if positional {
		fallback = browser.XPath("./td[10]/div/a[1]")
	}
	return []browser.Locator{
		browser.CSS(editButtonSelector).Within(row).First(),
		fallback.Within(row).First(),
	}
}

// ClickEdit activates the edit control of row. In index mode offset is the
// row's 0-based position within the run range; otherwise the row is matched
// by identifier or name text.
func (d *DirectoryLocator) ClickEdit(ctx context.Context, row sheet.Row, matchBy string, offset int) error {
	if err := browser.WaitVisible(ctx, d.page, browser.CSS(d.table), d.timeouts.MaxWait, d.timeouts.PollInterval); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("directory table %s not ready: %w", d.table, ErrRowNotFound)
	}

	var (
		pos        int
		positional bool
		err        error
	)
	switch config.NormalizeMatchBy(matchBy) {
	case config.MatchIdentifier:
		pos, err = d.findByText(ctx, row.Identifier)
	case config.MatchName:
		pos, err = d.findByText(ctx, row.Name)
	default:
		pos, positional, err = offset, true, d.checkPosition(ctx, offset)
	}
	if err != nil {
		return err
	}
	return d.clickWithRetry(ctx, editChain(d.rows().At(pos), positional))
}

func (d *DirectoryLocator) checkPosition(ctx context.Context, offset int) error {
	n, err := d.page.Count(ctx, d.rows())
	if err != nil {
		return fmt.Errorf("count directory rows: %w", err)
	}
	if offset < 0 || offset >= n {
		return fmt.Errorf("row offset %d outside %d visible rows: %w", offset, n, ErrRowNotFound)
	}
	return nil
}

// findByText waits for the first table row whose text contains needle.
func (d *DirectoryLocator) findByText(ctx context.Context, needle string) (int, error) {
	needle = sheet.NormalizeSpace(needle)
	if needle == "" {
		return 0, fmt.Errorf("empty search text: %w", ErrRowNotFound)
	}

	pos := -1
	err := browser.Poll(ctx, d.timeouts.MaxWait, d.timeouts.PollInterval, func() bool {
		texts, err := d.page.Texts(ctx, d.rows())
		if err != nil {
			return false
		}
		pos = MatchRowText(texts, needle)
		return pos >= 0
	})
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("no row contains %q: %w", needle, ErrRowNotFound)
	}
	return pos, nil
}

// MatchRowText returns the index of the first row text containing needle,
// case-insensitively and literally, or -1.
func MatchRowText(texts []string, needle string) int {
	for i, t := range texts {
		if containsFold(t, needle) {
			return i
		}
	}
	return -1
}

// clickWithRetry clicks the first present control in chain, clearing tooltip
// and backdrop overlays between attempts.
func (d *DirectoryLocator) clickWithRetry(ctx context.Context, chain []browser.Locator) error {
	attempts := d.timeouts.LocatorAttempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	var lastErr error
	op := func() error {
		attempt++
		loc, err := browser.First(ctx, d.page, chain...)
		if err == nil {
			err = d.page.Click(ctx, loc)
		}
		if err == nil {
			d.logger.Debug("Edit control clicked.", zap.Stringer("locator", loc), zap.Int("attempt", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		lastErr = err
		d.logger.Debug("Edit click failed, clearing overlays.", zap.Int("attempt", attempt), zap.Error(err))
		if err := d.page.Evaluate(ctx, clearOverlaysJS, nil); err != nil && ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}

	b := browser.AttemptsBackOff(attempts, d.timeouts.OverlayClearPause)
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("after %d attempts: %v: %w", attempts, lastErr, ErrRowNotFound)
	}
	return nil
}
