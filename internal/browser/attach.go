// internal/browser/attach.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/sbr-tools/sbr-cli/internal/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	disconnectGrace       = 2 * time.Second // wait for the websocket to drop on Close
)

// Browser is a connection to an already running Chrome. It never launches or
// quits the browser and never closes the directory tab.
//
// The websocket belongs to browserCtx, which has no target of its own. Every
// tab context descends from sessionCtx, which carries the connection but is
// only canceled after the websocket is gone; canceling a tab context while
// connected closes that tab.
type Browser struct {
	logger        *zap.Logger
	actionTimeout time.Duration

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	dirCtx context.Context
	dirID  target.ID
	dir    *cdpPage

	closeOnce sync.Once
}

var _ TabSource = (*Browser)(nil)

// Attach connects to the CDP endpoint in cfg and binds the directory tab.
// cfg.ConnectTimeout bounds the whole connect; ctx may cut it short.
func Attach(ctx context.Context, cfg config.BrowserConfig, actionTimeout time.Duration, logger *zap.Logger) (*Browser, error) {
	logger = logger.Named("browser")

	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	deadline := time.Now().Add(connectTimeout)

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cfg.CDPEndpoint)
	cdpLog := logger.Named("cdp").Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(cdpLog.Debugf),
		chromedp.WithErrorf(cdpLog.Debugf),
	)
	sessionCtx, sessionCancel := context.WithCancel(Detach(browserCtx))
	b := &Browser{
		logger:        logger,
		actionTimeout: actionTimeout,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		sessionCtx:    sessionCtx,
		sessionCancel: sessionCancel,
	}

	// Only browserCtx may be canceled while Targets is still allocating.
	stop := watchdog(ctx, time.Until(deadline), browserCancel)
	targets, err := chromedp.Targets(browserCtx)
	timedOut := stop()
	if err == nil && timedOut {
		err = context.DeadlineExceeded
	}
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("list tabs at %s: %w", cfg.CDPEndpoint, connectErr(ctx, err, timedOut))
	}

	dirID, err := pickDirectoryTarget(targets, cfg.DirectoryURLContains)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("find directory tab at %s: %w", cfg.CDPEndpoint, err)
	}
	b.dirID = dirID

	// The first Run attaches the tab and starts its message loop on the
	// context it is given, so it must be dirCtx itself. dirCtx is released
	// with sessionCtx.
	b.dirCtx, _ = chromedp.NewContext(sessionCtx, chromedp.WithTargetID(dirID))
	stop = watchdog(ctx, time.Until(deadline), b.Close)
	err = chromedp.Run(b.dirCtx, target.SetDiscoverTargets(true))
	timedOut = stop()
	if err == nil && timedOut {
		err = context.DeadlineExceeded
	}
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("attach to directory tab: %w", connectErr(ctx, err, timedOut))
	}

	b.dir = newCDPPage(b.dirCtx, nil, actionTimeout, logger.Named("directory"), false)
	logger.Info("Attached to running browser.", zap.String("endpoint", cfg.CDPEndpoint), zap.String("target", string(dirID)))
	return b, nil
}

// connectErr prefers the caller's cancellation over whatever the aborted CDP
// call reported.
func connectErr(ctx context.Context, err error, timedOut bool) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if timedOut {
		return fmt.Errorf("connect timed out: %w", context.DeadlineExceeded)
	}
	return err
}

// watchdog calls fire once ctx ends or d elapses, unless the returned stop
// runs first. stop waits for fire to finish and reports whether it ran.
func watchdog(ctx context.Context, d time.Duration, fire func()) (stop func() bool) {
	done := make(chan struct{})
	finished := make(chan struct{})
	var fired atomic.Bool
	go func() {
		defer close(finished)
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-done:
			return
		case <-timer.C:
		case <-ctx.Done():
		}
		fired.Store(true)
		fire()
	}()
	return func() bool {
		close(done)
		<-finished
		return fired.Load()
	}
}

// pickDirectoryTarget returns the last page target whose URL contains want
// (case-insensitive), or the last page target when want is empty.
func pickDirectoryTarget(targets []*target.Info, want string) (target.ID, error) {
	want = strings.ToLower(strings.TrimSpace(want))
	pages := 0
	for i := len(targets) - 1; i >= 0; i-- {
		t := targets[i]
		if t.Type != "page" {
			continue
		}
		pages++
		if want == "" || strings.Contains(strings.ToLower(t.URL), want) {
			return t.TargetID, nil
		}
	}
	if pages == 0 {
		return "", fmt.Errorf("no open page tabs: %w", ErrNotFound)
	}
	return "", fmt.Errorf("no tab url contains %q: %w", want, ErrNotFound)
}

// Directory returns the tab holding the business directory table.
func (b *Browser) Directory() Page { return b.dir }

// ExpectTab starts listening for a new page target. Arm it before the action
// that opens the tab.
func (b *Browser) ExpectTab(ctx context.Context) TabWaiter {
	listenCtx, cancel := CombineContext(b.dirCtx, ctx)
	dirID := b.dirID
	ch := chromedp.WaitNewTarget(listenCtx, func(info *target.Info) bool {
		return info.Type == "page" && info.TargetID != dirID
	})
	return &tabWaiter{browser: b, ch: ch, cancel: cancel}
}

// Close drops the CDP connection. Chrome and its tabs stay open: tab contexts
// are released only once the websocket is gone, so no close command can reach
// the browser.
func (b *Browser) Close() {
	b.closeOnce.Do(func() {
		b.browserCancel()
		b.allocCancel()
		if c := chromedp.FromContext(b.browserCtx); c != nil && c.Browser != nil {
			select {
			case <-c.Browser.LostConnection:
			case <-time.After(disconnectGrace):
				b.logger.Warn("Browser connection did not close in time.")
			}
		}
		b.sessionCancel()
		b.logger.Debug("Detached from browser.")
	})
}

type tabWaiter struct {
	browser *Browser
	ch      <-chan target.ID
	cancel  context.CancelFunc
}

// Wait returns the new tab or ErrNoNewTab once timeout elapses.
func (w *tabWaiter) Wait(ctx context.Context, timeout time.Duration) (Page, error) {
	defer w.cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var id target.ID
	select {
	case v, ok := <-w.ch:
		if !ok {
			return nil, ErrNoNewTab
		}
		id = v
	case <-timer.C:
		return nil, fmt.Errorf("after %s: %w", timeout, ErrNoNewTab)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	b := w.browser
	attachTimeout := b.actionTimeout
	if attachTimeout <= 0 {
		attachTimeout = defaultConnectTimeout
	}

	// As with the directory tab, the attaching Run must get tabCtx itself.
	tabCtx, tabCancel := chromedp.NewContext(b.sessionCtx, chromedp.WithTargetID(id))
	stop := watchdog(ctx, attachTimeout, tabCancel)
	err := chromedp.Run(tabCtx)
	timedOut := stop()
	if err == nil && timedOut {
		err = fmt.Errorf("attach timed out after %s: %w", attachTimeout, context.DeadlineExceeded)
	}
	if err != nil {
		tabCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("attach to new tab %s: %w", id, err)
	}
	b.logger.Debug("Attached to new tab.", zap.String("target", string(id)))
	return newCDPPage(tabCtx, tabCancel, b.actionTimeout, b.logger.Named("form"), true), nil
}

func (w *tabWaiter) Cancel() { w.cancel() }
