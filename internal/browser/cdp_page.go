// internal/browser/cdp_page.go
package browser

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed resolver.js
var resolverSource string

// resolveResult is what the resolver script returns for every op.
type resolveResult struct {
	Found bool            `json:"found"`
	Value json.RawMessage `json:"value"`
}

// cdpPage drives one browser tab over CDP.
type cdpPage struct {
	ctx           context.Context
	cancel        context.CancelFunc
	actionTimeout time.Duration
	logger        *zap.Logger
	closable      bool

	refs      atomic.Int64
	closeOnce sync.Once
}

var _ Page = (*cdpPage)(nil)

func newCDPPage(ctx context.Context, cancel context.CancelFunc, actionTimeout time.Duration, logger *zap.Logger, closable bool) *cdpPage {
	return &cdpPage{
		ctx:           ctx,
		cancel:        cancel,
		actionTimeout: actionTimeout,
		logger:        logger,
		closable:      closable,
	}
}

// run executes actions so they honor the tab lifetime, ctx and the per-action
// timeout.
func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	if p.actionTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, p.actionTimeout)
		defer cancelTimeout()
	}
	return chromedp.Run(runCtx, actions...)
}

func evalOpts(params *runtime.EvaluateParams) *runtime.EvaluateParams {
	return params.WithReturnByValue(true).WithAwaitPromise(true)
}

func (p *cdpPage) resolve(ctx context.Context, loc Locator, op string, arg interface{}) (resolveResult, error) {
	var res resolveResult
	spec, err := json.Marshal(loc)
	if err != nil {
		return res, fmt.Errorf("encode locator %s: %w", loc, err)
	}
	argJSON, err := json.Marshal(arg)
	if err != nil {
		return res, fmt.Errorf("encode argument for %s: %w", op, err)
	}
	script := fmt.Sprintf("%s(%s, %s, %s)", resolverSource, spec, strconv.Quote(op), argJSON)

	if err := p.run(ctx, chromedp.Evaluate(script, &res, evalOpts)); err != nil {
		return res, fmt.Errorf("resolve %s (%s): %w", loc, op, err)
	}
	return res, nil
}

// element runs an op that needs a resolved element and decodes its value.
func (p *cdpPage) element(ctx context.Context, loc Locator, op string, arg, out interface{}) error {
	res, err := p.resolve(ctx, loc, op, arg)
	if err != nil {
		return err
	}
	if !res.Found {
		return fmt.Errorf("%s: %w", loc, ErrNotFound)
	}
	if out == nil || len(res.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.Value, out); err != nil {
		return fmt.Errorf("decode %s result for %s: %w", op, loc, err)
	}
	return nil
}

func (p *cdpPage) Count(ctx context.Context, loc Locator) (int, error) {
	res, err := p.resolve(ctx, loc, "count", nil)
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(res.Value, &n); err != nil {
		return 0, fmt.Errorf("decode count for %s: %w", loc, err)
	}
	return n, nil
}

func (p *cdpPage) Texts(ctx context.Context, loc Locator) ([]string, error) {
	res, err := p.resolve(ctx, loc, "texts", nil)
	if err != nil {
		return nil, err
	}
	var texts []string
	if err := json.Unmarshal(res.Value, &texts); err != nil {
		return nil, fmt.Errorf("decode texts for %s: %w", loc, err)
	}
	return texts, nil
}

func (p *cdpPage) Visible(ctx context.Context, loc Locator) (bool, error) {
	res, err := p.resolve(ctx, loc, "visible", nil)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(res.Value, &ok); err != nil {
		return false, fmt.Errorf("decode visibility for %s: %w", loc, err)
	}
	return ok, nil
}

// Click tags the element with a unique attribute and lets chromedp perform a
// real mouse click on it once it is visible.
func (p *cdpPage) Click(ctx context.Context, loc Locator) error {
	ref := strconv.FormatInt(p.refs.Add(1), 10)
	if err := p.element(ctx, loc, "tag", ref, nil); err != nil {
		return err
	}

	sel := fmt.Sprintf(`[data-sbr-ref=%q]`, ref)
	if err := p.run(ctx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	p.logger.Debug("Clicked element.", zap.Stringer("locator", loc))
	return nil
}

func (p *cdpPage) DispatchClick(ctx context.Context, loc Locator) error {
	return p.element(ctx, loc, "dispatchClick", nil, nil)
}

func (p *cdpPage) Fill(ctx context.Context, loc Locator, value string) error {
	return p.element(ctx, loc, "fill", value, nil)
}

func (p *cdpPage) Value(ctx context.Context, loc Locator) (string, error) {
	var v string
	err := p.element(ctx, loc, "value", nil, &v)
	return v, err
}

func (p *cdpPage) Checked(ctx context.Context, loc Locator) (bool, error) {
	var v bool
	err := p.element(ctx, loc, "checked", nil, &v)
	return v, err
}

func (p *cdpPage) SetChecked(ctx context.Context, loc Locator, checked bool) error {
	current, err := p.Checked(ctx, loc)
	if err != nil {
		return err
	}
	if current == checked {
		return nil
	}
	return p.Click(ctx, loc)
}

func (p *cdpPage) ForceChecked(ctx context.Context, loc Locator, checked bool) error {
	return p.element(ctx, loc, "forceChecked", checked, nil)
}

func (p *cdpPage) Notify(ctx context.Context, loc Locator, events ...string) error {
	var arg interface{}
	if len(events) > 0 {
		arg = events
	}
	return p.element(ctx, loc, "notify", arg, nil)
}

func (p *cdpPage) Evaluate(ctx context.Context, script string, res interface{}) error {
	return p.run(ctx, chromedp.Evaluate(script, res, evalOpts))
}

const pageInfoScript = `({
	title: document.title || '',
	url: location.href,
	text: document.body ? document.body.innerText : ''
})`

func (p *cdpPage) Info(ctx context.Context) (PageInfo, error) {
	var info PageInfo
	if err := p.Evaluate(ctx, pageInfoScript, &info); err != nil {
		return info, fmt.Errorf("read page info: %w", err)
	}
	return info, nil
}

// Screenshot captures the full page as PNG.
func (p *cdpPage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (p *cdpPage) BringToFront(ctx context.Context) error {
	return p.run(ctx, page.BringToFront())
}

// Close closes the tab by releasing its target context, which detaches and
// closes that target only. The directory tab is never closed.
func (p *cdpPage) Close(ctx context.Context) error {
	if !p.closable {
		return nil
	}
	var err error
	p.closeOnce.Do(func() {
		err = chromedp.Cancel(p.ctx)
		if p.cancel != nil {
			p.cancel()
		}
	})
	if err != nil {
		return fmt.Errorf("close tab: %w", err)
	}
	return nil
}
