package autofill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sbr-tools/sbr-cli/internal/browser"
	"github.com/sbr-tools/sbr-cli/internal/config"
)

// fakePage is a scripted browser tab keyed by Locator.String().
type fakePage struct {
	mu   sync.Mutex
	name string

	counts   map[string]int
	hidden   map[string]bool
	texts    map[string][]string
	values   map[string]string
	checked  map[string]bool
	clickErr map[string]error
	onClick  map[string]func(*fakePage)
	info     browser.PageInfo
	infos    []browser.PageInfo
	shotErr  error
	panicMsg string

	clicks   []string
	fills    map[string]string
	notified map[string][]string
	scripts  []string
	fronted  int
	closed   int
}

var _ browser.Page = (*fakePage)(nil)

func newFakePage(name string) *fakePage {
	return &fakePage{
		name:     name,
		counts:   map[string]int{},
		hidden:   map[string]bool{},
		texts:    map[string][]string{},
		values:   map[string]string{},
		checked:  map[string]bool{},
		clickErr: map[string]error{},
		onClick:  map[string]func(*fakePage){},
		fills:    map[string]string{},
		notified: map[string][]string{},
	}
}

func (f *fakePage) show(locs ...browser.Locator) *fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range locs {
		f.counts[l.String()] = 1
		delete(f.hidden, l.String())
	}
	return f
}

func (f *fakePage) attach(l browser.Locator) *fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[l.String()] = 1
	f.hidden[l.String()] = true
	return f
}

func (f *fakePage) remove(locs ...browser.Locator) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range locs {
		delete(f.counts, l.String())
	}
}

func (f *fakePage) on(l browser.Locator, fn func(*fakePage)) *fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onClick[l.String()] = fn
	return f
}

func (f *fakePage) clicked(l browser.Locator) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.clicks {
		if c == l.String() || c == "dispatch:"+l.String() {
			n++
		}
	}
	return n
}

func (f *fakePage) present(k string) bool { return f.counts[k] > 0 }

func (f *fakePage) Count(_ context.Context, l browser.Locator) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[l.String()], nil
}

func (f *fakePage) Texts(_ context.Context, l browser.Locator) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[l.String()], nil
}

func (f *fakePage) Visible(_ context.Context, l browser.Locator) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := l.String()
	return f.present(k) && !f.hidden[k], nil
}

func (f *fakePage) click(l browser.Locator, prefix string, needVisible bool) error {
	f.mu.Lock()
	k := l.String()
	if !f.present(k) || (needVisible && f.hidden[k]) {
		f.mu.Unlock()
		return fmt.Errorf("%s: %w", k, browser.ErrNotFound)
	}
	if err := f.clickErr[k]; err != nil && prefix == "" {
		f.mu.Unlock()
		return err
	}
	f.clicks = append(f.clicks, prefix+k)
	fn := f.onClick[k]
	f.mu.Unlock()

	if fn != nil {
		fn(f)
	}
	return nil
}

func (f *fakePage) Click(_ context.Context, l browser.Locator) error {
	return f.click(l, "", true)
}

func (f *fakePage) DispatchClick(_ context.Context, l browser.Locator) error {
	return f.click(l, "dispatch:", false)
}

func (f *fakePage) Fill(_ context.Context, l browser.Locator, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := l.String()
	if !f.present(k) {
		return fmt.Errorf("%s: %w", k, browser.ErrNotFound)
	}
	f.fills[k] = value
	f.values[k] = value
	return nil
}

func (f *fakePage) Value(_ context.Context, l browser.Locator) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := l.String()
	if !f.present(k) {
		return "", fmt.Errorf("%s: %w", k, browser.ErrNotFound)
	}
	return f.values[k], nil
}

func (f *fakePage) Checked(_ context.Context, l browser.Locator) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := l.String()
	if !f.present(k) {
		return false, fmt.Errorf("%s: %w", k, browser.ErrNotFound)
	}
	return f.checked[k], nil
}

func (f *fakePage) SetChecked(_ context.Context, l browser.Locator, checked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := l.String()
	if !f.present(k) || f.hidden[k] {
		return fmt.Errorf("%s: %w", k, browser.ErrNotFound)
	}
	if err := f.clickErr[k]; err != nil {
		return err
	}
	if f.checked[k] != checked {
		f.checked[k] = checked
		f.clicks = append(f.clicks, k)
	}
	return nil
}

func (f *fakePage) ForceChecked(_ context.Context, l browser.Locator, checked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := l.String()
	if !f.present(k) {
		return fmt.Errorf("%s: %w", k, browser.ErrNotFound)
	}
	f.checked[k] = checked
	f.clicks = append(f.clicks, "force:"+k)
	return nil
}

func (f *fakePage) Notify(_ context.Context, l browser.Locator, events ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified[l.String()] = append(f.notified[l.String()], events...)
	return nil
}

func (f *fakePage) Evaluate(_ context.Context, script string, _ interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts = append(f.scripts, script)
	return nil
}

func (f *fakePage) Info(context.Context) (browser.PageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if len(f.infos) > 0 {
		next := f.infos[0]
		f.infos = f.infos[1:]
		return next, nil
	}
	return f.info, nil
}

func (f *fakePage) Screenshot(context.Context) ([]byte, error) {
	if f.shotErr != nil {
		return nil, f.shotErr
	}
	return []byte("\x89PNG " + f.name), nil
}

func (f *fakePage) BringToFront(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fronted++
	return nil
}

func (f *fakePage) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

// fakeTabs hands out queued form tabs; a nil entry means no tab opens.
type fakeTabs struct {
	mu        sync.Mutex
	dir       *fakePage
	opens     []*fakePage
	armed     int
	cancelled int
}

func (t *fakeTabs) Directory() browser.Page { return t.dir }

func (t *fakeTabs) ExpectTab(context.Context) browser.TabWaiter {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed++
	return &fakeWaiter{tabs: t}
}

type fakeWaiter struct{ tabs *fakeTabs }

func (w *fakeWaiter) Wait(ctx context.Context, _ time.Duration) (browser.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := w.tabs
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.opens) == 0 {
		return nil, browser.ErrNoNewTab
	}
	next := t.opens[0]
	t.opens = t.opens[1:]
	if next == nil {
		return nil, browser.ErrNoNewTab
	}
	return next, nil
}

func (w *fakeWaiter) Cancel() {
	w.tabs.mu.Lock()
	defer w.tabs.mu.Unlock()
	w.tabs.cancelled++
}

const testTable = "#table_direktori_usaha"

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Timeouts = config.TimeoutConfig{
		MaxWait:               5 * time.Millisecond,
		PollInterval:          time.Millisecond,
		LocatorAttempts:       3,
		FieldWait:             2 * time.Millisecond,
		ValidationWait:        2 * time.Millisecond,
		ConsistencyWait:       2 * time.Millisecond,
		ConfirmPolls:          3,
		ConfirmInterval:       time.Millisecond,
		SuccessPolls:          3,
		SuccessInterval:       time.Millisecond,
		ConfirmModalWait:      5 * time.Millisecond,
		CancelSuccessPolls:    3,
		CancelSuccessInterval: time.Millisecond,
	}
	cfg.Browser.DirectoryTable = testTable
	cfg.Run.SlowMode = false
	cfg.Run.MatchBy = config.MatchIndex
	return cfg
}

func tableRows() browser.Locator { return browser.CSS(testTable + " tbody > tr") }

// directoryWith builds a directory tab with n rows, each with an edit button.
func directoryWith(n int, texts ...string) *fakePage {
	d := newFakePage("directory")
	d.show(browser.CSS(testTable))
	d.counts[tableRows().String()] = n
	d.texts[tableRows().String()] = texts
	for i := 0; i < n; i++ {
		d.show(editButton(i))
	}
	return d
}

func editButton(i int) browser.Locator {
	return editChain(tableRows().At(i), true)[0]
}

// submittableForm accepts the submission: the confirm dialog appears after
// Submit Final and the submit control disappears once confirmed.
func submittableForm(name string) *fakePage {
	f := newFakePage(name)
	f.show(submitButtons[0])
	f.on(submitButtons[0], func(p *fakePage) { p.show(confirmSubmit) })
	f.on(confirmSubmit, func(p *fakePage) { p.remove(submitButtons[0], confirmSubmit) })
	return f
}

// rejectingForm raises the validation error after Submit Final.
func rejectingForm(name string) *fakePage {
	f := newFakePage(name)
	f.show(submitButtons[0])
	f.on(submitButtons[0], func(p *fakePage) { p.show(validationMessage, okButton) })
	return f
}
