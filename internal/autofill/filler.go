package autofill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sbr-tools/sbr-cli/internal/browser"
	"github.com/sbr-tools/sbr-cli/internal/config"
	"github.com/sbr-tools/sbr-cli/internal/sheet"
)

// Form field locators, primary first.
var (
	phoneFields = []browser.Locator{
		browser.Placeholder(`^Nomor\s*Telepon$`, browser.MatchRegex),
		browser.CSS("input#nomor_telepon, input[name='nomor_telepon'], input[name='no_telp'], input[name='telepon']").First(),
	}
	emailToggles = []browser.Locator{
		browser.CSS("#check-email").First(),
		browser.XPath("//*[@id='check-email']").First(),
	}
	emailFields = []browser.Locator{
		browser.CSS("input#email, input[name='email'], input[type='email']").First(),
		browser.Placeholder(`^email$`, browser.MatchRegex),
	}
	latitudeFields = []browser.Locator{
		browser.CSS("input#latitude, input[name='latitude']").First(),
		browser.Placeholder(`^latitude`, browser.MatchRegex),
	}
	longitudeFields = []browser.Locator{
		browser.CSS("input#longitude, input[name='longitude']").First(),
		browser.Placeholder(`^longitude`, browser.MatchRegex),
	}
	sourceFields = []browser.Locator{
		browser.Placeholder("Sumber Profiling", browser.MatchContains),
		browser.CSS("input#sumber_profiling, input[name='sumber_profiling'], textarea[name='sumber_profiling']").First(),
	}
	notesFields = []browser.Locator{
		browser.CSS("#catatan_profiling").First(),
		browser.CSS("textarea[name='catatan_profiling']").First(),
		browser.Placeholder("catatan", browser.MatchContains),
	}
)

// statusChain lists the ways of selecting a status option, table lookup first.
func statusChain(form config.FormConfig, label string) []browser.Locator {
	var chain []browser.Locator
	if id, ok := form.StatusControl(label); ok {
		chain = append(chain, browser.CSS(fmt.Sprintf("[id=%q]", id)).First())
	}
	return append(chain, browser.Label(label, browser.MatchExact).First())
}

func statusClickTarget(label string) browser.Locator {
	return browser.Text("label, span", label, browser.MatchExact).First()
}

// errSkip marks a field with nothing to write.
var errSkip = errors.New("nothing to fill")

// FillReport lists what happened to each field.
type FillReport struct {
	Filled  []string
	Skipped []string
	Failed  map[string]error
}

// OK reports whether no field failed.
func (r FillReport) OK() bool { return len(r.Failed) == 0 }

// Summary renders the report for the run log.
func (r FillReport) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "filled=%s", strings.Join(r.Filled, ","))
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, " skipped=%s", strings.Join(r.Skipped, ","))
	}
	if len(r.Failed) > 0 {
		names := make([]string, 0, len(r.Failed))
		for name := range r.Failed {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintf(&b, " failed=%s", strings.Join(names, ","))
	}
	return b.String()
}

// fieldStep writes one attribute of a row into the form.
type fieldStep struct {
	name  string
	apply func(ctx context.Context, page browser.Page, row sheet.Row) error
}

// Filler populates the edit form from a row.
type Filler struct {
	timeouts config.TimeoutConfig
	form     config.FormConfig
	slow     bool
	logger   *zap.Logger
	steps    []fieldStep
}

// NewFiller creates a filler. In slow mode it pauses after every field.
func NewFiller(timeouts config.TimeoutConfig, form config.FormConfig, slow bool, logger *zap.Logger) *Filler {
	f := &Filler{timeouts: timeouts, form: form, slow: slow, logger: logger.Named("filler")}
	f.steps = []fieldStep{
		{"status", f.fillStatus},
		{"phone", f.fillPhone},
		{"email", f.fillEmail},
		{"latitude", f.coordinate(func(r sheet.Row) string { return r.Latitude }, latitudeFields)},
		{"longitude", f.coordinate(func(r sheet.Row) string { return r.Longitude }, longitudeFields)},
		{"source", f.fillSource},
		{"notes", f.fillNotes},
	}
	return f
}

// Fill writes every field independently; a failing field does not stop the
// others. Only context cancellation is returned as an error.
func (f *Filler) Fill(ctx context.Context, page browser.Page, row sheet.Row) (FillReport, error) {
	report := FillReport{Failed: map[string]error{}}
	for _, step := range f.steps {
		err := step.apply(ctx, page, row)
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		switch {
		case errors.Is(err, errSkip):
			report.Skipped = append(report.Skipped, step.name)
			continue
		case err != nil:
			f.logger.Warn("Field not filled.", zap.Int("row", row.Index), zap.String("field", step.name), zap.Error(err))
			report.Failed[step.name] = err
		default:
			f.logger.Debug("Field filled.", zap.Int("row", row.Index), zap.String("field", step.name))
			report.Filled = append(report.Filled, step.name)
		}
		if f.slow {
			if err := browser.Sleep(ctx, f.timeouts.StepDelay); err != nil {
				return report, err
			}
		}
	}
	return report, nil
}

func (f *Filler) visible(ctx context.Context, page browser.Page, chain []browser.Locator) (browser.Locator, error) {
	return browser.FirstVisible(ctx, page, f.timeouts.FieldWait, f.timeouts.PollInterval, chain...)
}

func (f *Filler) fillStatus(ctx context.Context, page browser.Page, row sheet.Row) error {
	if row.Status == "" {
		return errSkip
	}
	for _, loc := range statusChain(f.form, row.Status) {
		n, err := page.Count(ctx, loc)
		if err != nil || n == 0 {
			continue
		}
		if err := page.SetChecked(ctx, loc, true); err == nil {
			return nil
		}
		if err := page.ForceChecked(ctx, loc, true); err == nil {
			return nil
		}
	}
	target := statusClickTarget(row.Status)
	if err := browser.WaitVisible(ctx, page, target, f.timeouts.FieldWait, f.timeouts.PollInterval); err != nil {
		return fmt.Errorf("status %q: %w", row.Status, err)
	}
	return page.Click(ctx, target)
}

func (f *Filler) fillPhone(ctx context.Context, page browser.Page, row sheet.Row) error {
	phone := NormalizePhone(row.Phone)
	if phone == "" {
		return errSkip
	}
	loc, err := f.visible(ctx, page, phoneFields)
	if err != nil {
		return err
	}
	return page.Fill(ctx, loc, phone)
}

func (f *Filler) fillEmail(ctx context.Context, page browser.Page, row sheet.Row) error {
	toggle, err := browser.FirstAttached(ctx, page, f.timeouts.FieldWait, f.timeouts.PollInterval, emailToggles...)
	if err != nil {
		return fmt.Errorf("email toggle: %w", err)
	}

	var live string
	if input, err := browser.First(ctx, page, emailFields...); err == nil {
		live, _ = page.Value(ctx, input)
	}

	action := DecideEmail(f.form.EmailPolicy, row.Email, live)
	f.logger.Debug("Email decision.", zap.Int("row", row.Index), zap.Stringer("action", action))
	switch action {
	case EmailKeep:
		return errSkip
	case EmailSet:
		if err := f.setToggle(ctx, page, toggle, true); err != nil {
			return err
		}
		input, err := f.visible(ctx, page, emailFields)
		if err != nil {
			return fmt.Errorf("email input: %w", err)
		}
		return page.Fill(ctx, input, row.Email)
	default:
		if err := f.setToggle(ctx, page, toggle, false); err != nil {
			return err
		}
		if input, err := browser.First(ctx, page, emailFields...); err == nil {
			return page.Fill(ctx, input, "")
		}
		return nil
	}
}

// setToggle uses a real click and falls back to writing the property.
func (f *Filler) setToggle(ctx context.Context, page browser.Page, loc browser.Locator, on bool) error {
	if err := page.SetChecked(ctx, loc, on); err == nil {
		return nil
	}
	if err := page.ForceChecked(ctx, loc, on); err != nil {
		return fmt.Errorf("email toggle: %w", err)
	}
	return nil
}

func (f *Filler) coordinate(value func(sheet.Row) string, chain []browser.Locator) func(context.Context, browser.Page, sheet.Row) error {
	return func(ctx context.Context, page browser.Page, row sheet.Row) error {
		v := NormalizeCoordinate(value(row))
		if v == "" {
			return errSkip
		}
		loc, err := f.visible(ctx, page, chain)
		if err != nil {
			return err
		}
		return page.Fill(ctx, loc, v)
	}
}

func (f *Filler) fillSource(ctx context.Context, page browser.Page, row sheet.Row) error {
	if row.Source == "" {
		return errSkip
	}
	loc, err := f.visible(ctx, page, sourceFields)
	if err != nil {
		return err
	}
	return page.Fill(ctx, loc, row.Source)
}

func (f *Filler) fillNotes(ctx context.Context, page browser.Page, row sheet.Row) error {
	if row.Notes == "" {
		return errSkip
	}
	loc, err := f.visible(ctx, page, notesFields)
	if err != nil {
		return err
	}
	if err := page.Fill(ctx, loc, row.Notes); err != nil {
		return err
	}
	return page.Notify(ctx, loc, "input", "change")
}
