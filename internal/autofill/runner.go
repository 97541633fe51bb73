package autofill

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/sbr-tools/sbr-cli/internal/browser"
	"github.com/sbr-tools/sbr-cli/internal/config"
	"github.com/sbr-tools/sbr-cli/internal/runlog"
	"github.com/sbr-tools/sbr-cli/internal/sheet"
)

// Runner processes spreadsheet rows one after another against the browser.
type Runner struct {
	cfg      *config.Config
	mode     Mode
	tabs     browser.TabSource
	recorder *runlog.Recorder
	shots    *runlog.Screenshotter
	logger   *zap.Logger

	locator *DirectoryLocator
	tabCtl  *TabController
	filler  *Filler
	submit  *SubmitResolver
	cancel  *CancelResolver
}

// NewRunner wires the row pipeline for mode.
func NewRunner(cfg *config.Config, mode Mode, tabs browser.TabSource, recorder *runlog.Recorder, shots *runlog.Screenshotter, logger *zap.Logger) *Runner {
	t := cfg.Timeouts
	return &Runner{
		cfg:      cfg,
		mode:     mode,
		tabs:     tabs,
		recorder: recorder,
		shots:    shots,
		logger:   logger,
		locator:  NewDirectoryLocator(tabs.Directory(), cfg.Browser.DirectoryTable, t, logger),
		tabCtl:   NewTabController(tabs, t, cfg.Form, logger),
		filler:   NewFiller(t, cfg.Form, cfg.Run.SlowMode, logger),
		submit:   NewSubmitResolver(t, logger),
		cancel:   NewCancelResolver(t, cfg.Run.SlowMode, logger),
	}
}

// Run processes rows[rng.Lo:rng.Hi] in order and records exactly one terminal
// outcome per attempted row. It stops early when an outcome halts the run
// (ErrHalted) or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, rows []sheet.Row, rng sheet.Range) ([]RowOutcome, error) {
	r.logger.Info("Starting run.",
		zap.String("mode", string(r.mode)),
		zap.Int("from", rng.Lo+1),
		zap.Int("to", rng.Hi),
		zap.String("match_by", r.cfg.Run.MatchBy),
		zap.Bool("stop_on_error", r.cfg.Run.StopOnError),
	)

	var outcomes []RowOutcome
	for i := rng.Lo; i < rng.Hi; i++ {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("Run interrupted before row.", zap.Int("row", rows[i].Index))
			return outcomes, err
		}

		row := rows[i]
		out, halt := r.processRow(ctx, row, rng.Offset(i))
		outcomes = append(outcomes, out)
		if err := r.recorder.Terminal(out.Row, out.Level, string(out.Stage), out.Note, out.Screenshot); err != nil {
			r.logger.Error("Outcome not recorded.", zap.Error(err))
		}

		if halt {
			if ctx.Err() != nil {
				return outcomes, ctx.Err()
			}
			return outcomes, fmt.Errorf("row %d %s %s: %w", out.Row, out.Stage, out.Code, ErrHalted)
		}
	}
	return outcomes, nil
}

// processRow runs one row through the pipeline. A panic in any stage becomes
// an EXCEPTION outcome.
func (r *Runner) processRow(ctx context.Context, row sheet.Row, offset int) (out RowOutcome, halt bool) {
	logger := r.logger.With(zap.Int("row", row.Index))
	var form browser.Page

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Row panicked.", zap.Any("panic", rec), zap.ByteString("stack", debug.Stack()))
			out = r.failure(ctx, row, form, StageRowDone, CodeException, fmt.Sprintf("panic: %v", rec))
			if form != nil {
				_ = r.tabCtl.Close(ctx, form)
			}
			halt = r.cfg.Run.StopOnError
		}
	}()

	logger.Info("Processing row.", zap.String("identifier", row.Identifier), zap.String("name", row.Name), zap.String("status", row.Status))

	waiter := r.tabs.ExpectTab(ctx)
	defer waiter.Cancel()

	if err := r.locator.ClickEdit(ctx, row, r.cfg.Run.MatchBy, offset); err != nil {
		if ctx.Err() != nil {
			return r.interrupted(ctx, row, nil), true
		}
		out = r.failure(ctx, row, nil, StageClickEdit, CodeNotFound, err.Error())
		return out, !r.cfg.Run.SkipUnlocated
	}
	r.recorder.Record(row.Index, runlog.LevelOK, string(StageClickEdit), "edit clicked", "")

	if shown, err := r.tabCtl.ConfirmEdit(ctx); err != nil {
		return r.interrupted(ctx, row, err), true
	} else if shown {
		logger.Debug("Edit confirmation accepted.")
	}

	page, err := r.tabCtl.Open(ctx, waiter)
	if err != nil {
		if ctx.Err() != nil {
			return r.interrupted(ctx, row, nil), true
		}
		out = r.failure(ctx, row, nil, StageOpenTab, CodeNoNewTab, err.Error())
		return out, r.cfg.Run.StopOnError
	}
	form = page

	if pattern, locked := r.tabCtl.DetectLock(ctx, form); locked {
		_ = r.tabCtl.Close(ctx, form)
		note := fmt.Sprintf("%s: record locked (%q)", CodeSkippedLocked, pattern)
		return RowOutcome{Row: row.Index, Level: runlog.LevelWarn, Stage: StageOpenTab, Code: CodeSkippedLocked, Note: note, Dialog: DialogLocked}, false
	}

	if r.mode == ModeCancel {
		return r.cancelRow(ctx, row, form)
	}
	return r.fillRow(ctx, row, form)
}

func (r *Runner) fillRow(ctx context.Context, row sheet.Row, form browser.Page) (RowOutcome, bool) {
	report, err := r.filler.Fill(ctx, form, row)
	if err != nil {
		return r.interrupted(ctx, row, err), true
	}
	if report.OK() {
		r.recorder.Record(row.Index, runlog.LevelOK, string(StageFill), "form filled: "+report.Summary(), "")
	} else {
		r.recorder.Record(row.Index, runlog.LevelWarn, string(StageFill), "form partly filled: "+report.Summary(), "")
	}

	res, err := r.submit.Submit(ctx, form)
	if err != nil {
		return r.interrupted(ctx, row, err), true
	}

	if res.Code != CodeOK {
		out := r.failure(ctx, row, form, StageSubmit, res.Code, "submit final did not complete")
		out.Dialog = res.Dialog
		if res.Code == CodeErrorFill && r.cfg.Run.StopOnError {
			r.logger.Warn("Form tab left open for inspection.", zap.Int("row", row.Index))
			return out, true
		}
		_ = r.tabCtl.Close(ctx, form)
		return out, r.cfg.Run.StopOnError
	}

	r.recorder.Record(row.Index, runlog.LevelOK, string(StageSubmit), "submit final succeeded", "")
	if err := r.tabCtl.Close(ctx, form); err != nil && ctx.Err() != nil {
		return r.interrupted(ctx, row, nil), true
	}
	return RowOutcome{Row: row.Index, Level: runlog.LevelOK, Stage: StageRowDone, Code: CodeOK, Note: "row done", Dialog: res.Dialog}, false
}

func (r *Runner) cancelRow(ctx context.Context, row sheet.Row, form browser.Page) (RowOutcome, bool) {
	code, note, err := r.cancel.Cancel(ctx, form)
	if err != nil {
		return r.interrupted(ctx, row, err), true
	}
	if code != CodeOK {
		out := r.failure(ctx, row, form, StageCancel, code, note)
		_ = r.tabCtl.Close(ctx, form)
		return out, r.cfg.Run.StopOnError
	}
	if err := r.tabCtl.Close(ctx, form); err != nil && ctx.Err() != nil {
		return r.interrupted(ctx, row, nil), true
	}
	return RowOutcome{Row: row.Index, Level: runlog.LevelOK, Stage: StageCancel, Code: CodeOK, Note: note}, false
}

// failure builds an ERROR outcome with a screenshot of the form tab, or of
// the directory when no form is open.
func (r *Runner) failure(ctx context.Context, row sheet.Row, form browser.Page, stage Stage, code Code, detail string) RowOutcome {
	var target browser.Page = r.tabs.Directory()
	if form != nil {
		target = form
	}
	label := fmt.Sprintf("%s_row_%d_%s", r.mode, row.Index, code)
	shot := r.shots.Capture(ctx, target, label)
	return RowOutcome{
		Row:        row.Index,
		Level:      runlog.LevelError,
		Stage:      stage,
		Code:       code,
		Note:       fmt.Sprintf("%s: %s", code, detail),
		Screenshot: shot,
	}
}

// interrupted records a row cut short by the run's context. The note names
// the context's own error, so a deadline reads differently from Ctrl+C.
func (r *Runner) interrupted(ctx context.Context, row sheet.Row, err error) RowOutcome {
	cause := ctx.Err()
	if cause == nil {
		cause = err
	}
	if cause == nil {
		cause = context.Canceled
	}
	return RowOutcome{
		Row:   row.Index,
		Level: runlog.LevelError,
		Stage: StageRowDone,
		Code:  CodeException,
		Note:  fmt.Sprintf("%s: %v", CodeException, cause),
	}
}

// IsHalt reports whether err means a row outcome stopped the run.
func IsHalt(err error) bool { return errors.Is(err, ErrHalted) }
