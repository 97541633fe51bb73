package autofill

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sbr-tools/sbr-cli/internal/browser"
	"github.com/sbr-tools/sbr-cli/internal/config"
)

var (
	submitButtons = []browser.Locator{
		browser.Button("Submit Final", browser.MatchContains).First(),
		browser.Text("", "Submit Final", browser.MatchContains).First(),
	}
	okButton          = browser.Button(`^OK$`, browser.MatchRegex).First()
	ignoreButton      = browser.Button(`^Ignore$`, browser.MatchRegex).First()
	validationMessage = browser.Text("", "Masih terdapat isian yang harus diperbaiki", browser.MatchContains).First()
	consistencyNotice = browser.Text("", "Cek Konsistensi", browser.MatchContains).First()
	openModal         = browser.CSS("div.modal.show, div[role='dialog']")
	confirmSubmit     = browser.Text("button, a", `ya\s*,?\s*submit!?`, browser.MatchRegex).Within(openModal).First()
	successMessage    = browser.Text("", "Success|Berhasil submit data final", browser.MatchRegex).First()
	successToast      = browser.CSS(".toast, .alert-success, .swal2-popup").First()

	cancelButtons = []browser.Locator{
		browser.XPath("//*[@id='cancel-submit-final']/span").First(),
		browser.Text("button, a", "Cancel Submit", browser.MatchContains).First(),
	}
	cancelModal   = openModal.HasText("Konfirmasi").First()
	cancelConfirm = browser.Text("button, a", "Ya, batalkan!", browser.MatchContains).Within(cancelModal).First()
	cancelOK      = browser.Text("button", "OK", browser.MatchContains).First()
)

// SubmitResult is the outcome of one submission attempt.
type SubmitResult struct {
	Code             Code
	Dialog           DialogState
	ConfirmClicked   bool
	ConsistencyShown bool
}

// SubmitResolver clicks "Submit Final" and works through whatever dialogs
// the form raises.
type SubmitResolver struct {
	timeouts config.TimeoutConfig
	logger   *zap.Logger
}

// NewSubmitResolver creates a resolver.
func NewSubmitResolver(timeouts config.TimeoutConfig, logger *zap.Logger) *SubmitResolver {
	return &SubmitResolver{timeouts: timeouts, logger: logger.Named("submit")}
}

// visible reports whether loc is visible now; lookup errors count as hidden.
func visible(ctx context.Context, page browser.Page, loc browser.Locator) bool {
	ok, err := page.Visible(ctx, loc)
	return err == nil && ok
}

// forceClick clicks loc, falling back to invoking the element's click().
func forceClick(ctx context.Context, page browser.Page, loc browser.Locator) error {
	if err := page.Click(ctx, loc); err == nil {
		return nil
	}
	return page.DispatchClick(ctx, loc)
}

// Submit runs the submission state machine. Errors are returned only for
// context cancellation.
func (s *SubmitResolver) Submit(ctx context.Context, page browser.Page) (SubmitResult, error) {
	var res SubmitResult

	if !s.clickSubmit(ctx, page) {
		res.Code = CodeNoSubmitButton
		return res, ctx.Err()
	}
	if err := browser.Sleep(ctx, s.timeouts.SubmitClickPause); err != nil {
		return res, err
	}

	if err := browser.WaitVisible(ctx, page, validationMessage, s.timeouts.ValidationWait, s.timeouts.PollInterval); err == nil {
		if visible(ctx, page, okButton) {
			if err := page.Click(ctx, okButton); err != nil {
				s.logger.Warn("Validation dialog OK not clicked.", zap.Error(err))
			}
		}
		res.Code, res.Dialog = CodeErrorFill, DialogValidationError
		return res, nil
	} else if ctx.Err() != nil {
		return res, ctx.Err()
	}

	if err := browser.WaitVisible(ctx, page, consistencyNotice, s.timeouts.ConsistencyWait, s.timeouts.PollInterval); err == nil {
		res.ConsistencyShown = true
		if visible(ctx, page, ignoreButton) {
			if err := forceClick(ctx, page, ignoreButton); err != nil {
				s.logger.Warn("Consistency check Ignore not clicked.", zap.Error(err))
			}
			if err := browser.Sleep(ctx, s.timeouts.ConfirmInterval); err != nil {
				return res, err
			}
		}
	} else if ctx.Err() != nil {
		return res, ctx.Err()
	}

	clicked, err := s.confirm(ctx, page)
	if err != nil {
		return res, err
	}
	res.ConfirmClicked = clicked
	if clicked {
		res.Dialog = DialogConfirmation
	} else {
		s.logger.Info("No submit confirmation appeared.")
	}

	ok, err := s.awaitSuccess(ctx, page)
	if err != nil {
		return res, err
	}
	switch {
	case ok:
		res.Code, res.Dialog = CodeOK, DialogSuccess
	case clicked:
		res.Code = CodeNoSuccessSignal
	default:
		res.Code = CodeNoConfirm
	}
	return res, nil
}

func (s *SubmitResolver) clickSubmit(ctx context.Context, page browser.Page) bool {
	for _, loc := range submitButtons {
		if err := browser.WaitVisible(ctx, page, loc, s.timeouts.FieldWait, s.timeouts.PollInterval); err != nil {
			continue
		}
		if err := page.Click(ctx, loc); err != nil {
			s.logger.Debug("Submit click failed.", zap.Stringer("locator", loc), zap.Error(err))
			continue
		}
		return true
	}
	return false
}

func (s *SubmitResolver) confirm(ctx context.Context, page browser.Page) (bool, error) {
	err := browser.PollN(ctx, s.timeouts.ConfirmPolls, s.timeouts.ConfirmInterval, func() bool {
		return visible(ctx, page, confirmSubmit)
	})
	if err != nil {
		return false, ignoreNotFound(err)
	}
	if err := forceClick(ctx, page, confirmSubmit); err != nil {
		s.logger.Warn("Submit confirmation not clicked.", zap.Error(err))
	}
	return true, nil
}

// awaitSuccess polls for a success message, a toast, or the submit control
// going away; the first one seen wins.
func (s *SubmitResolver) awaitSuccess(ctx context.Context, page browser.Page) (bool, error) {
	err := browser.PollN(ctx, s.timeouts.SuccessPolls, s.timeouts.SuccessInterval, func() bool {
		if visible(ctx, page, successMessage) {
			if visible(ctx, page, okButton) {
				if err := forceClick(ctx, page, okButton); err != nil {
					s.logger.Debug("Success dialog OK not clicked.", zap.Error(err))
				}
			}
			return true
		}
		if visible(ctx, page, successToast) {
			return true
		}
		return ctx.Err() == nil && !anyVisible(ctx, page, submitButtons)
	})
	if err != nil {
		return false, ignoreNotFound(err)
	}
	return true, nil
}

// ignoreNotFound turns an exhausted poll into a plain negative result.
func ignoreNotFound(err error) error {
	if errors.Is(err, browser.ErrNotFound) {
		return nil
	}
	return err
}

// CancelResolver withdraws a final submission.
type CancelResolver struct {
	timeouts config.TimeoutConfig
	slow     bool
	logger   *zap.Logger
}

// NewCancelResolver creates a resolver. In slow mode it pauses between steps.
func NewCancelResolver(timeouts config.TimeoutConfig, slow bool, logger *zap.Logger) *CancelResolver {
	return &CancelResolver{timeouts: timeouts, slow: slow, logger: logger.Named("cancel")}
}

func (c *CancelResolver) pause(ctx context.Context) error {
	if !c.slow {
		return ctx.Err()
	}
	return browser.Sleep(ctx, c.timeouts.StepDelay)
}

// Cancel clicks "Cancel Submit", confirms, and dismisses the success dialog.
// When the success dialog never shows, the cancellation is assumed to have
// gone through. The returned note describes how the row ended.
func (c *CancelResolver) Cancel(ctx context.Context, page browser.Page) (Code, string, error) {
	btn, err := browser.FirstVisible(ctx, page, c.timeouts.MaxWait, c.timeouts.PollInterval, cancelButtons...)
	if err != nil {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		return CodeNoCancelButton, "cancel submit control not found", nil
	}
	if err := page.Click(ctx, btn); err != nil {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		return CodeException, fmt.Sprintf("click cancel submit: %v", err), nil
	}
	if err := c.pause(ctx); err != nil {
		return "", "", err
	}

	if err := browser.WaitVisible(ctx, page, cancelModal, c.timeouts.ConfirmModalWait, c.timeouts.PollInterval); err != nil {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		return CodeException, "confirmation dialog did not appear", nil
	}
	if err := forceClick(ctx, page, cancelConfirm); err != nil {
		if ctx.Err() != nil {
			return "", "", ctx.Err()
		}
		return CodeException, fmt.Sprintf("click confirm cancel: %v", err), nil
	}
	if err := c.pause(ctx); err != nil {
		return "", "", err
	}

	err = browser.PollN(ctx, c.timeouts.CancelSuccessPolls, c.timeouts.CancelSuccessInterval, func() bool {
		return visible(ctx, page, cancelOK)
	})
	if err == nil {
		if err := forceClick(ctx, page, cancelOK); err != nil {
			c.logger.Debug("Cancel success OK not clicked.", zap.Error(err))
		}
		return CodeOK, "submission cancelled", nil
	}
	if !errors.Is(err, browser.ErrNotFound) {
		return "", "", err
	}
	c.logger.Info("Cancel success dialog not seen; assuming the cancellation went through.")
	return CodeOK, "success dialog not seen, assumed cancelled", nil
}
