// Package autofill drives the business directory's edit form one spreadsheet
// row at a time.
package autofill

import (
	"errors"

	"github.com/sbr-tools/sbr-cli/internal/runlog"
)

// ErrRowNotFound is returned when a row's edit control cannot be located.
var ErrRowNotFound = errors.New("row edit control not found")

// ErrHalted is returned by Runner.Run when a row outcome stops the run.
var ErrHalted = errors.New("run halted")

// Mode selects what happens inside the form tab.
type Mode string

const (
	ModeFill   Mode = "fill"
	ModeCancel Mode = "cancel"
)

// Code is a row's result code.
type Code string

const (
	CodeOK              Code = "OK"
	CodeSkippedLocked   Code = "SKIPPED_LOCKED"
	CodeNotFound        Code = "NOT_FOUND"
	CodeNoNewTab        Code = "NO_NEW_TAB"
	CodeErrorFill       Code = "ERROR_FILL"
	CodeNoSubmitButton  Code = "NO_SUBMIT_BUTTON"
	CodeNoConfirm       Code = "NO_CONFIRM"
	CodeNoSuccessSignal Code = "NO_SUCCESS_SIGNAL"
	CodeNoCancelButton  Code = "NO_CANCEL_BUTTON"
	CodeException       Code = "EXCEPTION"
)

// Stage tags where in the row sequence an event happened.
type Stage string

const (
	StageClickEdit Stage = "CLICK_EDIT"
	StageOpenTab   Stage = "OPEN_TAB"
	StageFill      Stage = "FILL"
	StageSubmit    Stage = "SUBMIT"
	StageCancel    Stage = "CANCEL_SUBMIT"
	StageRowDone   Stage = "ROW_DONE"
)

// DialogState is the form's modal state as observed by the resolvers.
type DialogState int

const (
	DialogNone DialogState = iota
	DialogValidationError
	DialogConsistencyCheck
	DialogConfirmation
	DialogSuccess
	DialogLocked
)

func (d DialogState) String() string {
	switch d {
	case DialogValidationError:
		return "validation-error"
	case DialogConsistencyCheck:
		return "consistency-check"
	case DialogConfirmation:
		return "confirmation"
	case DialogSuccess:
		return "success"
	case DialogLocked:
		return "locked"
	default:
		return "none"
	}
}

// RowOutcome is the terminal result of one attempted row.
type RowOutcome struct {
	Row        int
	Level      runlog.Level
	Stage      Stage
	Code       Code
	Note       string
	Screenshot string
	Dialog     DialogState
}
