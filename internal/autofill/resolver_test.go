package autofill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSubmit() *SubmitResolver {
	return NewSubmitResolver(testConfig().Timeouts, zap.NewNop())
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		form      func() *fakePage
		want      Code
		dialog    DialogState
		confirmed bool
	}{
		{
			name:      "submit control disappears after confirm",
			form:      func() *fakePage { return submittableForm("form") },
			want:      CodeOK,
			dialog:    DialogSuccess,
			confirmed: true,
		},
		{
			name:   "no submit button",
			form:   func() *fakePage { return newFakePage("form") },
			want:   CodeNoSubmitButton,
			dialog: DialogNone,
		},
		{
			name:   "validation error",
			form:   func() *fakePage { return rejectingForm("form") },
			want:   CodeErrorFill,
			dialog: DialogValidationError,
		},
		{
			name: "no confirmation dialog",
			form: func() *fakePage {
				return newFakePage("form").show(submitButtons[0])
			},
			want:   CodeNoConfirm,
			dialog: DialogNone,
		},
		{
			name: "confirmed without success signal",
			form: func() *fakePage {
				f := newFakePage("form").show(submitButtons[0])
				f.on(submitButtons[0], func(p *fakePage) { p.show(confirmSubmit) })
				return f
			},
			want:      CodeNoSuccessSignal,
			dialog:    DialogConfirmation,
			confirmed: true,
		},
		{
			name: "toast counts as success",
			form: func() *fakePage {
				f := newFakePage("form").show(submitButtons[0])
				f.on(submitButtons[0], func(p *fakePage) { p.show(confirmSubmit) })
				f.on(confirmSubmit, func(p *fakePage) { p.show(successToast) })
				return f
			},
			want:      CodeOK,
			dialog:    DialogSuccess,
			confirmed: true,
		},
		{
			name: "text fallback for submit",
			form: func() *fakePage {
				f := newFakePage("form").show(submitButtons[1])
				f.on(submitButtons[1], func(p *fakePage) { p.remove(submitButtons[1]) })
				return f
			},
			want:   CodeOK,
			dialog: DialogSuccess,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := newTestSubmit().Submit(ctx, tt.form())
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Code)
			assert.Equal(t, tt.dialog, res.Dialog)
			assert.Equal(t, tt.confirmed, res.ConfirmClicked)
		})
	}
}

func TestSubmitDismissesDialogs(t *testing.T) {
	form := newFakePage("form").show(submitButtons[0])
	form.on(submitButtons[0], func(p *fakePage) { p.show(consistencyNotice, ignoreButton, confirmSubmit) })
	form.on(confirmSubmit, func(p *fakePage) { p.show(successMessage, okButton) })
	form.clickErr[confirmSubmit.String()] = errors.New("intercepted by overlay")

	res, err := newTestSubmit().Submit(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, CodeOK, res.Code)
	assert.True(t, res.ConsistencyShown)
	assert.Equal(t, 1, form.clicked(ignoreButton))
	assert.Contains(t, form.clicks, "dispatch:"+confirmSubmit.String(), "confirm falls back to direct invocation")
	assert.Equal(t, 1, form.clicked(okButton))
}

func TestSubmitValidationClicksOK(t *testing.T) {
	form := rejectingForm("form")
	res, err := newTestSubmit().Submit(context.Background(), form)
	require.NoError(t, err)
	assert.Equal(t, CodeErrorFill, res.Code)
	assert.Equal(t, 1, form.clicked(okButton))
	assert.Equal(t, 0, form.clicked(confirmSubmit))
}

func TestSubmitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestSubmit().Submit(ctx, submittableForm("form"))
	assert.ErrorIs(t, err, context.Canceled)
}

func newTestCancel() *CancelResolver {
	return NewCancelResolver(testConfig().Timeouts, false, zap.NewNop())
}

// cancellableForm shows the confirmation modal after Cancel Submit.
func cancellableForm(withSuccess bool) *fakePage {
	f := newFakePage("form").show(cancelButtons[0])
	f.on(cancelButtons[0], func(p *fakePage) { p.show(cancelModal, cancelConfirm) })
	if withSuccess {
		f.on(cancelConfirm, func(p *fakePage) { p.remove(cancelModal, cancelConfirm); p.show(cancelOK) })
	}
	return f
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("dismisses success dialog", func(t *testing.T) {
		form := cancellableForm(true)
		code, note, err := newTestCancel().Cancel(ctx, form)
		require.NoError(t, err)
		assert.Equal(t, CodeOK, code)
		assert.Equal(t, "submission cancelled", note)
		assert.Equal(t, 1, form.clicked(cancelOK))
	})

	t.Run("assumes success when no dialog appears", func(t *testing.T) {
		form := cancellableForm(false)
		code, note, err := newTestCancel().Cancel(ctx, form)
		require.NoError(t, err)
		assert.Equal(t, CodeOK, code)
		assert.Contains(t, note, "assumed")
		assert.Equal(t, 1, form.clicked(cancelConfirm))
	})

	t.Run("text fallback for the cancel control", func(t *testing.T) {
		form := newFakePage("form").show(cancelButtons[1])
		form.on(cancelButtons[1], func(p *fakePage) { p.show(cancelModal, cancelConfirm) })
		code, _, err := newTestCancel().Cancel(ctx, form)
		require.NoError(t, err)
		assert.Equal(t, CodeOK, code)
	})

	t.Run("no cancel button", func(t *testing.T) {
		code, _, err := newTestCancel().Cancel(ctx, newFakePage("form"))
		require.NoError(t, err)
		assert.Equal(t, CodeNoCancelButton, code)
	})

	t.Run("confirmation modal never shows", func(t *testing.T) {
		form := newFakePage("form").show(cancelButtons[0])
		code, note, err := newTestCancel().Cancel(ctx, form)
		require.NoError(t, err)
		assert.Equal(t, CodeException, code)
		assert.Contains(t, note, "confirmation dialog")
	})
}
