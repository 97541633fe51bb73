package autofill

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sbr-tools/sbr-cli/internal/browser"
	"github.com/sbr-tools/sbr-cli/internal/config"
	"github.com/sbr-tools/sbr-cli/internal/sheet"
)

func newTestFiller(policy string) *Filler {
	cfg := testConfig()
	cfg.Form.EmailPolicy = policy
	return NewFiller(cfg.Timeouts, cfg.Form, false, zap.NewNop())
}

// fullForm has every field reachable through its primary locator.
func fullForm() *fakePage {
	f := newFakePage("form")
	f.show(
		browser.CSS(`[id="kondisi_aktif"]`).First(),
		phoneFields[0],
		emailToggles[0],
		emailFields[0],
		latitudeFields[0],
		longitudeFields[0],
		sourceFields[0],
		notesFields[0],
	)
	return f
}

func TestFillAllFields(t *testing.T) {
	form := fullForm()
	row := sheet.Row{
		Index:     1,
		Status:    "AKTIF",
		Phone:     "0812-3456 789",
		Email:     "toko@maju.id",
		Latitude:  "-6,2088",
		Longitude: "106,8456 E",
		Source:    "Observasi lapangan",
		Notes:     "buka setiap hari",
	}

	report, err := newTestFiller(config.EmailMerge).Fill(context.Background(), form, row)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, []string{"status", "phone", "email", "latitude", "longitude", "source", "notes"}, report.Filled)

	assert.True(t, form.checked[`css=[id="kondisi_aktif"] nth=0`])
	assert.Equal(t, "08123456789", form.fills[phoneFields[0].String()])
	assert.True(t, form.checked[emailToggles[0].String()])
	assert.Equal(t, "toko@maju.id", form.fills[emailFields[0].String()])
	assert.Equal(t, "-6.2088", form.fills[latitudeFields[0].String()])
	assert.Equal(t, "106.8456", form.fills[longitudeFields[0].String()])
	assert.Equal(t, "Observasi lapangan", form.fills[sourceFields[0].String()])
	assert.Equal(t, "buka setiap hari", form.fills[notesFields[0].String()])
	assert.Equal(t, []string{"input", "change"}, form.notified[notesFields[0].String()])
}

func TestFillSkipsEmptyValues(t *testing.T) {
	form := fullForm()
	form.values[emailFields[0].String()] = "lama@maju.id"

	report, err := newTestFiller(config.EmailMerge).Fill(context.Background(), form, sheet.Row{Index: 2, Phone: "-", Latitude: "n/a"})
	require.NoError(t, err)
	assert.Empty(t, report.Filled)
	assert.Equal(t, []string{"status", "phone", "email", "latitude", "longitude", "source", "notes"}, report.Skipped)
	assert.Empty(t, form.fills)
	assert.Empty(t, form.clicks, "live email is kept untouched")
}

func TestFillEmailPolicies(t *testing.T) {
	ctx := context.Background()
	toggle := emailToggles[0].String()
	input := emailFields[0].String()

	t.Run("both empty turns toggle off and clears", func(t *testing.T) {
		form := fullForm()
		form.checked[toggle] = true
		_, err := newTestFiller(config.EmailMerge).Fill(ctx, form, sheet.Row{})
		require.NoError(t, err)
		assert.False(t, form.checked[toggle])
		assert.Equal(t, "", form.fills[input])
	})

	t.Run("disable policy ignores sheet", func(t *testing.T) {
		form := fullForm()
		form.checked[toggle] = true
		form.values[input] = "lama@maju.id"
		_, err := newTestFiller(config.EmailDisable).Fill(ctx, form, sheet.Row{Email: "baru@maju.id"})
		require.NoError(t, err)
		assert.False(t, form.checked[toggle])
		assert.Equal(t, "", form.fills[input])
	})

	t.Run("hidden toggle is forced", func(t *testing.T) {
		form := fullForm()
		form.attach(emailToggles[0])
		_, err := newTestFiller(config.EmailMerge).Fill(ctx, form, sheet.Row{Email: "a@b.id"})
		require.NoError(t, err)
		assert.True(t, form.checked[toggle])
		assert.Contains(t, form.clicks, "force:"+toggle)
		assert.Equal(t, "a@b.id", form.fills[input])
	})
}

func TestFillStatusFallbacks(t *testing.T) {
	ctx := context.Background()

	t.Run("label association", func(t *testing.T) {
		form := newFakePage("form")
		byLabel := browser.Label("Tutup Sementara", browser.MatchExact).First()
		form.show(byLabel)
		cfg := testConfig()
		cfg.Form.StatusControls = nil
		f := NewFiller(cfg.Timeouts, cfg.Form, false, zap.NewNop())

		report, err := f.Fill(ctx, form, sheet.Row{Status: "Tutup Sementara"})
		require.NoError(t, err)
		assert.Contains(t, report.Filled, "status")
		assert.True(t, form.checked[byLabel.String()])
	})

	t.Run("click label text", func(t *testing.T) {
		form := newFakePage("form")
		target := statusClickTarget("Duplikat")
		form.show(target)

		report, err := newTestFiller(config.EmailMerge).Fill(ctx, form, sheet.Row{Status: "Duplikat"})
		require.NoError(t, err)
		assert.Contains(t, report.Filled, "status")
		assert.Equal(t, 1, form.clicked(target))
	})
}

func TestFillFailuresAreIsolated(t *testing.T) {
	form := fullForm()
	form.remove(phoneFields[0], emailToggles[0])
	form.clickErr[`css=[id="kondisi_aktif"] nth=0`] = errors.New("detached")

	report, err := newTestFiller(config.EmailMerge).Fill(context.Background(), form, sheet.Row{
		Status: "Aktif", Phone: "0811", Email: "a@b.id", Notes: "ok",
	})
	require.NoError(t, err)
	assert.False(t, report.OK())
	assert.ErrorIs(t, report.Failed["phone"], browser.ErrNotFound)
	assert.ErrorIs(t, report.Failed["email"], browser.ErrNotFound)
	assert.Contains(t, report.Filled, "status", "forced check after a failed click")
	assert.Contains(t, report.Filled, "notes")
	assert.Equal(t, "filled=status,notes skipped=latitude,longitude,source failed=email,phone", report.Summary())
}

func TestFillCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFiller(config.EmailMerge).Fill(ctx, fullForm(), sheet.Row{Status: "Aktif"})
	assert.ErrorIs(t, err, context.Canceled)
}
