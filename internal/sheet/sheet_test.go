package sheet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sbr-tools/sbr-cli/internal/config"
)

func writeWorkbook(t *testing.T, dir, name string, sheets map[string][][]interface{}, order ...string) string {
	t.Helper()
	f := excelize.NewFile()
	t.Cleanup(func() { _ = f.Close() })

	for i, sheet := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", sheet))
		} else {
			_, err := f.NewSheet(sheet)
			require.NoError(t, err)
		}
		for r, row := range sheets[sheet] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(sheet, cell, &row))
		}
	}

	path := filepath.Join(dir, name)
	require.NoError(t, f.SaveAs(path))
	return path
}

var header = []interface{}{"IDSBR", "Nama", "Status", "Nomor Telepon", "Email", "Latitude", "Longitude", "Sumber", "Catatan"}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkbook(t, dir, "data.xlsx", map[string][][]interface{}{
		"Direktori": {
			header,
			{"123456", "  Toko   Maju\tJaya ", "Aktif", "0812-3456 789", "a@b.id", "-6,2", "106.8", "Observasi", "catatan"},
			{"654321", "Warung (Bu) Sri", "Tutup", "", "", "", "", "", "nan"},
			{},
		},
		"Lain": {{"x"}},
	}, "Direktori", "Lain")

	tbl, err := Open(path, "")
	require.NoError(t, err)
	assert.Equal(t, "Direktori", tbl.Sheet)
	assert.Equal(t, 2, tbl.Len(), "trailing blank rows are dropped")

	want := []Row{
		{Index: 1, Identifier: "123456", Name: "Toko Maju Jaya", Status: "Aktif", Phone: "0812-3456 789", Email: "a@b.id", Latitude: "-6,2", Longitude: "106.8", Source: "Observasi", Notes: "catatan"},
		{Index: 2, Identifier: "654321", Name: "Warung (Bu) Sri", Status: "Tutup"},
	}
	if diff := cmp.Diff(want, tbl.Rows(config.NewDefaultConfig().Columns)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	t.Run("by index", func(t *testing.T) {
		tbl, err := Open(path, "1")
		require.NoError(t, err)
		assert.Equal(t, "Lain", tbl.Sheet)
		assert.Equal(t, 0, tbl.Len())
	})

	t.Run("by name case-insensitive", func(t *testing.T) {
		tbl, err := Open(path, "lain")
		require.NoError(t, err)
		assert.Equal(t, "Lain", tbl.Sheet)
	})

	t.Run("unknown sheet", func(t *testing.T) {
		_, err := Open(path, "Nope")
		assert.ErrorContains(t, err, `sheet "Nope" not found`)
		_, err = Open(path, "7")
		assert.ErrorContains(t, err, "out of range")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Open(filepath.Join(dir, "missing.xlsx"), "")
		assert.Error(t, err)
	})
}

func TestRequire(t *testing.T) {
	tbl := newTable("x.xlsx", "S", []string{"Status", " email ", "Sumber"}, nil)

	assert.NoError(t, tbl.Require("status", "Email"))
	err := tbl.Require("Status", "Catatan", "IDSBR")
	require.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), "Catatan, IDSBR")
	assert.True(t, tbl.Has("SUMBER"))
	assert.Equal(t, []string{"Status", "email", "Sumber"}, tbl.Headers())
}

func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "a b c", NormalizeSpace("  a \n b\t\tc "))
	assert.Equal(t, "", NormalizeSpace("NaN"))
	assert.Equal(t, "", NormalizeSpace("   "))
	assert.Equal(t, "nano", NormalizeSpace("nano"))
}

func TestResolveRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end int
		total      int
		want       Range
	}{
		{"open bounds", 0, 0, 10, Range{0, 10}},
		{"single row", 3, 3, 10, Range{2, 3}},
		{"start below one clamps", -4, 2, 10, Range{0, 2}},
		{"end beyond total clamps", 8, 50, 10, Range{7, 10}},
		{"inverted is empty", 5, 2, 10, Range{2, 2}},
		{"start past total is empty", 20, 0, 10, Range{10, 10}},
		{"empty sheet", 1, 1, 0, Range{0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRange(tt.start, tt.end, tt.total))
		})
	}

	r := ResolveRange(3, 3, 10)
	assert.Equal(t, 0, r.Offset(2))
	assert.Equal(t, 1, r.Len())
	rows := []Row{{Index: 1}, {Index: 2}, {Index: 3}, {Index: 4}}
	assert.Equal(t, []Row{{Index: 3}}, r.Slice(rows))
	assert.Nil(t, ResolveRange(5, 2, 4).Slice(rows))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()

	_, err := Discover(dir)
	require.ErrorIs(t, err, ErrNoWorkbook)

	older := writeWorkbook(t, dir, "older.xlsx", map[string][][]interface{}{"S": {header}}, "S")
	newer := writeWorkbook(t, dir, "newer.xlsx", map[string][][]interface{}{"S": {header}}, "S")
	lock := filepath.Join(dir, "~$newer.xlsx")
	require.NoError(t, os.WriteFile(lock, []byte("lock"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	now := time.Now()
	require.NoError(t, os.Chtimes(older, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newer, now.Add(-time.Minute), now.Add(-time.Minute)))
	require.NoError(t, os.Chtimes(lock, now, now))

	got, err := Discover(dir)
	require.NoError(t, err)
	assert.Equal(t, newer, got)
}
