package sheet

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoWorkbook is returned by Discover when the directory holds no workbook.
var ErrNoWorkbook = errors.New("no .xlsx workbook found")

// Discover returns the most recently modified .xlsx file in dir, ignoring
// Office lock files ("~$...").
func Discover(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var (
		newest  string
		newestT time.Time
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestT) {
			newest, newestT = name, info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("%w in %s", ErrNoWorkbook, dir)
	}
	return filepath.Join(dir, newest), nil
}
