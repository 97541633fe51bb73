package runlog

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"
)

const maxLabelLen = 60

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// SanitizeLabel keeps [A-Za-z0-9_-], replacing other runs with "-", and caps
// the length at 60.
func SanitizeLabel(label string) string {
	s := unsafeLabel.ReplaceAllString(label, "-")
	if len(s) > maxLabelLen {
		s = s[:maxLabelLen]
	}
	return s
}

// Capturer produces a PNG of a page. browser.Page satisfies it.
type Capturer interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// Screenshotter writes best-effort page captures into a directory.
type Screenshotter struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewScreenshotter writes captures into dir. An empty dir disables capture.
func NewScreenshotter(dir string, logger *zap.Logger) *Screenshotter {
	return &Screenshotter{dir: dir, logger: logger, now: time.Now}
}

// Capture saves a full-page PNG and returns its path, or "" if anything fails.
func (s *Screenshotter) Capture(ctx context.Context, page Capturer, label string) string {
	if s == nil || s.dir == "" || page == nil {
		return ""
	}
	buf, err := page.Screenshot(ctx)
	if err != nil {
		s.logger.Warn("Screenshot failed.", zap.String("label", label), zap.Error(err))
		return ""
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.logger.Warn("Screenshot directory unavailable.", zap.String("dir", s.dir), zap.Error(err))
		return ""
	}
	path := filepath.Join(s.dir, s.now().Format(TimestampLayout)+"_"+SanitizeLabel(label)+".png")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		s.logger.Warn("Screenshot not saved.", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}
