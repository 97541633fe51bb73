// Package runlog records per-row events for a run and persists them as CSV.
package runlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TimestampLayout is used for CSV timestamps and screenshot file names.
const TimestampLayout = "20060102_150405"

// ErrDuplicateTerminal is returned when a row already has a terminal outcome.
var ErrDuplicateTerminal = errors.New("row already has a terminal outcome")

// Level is the severity of an event.
type Level string

const (
	LevelOK    Level = "OK"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Event is one logged step. Terminal events close a row.
type Event struct {
	Time       time.Time
	Row        int
	Level      Level
	Stage      string
	Note       string
	Screenshot string
	Terminal   bool
}

// Summary counts terminal outcomes.
type Summary struct {
	Attempted int
	OK        int
	Warned    int
	Errored   int
}

// Recorder accumulates events in memory and narrates them through zap.
type Recorder struct {
	mu       sync.Mutex
	logger   *zap.Logger
	now      func() time.Time
	events   []Event
	terminal map[int]bool
}

// NewRecorder creates an empty recorder.
func NewRecorder(logger *zap.Logger) *Recorder {
	return &Recorder{
		logger:   logger,
		now:      time.Now,
		terminal: make(map[int]bool),
	}
}

// Record appends a non-terminal stage event.
func (r *Recorder) Record(row int, level Level, stage, note, screenshot string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.append(Event{Row: row, Level: level, Stage: stage, Note: note, Screenshot: screenshot})
}

// Terminal records the final outcome of a row. A second terminal outcome for
// the same row is rejected and not recorded.
func (r *Recorder) Terminal(row int, level Level, stage, note, screenshot string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal[row] {
		r.logger.Error("Duplicate terminal outcome dropped.", zap.Int("row", row), zap.String("stage", stage))
		return fmt.Errorf("row %d: %w", row, ErrDuplicateTerminal)
	}
	r.terminal[row] = true
	r.append(Event{Row: row, Level: level, Stage: stage, Note: note, Screenshot: screenshot, Terminal: true})
	return nil
}

func (r *Recorder) append(ev Event) {
	ev.Time = r.now()
	r.events = append(r.events, ev)

	fields := []zap.Field{zap.Int("row", ev.Row), zap.String("stage", ev.Stage)}
	if ev.Screenshot != "" {
		fields = append(fields, zap.String("screenshot", ev.Screenshot))
	}
	if ev.Terminal {
		fields = append(fields, zap.Bool("terminal", true))
	}
	switch ev.Level {
	case LevelOK:
		r.logger.Info(ev.Note, fields...)
	case LevelWarn:
		r.logger.Warn(ev.Note, fields...)
	default:
		r.logger.Error(ev.Note, fields...)
	}
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Summary tallies terminal outcomes by level.
func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Summary
	for _, ev := range r.events {
		if !ev.Terminal {
			continue
		}
		s.Attempted++
		switch ev.Level {
		case LevelOK:
			s.OK++
		case LevelWarn:
			s.Warned++
		default:
			s.Errored++
		}
	}
	return s
}

var csvHeader = []string{"ts", "row_index", "level", "stage", "note", "screenshot"}

// Flush writes every event to path as CSV with a header row, replacing any
// previous file.
func (r *Recorder) Flush(path string) error {
	events := r.Events()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create run log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write run log header: %w", err)
	}
	for _, ev := range events {
		rec := []string{
			ev.Time.Format(TimestampLayout),
			strconv.Itoa(ev.Row),
			string(ev.Level),
			ev.Stage,
			ev.Note,
			ev.Screenshot,
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("failed to write run log: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush run log: %w", err)
	}
	return f.Close()
}
