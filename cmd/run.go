// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sbr-tools/sbr-cli/internal/autofill"
	"github.com/sbr-tools/sbr-cli/internal/browser"
	"github.com/sbr-tools/sbr-cli/internal/config"
	"github.com/sbr-tools/sbr-cli/internal/observability"
	"github.com/sbr-tools/sbr-cli/internal/runlog"
	"github.com/sbr-tools/sbr-cli/internal/sheet"
)

// runFlags maps row-selection flags onto their configuration keys.
var runFlags = map[string]string{
	"excel":          "run.excel",
	"sheet":          "run.sheet",
	"start":          "run.start",
	"end":            "run.end",
	"match-by":       "run.match_by",
	"stop-on-error":  "run.stop_on_error",
	"skip-unlocated": "run.skip_unlocated",
}

// attachBrowser connects to the operator's Chrome. Replaced in tests.
var attachBrowser = func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (browser.TabSource, func(), error) {
	b, err := browser.Attach(ctx, cfg.Browser, cfg.Timeouts.MaxWait, logger)
	if err != nil {
		return nil, nil, err
	}
	return b, b.Close, nil
}

// newRunCmd builds a row-processing command. fill and cancel differ only in
// mode and log destination.
func newRunCmd(v *viper.Viper, mode autofill.Mode, use, short string) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for flag, key := range runFlags {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("no-slow") {
				noSlow, err := cmd.Flags().GetBool("no-slow")
				if err != nil {
					return err
				}
				v.Set("run.slow_mode", !noSlow)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return runWorkflow(cmd.Context(), cfg, mode)
		},
	}

	flags := runCmd.Flags()
	flags.String("excel", "", "workbook path (default: newest .xlsx in the working directory)")
	flags.String("sheet", "", "sheet name or 0-based index (default: first sheet)")
	flags.Int("start", 0, "first row to process, 1-based inclusive")
	flags.Int("end", 0, "last row to process, 1-based inclusive")
	flags.String("match-by", config.MatchIndex, "how rows are found in the directory: index, identifier or name")
	flags.Bool("stop-on-error", false, "halt the run on the first row error")
	flags.Bool("skip-unlocated", false, "record NOT_FOUND and continue when a row cannot be located")
	flags.Bool("no-slow", false, "skip the pauses between form steps")
	return runCmd
}

func newFillCmd(v *viper.Viper) *cobra.Command {
	return newRunCmd(v, autofill.ModeFill, "fill", "Fill and submit the edit form for each selected row")
}

func newCancelCmd(v *viper.Viper) *cobra.Command {
	return newRunCmd(v, autofill.ModeCancel, "cancel", "Cancel the final submission for each selected row")
}

// requiredColumns lists the headers a workbook must carry for mode and match strategy.
func requiredColumns(cfg *config.Config, mode autofill.Mode) []string {
	var cols []string
	if mode == autofill.ModeFill {
		cols = append(cols, cfg.Columns.Status, cfg.Columns.Email, cfg.Columns.Source, cfg.Columns.Notes)
	}
	switch cfg.Run.MatchBy {
	case config.MatchIdentifier:
		cols = append(cols, cfg.Columns.Identifier)
	case config.MatchName:
		cols = append(cols, cfg.Columns.Name)
	}
	return cols
}

func logPath(cfg *config.Config, mode autofill.Mode) string {
	if mode == autofill.ModeCancel {
		return cfg.Run.CancelLogCSV
	}
	return cfg.Run.LogCSV
}

// runWorkflow reads the workbook, attaches to the browser and drives every
// selected row. The CSV log is written even when the run halts or is interrupted.
func runWorkflow(ctx context.Context, cfg *config.Config, mode autofill.Mode) error {
	logger := observability.GetLogger().With(
		zap.String("run_id", uuid.NewString()),
		zap.String("mode", string(mode)),
	)

	path := cfg.Run.Excel
	if path == "" {
		found, err := sheet.Discover(".")
		if err != nil {
			return err
		}
		path = found
		logger.Info("Using newest workbook in working directory.", zap.String("path", path))
	}

	table, err := sheet.Open(path, cfg.Run.Sheet)
	if err != nil {
		return err
	}
	if err := table.Require(requiredColumns(cfg, mode)...); err != nil {
		return err
	}

	rows := table.Rows(cfg.Columns)
	rng := sheet.ResolveRange(cfg.Run.Start, cfg.Run.End, len(rows))
	if rng.Empty() {
		logger.Warn("No rows selected.",
			zap.Int("start", cfg.Run.Start),
			zap.Int("end", cfg.Run.End),
			zap.Int("rows", len(rows)),
		)
		return nil
	}

	tabs, detach, err := attachBrowser(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("attaching to browser at %s: %w", cfg.Browser.CDPEndpoint, err)
	}
	defer detach()

	recorder := runlog.NewRecorder(logger)
	csvPath := logPath(cfg, mode)
	defer func() {
		if err := recorder.Flush(csvPath); err != nil {
			logger.Error("Failed to write run log.", zap.String("path", csvPath), zap.Error(err))
			return
		}
		logger.Info("Run log written.", zap.String("path", csvPath))
	}()

	shots := runlog.NewScreenshotter(cfg.Run.ScreenshotDir, logger)
	runner := autofill.NewRunner(cfg, mode, tabs, recorder, shots, logger)
	_, runErr := runner.Run(ctx, rows, rng)

	s := recorder.Summary()
	logger.Info("Run finished.",
		zap.String("workbook", path),
		zap.Int("attempted", s.Attempted),
		zap.Int("ok", s.OK),
		zap.Int("warn", s.Warned),
		zap.Int("error", s.Errored),
	)
	return runErr
}
