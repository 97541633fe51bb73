// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/sbr-tools/sbr-cli/internal/config"
	"github.com/sbr-tools/sbr-cli/internal/observability"
)

const (
	envPrefix         = "SBR"
	defaultConfigName = "sbr"
)

// NewRootCommand builds a fresh command tree with its own viper instance, so
// flags from one invocation never leak into the next.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)

	var cfgFile string
	rootCmd := &cobra.Command{
		Use:   "sbr",
		Short: "sbr fills SBR directory profiling forms from a spreadsheet.",
		Long: `sbr attaches to a Chrome session started with --remote-debugging-port,
finds each spreadsheet row in the open business directory, and fills or
cancels its edit form. Every row ends with one line in the CSV run log.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}

			var logCfg config.LoggerConfig
			if err := v.UnmarshalKey("logger", &logCfg); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "sbr"})
				return fmt.Errorf("failed to unmarshal logger config: %w", err)
			}
			observability.InitializeLogger(logCfg)
			observability.GetLogger().Debug("Starting sbr.", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./sbr.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(
		newFillCmd(v),
		newCancelCmd(v),
		newConfigCmd(v),
		newVersionCmd(),
	)
	return rootCmd
}

// Execute runs the command tree under ctx. Errors are logged here; the caller
// only decides the exit code.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	err := NewRootCommand().ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		observability.GetLogger().Warn("Interrupted.")
	default:
		observability.GetLogger().Error("Command execution failed.", zap.Error(err))
	}
	return err
}

// initializeConfig reads the config file and SBR_* environment overrides into v.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
