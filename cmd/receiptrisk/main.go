package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gyaneshwarpardhi/receiptrisk/internal/config"
	"github.com/gyaneshwarpardhi/receiptrisk/internal/logging"
)

var version = "dev"

// exitError ends the process with code without printing anything more;
// the command has already written its own diagnostics.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "receiptrisk",
		Short: "Receipt fraud scoring: train, predict, batch test and inspect model bundles",
		Long: `receiptrisk trains tree-ensemble fraud classifiers on labelled receipt tables,
publishes them as versioned model bundles and scores receipts against the live bundle.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().String("config", "", "YAML config file (defaults apply when empty)")
	root.PersistentFlags().String("bundle-dir", "", "model bundle directory (overrides bundle.dir)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (text, json)")
	root.PersistentFlags().BoolP("verbose", "v", false, "write logs to stderr for commands that are quiet by default")

	_ = viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("bundle.dir", root.PersistentFlags().Lookup("bundle-dir"))
	_ = viper.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(trainCmd())
	root.AddCommand(predictCmd())
	root.AddCommand(batchCmd())
	root.AddCommand(inspectCmd())
	root.AddCommand(versionCmd())
	return root
}

func init() {
	cobra.OnInitialize(initViper)
}

func initViper() {
	viper.SetEnvPrefix("RECEIPTRISK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the YAML file named by --config or RECEIPTRISK_CONFIG and
// overlays flag and environment values.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("bundle.dir"); v != "" {
		cfg.Bundle.Dir = v
	}
	if v := viper.GetString("logging.level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("logging.format"); v != "" {
		cfg.Logging.Format = v
	}
	if n := viper.GetInt("batch.workers"); n > 0 {
		cfg.Batch.Workers = n
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to w, or nowhere when quiet is set and --verbose is not.
func newLogger(cfg *config.Config, w io.Writer, quiet bool) *slog.Logger {
	if quiet && !viper.GetBool("verbose") {
		return logging.Discard()
	}
	return logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: w})
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the receiptrisk version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "receiptrisk %s\n", version)
		},
	}
}
