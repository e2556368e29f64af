package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/seagrayinc/scopeselect/internal/config"
	"github.com/seagrayinc/scopeselect/internal/logging"
	"github.com/seagrayinc/scopeselect/pkg/models"
)

// app is the state shared by all subcommands once flags are parsed.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	logFile    string

	cfg      config.Config
	registry *models.Registry
	logger   *slog.Logger
	closers  []io.Closer
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "scopeselect",
		Short:         "Find a supported USB oscilloscope, load its firmware and hand it over",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (yaml, json or toml); defaults to $"+config.EnvConfigPath+" or the usual locations")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides config)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", "", "Log format: text|json (overrides config)")
	root.PersistentFlags().StringVar(&a.logFile, "log-file", "", "Write logs to this file instead of stderr")

	sel := newSelectCmd(a)
	root.RunE = sel.RunE
	root.Flags().AddFlagSet(sel.Flags())

	root.AddCommand(sel, newListCmd(a), newModelsCmd(a), newHistoryCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, path, err := config.LoadOrDefault(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.logFormat != "" {
		cfg.LogFormat = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.LogFormat)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stderr
	if a.logFile != "" {
		f, err := os.OpenFile(a.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, f)
		w = f
	} else if quietTerminal(cmd) {
		// the dialog owns the terminal
		w = io.Discard
	}

	a.logger, _ = logging.New(w, level, format)
	slog.SetDefault(a.logger)

	a.cfg = cfg
	a.registry, err = cfg.Registry()
	if err != nil {
		return err
	}

	if path != "" {
		a.logger.Debug("config loaded", slog.String("path", path))
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
	a.closers = nil
}

// quietTerminal reports whether cmd will run the interactive dialog.
func quietTerminal(cmd *cobra.Command) bool {
	if cmd.Name() != "select" && cmd.Name() != "scopeselect" {
		return false
	}
	headless, err := cmd.Flags().GetBool("headless")
	return err == nil && !headless
}
