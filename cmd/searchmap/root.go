package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/searchmap/searchmap"
)

type rootOptions struct {
	configFile string
	verbose    bool
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "searchmap",
		Short: "Key/value map with substring search over its keys",
		Long: `searchmap keeps values in memory and mirrors their keys to a search
engine running on its own goroutine. Keys are matched by case-insensitive
substring.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = newLogger(cmd.ErrOrStderr(), opts.verbose)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Path to a JSON or YAML config file")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newReplCmd(opts))

	return cmd
}

// config loads the config file, if any, and hands it the command logger.
func (o *rootOptions) config() (*searchmap.Config, error) {
	cfg := searchmap.DefaultConfig()
	if o.configFile != "" {
		loaded, err := searchmap.LoadConfig(o.configFile)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if o.logger != nil {
		cfg.Merge(&searchmap.Config{Logger: o.logger})
	}
	return &cfg, nil
}

// newLogger writes text to a terminal and JSON everywhere else.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	if isTTY(w) {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
