package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/urlguard/internal/app"
	"github.com/MrSnakeDoc/urlguard/internal/config"
	"github.com/MrSnakeDoc/urlguard/internal/logger"
)

// commandTimeout bounds one-shot commands (analyze, recheck, refresh, migrate).
const commandTimeout = 5 * time.Minute

type rootOptions struct {
	logLevel   string
	outputJSON bool

	// set by PersistentPreRun
	cfg *config.Config
	log logger.Logger
}

// NewRootCmd builds the urlguard command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "urlguard",
		Short: "URL reputation cache and risk-analysis service",
		Long: `urlguard classifies URLs as safe, unsafe or unknown from WHOIS, TLS,
threat-intelligence and model signals, and keeps the verdicts in a
whitelist/blacklist reputation cache.

Configuration is read from URLGUARD_* environment variables and an optional
.env file in the working directory.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.cfg = config.Load()
			if opts.logLevel != "" {
				opts.cfg.LogLevel = opts.logLevel
			}
			opts.log = logger.New(opts.cfg.LogLevel, opts.cfg.PrettyLog)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.log != nil {
				_ = opts.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override URLGUARD_LOG_LEVEL (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&opts.outputJSON, "json", false, "Output in JSON format")

	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newMigrateCmd(opts))
	root.AddCommand(newAnalyzeCmd(opts))
	root.AddCommand(newRecheckCmd(opts))
	root.AddCommand(newRefreshCmd(opts))
	root.AddCommand(newVersionCmd(opts))

	return root
}

// withApp builds the application, runs fn and closes it.
func withApp(ctx context.Context, opts *rootOptions, fn func(a *app.App) error) error {
	a, err := app.New(ctx, opts.cfg, opts.log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

func outputAsJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
