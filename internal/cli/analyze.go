package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/urlguard/internal/analysis"
	"github.com/MrSnakeDoc/urlguard/internal/app"
)

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var (
		noExternal  bool
		ignoreCache bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Analyze one URL and print the result as JSON",
		Long: `Analyze one URL. A cached verdict is returned unless --ignore-cache is set;
fresh verdicts are written back to the reputation cache.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			return withApp(ctx, opts, func(a *app.App) error {
				res, err := a.Analysis.AnalyzeURL(ctx, args[0], analysis.Options{
					UseExternal: !noExternal,
					IgnoreCache: ignoreCache,
				})
				if err != nil {
					return err
				}
				return outputAsJSON(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().BoolVar(&noExternal, "no-external", false, "Skip the URLScan and VirusTotal lookups")
	cmd.Flags().BoolVar(&ignoreCache, "ignore-cache", false, "Bypass the reputation cache lookup")

	return cmd
}

func newRecheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recheck <url>",
		Short: "Drop the cached verdict for a URL and analyze it again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			return withApp(ctx, opts, func(a *app.App) error {
				res, err := a.Analysis.Recheck(ctx, args[0])
				if err != nil {
					return err
				}
				return outputAsJSON(cmd.OutOrStdout(), res)
			})
		},
	}
}
