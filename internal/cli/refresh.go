package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/urlguard/internal/app"
	"github.com/MrSnakeDoc/urlguard/internal/scheduler"
)

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	var (
		target string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Re-verify the least recently updated reputation entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := scheduler.ParseTarget(target); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			return withApp(ctx, opts, func(a *app.App) error {
				sum, err := a.Refresher.Refresh(ctx, target, limit)
				if err != nil {
					return err
				}
				if opts.outputJSON {
					return outputAsJSON(cmd.OutOrStdout(), sum)
				}
				out := cmd.OutOrStdout()
				printf(out, "target:     %s\n", sum.Target)
				printf(out, "processed:  %d\n", sum.Processed)
				printf(out, "whitelist:  %d\n", sum.Whitelist)
				printf(out, "blacklist:  %d\n", sum.Blacklist)
				printf(out, "unknown:    %d\n", sum.Unknown)
				printf(out, "errors:     %d\n", sum.Errors)
				printf(out, "took:       %s\n", sum.Took)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&target, "target", scheduler.TargetAll, "List to refresh: whitelist, blacklist or all")
	cmd.Flags().IntVar(&limit, "limit", scheduler.DefaultRefreshLimit, "Entries to re-verify (clamped to 1..50)")

	return cmd
}
