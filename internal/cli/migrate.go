package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/urlguard/internal/store"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the reputation store schema migrations",
		Long: `Apply every pending goose migration to the configured SQL backend
(URLGUARD_STORE=sqlite or postgres) and print the migration status.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			cfg := *opts.cfg
			cfg.AutoMigrate = false
			st, err := store.Open(ctx, &cfg, opts.log)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			m, ok := st.(store.Migrator)
			if !ok {
				return fmt.Errorf("%s store has no schema to migrate", st.Backend())
			}
			if !statusOnly {
				if err := m.Migrate(ctx, opts.log); err != nil {
					return err
				}
			}

			status, err := m.MigrationStatus(ctx)
			if err != nil {
				return err
			}
			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), status)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(tw, "VERSION\tNAME\tAPPLIED\n")
			for _, s := range status {
				applied := "pending"
				if s.Applied {
					applied = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				printf(tw, "%d\t%s\t%s\n", s.Version, s.Name, applied)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "Only print the migration status")

	return cmd
}
