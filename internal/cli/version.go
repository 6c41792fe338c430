package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/urlguard/internal/version"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		// Skip config loading: version must work without any environment.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.outputJSON {
				return outputAsJSON(cmd.OutOrStdout(), versionInfo{
					Version:   version.Version,
					Commit:    version.Commit,
					BuildDate: version.BuildDate,
					GoVersion: version.GoVersion,
				})
			}
			printf(cmd.OutOrStdout(), "urlguard %s\n", version.String())
			return nil
		},
	}
}
