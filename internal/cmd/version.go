package cmd

import (
	"github.com/spf13/cobra"

	"ghostline-core/internal/version"
)

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Show version information including build time and git commit.

Example:
  ghostline version
  ghostline version --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON {
				return printJSON(cmd.OutOrStdout(), version.Get())
			}
			out := NewOutput(cmd.OutOrStdout())
			out.Plain("Ghostline %s", version.GetVersion())
			if gv := version.Get().GoVersion; gv != "" {
				out.KeyValue("go", gv)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print version information as JSON")
	return cmd
}
