package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ghostline-core/internal/app"
)

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the provisioning API",
		Long: `Run the expiry job, the device monitor (when enabled) and the HTTP API
(when enabled) until SIGINT or SIGTERM is received.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return opts.withApp(ctx, (*app.Builder).WithDefaults, func(a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
}
