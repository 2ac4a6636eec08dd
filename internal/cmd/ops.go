package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ghostline-core/internal/app"
	coreerrors "ghostline-core/internal/core/errors"
)

// warnRestart 配置已写入但重启失败时提示，并把错误继续返回
func warnRestart(out *Output, err error) error {
	if coreerrors.IsCode(err, coreerrors.CodeRestartFailed) {
		out.Warning("proxy config saved, restart the proxy manually")
	}
	return err
}

func newSyncCmd(opts *options) *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring the proxy client list in line with the database",
		Long: `Add every unblocked account with an active subscription to the proxy config.
With --prune, clients that should not have access are removed as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := NewOutput(cmd.OutOrStdout())
			return opts.withApp(cmd.Context(), (*app.Builder).WithServices, func(a *app.App) error {
				res, err := a.SyncFromStore(cmd.Context(), prune)
				if res != nil {
					out.KeyValue("added", joinOrDash(res.Added))
					out.KeyValue("removed", joinOrDash(res.Removed))
					out.KeyValue("unchanged", fmt.Sprint(res.Unchanged))
				}
				return warnRestart(out, err)
			})
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "Remove clients without active access")
	return cmd
}

func newLinkCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "link <userId>",
		Short: "Print the VLESS connection link for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd.Context(), (*app.Builder).WithProxy, func(a *app.App) error {
				uri, err := a.Deps().Links.Generate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), uri)
				return nil
			})
		},
	}
}

func newClientsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Inspect and edit the proxy client list",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List clients in the proxy config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := NewOutput(cmd.OutOrStdout())
			return opts.withApp(cmd.Context(), (*app.Builder).WithProxy, func(a *app.App) error {
				clients, err := a.Deps().Sync.ListClients(cmd.Context())
				if err != nil {
					return err
				}
				table := out.NewTable("ID", "EMAIL", "FLOW")
				for _, c := range clients {
					table.AddRow(c.ID, c.Email, c.Flow)
				}
				table.Render()
				out.Plain("%d client(s)", len(clients))
				return nil
			})
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <userId>...",
		Short: "Add clients and restart the proxy",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := NewOutput(cmd.OutOrStdout())
			return opts.withApp(cmd.Context(), (*app.Builder).WithProxy, func(a *app.App) error {
				added, err := a.Deps().Sync.AddAccounts(cmd.Context(), args)
				if len(added) == 0 && err == nil {
					out.Plain("nothing to add")
					return nil
				}
				if len(added) > 0 {
					out.Success("added %s", strings.Join(added, ", "))
				}
				return warnRestart(out, err)
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <userId>",
		Short: "Remove a client and restart the proxy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := NewOutput(cmd.OutOrStdout())
			return opts.withApp(cmd.Context(), (*app.Builder).WithProxy, func(a *app.App) error {
				removed, err := a.Deps().Sync.RemoveAccount(cmd.Context(), args[0])
				if !removed && err == nil {
					out.Plain("%s is not in the proxy config", args[0])
					return nil
				}
				if removed {
					out.Success("removed %s", args[0])
				}
				return warnRestart(out, err)
			})
		},
	}

	var yes bool
	clearCmd := &cobra.Command{
		Use:     "clear",
		Aliases: []string{"cleanup"},
		Short:   "Remove every client from the proxy config",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return coreerrors.New(coreerrors.CodeInvalidRequest, "refusing to clear clients without --yes")
			}
			out := NewOutput(cmd.OutOrStdout())
			return opts.withApp(cmd.Context(), (*app.Builder).WithProxy, func(a *app.App) error {
				n, err := a.Deps().Sync.ClearClients(cmd.Context())
				if n > 0 {
					out.Success("removed %d client(s)", n)
				} else if err == nil {
					out.Plain("client list already empty")
				}
				return warnRestart(out, err)
			})
		},
	}
	clearCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm removing all clients")

	cmd.AddCommand(listCmd, addCmd, removeCmd, clearCmd)
	return cmd
}

func newMonitorCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Run one device-limit check and print the report as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), (*app.Builder).WithServices, func(a *app.App) error {
				report, err := a.RunMonitorCycle(cmd.Context())
				if report != nil {
					if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func newExpireCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire overdue subscriptions and revoke access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd.Context(), (*app.Builder).WithServices, func(a *app.App) error {
				report, err := a.RunExpiryScan(cmd.Context())
				if report != nil {
					if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func joinOrDash(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ", ")
}
