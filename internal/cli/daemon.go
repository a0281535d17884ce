package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sublimetools/sublime/pkg/daemon"
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and talk to the workspace monitor daemon",
	}
	cmd.AddCommand(newDaemonStartCmd())
	cmd.AddCommand(newDaemonStopCmd())
	cmd.AddCommand(newDaemonStatusCmd())
	cmd.AddCommand(newDaemonAddRepoCmd())
	cmd.AddCommand(newDaemonRemoveRepoCmd())
	cmd.AddCommand(newDaemonSendCmd())
	return cmd
}

func daemonClient(cmd *cobra.Command) (*daemon.Client, error) {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return nil, err
	}
	return daemon.NewClient(a.Config.Daemon.SocketPath), nil
}

func newDaemonStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the foreground",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			s := daemon.NewServer(daemon.Options{
				SocketPath:   a.Config.Daemon.SocketPath,
				PIDFile:      a.Config.Daemon.PIDFile,
				ChangesetDir: a.Config.Changeset.Path,
				Logger:       a.Logger,
			})
			if err := s.Start(); err != nil {
				return err
			}
			// The root context is cancelled on SIGINT/SIGTERM; Serve
			// drains and cleans up before returning.
			return s.Serve(cmd.Context())
		},
	}
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := daemonClient(cmd)
			if err != nil {
				return err
			}
			if err := client.Shutdown(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "daemon stopping")
			return nil
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and monitored repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := daemonClient(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !client.Running() {
				fmt.Fprintln(out, "daemon: not running")
				return nil
			}

			status, err := client.Status()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "daemon: running (pid %d, uptime %ds)\n", status.PID, status.UptimeSeconds)
			for _, repo := range status.MonitoredRepos {
				state := ""
				if repo.Stale {
					state = " (stale)"
				}
				fmt.Fprintf(out, "  %s  %s  %d packages%s\n", repo.Name, repo.Path, repo.Packages, state)
			}
			return nil
		},
	}
}

func newDaemonAddRepoCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add-repo <path>",
		Short: "Monitor a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := daemonClient(cmd)
			if err != nil {
				return err
			}
			if err := client.AddRepository(args[0], name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "monitoring %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "repository name (default: directory name)")
	return cmd
}

func newDaemonRemoveRepoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-repo <name-or-path>",
		Short: "Stop monitoring a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := daemonClient(cmd)
			if err != nil {
				return err
			}
			if err := client.RemoveRepository(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}

func newDaemonSendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <command> [args...]",
		Short: "Send a raw command (ping, list-repos, uptime, graph-summary, changeset-status)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := daemonClient(cmd)
			if err != nil {
				return err
			}
			resp, err := client.Command(args[0], args[1:])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !resp.Success {
				fmt.Fprintf(out, "error: %s\n", resp.Error)
				return nil
			}
			if resp.Message != "" {
				fmt.Fprintln(out, resp.Message)
			}
			if len(resp.Data) > 0 {
				fmt.Fprintln(out, string(resp.Data))
			}
			return nil
		},
	}
}
