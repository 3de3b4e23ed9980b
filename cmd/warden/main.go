package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	startFlags := &StartFlags{}
	stopFlags := &StopFlags{}
	statusFlags := &StatusFlags{}
	logsFlags := &LogsFlags{}
	processesFlags := &ProcessesFlags{}
	reconcileFlags := &APIFlags{}
	stopAllFlags := &APIFlags{}
	autoStartFlags := &AutoStartFlags{}
	serveFlags := &ServeFlags{}

	wardenCommand := command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStartCommand(wardenCommand, startFlags),
		createStopCommand(wardenCommand, stopFlags),
		createStopAllCommand(wardenCommand, stopAllFlags),
		createStatusCommand(wardenCommand, statusFlags),
		createLogsCommand(wardenCommand, logsFlags),
		createProcessesCommand(wardenCommand, processesFlags),
		createReconcileCommand(wardenCommand, reconcileFlags),
		createAutoStartCommand(wardenCommand, autoStartFlags),
		createServeCommand(globalFlags, serveFlags),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Lifecycle supervisor for workspace backend services",
		Long: `Warden starts, monitors and stops the backend service of each
workspace, surviving its own restarts via on-disk PID records.

Examples:
  warden serve --config=warden.toml        # Start the daemon
  warden start --workspace=alpha           # Start a workspace's service
  warden status                            # All instances
  warden logs --workspace=alpha --tail=40000`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createStartCommand(c command, f *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a workspace's backend service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(*f)
		},
	}
	cmd.Flags().StringVar(&f.Workspace, "workspace", "", "workspace id (required)")
	cmd.Flags().StringSliceVar(&f.Command, "cmd", nil, "start command argv (defaults to daemon config)")
	addAPIFlags(cmd, &f.API)
	if err := cmd.MarkFlagRequired("workspace"); err != nil {
		panic(err)
	}
	return cmd
}

func createStopCommand(c command, f *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a workspace's backend service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(*f)
		},
	}
	cmd.Flags().StringVar(&f.Workspace, "workspace", "", "workspace id (required)")
	addAPIFlags(cmd, &f.API)
	if err := cmd.MarkFlagRequired("workspace"); err != nil {
		panic(err)
	}
	return cmd
}

func createStopAllCommand(c command, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every recorded instance and sweep orphans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.StopAll(*f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createStatusCommand(c command, f *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show instance status (one workspace or all)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(*f)
		},
	}
	cmd.Flags().StringVar(&f.Workspace, "workspace", "", "workspace id (empty: all)")
	addAPIFlags(cmd, &f.API)
	return cmd
}

func createLogsCommand(c command, f *LogsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the tail of a workspace's service log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Logs(*f)
		},
	}
	cmd.Flags().StringVar(&f.Workspace, "workspace", "", "workspace id (required)")
	cmd.Flags().Int64Var(&f.TailBytes, "tail", 0, "max bytes to return (0: default)")
	addAPIFlags(cmd, &f.API)
	if err := cmd.MarkFlagRequired("workspace"); err != nil {
		panic(err)
	}
	return cmd
}

func createProcessesCommand(c command, f *ProcessesFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "processes",
		Short: "List live service processes matching the identity signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Processes(*f)
		},
	}
	cmd.Flags().BoolVar(&f.Kill, "kill", false, "force-kill every match (disaster recovery)")
	addAPIFlags(cmd, &f.API)
	return cmd
}

func createReconcileCommand(c command, f *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Heal stale locks and PID records on the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Reconcile(*f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createAutoStartCommand(c command, f *AutoStartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Kick off a background start if the service is not healthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.AutoStart(*f)
		},
	}
	cmd.Flags().StringVar(&f.Workspace, "workspace", "", "workspace id (required)")
	addAPIFlags(cmd, &f.API)
	if err := cmd.MarkFlagRequired("workspace"); err != nil {
		panic(err)
	}
	return cmd
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.URL, "api-url", "", "daemon URL (default http://127.0.0.1:8611)")
	cmd.Flags().DurationVar(&f.Timeout, "api-timeout", 10*time.Second, "request timeout")
}
