package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/loykin/agentctl/internal/config"
	"github.com/loykin/agentctl/internal/logger"
	"github.com/loykin/agentctl/internal/manager"
)

// ConfigEnv names the environment variable consulted when --config is absent.
const ConfigEnv = "AGENTCTL_CONFIG"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, in io.Reader, out, errOut io.Writer) int {
	root := buildRoot(in, out, errOut)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintf(errOut, "%s %v\n", color.RedString("✗"), err)
		if strings.HasPrefix(err.Error(), "unknown command") {
			_, _ = fmt.Fprint(errOut, root.UsageString())
		}
		return 1
	}
	return 0
}

// buildRoot creates the root command and its subcommands.
func buildRoot(in io.Reader, out, errOut io.Writer) *cobra.Command {
	g := &GlobalFlags{}
	c := &command{g: g, in: in, out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "agentctl",
		Short: "Supervise long-running agent scripts",
		Long: `agentctl starts, stops and monitors a fleet of long-running agent scripts
declared in agent_config.yaml. Without a subcommand it opens the interactive menu.

Examples:
  agentctl status
  agentctl start all
  agentctl logs pulse 100
  agentctl serve --watch
  agentctl status --api-url=http://host:8000   # Remote status`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Menu(cmd.Context())
		},
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.PersistentFlags().StringVar(&g.ConfigPath, "config", "", "path to the agent configuration file (env "+ConfigEnv+", default "+config.DefaultFile+")")
	root.PersistentFlags().BoolVarP(&g.Yes, "yes", "y", false, "confirm agent warnings without prompting")
	root.PersistentFlags().StringVar(&g.LogLevel, "log-level", "warn", "supervisor log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.APIUrl, "api-url", "", "control a remote agentctl server (e.g. http://host:8000)")
	root.PersistentFlags().DurationVar(&g.APITimeout, "api-timeout", 2*time.Minute, "remote request timeout")

	root.AddCommand(
		createStatusCommand(c),
		createStartCommand(c),
		createStopCommand(c),
		createRestartCommand(c),
		createLogsCommand(c),
		createEnableCommand(c, true),
		createEnableCommand(c, false),
		createHistoryCommand(c),
		createServeCommand(c),
		createMenuCommand(c),
	)
	return root
}

func createStatusCommand(c *command) *cobra.Command {
	f := &StatusFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of every agent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Status(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.JSON, "json", false, "print JSON instead of a table")
	return cmd
}

func createStartCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "start <name|all>",
		Short: "Start one agent, or every enabled agent with \"all\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(cmd.Context(), args[0])
		},
	}
}

func createStopCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <name|all>",
		Short: "Stop one agent, or every running agent with \"all\"",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(cmd.Context(), args[0])
		},
	}
}

func createRestartCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <name>",
		Short: "Stop then start an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Restart(cmd.Context(), args[0])
		},
	}
}

func createLogsCommand(c *command) *cobra.Command {
	f := &LogsFlags{}
	cmd := &cobra.Command{
		Use:   "logs <name> [lines]",
		Short: "Print the last lines of an agent's log",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := f.Lines
			if len(args) == 2 {
				v, err := parsePositive(args[1])
				if err != nil {
					return err
				}
				n = v
			}
			return c.Logs(cmd.Context(), args[0], n)
		},
	}
	cmd.Flags().IntVarP(&f.Lines, "lines", "n", manager.DefaultLogLines, "number of lines")
	return cmd
}

func createEnableCommand(c *command, enable bool) *cobra.Command {
	use, short := "enable <name>", "Mark an agent enabled in the configuration file"
	if !enable {
		use, short = "disable <name>", "Mark an agent disabled in the configuration file"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SetEnabled(args[0], enable)
		},
	}
}

func createHistoryCommand(c *command) *cobra.Command {
	f := &HistoryFlags{}
	cmd := &cobra.Command{
		Use:   "history <name>",
		Short: "Show recent lifecycle events of an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.History(cmd.Context(), args[0], f.Limit)
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "maximum number of events")
	return cmd
}

func createServeCommand(c *command) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API",
		Long: `Run the HTTP control API and Prometheus endpoint until interrupted.

Examples:
  agentctl serve                         # listen on settings.listen
  agentctl serve --listen :9000 --watch  # reload when the file changes
  agentctl serve --logfile logs/agentctl.log`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.Level = logger.LevelInfo
			if cmd.Flags().Changed("log-level") {
				f.Level = c.g.LogLevel
			}
			return c.Serve(cmd.Context(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Listen, "listen", "", "listen address (default settings.listen)")
	cmd.Flags().StringVar(&f.BasePath, "base-path", "", "mount the API under this path prefix")
	cmd.Flags().BoolVar(&f.Watch, "watch", false, "reload the configuration when the file changes")
	cmd.Flags().StringVar(&f.LogFile, "logfile", "", "write supervisor logs to a rotated file")
	cmd.Flags().StringVar(&f.LogFormat, "log-format", "text", "log format (text, json)")
	return cmd
}

func createMenuCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Open the interactive menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Menu(cmd.Context())
		},
	}
}

var errInvalidCount = errors.New("line count must be a positive integer")
