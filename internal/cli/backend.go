package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tysttext/host/internal/daemon"
)

var (
	logsLines  int
	logsFollow bool
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Control the backend of the running host",
	Long:  "Start, stop and inspect the backend sidecar supervised by the running host.",
}

var backendStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(client *daemon.Client) error {
			msg, err := client.BackendStart()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		})
	},
}

var backendStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(client *daemon.Client) error {
			msg, err := client.BackendStop()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		})
	},
}

var backendURLCmd = &cobra.Command{
	Use:   "url",
	Short: "Print the backend address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(client *daemon.Client) error {
			url, err := client.BackendURL()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		})
	},
}

var backendStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show host and backend status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(client *daemon.Client) error {
			status, err := client.BackendStatus()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderStatus(status, isTerminal(os.Stdout)))
			return nil
		})
	},
}

var backendLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print recent backend output",
	Long:  "Print the backend output buffered by the host. With --follow, keep streaming new output until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(client *daemon.Client) error {
			lines, err := client.BackendLogs(logsLines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, l := range lines {
				fmt.Fprintln(out, formatLogLine(l))
			}
			if !logsFollow {
				return nil
			}
			return followLogs(cmd, client)
		})
	},
}

func followLogs(cmd *cobra.Command, client *daemon.Client) error {
	events, err := client.StreamEvents()
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	defer client.StopEventStream()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	out := cmd.OutOrStdout()
	for {
		select {
		case <-sigCh:
			return nil
		case result, ok := <-events:
			if !ok {
				fmt.Fprintln(cmd.ErrOrStderr(), "Connection closed")
				return nil
			}
			if result.Err != nil {
				return fmt.Errorf("receive event: %w", result.Err)
			}
			if line := formatStreamEvent(result.Event); line != "" {
				fmt.Fprintln(out, line)
			}
		}
	}
}

// withClient connects to the host, runs fn and closes the connection.
func withClient(fn func(*daemon.Client) error) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(client)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func init() {
	backendLogsCmd.Flags().IntVarP(&logsLines, "lines", "n", 0, "number of recent lines to print (0 for all buffered)")
	backendLogsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep streaming new output")

	backendCmd.AddCommand(backendStartCmd)
	backendCmd.AddCommand(backendStopCmd)
	backendCmd.AddCommand(backendURLCmd)
	backendCmd.AddCommand(backendStatusCmd)
	backendCmd.AddCommand(backendLogsCmd)
	rootCmd.AddCommand(backendCmd)
}
