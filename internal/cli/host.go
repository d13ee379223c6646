package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Manage the running host",
	Long:  "Commands for inspecting and closing a running tysttext host.",
}

var hostStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Close the running host",
	Long:  "Close the running host as if its window was closed. The backend is stopped first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		if err := client.Shutdown(); err != nil {
			return fmt.Errorf("shutdown host: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "Host closing")
		return nil
	},
}

var hostPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that a host is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := connect()
		if err != nil {
			return err
		}
		defer client.Close()

		resp, err := client.Ping()
		if err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "tysttext host %s (pid %d, up %s)\n", resp.Version, resp.PID, resp.Uptime)
		return nil
	},
}

func init() {
	hostCmd.AddCommand(hostStopCmd)
	hostCmd.AddCommand(hostPingCmd)
	rootCmd.AddCommand(hostCmd)
}
