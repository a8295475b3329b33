// Command fontserve runs a collaborative font-editing session server: an
// HTTP front end upgrading to websocket connections, each bound to one
// fonthandler.Connection against a single shared fonthandler.Handler.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fontserve/fontserve/cmd/fontserve/commands"
	"github.com/fontserve/fontserve/logging"
)

var rootCmd = &cobra.Command{
	Use:   "fontserve",
	Short: "fontserve - collaborative font-editing session server",
	Long: `fontserve hosts one FontHandler session per backend: an in-memory
cache, subscription/broadcast engine, coalescing write scheduler, and
external-change reconciler, exposed to clients over websocket.

Available commands:
  serve    - Start the collaborative editing server
  version  - Show build information`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logging.Initialize(jsonLogs); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json-logs", false, "emit structured JSON logs instead of console output")
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
