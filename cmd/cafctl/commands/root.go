// Package commands implements cafctl's cobra command tree: a root command
// with persistent flags plus one file per subcommand.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// peerAddr is the BASP address of the node being operated on.
	peerAddr string

	// dialTimeout bounds how long ping waits for a handshake to complete.
	dialTimeout string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "cafctl",
	Short: "Operator CLI for a cafnode process",
	Long: `cafctl is a small operator tool for a running cafnode process.

It speaks the BASP wire protocol directly to probe reachability and
handshake health of a peer node, and reports build/version information.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&peerAddr, "addr", "", "BASP address of the target node, e.g. localhost:4242",
	)
	rootCmd.PersistentFlags().StringVar(
		&dialTimeout, "timeout", "5s", "Dial/handshake timeout",
	)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pingCmd)
}
