package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// clientCmd groups the client-facing subcommands. An interactive CLI
// client against the RPC adapter is out of scope for this daemon; each
// subcommand here documents the call it would make and returns an
// error rather than pretending to perform it.
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Client-facing commands (documented, not implemented)",
}

func newClientCmd() *cobra.Command { return clientCmd }

func notImplemented(rpcMethod string) func(*cobra.Command, []string) error {
	return func(*cobra.Command, []string) error {
		return fmt.Errorf("%s is not implemented: the pipebased CLI client is out of scope for this daemon, see the %s RPC method", rpcMethod, rpcMethod)
	}
}

func init() {
	clientCmd.AddCommand(&cobra.Command{Use: "create", Short: "Create a pipe (CreatePipe)", RunE: notImplemented("CreatePipe")})
	clientCmd.AddCommand(&cobra.Command{Use: "ps", Short: "List pipe status (ListPipe)", RunE: notImplemented("ListPipe")})
	clientCmd.AddCommand(&cobra.Command{Use: "apps", Short: "List registered apps (ListApp)", RunE: notImplemented("ListApp")})
	clientCmd.AddCommand(&cobra.Command{Use: "catalogs", Short: "List registered catalogs (ListCatalogs)", RunE: notImplemented("ListCatalogs")})
	clientCmd.AddCommand(&cobra.Command{Use: "pulla", Short: "Pull an app artifact (PullApp)", RunE: notImplemented("PullApp")})
	clientCmd.AddCommand(&cobra.Command{Use: "pullc", Short: "Pull a catalogs artifact (PullCatalogs)", RunE: notImplemented("PullCatalogs")})
	clientCmd.AddCommand(&cobra.Command{Use: "rm", Short: "Remove a pipe (RemovePipe)", RunE: notImplemented("RemovePipe")})
	clientCmd.AddCommand(&cobra.Command{Use: "rma", Short: "Remove a registered app (RemoveApp)", RunE: notImplemented("RemoveApp")})
	clientCmd.AddCommand(&cobra.Command{Use: "rmc", Short: "Remove a registered catalogs bundle (RemoveCatalogs)", RunE: notImplemented("RemoveCatalogs")})
	clientCmd.AddCommand(&cobra.Command{Use: "start", Short: "Start a pipe (StartPipe)", RunE: notImplemented("StartPipe")})
	clientCmd.AddCommand(&cobra.Command{Use: "stop", Short: "Stop a pipe (StopPipe)", RunE: notImplemented("StopPipe")})
}
