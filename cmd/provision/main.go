// provision sets up the chat history schema on a Lakebase instance and grants the chat
// app's service principal access to it. Each step mints its own short-lived credential.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "provision",
		Short: "Provision the chat schema and app grants on a Lakebase instance",
		Long: `Create the chat history tables (only when none of them exist yet) and grant
the app's service principal USAGE on the public schema plus SELECT, INSERT,
UPDATE and DELETE on each table. Settings come from the environment or .env
(LAKEBASE_*); flags override them. Running with no subcommand is "all".`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAll(cmd, opts)
		},
	}
	opts.bind(root)

	root.AddCommand(
		&cobra.Command{
			Use:   "all",
			Short: "Create the schema if absent, then grant app access",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return runAll(cmd, opts) },
		},
		&cobra.Command{
			Use:   "schema",
			Short: "Create the chat tables if none exist",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return runSchema(cmd, opts) },
		},
		&cobra.Command{
			Use:   "grants",
			Short: "Grant the app's service principal access to the chat tables",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return runGrants(cmd, opts) },
		},
		&cobra.Command{
			Use:   "check",
			Short: "Connect with a fresh credential and report server version and existing tables",
			Args:  cobra.NoArgs,
			RunE:  func(cmd *cobra.Command, _ []string) error { return runCheck(cmd, opts) },
		},
	)
	return root
}
