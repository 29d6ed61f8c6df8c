// Package cli implements the restspy command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Persistent flags available to all subcommands
	logLevel   string
	logFormat  string
	jsonOutput bool

	// Version is injected during build
	Version = "dev"
	// Commit is injected during build
	Commit = "none"
	// BuildDate is injected during build
	BuildDate = "unknown"
)

// rootPort backs the root-level -p shorthand. "restspy -p 4545" is the
// exact invocation a LocalServer uses to spawn its child, so the root
// command has to serve when a port is given.
var rootPort int

var rootCmd = &cobra.Command{
	Use:   "restspy",
	Short: "restspy is a programmable test-double server",
	Long: `restspy serves canned HTTP responses (doubles), forwards unmatched
traffic to real backends (proxies), and records everything it handled
so tests can assert on the requests that actually arrived.

Doubles and proxies are registered over a REST control API while the
server runs, or preloaded from YAML files.`,
	SilenceUsage:  true,
	SilenceErrors: true, // errors are printed once, in Execute
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("port") {
			return cmd.Help()
		}
		f := defaultServeFlags()
		f.port = rootPort
		return runServe(f, changedSet("port"))
	},
}

// Execute runs the CLI. Called once, from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output command results in JSON format")

	rootCmd.Flags().IntVarP(&rootPort, "port", "p", 0, "Serve on this port (shorthand for 'restspy serve -p')")
}

// changedSet builds a lookup for flags that were explicitly given,
// used where no cobra flag set is at hand.
func changedSet(names ...string) func(string) bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}
