// Command ospacegen generates the proxy types of the entity types declared in
// a metadata document.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information, set at build time.
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ospacegen",
		Short: "Proxy type generator for ospace entity types",
		Long: `ospacegen reads an entity metadata document and writes one Go source file
per entity type that needs a change-tracking or lazy-loading proxy.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
