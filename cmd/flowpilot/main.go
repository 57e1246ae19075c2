// Command flowpilot is the automation-platform assistant: an HTTP
// service plus offline knowledge base tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "flowpilot",
		Short: "Retrieval-backed assistant for the automation platform",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (JSON)")

	root.AddCommand(serveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(ingestCmd())
	root.AddCommand(reindexCmd())
	root.AddCommand(resyncCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
