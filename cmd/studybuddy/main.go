// Command studybuddy runs the study buddy matching service and its admin tools.
//
//	studybuddy serve                         # HTTP API
//	studybuddy migrate up|down|status        # schema management
//	studybuddy candidates <student-id>       # candidate search, JSON to stdout
//	studybuddy score <student-id> <peer-id>  # pair score, JSON to stdout
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "studybuddy",
	Short:         "Study buddy matching service",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.AddCommand(scoreCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
