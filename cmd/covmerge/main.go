// Package main provides the entry point for the covmerge CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/covmerge/covmerge/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "covmerge",
		Short: "Coverage report assembly and session merging",
		Long: `Covmerge assembles raw coverage uploads into a cumulative report.

Commands:
  process   Merge a raw upload envelope into the report of a commit`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(os.Stdout, version.String())
		},
	}
}
