package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "cveval",
	Short: "Asynchronous CV and project-report evaluation service",
	Long: `cveval scores candidate CVs and project reports against seeded
rubrics using a language model, with retrieval-grounded prompts and a
durable, pollable job pipeline.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cveval version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("cveval version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
