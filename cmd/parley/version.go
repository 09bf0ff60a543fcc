package main

import (
	"fmt"

	"github.com/aretw0/parley"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Parley",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("parley %s\n", parley.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
