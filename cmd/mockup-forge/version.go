package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	mockupforge "github.com/menta2k/mockup-forge"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mockup-forge %s (%s %s/%s)\n",
			mockupforge.Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
