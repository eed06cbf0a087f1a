package cmd

import (
	"github.com/spf13/cobra"

	"github.com/netbirdio/wgpeer/version"
)

var (
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "prints wgpeer version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.SetOut(cmd.OutOrStdout())
			cmd.Println(version.Version())
		},
	}
)
