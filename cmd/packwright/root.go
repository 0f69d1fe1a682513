package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "packwright",
	Short: "A content-addressed package manager client for Hex-style registries",
	Long: `packwright resolves a project's dependencies against a signed
registry feed, fetches and verifies the matching tarballs, and
writes a deterministic lockfile.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(
		versionCmd,
		installCmd,
		registryCmd,
	)
}
