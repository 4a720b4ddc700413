package main

import (
	"github.com/spf13/cobra"

	"genestore/internal/version"
)

var (
	rootDir   string
	formatArg string
	userArg   string
	verbosity int
	quiet     bool
)

var rootCmd = &cobra.Command{
	Use:   "genestore",
	Short: "genestore - versioned storage for genetic designs",
	Long: `genestore keeps genetic design projects, their blocks, orders and sequences
on disk under a storage root. Every save is committed to a per-project history
so any earlier version can be read back, diffed or restored.`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("genestore version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "Storage root directory")
	rootCmd.PersistentFlags().StringVar(&formatArg, "format", string(FormatHuman), "Output format (human, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&userArg, "user", "", "User to act as (default: auth.defaultUser)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v, -vv)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only log errors")
}
