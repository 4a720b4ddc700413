package main

import (
	"context"

	"github.com/spf13/cobra"

	"genestore/internal/errors"
	"genestore/internal/model"
)

var (
	rollupSHA   string
	rollupFile  string
	rollupNotes string
)

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Read or save a project together with its blocks",
}

var rollupGetCmd = &cobra.Command{
	Use:   "get <project-id>",
	Short: "Show a project and its blocks",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollupGet,
}

var rollupSaveCmd = &cobra.Command{
	Use:   "save <project-id>",
	Short: "Write a rollup and commit it, skipping content that has not changed",
	Args:  cobra.ExactArgs(1),
	RunE:  runRollupSave,
}

func init() {
	rollupGetCmd.Flags().StringVar(&rollupSHA, "sha", "", "Read the rollup as of this save")
	rollupSaveCmd.Flags().StringVar(&rollupFile, "file", "", "Rollup JSON (- for stdin)")
	rollupSaveCmd.Flags().StringVarP(&rollupNotes, "message", "m", "", "Notes recorded with the save")

	rollupCmd.AddCommand(rollupGetCmd, rollupSaveCmd)
	rootCmd.AddCommand(rollupCmd)
}

func runRollupGet(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		r, found, err := a.store.RollupGet(ctx, args[0], rollupSHA)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFound("project", args[0])
		}
		return printResult(cmd.OutOrStdout(), r)
	})
}

func runRollupSave(cmd *cobra.Command, args []string) error {
	var r model.Rollup
	if err := readJSONInput(cmd, rollupFile, &r); err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		result, err := a.store.RollupSave(ctx, args[0], a.user(), &r, rollupNotes)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), result)
	})
}
