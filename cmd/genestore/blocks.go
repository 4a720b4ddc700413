package main

import (
	"context"

	"github.com/spf13/cobra"

	"genestore/internal/errors"
	"genestore/internal/model"
	"genestore/internal/persistence"
)

var (
	blocksSHA       string
	blocksFile      string
	blocksOverwrite bool
)

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Read and write the blocks of a project",
}

var blocksGetCmd = &cobra.Command{
	Use:   "get <project-id> [block-id...]",
	Short: "Show blocks, all of them when no ids are given",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBlocksGet,
}

var blocksWriteCmd = &cobra.Command{
	Use:   "write <project-id>",
	Short: "Write blocks from a JSON map of id to block",
	Long: `Write blocks from a JSON object keyed by block id.

Blocks in the file replace blocks with the same id and the rest are kept.
With --overwrite the file becomes the complete block set.`,
	Args: cobra.ExactArgs(1),
	RunE: runBlocksWrite,
}

var blocksDeleteCmd = &cobra.Command{
	Use:   "delete <project-id> <block-id...>",
	Short: "Remove blocks from a project",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runBlocksDelete,
}

func init() {
	blocksGetCmd.Flags().StringVar(&blocksSHA, "sha", "", "Read the blocks as of this save")
	blocksWriteCmd.Flags().StringVar(&blocksFile, "file", "", "Block map JSON (- for stdin)")
	blocksWriteCmd.Flags().BoolVar(&blocksOverwrite, "overwrite", false, "Replace every block instead of merging by id")

	blocksCmd.AddCommand(blocksGetCmd, blocksWriteCmd, blocksDeleteCmd)
	rootCmd.AddCommand(blocksCmd)
}

func runBlocksGet(cmd *cobra.Command, args []string) error {
	projectID, ids := args[0], args[1:]
	return withApp(func(ctx context.Context, a *app) error {
		if len(ids) == 1 {
			blk, found, err := a.store.BlockGet(ctx, projectID, blocksSHA, ids[0])
			if err != nil {
				return err
			}
			if !found {
				return errors.NotFound("block", ids[0])
			}
			return printResult(cmd.OutOrStdout(), blk)
		}

		blocks, found, err := a.store.BlocksGet(ctx, projectID, blocksSHA, ids...)
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFound("project", projectID)
		}
		return printResult(cmd.OutOrStdout(), blocks)
	})
}

func runBlocksWrite(cmd *cobra.Command, args []string) error {
	var blocks model.BlockMap
	if err := readJSONInput(cmd, blocksFile, &blocks); err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		written, err := a.store.BlocksWrite(ctx, args[0], blocks, a.user(), persistence.WriteOptions{Overwrite: blocksOverwrite})
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), written)
	})
}

func runBlocksDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		remaining, err := a.store.BlocksDelete(ctx, args[0], args[1:]...)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), remaining)
	})
}
