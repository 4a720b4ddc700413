package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"genestore/internal/errors"
	"genestore/internal/model"
)

var sequenceFile string

var sequenceCmd = &cobra.Command{
	Use:   "sequence",
	Short: "Read and store sequences by md5",
}

var sequenceGetCmd = &cobra.Command{
	Use:   "get <md5[start:end]>",
	Short: "Print a sequence, or a slice of it",
	Args:  cobra.ExactArgs(1),
	RunE:  runSequenceGet,
}

var sequencePutCmd = &cobra.Command{
	Use:   "put [sequence]",
	Short: "Store a sequence and print its md5",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSequencePut,
}

func init() {
	sequencePutCmd.Flags().StringVar(&sequenceFile, "file", "", "Read the sequence from a file (- for stdin)")

	sequenceCmd.AddCommand(sequenceGetCmd, sequencePutCmd)
	rootCmd.AddCommand(sequenceCmd)
}

func runSequenceGet(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		exists, err := a.sequences.Exists(ctx, args[0])
		if err != nil {
			return err
		}
		if !exists {
			return errors.NotFound("sequence", args[0])
		}
		seq, err := a.sequences.Get(ctx, args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), seq)
		return err
	})
}

func runSequencePut(cmd *cobra.Command, args []string) error {
	var seq string
	switch {
	case len(args) == 1:
		seq = args[0]
	case sequenceFile != "":
		data, err := readInput(cmd, sequenceFile)
		if err != nil {
			return err
		}
		seq = string(data)
	default:
		return fmt.Errorf("give a sequence argument or --file")
	}
	seq = strings.Join(strings.Fields(seq), "")

	return withApp(func(ctx context.Context, a *app) error {
		hash := model.MD5Hex(seq)
		if err := a.sequences.Write(ctx, hash, seq); err != nil {
			return err
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), hash)
		return err
	})
}
