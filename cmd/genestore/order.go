package main

import (
	"context"

	"github.com/spf13/cobra"

	"genestore/internal/errors"
	"genestore/internal/model"
)

var (
	orderFile   string
	orderRollup bool
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Place and inspect orders",
	Long: `Orders freeze a saved version of a project. Once placed an order cannot
be changed.

Examples:
  genestore order create p1 o1 --file order.json
  genestore order get p1 o1 --rollup`,
}

var orderCreateCmd = &cobra.Command{
	Use:   "create <project-id> <order-id>",
	Short: "Place an order against a saved project version",
	Args:  cobra.ExactArgs(2),
	RunE:  runOrderCreate,
}

var orderGetCmd = &cobra.Command{
	Use:   "get <project-id> <order-id>",
	Short: "Show an order (--rollup for the design it was placed against)",
	Args:  cobra.ExactArgs(2),
	RunE:  runOrderGet,
}

var orderListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "List the orders of a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runOrderList,
}

func init() {
	orderCreateCmd.Flags().StringVar(&orderFile, "file", "", "Order JSON (- for stdin)")
	orderGetCmd.Flags().BoolVar(&orderRollup, "rollup", false, "Show the rollup the order was placed against")

	orderCmd.AddCommand(orderCreateCmd, orderGetCmd, orderListCmd)
	rootCmd.AddCommand(orderCmd)
}

func runOrderCreate(cmd *cobra.Command, args []string) error {
	var order model.Order
	if err := readJSONInput(cmd, orderFile, &order); err != nil {
		return err
	}
	projectID, orderID := args[0], args[1]

	return withApp(func(ctx context.Context, a *app) error {
		if order.User == "" {
			order.User = a.user()
		}
		if order.ProjectVersion == "" {
			p, found, err := a.store.ProjectGet(ctx, projectID, "")
			if err != nil {
				return err
			}
			if !found {
				return errors.NotFound("project", projectID)
			}
			if p.Version == "" {
				return errors.Newf(errors.InvalidModel, "project %s must be saved before it is ordered", projectID)
			}
			order.ProjectVersion = p.Version
		}

		r, _, err := a.store.RollupGet(ctx, projectID, order.ProjectVersion)
		if err != nil {
			return err
		}
		created, err := a.store.OrderCreate(ctx, projectID, orderID, &order, r)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), created)
	})
}

func runOrderGet(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		var (
			doc   interface{}
			found bool
			err   error
		)
		if orderRollup {
			doc, found, err = a.store.OrderRollupGet(ctx, args[0], args[1])
		} else {
			doc, found, err = a.store.OrderGet(ctx, args[0], args[1])
		}
		if err != nil {
			return err
		}
		if !found {
			return errors.NotFound("order", args[1])
		}
		return printResult(cmd.OutOrStdout(), doc)
	})
}

func runOrderList(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app) error {
		ids, err := a.store.OrderList(ctx, args[0])
		if err != nil {
			return err
		}
		if ids == nil {
			ids = []string{}
		}
		return printResult(cmd.OutOrStdout(), ids)
	})
}
