package main

import (
	"context"
	"errors"
	"strconv"

	"cashback-controlplane/services/order"

	"github.com/spf13/cobra"
)

func freezeCmd() *cobra.Command {
	var q order.FreezeQuery
	var reason string

	cmd := &cobra.Command{
		Use:   "freeze",
		Short: "Freeze every active order matching the given upstream",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return errors.New("--reason is required")
			}
			return withServices(cmd, func(ctx context.Context, s services) error {
				ids, err := s.Orders.Freeze(ctx, q, reason, actorOf(cmd))
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"frozen": len(ids), "order_ids": ids})
			})
		},
	}

	cmd.Flags().StringVar(&q.MediatorCode, "mediator", "", "Mediator code")
	cmd.Flags().StringVar(&q.AgencyCode, "agency", "", "Agency code")
	cmd.Flags().StringVar(&q.BrandID, "brand", "", "Brand id")
	cmd.Flags().StringVar(&q.ShopperID, "shopper", "", "Shopper user id")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason stored on each frozen order")

	return cmd
}

func reactivateCmd() *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reactivate [order-id]",
		Short: "Lift the freeze on a single order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return err
			}
			return withServices(cmd, func(ctx context.Context, s services) error {
				o, err := s.Orders.Reactivate(ctx, id, actorOf(cmd), reason)
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Note stored on the reactivation event")

	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance [owner-id]",
		Short: "Show the wallet of a brand, agency or shopper",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, s services) error {
				w, err := s.Wallets.GetWallet(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(w)
			})
		},
	}
}

func verifyChainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-chain [owner-id]",
		Short: "Recompute the transaction hash chain of a wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, func(ctx context.Context, s services) error {
				report, err := s.Wallets.VerifyChain(ctx, args[0])
				if err != nil {
					return err
				}
				if err := printJSON(report); err != nil {
					return err
				}
				if !report.Valid || !report.BalanceMatches {
					return errors.New("wallet chain verification failed")
				}
				return nil
			})
		},
	}
}
