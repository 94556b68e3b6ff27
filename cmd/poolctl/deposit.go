package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yieldsplit/internal/config"
)

func runDeposit(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	holder, _ := cmd.Flags().GetString("holder")
	if holder == "" {
		return fmt.Errorf("holder is required")
	}
	rawAmount, _ := cmd.Flags().GetString("amount")
	if rawAmount == "" {
		return fmt.Errorf("amount is required")
	}
	amount, err := parseBig(rawAmount)
	if err != nil {
		return fmt.Errorf("parse amount: %w", err)
	}
	yieldBearing, _ := cmd.Flags().GetBool("yield-bearing")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := openPool(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer h.close()

	deposit := h.engine.DepositBacking
	if yieldBearing {
		deposit = h.engine.DepositYieldBearing
	}
	receipt, err := deposit(ctx, holder, amount)
	if err != nil {
		return err
	}

	if err := h.persist(ctx, receipt); err != nil {
		return err
	}

	logger.Info("deposit complete",
		zap.String("pool", cfg.PoolName),
		zap.String("holder", holder),
		zap.String("shares_minted", receipt.SharesMinted.String()),
		zap.String("fee", receipt.Fee.String()),
	)
	return nil
}
