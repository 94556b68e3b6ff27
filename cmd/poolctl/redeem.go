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

func runRedeem(cmd *cobra.Command, _ []string) error {
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
	rawPrincipals, _ := cmd.Flags().GetString("principals")
	principals, err := parseBig(rawPrincipals)
	if err != nil {
		return fmt.Errorf("parse principals: %w", err)
	}
	rawYields, _ := cmd.Flags().GetString("yields")
	yields, err := parseBig(rawYields)
	if err != nil {
		return fmt.Errorf("parse yields: %w", err)
	}
	toBacking, _ := cmd.Flags().GetBool("to-backing")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := openPool(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer h.close()

	redeem := h.engine.Redeem
	if toBacking {
		redeem = h.engine.RedeemToBacking
	}
	receipt, err := redeem(ctx, holder, principals, yields)
	if err != nil {
		return err
	}

	if err := h.persist(ctx, receipt); err != nil {
		return err
	}

	logger.Info("redeem complete",
		zap.String("pool", cfg.PoolName),
		zap.String("holder", holder),
		zap.String("amount_out", receipt.AmountOut.String()),
		zap.String("asset_out", string(receipt.AssetOut)),
		zap.String("fee", receipt.Fee.String()),
		zap.Bool("matured", receipt.Matured),
	)
	return nil
}
