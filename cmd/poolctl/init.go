package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yieldsplit/internal/config"
)

func runInit(cmd *cobra.Command, _ []string) error {
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

	if cfg.Maturity.IsZero() {
		return fmt.Errorf("maturity is required")
	}
	if !cfg.Maturity.After(time.Now()) {
		return fmt.Errorf("maturity must be in the future")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := openPool(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer h.close()

	if err := h.persist(ctx, nil); err != nil {
		return err
	}

	snap := h.engine.Snapshot()
	if h.store != nil {
		if err := h.store.InsertRateObservation(ctx, cfg.PoolName, snap.CurrentRate, snap.Halted, time.Now()); err != nil {
			return fmt.Errorf("save rate observation: %w", err)
		}
	}

	logger.Info("pool created",
		zap.String("pool", cfg.PoolName),
		zap.String("source", cfg.Source),
		zap.Time("maturity", cfg.Maturity),
		zap.String("initial_rate", snap.InitialRate.String()),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
	)
	return nil
}
