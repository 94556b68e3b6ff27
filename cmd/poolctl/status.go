package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"yieldsplit/internal/config"
	"yieldsplit/internal/storage"
)

func runStatus(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := openPool(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer h.close()

	state := storage.StateFromSnapshot(cfg.PoolName, h.engine.MaturityTime(), h.engine.Snapshot(), time.Now())
	out, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runRefreshRate(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := openPool(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer h.close()

	effective, err := h.engine.RefreshRate(ctx)
	if err != nil {
		return err
	}

	if err := h.persist(ctx, nil); err != nil {
		return err
	}
	if h.store != nil {
		if err := h.store.InsertRateObservation(ctx, cfg.PoolName, effective, h.engine.Halted(), time.Now()); err != nil {
			return fmt.Errorf("save rate observation: %w", err)
		}
	}

	logger.Info("rate refreshed",
		zap.String("pool", cfg.PoolName),
		zap.String("rate", effective.String()),
		zap.Bool("halted", h.engine.Halted()),
		zap.Bool("matured", h.engine.Matured()),
	)
	return nil
}
