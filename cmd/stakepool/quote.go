package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakeVault/internal/config"
	"stakeVault/internal/report"
	"stakeVault/internal/staking"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadQuote(cfgFile, cmd.Flags())
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

	snapshots, err := loadSnapshots(ctx, cfg.Store, cfg.PoolFile, cfg.Pools)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	for _, snapshot := range snapshots {
		quotes, err := staking.Quote(snapshot.Pool, snapshot.VaultBalance)
		if err != nil {
			return fmt.Errorf("quote %s: %w", snapshot.Pool.Address.Hex(), err)
		}
		rep, err := report.Build(snapshot.Pool, snapshot.VaultBalance, quotes, cfg.Decimals)
		if err != nil {
			return fmt.Errorf("report %s: %w", snapshot.Pool.Address.Hex(), err)
		}
		logger.Debug("pool quoted",
			zap.String("pool", rep.Pool),
			zap.Int("classes", len(rep.Classes)),
			zap.String("updated_at", snapshot.UpdatedAt),
		)
		if err := encoder.Encode(rep); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}
