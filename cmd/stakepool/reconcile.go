package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakeVault/internal/chain"
	"stakeVault/internal/config"
	"stakeVault/internal/report"
	"stakeVault/internal/staking"
)

type reconcileResult struct {
	Pool        string `json:"pool"`
	Vault       string `json:"vault"`
	Block       uint64 `json:"block"`
	Recorded    string `json:"recorded_balance"`
	OnChain     string `json:"onchain_balance"`
	Delta       string `json:"delta"`
	Redeemable  string `json:"redeemable_total"`
	Solvent     bool   `json:"solvent"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	TokenDigits uint8  `json:"decimals"`
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReconcile(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snapshots, err := loadSnapshots(ctx, cfg.Store, cfg.PoolFile, cfg.Pools)
	if err != nil {
		return err
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer client.Close()

	block := cfg.Block
	if block == 0 {
		block, err = client.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("latest block: %w", err)
		}
	}
	blockNumber := new(big.Int).SetUint64(block)

	encoder := json.NewEncoder(cmd.OutOrStdout())
	for _, snapshot := range snapshots {
		p := snapshot.Pool
		decimals, err := chain.TokenDecimals(ctx, client, p.Mint)
		if err != nil {
			return fmt.Errorf("decimals %s: %w", p.Mint.Hex(), err)
		}
		onChain, err := chain.TokenBalance(ctx, client, p.Mint, p.Vault, blockNumber)
		if err != nil {
			return fmt.Errorf("vault balance %s: %w", p.Vault.Hex(), err)
		}
		quotes, err := staking.Quote(p, snapshot.VaultBalance)
		if err != nil {
			return fmt.Errorf("quote %s: %w", p.Address.Hex(), err)
		}

		recorded := new(big.Int).SetUint64(snapshot.VaultBalance)
		redeemable := new(big.Int)
		for _, q := range quotes {
			redeemable.Add(redeemable, new(big.Int).SetUint64(q.Redeem))
		}
		delta := new(big.Int).Sub(onChain, recorded)

		result := reconcileResult{
			Pool:        p.Address.Hex(),
			Vault:       p.Vault.Hex(),
			Block:       block,
			Recorded:    report.FormatAmount(recorded, decimals),
			OnChain:     report.FormatAmount(onChain, decimals),
			Delta:       report.FormatAmount(delta, decimals),
			Redeemable:  report.FormatAmount(redeemable, decimals),
			Solvent:     onChain.Cmp(redeemable) >= 0,
			UpdatedAt:   snapshot.UpdatedAt,
			TokenDigits: decimals,
		}
		if delta.Sign() != 0 {
			logger.Warn("vault balance mismatch",
				zap.String("pool", result.Pool),
				zap.String("recorded", recorded.String()),
				zap.String("onchain", onChain.String()),
			)
		}
		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	return nil
}
