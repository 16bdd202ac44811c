package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stakeVault/internal/config"
	"stakeVault/internal/storage"
	"stakeVault/internal/storage/postgres"
)

// openStore returns the configured pool store and a close func.
func openStore(ctx context.Context, cfg config.StoreConfig) (storage.PoolStore, *postgres.Store, func(), error) {
	if cfg.PGDSN == "" {
		if cfg.PoolDir == "" {
			return nil, nil, nil, fmt.Errorf("pool dir or pg dsn is required")
		}
		return &storage.FilePoolStore{Dir: cfg.PoolDir}, nil, func() {}, nil
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN, postgres.Options{
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return store, store, store.Close, nil
}

// loadSnapshots reads a single pool file when poolFile is set, otherwise
// every listed pool from the configured store.
func loadSnapshots(ctx context.Context, cfg config.StoreConfig, poolFile string, pools []string) ([]storage.Snapshot, error) {
	if poolFile != "" {
		snapshot, err := storage.ReadPoolFile(poolFile)
		if err != nil {
			return nil, err
		}
		return []storage.Snapshot{snapshot}, nil
	}
	if len(pools) == 0 {
		return nil, fmt.Errorf("pool list or pool file is required")
	}

	store, _, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	snapshots := make([]storage.Snapshot, 0, len(pools))
	for _, raw := range pools {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid pool address: %s", raw)
		}
		address := common.HexToAddress(raw)
		snapshot, ok, err := store.LoadPool(ctx, address)
		if err != nil {
			return nil, fmt.Errorf("load pool %s: %w", address.Hex(), err)
		}
		if !ok {
			return nil, fmt.Errorf("pool %s not found", address.Hex())
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}
