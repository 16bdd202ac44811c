package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"stakeVault/internal/model"
	"stakeVault/internal/staking"
)

// ErrAuditConflict reports an audit record whose sequence number is already
// stored.
var ErrAuditConflict = errors.New("audit sequence already stored")

// AuditSink receives audit records of committed pool operations.
type AuditSink interface {
	PutAuditBatch(ctx context.Context, records []model.AuditRecord) error
}

// SeqSource reports the highest audit sequence number an AuditSink already
// holds, so a new run can continue the sequence.
type SeqSource interface {
	LastAuditSeq(ctx context.Context) (uint64, error)
}

// Snapshot is a persisted pool record plus the vault balance it was saved with.
type Snapshot struct {
	Pool         *staking.Pool
	VaultBalance uint64
	UpdatedAt    string
}

// PoolStore persists pool records.
type PoolStore interface {
	SavePool(ctx context.Context, pool *staking.Pool, vaultBalance uint64) error
	LoadPool(ctx context.Context, address common.Address) (Snapshot, bool, error)
}

// View converts a pool into its JSON form.
func View(p *staking.Pool, vaultBalance uint64) model.PoolView {
	classes := make([]model.ClassView, 0, p.ClassCount)
	for i, class := range p.Live() {
		classes = append(classes, model.ClassView{
			Index:   i,
			Receipt: class.Receipt.Hex(),
			Supply:  class.Supply,
			Weight:  class.Weight,
		})
	}
	return model.PoolView{
		Address:         p.Address.Hex(),
		Admin:           p.Admin.Hex(),
		Vault:           p.Vault.Hex(),
		Mint:            p.Mint.Hex(),
		FeeNumerator:    p.FeeNumerator,
		FeeDenominator:  p.FeeDenominator,
		ClassCount:      p.ClassCount,
		CreationCounter: p.CreationCounter,
		VaultBalance:    vaultBalance,
		Classes:         classes,
	}
}
