package host

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"stakeVault/internal/identity"
	"stakeVault/internal/ledger"
	"stakeVault/internal/staking"
)

// Ledger is the asset ledger a host commits against.
type Ledger interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (uint64, error)
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one atomic unit of ledger work.
type Tx interface {
	staking.Ledger
	OpenVault(vault common.Address, auth identity.Authority) error
	CreateToken(token common.Address, auth identity.Authority) error
	Commit() error
	Rollback() error
}

type memoryLedger struct {
	*ledger.Memory
}

// NewMemoryLedger adapts an in-process ledger to the host.
func NewMemoryLedger(m *ledger.Memory) Ledger {
	return memoryLedger{Memory: m}
}

func (m memoryLedger) Begin(ctx context.Context) (Tx, error) {
	tx, err := m.Memory.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
