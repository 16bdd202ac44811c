package staking

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stakeVault/internal/identity"
)

// Ledger moves the main asset and receipt tokens on behalf of a pool.
type Ledger interface {
	BalanceOf(ctx context.Context, token, owner common.Address) (uint64, error)
	Transfer(ctx context.Context, token, from, to common.Address, amount uint64) error
	TransferWithAuthority(ctx context.Context, auth identity.Authority, token, from, to common.Address, amount uint64) error
	Mint(ctx context.Context, auth identity.Authority, token, to common.Address, amount uint64) error
	Burn(ctx context.Context, auth identity.Authority, token, from common.Address, amount uint64) error
}

// StakeResult is the audit record of a completed stake.
type StakeResult struct {
	Index   int
	Receipt common.Address
	Amount  uint64
	Fee     uint64
	Net     uint64
	Supply  uint64
}

// UnstakeResult is the audit record of a completed unstake.
type UnstakeResult struct {
	Index    int
	Receipt  common.Address
	LPAmount uint64
	Redeem   uint64
	Supply   uint64
}

func checkAuthority(p *Pool, auth identity.Authority) error {
	if auth.Pool != p.Address || !auth.Valid() {
		return errorf(Unauthorized, "authority not scoped to pool %s", p.Address.Hex())
	}
	return nil
}

// Stake deposits amount of the main asset into the vault and mints the net
// of fees as receipts of the class at index. The fee stays in the vault.
//
// On error the pool is unchanged, but ledger effects already applied must be
// rolled back by the caller's transaction.
func Stake(ctx context.Context, p *Pool, ledger Ledger, auth identity.Authority, depositor common.Address, index int, amount uint64) (StakeResult, error) {
	if amount == 0 {
		return StakeResult{}, errorf(InvalidAmount, "stake amount must be positive")
	}
	if err := checkAuthority(p, auth); err != nil {
		return StakeResult{}, err
	}
	class, err := p.GetMut(index)
	if err != nil {
		return StakeResult{}, err
	}

	fee, net, err := ComputeFee(amount, p.FeeNumerator, p.FeeDenominator)
	if err != nil {
		return StakeResult{}, err
	}
	supply, err := checkedAdd(class.Supply, net)
	if err != nil {
		return StakeResult{}, err
	}

	if err := ledger.Transfer(ctx, p.Mint, depositor, p.Vault, amount); err != nil {
		return StakeResult{}, fmt.Errorf("deposit to vault: %w", err)
	}
	if net > 0 {
		if err := ledger.Mint(ctx, auth, class.Receipt, depositor, net); err != nil {
			return StakeResult{}, fmt.Errorf("mint receipts: %w", err)
		}
	}

	class.Supply = supply
	return StakeResult{
		Index:   index,
		Receipt: class.Receipt,
		Amount:  amount,
		Fee:     fee,
		Net:     net,
		Supply:  supply,
	}, nil
}

// Unstake burns lpAmount receipts of the class at index from owner and pays
// out the weighted share of the vault.
//
// On error the pool is unchanged, but ledger effects already applied must be
// rolled back by the caller's transaction.
func Unstake(ctx context.Context, p *Pool, ledger Ledger, auth identity.Authority, owner common.Address, index int, lpAmount uint64) (UnstakeResult, error) {
	if lpAmount == 0 {
		return UnstakeResult{}, errorf(InvalidAmount, "unstake amount must be positive")
	}
	if err := checkAuthority(p, auth); err != nil {
		return UnstakeResult{}, err
	}
	class, err := p.GetMut(index)
	if err != nil {
		return UnstakeResult{}, err
	}
	if lpAmount > class.Supply {
		return UnstakeResult{}, errorf(InsufficientSupply, "burn %d exceeds class supply %d", lpAmount, class.Supply)
	}

	vault, err := ledger.BalanceOf(ctx, p.Mint, p.Vault)
	if err != nil {
		return UnstakeResult{}, fmt.Errorf("vault balance: %w", err)
	}
	redeem, err := ComputeRedeem(p, index, lpAmount, vault)
	if err != nil {
		return UnstakeResult{}, err
	}
	if redeem > vault {
		return UnstakeResult{}, errorf(InsufficientLiquidity, "redeem %d exceeds vault %d", redeem, vault)
	}
	supply, err := checkedSub(class.Supply, lpAmount)
	if err != nil {
		return UnstakeResult{}, err
	}

	if err := ledger.Burn(ctx, auth, class.Receipt, owner, lpAmount); err != nil {
		return UnstakeResult{}, fmt.Errorf("burn receipts: %w", err)
	}
	if redeem > 0 {
		if err := ledger.TransferWithAuthority(ctx, auth, p.Mint, p.Vault, owner, redeem); err != nil {
			return UnstakeResult{}, fmt.Errorf("pay out from vault: %w", err)
		}
	}

	class.Supply = supply
	return UnstakeResult{
		Index:    index,
		Receipt:  class.Receipt,
		LPAmount: lpAmount,
		Redeem:   redeem,
		Supply:   supply,
	}, nil
}
