package staking

import (
	"github.com/ethereum/go-ethereum/common"

	"stakeVault/internal/identity"
)

const (
	// MaxClasses is the fixed capacity of a pool's class array.
	MaxClasses = 512
	// DefaultWeight is assigned to classes added without an explicit weight.
	DefaultWeight uint64 = 100_000_000
)

// Class is one weighted receipt line within a pool.
type Class struct {
	Receipt common.Address
	Supply  uint64
	Weight  uint64
}

// Pool is the fixed-capacity class registry backed by a single vault.
//
// Only Classes[:ClassCount] are live. Removal compacts by moving the last
// live class into the vacated slot, so indices are not stable across
// RemoveClass; key cross-operation references by receipt identity.
type Pool struct {
	Address         common.Address
	Admin           common.Address
	Vault           common.Address
	Mint            common.Address
	FeeNumerator    uint64
	FeeDenominator  uint64
	ClassCount      uint32
	CreationCounter uint64
	Classes         [MaxClasses]Class
}

// NewPool creates an empty pool with a fixed fee ratio.
func NewPool(address, admin, vault, mint common.Address, feeNumerator, feeDenominator uint64) (*Pool, error) {
	if feeDenominator == 0 || feeNumerator > feeDenominator {
		return nil, errorf(InvalidFee, "%d/%d", feeNumerator, feeDenominator)
	}
	if address == (common.Address{}) || admin == (common.Address{}) || vault == (common.Address{}) || mint == (common.Address{}) {
		return nil, errorf(InvalidIdentity, "pool, admin, vault and mint must be set")
	}
	return &Pool{
		Address:        address,
		Admin:          admin,
		Vault:          vault,
		Mint:           mint,
		FeeNumerator:   feeNumerator,
		FeeDenominator: feeDenominator,
	}, nil
}

// VerifyAdmin fails unless caller is the pool's admin.
func (p *Pool) VerifyAdmin(caller common.Address) error {
	if caller != p.Admin {
		return errorf(Unauthorized, "caller %s is not pool admin", caller.Hex())
	}
	return nil
}

// FindByIdentity returns the live index holding receipt.
func (p *Pool) FindByIdentity(receipt common.Address) (int, bool) {
	for i := 0; i < int(p.ClassCount); i++ {
		if p.Classes[i].Receipt == receipt {
			return i, true
		}
	}
	return 0, false
}

// Get returns a copy of the live class at index.
func (p *Pool) Get(index int) (Class, error) {
	if index < 0 || index >= int(p.ClassCount) {
		return Class{}, errorf(InvalidIndex, "index %d, class count %d", index, p.ClassCount)
	}
	return p.Classes[index], nil
}

// GetMut returns a pointer to the live class at index.
func (p *Pool) GetMut(index int) (*Class, error) {
	if index < 0 || index >= int(p.ClassCount) {
		return nil, errorf(InvalidIndex, "index %d, class count %d", index, p.ClassCount)
	}
	return &p.Classes[index], nil
}

// Live returns the live prefix of the class array. The slice aliases the pool.
func (p *Pool) Live() []Class {
	return p.Classes[:p.ClassCount]
}

// Clone returns an independent copy of the pool.
func (p *Pool) Clone() *Pool {
	c := *p
	return &c
}

// NextReceipt derives the receipt identity the next added class should use.
// The derivation folds in CreationCounter, so identities of removed classes
// are never issued again.
func (p *Pool) NextReceipt() common.Address {
	return identity.DeriveReceipt(p.Address, p.CreationCounter)
}

// Resolve maps a receipt identity to its current index.
func (p *Pool) Resolve(receipt common.Address) (int, error) {
	index, ok := p.FindByIdentity(receipt)
	if !ok {
		return 0, errorf(NotFound, "class %s", receipt.Hex())
	}
	return index, nil
}
