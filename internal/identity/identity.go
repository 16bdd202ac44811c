package identity

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var authoritySalt = crypto.Keccak256Hash([]byte("stakevault:authority"))

// DeriveReceipt returns the receipt identity for the class created when the
// pool's creation counter equals counter. It is keccak256(rlp(pool, counter)),
// the same scheme used for contract addresses, so distinct counters never
// collide.
func DeriveReceipt(pool common.Address, counter uint64) common.Address {
	return crypto.CreateAddress(pool, counter)
}

// DeriveAuthority returns the address of the signing authority scoped to pool.
func DeriveAuthority(pool common.Address) common.Address {
	return crypto.CreateAddress2(pool, authoritySalt, crypto.Keccak256(pool.Bytes()))
}

// Authority is the capability a pool holds over its own vault and receipt
// tokens. A ledger honors it only for assets registered to the same pool.
type Authority struct {
	Pool    common.Address
	Address common.Address
}

// NewAuthority builds the authority for pool.
func NewAuthority(pool common.Address) Authority {
	return Authority{Pool: pool, Address: DeriveAuthority(pool)}
}

// Valid reports whether the authority was derived for its pool.
func (a Authority) Valid() bool {
	return a.Pool != (common.Address{}) && a.Address == DeriveAuthority(a.Pool)
}
