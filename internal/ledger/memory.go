package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"stakeVault/internal/identity"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnauthorized        = errors.New("authority not permitted")
	ErrUnknownToken        = errors.New("unknown token")
	ErrBalanceOverflow     = errors.New("balance overflow")
	ErrTxDone              = errors.New("ledger transaction already finished")
	ErrAlreadyRegistered   = errors.New("account already registered")
)

// Op names a ledger operation for fault injection.
type Op string

const (
	OpTransfer              Op = "transfer"
	OpTransferWithAuthority Op = "transfer_with_authority"
	OpMint                  Op = "mint"
	OpBurn                  Op = "burn"
)

// Memory is an in-process asset ledger. Every mutation goes through a Tx so
// that a failed pool operation can be rolled back as one unit.
type Memory struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]uint64
	supply   map[common.Address]uint64
	mintAuth map[common.Address]common.Address
	vaults   map[common.Address]identity.Authority
	faults   map[Op]error
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[common.Address]map[common.Address]uint64),
		supply:   make(map[common.Address]uint64),
		mintAuth: make(map[common.Address]common.Address),
		vaults:   make(map[common.Address]identity.Authority),
		faults:   make(map[Op]error),
	}
}

// Credit adds amount of token to owner outside of any pool, e.g. to fund a
// depositor.
func (m *Memory) Credit(token, owner common.Address, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	supply := m.supply[token] + amount
	if supply < m.supply[token] {
		return fmt.Errorf("credit %s: %w", owner.Hex(), ErrBalanceOverflow)
	}
	if err := m.credit(token, owner, amount); err != nil {
		return err
	}
	m.supply[token] = supply
	return nil
}

// BalanceOf returns the committed balance of owner in token.
func (m *Memory) BalanceOf(_ context.Context, token, owner common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[token][owner], nil
}

// Supply returns the committed plus reserved supply of token.
func (m *Memory) Supply(token common.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supply[token]
}

// FailOn makes the next call of op fail with err.
func (m *Memory) FailOn(op Op, err error) {
	m.mu.Lock()
	m.faults[op] = err
	m.mu.Unlock()
}

// Begin opens a transaction.
func (m *Memory) Begin(_ context.Context) (*Tx, error) {
	return &Tx{
		m:        m,
		staged:   make(map[account]uint64),
		reserved: make(map[account]uint64),
		minted:   make(map[common.Address]uint64),
		burned:   make(map[common.Address]uint64),
	}, nil
}

func (m *Memory) fault(op Op) error {
	err, ok := m.faults[op]
	if !ok {
		return nil
	}
	delete(m.faults, op)
	return err
}

func (m *Memory) credit(token, owner common.Address, amount uint64) error {
	accounts := m.balances[token]
	if accounts == nil {
		accounts = make(map[common.Address]uint64)
		m.balances[token] = accounts
	}
	next := accounts[owner] + amount
	if next < accounts[owner] {
		return fmt.Errorf("credit %s: %w", owner.Hex(), ErrBalanceOverflow)
	}
	accounts[owner] = next
	return nil
}

type account struct {
	token common.Address
	owner common.Address
}

// Tx is a ledger transaction.
//
// Debits take effect on committed balances immediately, so no other
// transaction can spend the same funds. Credits are staged and only become
// visible to others at Commit, so no other transaction can spend funds a
// Rollback would take back. Supply is reserved at mint time and released at
// burn commit; every balance is bounded by its token supply, so applying
// staged credits or returning reserved debits cannot overflow.
type Tx struct {
	m        *Memory
	staged   map[account]uint64
	reserved map[account]uint64
	minted   map[common.Address]uint64
	burned   map[common.Address]uint64
	undo     []func()
	done     bool
}

func (tx *Tx) begin(op Op) error {
	if tx.done {
		return ErrTxDone
	}
	if op == "" {
		return nil
	}
	return tx.m.fault(op)
}

// BalanceOf returns the committed balance plus credits staged by this
// transaction.
func (tx *Tx) BalanceOf(_ context.Context, token, owner common.Address) (uint64, error) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if tx.done {
		return 0, ErrTxDone
	}
	return tx.m.balances[token][owner] + tx.staged[account{token, owner}], nil
}

// OpenVault registers vault as an account only auth can move funds out of.
func (tx *Tx) OpenVault(vault common.Address, auth identity.Authority) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if err := tx.begin(""); err != nil {
		return err
	}
	if _, ok := tx.m.vaults[vault]; ok {
		return fmt.Errorf("vault %s: %w", vault.Hex(), ErrAlreadyRegistered)
	}
	tx.m.vaults[vault] = auth
	tx.undo = append(tx.undo, func() { delete(tx.m.vaults, vault) })
	return nil
}

// CreateToken registers a receipt token mintable only by auth.
func (tx *Tx) CreateToken(token common.Address, auth identity.Authority) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if err := tx.begin(""); err != nil {
		return err
	}
	if _, ok := tx.m.mintAuth[token]; ok {
		return fmt.Errorf("token %s: %w", token.Hex(), ErrAlreadyRegistered)
	}
	tx.m.mintAuth[token] = auth.Address
	tx.undo = append(tx.undo, func() { delete(tx.m.mintAuth, token) })
	return nil
}

func (tx *Tx) Transfer(_ context.Context, token, from, to common.Address, amount uint64) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if err := tx.begin(OpTransfer); err != nil {
		return err
	}
	if _, ok := tx.m.vaults[from]; ok {
		return fmt.Errorf("transfer out of vault %s: %w", from.Hex(), ErrUnauthorized)
	}
	return tx.move(token, from, to, amount)
}

func (tx *Tx) TransferWithAuthority(_ context.Context, auth identity.Authority, token, from, to common.Address, amount uint64) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if err := tx.begin(OpTransferWithAuthority); err != nil {
		return err
	}
	owner, ok := tx.m.vaults[from]
	if !ok || owner != auth || !auth.Valid() {
		return fmt.Errorf("transfer out of %s: %w", from.Hex(), ErrUnauthorized)
	}
	return tx.move(token, from, to, amount)
}

func (tx *Tx) Mint(_ context.Context, auth identity.Authority, token, to common.Address, amount uint64) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if err := tx.begin(OpMint); err != nil {
		return err
	}
	if err := tx.checkMintAuthority(auth, token); err != nil {
		return err
	}
	supply := tx.m.supply[token] + amount
	if supply < tx.m.supply[token] {
		return fmt.Errorf("mint %s: %w", token.Hex(), ErrBalanceOverflow)
	}
	tx.m.supply[token] = supply
	tx.minted[token] += amount
	tx.staged[account{token, to}] += amount
	return nil
}

func (tx *Tx) Burn(_ context.Context, auth identity.Authority, token, from common.Address, amount uint64) error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if err := tx.begin(OpBurn); err != nil {
		return err
	}
	if err := tx.checkMintAuthority(auth, token); err != nil {
		return err
	}
	if err := tx.debit(token, from, amount); err != nil {
		return err
	}
	tx.burned[token] += amount
	return nil
}

// Commit publishes staged credits and releases burned supply. A failed
// Commit leaves the transaction open for Rollback.
func (tx *Tx) Commit() error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if tx.done {
		return ErrTxDone
	}
	for acct, amount := range tx.staged {
		have := tx.m.balances[acct.token][acct.owner]
		if have+amount < have {
			return fmt.Errorf("commit credit %s: %w", acct.owner.Hex(), ErrBalanceOverflow)
		}
	}
	for token, amount := range tx.burned {
		if tx.m.supply[token] < amount {
			return fmt.Errorf("commit burn %s: supply %d below %d: %w", token.Hex(), tx.m.supply[token], amount, ErrInsufficientBalance)
		}
	}

	for acct, amount := range tx.staged {
		if err := tx.m.credit(acct.token, acct.owner, amount); err != nil {
			return err
		}
	}
	for token, amount := range tx.burned {
		tx.m.supply[token] -= amount
	}
	tx.finish()
	return nil
}

// Rollback returns reserved debits, releases minted supply and unregisters
// accounts opened by the transaction. Rolling back a finished transaction
// is a no-op.
func (tx *Tx) Rollback() error {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()
	if tx.done {
		return nil
	}

	var errs []error
	for acct, amount := range tx.reserved {
		if err := tx.m.credit(acct.token, acct.owner, amount); err != nil {
			errs = append(errs, fmt.Errorf("return %d %s to %s: %w", amount, acct.token.Hex(), acct.owner.Hex(), err))
		}
	}
	for token, amount := range tx.minted {
		if tx.m.supply[token] < amount {
			errs = append(errs, fmt.Errorf("release %d %s: supply %d: %w", amount, token.Hex(), tx.m.supply[token], ErrInsufficientBalance))
			continue
		}
		tx.m.supply[token] -= amount
	}
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.finish()
	return errors.Join(errs...)
}

func (tx *Tx) finish() {
	tx.done = true
	tx.staged = nil
	tx.reserved = nil
	tx.minted = nil
	tx.burned = nil
	tx.undo = nil
}

func (tx *Tx) checkMintAuthority(auth identity.Authority, token common.Address) error {
	authority, ok := tx.m.mintAuth[token]
	if !ok {
		return fmt.Errorf("token %s: %w", token.Hex(), ErrUnknownToken)
	}
	if authority != auth.Address || !auth.Valid() {
		return fmt.Errorf("token %s: %w", token.Hex(), ErrUnauthorized)
	}
	return nil
}

// debit spends credits staged by this transaction first, then reserves the
// rest from the committed balance.
func (tx *Tx) debit(token, owner common.Address, amount uint64) error {
	acct := account{token, owner}
	fromStaged := tx.staged[acct]
	if fromStaged > amount {
		fromStaged = amount
	}
	rest := amount - fromStaged
	have := tx.m.balances[token][owner]
	if have < rest {
		return fmt.Errorf("debit %s: have %d, need %d: %w", owner.Hex(), have+tx.staged[acct], amount, ErrInsufficientBalance)
	}

	if fromStaged > 0 {
		if tx.staged[acct] == fromStaged {
			delete(tx.staged, acct)
		} else {
			tx.staged[acct] -= fromStaged
		}
	}
	if rest > 0 {
		tx.m.balances[token][owner] = have - rest
		tx.reserved[acct] += rest
	}
	return nil
}

func (tx *Tx) move(token, from, to common.Address, amount uint64) error {
	if err := tx.debit(token, from, amount); err != nil {
		return err
	}
	if amount > 0 {
		tx.staged[account{token, to}] += amount
	}
	return nil
}
