package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakeVault/internal/identity"
	"stakeVault/internal/model"
	"stakeVault/internal/staking"
	"stakeVault/internal/storage"
)

var (
	ErrUnknownPool = errors.New("unknown pool")
	ErrPoolExists  = errors.New("pool already exists")
)

// Options wires a Host to its collaborators. Ledger is required.
type Options struct {
	Ledger Ledger
	Audit  storage.AuditSink
	Store  storage.PoolStore
	Logger *zap.Logger
	Now    func() time.Time

	// StartSeq is the last audit sequence number already written by the
	// sink; new records continue after it.
	StartSeq uint64
}

// Host runs pool operations atomically. Operations on one pool serialize on
// that pool's lock; different pools proceed in parallel. A failed operation
// leaves both the pool and the ledger as they were.
type Host struct {
	ledger Ledger
	audit  storage.AuditSink
	store  storage.PoolStore
	logger *zap.Logger
	now    func() time.Time
	seq    atomic.Uint64

	mu       sync.RWMutex
	pools    map[common.Address]*entry
	creating map[common.Address]struct{}
}

type entry struct {
	mu   sync.Mutex
	pool *staking.Pool
	auth identity.Authority
}

func New(opts Options) (*Host, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &Host{
		ledger:   opts.Ledger,
		audit:    opts.Audit,
		store:    opts.Store,
		logger:   opts.Logger,
		now:      opts.Now,
		pools:    make(map[common.Address]*entry),
		creating: make(map[common.Address]struct{}),
	}
	h.seq.Store(opts.StartSeq)
	return h, nil
}

// CreatePool registers a new pool and opens its vault on the ledger.
func (h *Host) CreatePool(ctx context.Context, address, admin, vault, mint common.Address, feeNumerator, feeDenominator uint64) error {
	pool, err := staking.NewPool(address, admin, vault, mint, feeNumerator, feeDenominator)
	if err != nil {
		return err
	}

	h.mu.Lock()
	_, exists := h.pools[address]
	_, pending := h.creating[address]
	if exists || pending {
		h.mu.Unlock()
		return fmt.Errorf("%s: %w", address.Hex(), ErrPoolExists)
	}
	h.creating[address] = struct{}{}
	h.mu.Unlock()

	e := &entry{pool: pool, auth: identity.NewAuthority(address)}
	e.mu.Lock()
	err = h.commit(ctx, e, model.OpCreatePool, func(p *staking.Pool, tx Tx) ([]model.AuditRecord, error) {
		if err := tx.OpenVault(vault, e.auth); err != nil {
			return nil, fmt.Errorf("open vault: %w", err)
		}
		return []model.AuditRecord{{Op: model.OpCreatePool, Caller: admin.Hex(), ClassIndex: -1}}, nil
	})
	e.mu.Unlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.creating, address)
	if err != nil {
		return err
	}
	h.pools[address] = e
	return nil
}

// AddClass adds a class with a derived receipt identity and creates its
// receipt token.
func (h *Host) AddClass(ctx context.Context, poolAddr, caller common.Address, weight uint64) (int, common.Address, error) {
	var (
		index   int
		receipt common.Address
	)
	err := h.run(ctx, poolAddr, model.OpAddClass, func(p *staking.Pool, tx Tx, auth identity.Authority) ([]model.AuditRecord, error) {
		var err error
		index, receipt, err = p.AddDerivedClass(caller, weight)
		if err != nil {
			return nil, err
		}
		if err := tx.CreateToken(receipt, auth); err != nil {
			return nil, fmt.Errorf("create receipt token: %w", err)
		}
		return []model.AuditRecord{{
			Op:         model.OpAddClass,
			Caller:     caller.Hex(),
			ClassIndex: index,
			Receipt:    receipt.Hex(),
			Weight:     weight,
		}}, nil
	})
	if err != nil {
		return 0, common.Address{}, err
	}
	return index, receipt, nil
}

// RemoveClass retires an empty class. Indices of other classes may change.
func (h *Host) RemoveClass(ctx context.Context, poolAddr, caller, receipt common.Address) (staking.Removal, error) {
	var removal staking.Removal
	err := h.run(ctx, poolAddr, model.OpRemoveClass, func(p *staking.Pool, _ Tx, _ identity.Authority) ([]model.AuditRecord, error) {
		var err error
		removal, err = p.RemoveClass(caller, receipt)
		if err != nil {
			return nil, err
		}
		rec := model.AuditRecord{
			Op:         model.OpRemoveClass,
			Caller:     caller.Hex(),
			ClassIndex: removal.Index,
			Receipt:    receipt.Hex(),
		}
		if removal.Moved != (common.Address{}) {
			rec.MovedFrom = removal.Moved.Hex()
		}
		return []model.AuditRecord{rec}, nil
	})
	return removal, err
}

// Reweight applies a batch of weight changes, all or nothing.
func (h *Host) Reweight(ctx context.Context, poolAddr, caller common.Address, updates []staking.WeightUpdate) error {
	return h.run(ctx, poolAddr, model.OpReweight, func(p *staking.Pool, _ Tx, _ identity.Authority) ([]model.AuditRecord, error) {
		changes := make([]model.WeightChange, 0, len(updates))
		for _, u := range updates {
			change := model.WeightChange{Receipt: u.Receipt.Hex(), New: u.Weight}
			if index, ok := p.FindByIdentity(u.Receipt); ok {
				change.Old = p.Classes[index].Weight
			}
			changes = append(changes, change)
		}
		if err := p.Reweight(caller, updates); err != nil {
			return nil, err
		}
		return []model.AuditRecord{{
			Op:         model.OpReweight,
			Caller:     caller.Hex(),
			ClassIndex: -1,
			Weights:    changes,
		}}, nil
	})
}

// Stake deposits amount into the class identified by receipt.
func (h *Host) Stake(ctx context.Context, poolAddr, depositor, receipt common.Address, amount uint64) (staking.StakeResult, error) {
	var res staking.StakeResult
	err := h.run(ctx, poolAddr, model.OpStake, func(p *staking.Pool, tx Tx, auth identity.Authority) ([]model.AuditRecord, error) {
		index, err := p.Resolve(receipt)
		if err != nil {
			return nil, err
		}
		res, err = staking.Stake(ctx, p, tx, auth, depositor, index, amount)
		if err != nil {
			return nil, err
		}
		return []model.AuditRecord{{
			Op:         model.OpStake,
			Caller:     depositor.Hex(),
			ClassIndex: res.Index,
			Receipt:    res.Receipt.Hex(),
			Amount:     res.Amount,
			Fee:        res.Fee,
			Net:        res.Net,
			Supply:     res.Supply,
		}}, nil
	})
	return res, err
}

// Unstake burns lpAmount receipts of the class identified by receipt.
func (h *Host) Unstake(ctx context.Context, poolAddr, owner, receipt common.Address, lpAmount uint64) (staking.UnstakeResult, error) {
	var res staking.UnstakeResult
	err := h.run(ctx, poolAddr, model.OpUnstake, func(p *staking.Pool, tx Tx, auth identity.Authority) ([]model.AuditRecord, error) {
		index, err := p.Resolve(receipt)
		if err != nil {
			return nil, err
		}
		res, err = staking.Unstake(ctx, p, tx, auth, owner, index, lpAmount)
		if err != nil {
			return nil, err
		}
		return []model.AuditRecord{{
			Op:         model.OpUnstake,
			Caller:     owner.Hex(),
			ClassIndex: res.Index,
			Receipt:    res.Receipt.Hex(),
			Amount:     res.LPAmount,
			Redeem:     res.Redeem,
			Supply:     res.Supply,
		}}, nil
	})
	return res, err
}

// Snapshot returns a copy of the pool and its committed vault balance.
func (h *Host) Snapshot(ctx context.Context, poolAddr common.Address) (*staking.Pool, uint64, error) {
	e, err := h.entry(poolAddr)
	if err != nil {
		return nil, 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	vault, err := h.ledger.BalanceOf(ctx, e.pool.Mint, e.pool.Vault)
	if err != nil {
		return nil, 0, fmt.Errorf("vault balance: %w", err)
	}
	return e.pool.Clone(), vault, nil
}

// Quote values every live class of the pool at the current vault balance.
func (h *Host) Quote(ctx context.Context, poolAddr common.Address) ([]staking.ClassQuote, uint64, error) {
	pool, vault, err := h.Snapshot(ctx, poolAddr)
	if err != nil {
		return nil, 0, err
	}
	quotes, err := staking.Quote(pool, vault)
	if err != nil {
		return nil, 0, err
	}
	return quotes, vault, nil
}

// Pools lists registered pool addresses in byte order.
func (h *Host) Pools() []common.Address {
	h.mu.RLock()
	out := make([]common.Address, 0, len(h.pools))
	for addr := range h.pools {
		out = append(out, addr)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}

func (h *Host) entry(poolAddr common.Address) (*entry, error) {
	h.mu.RLock()
	e, ok := h.pools[poolAddr]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", poolAddr.Hex(), ErrUnknownPool)
	}
	return e, nil
}

type operation func(p *staking.Pool, tx Tx, auth identity.Authority) ([]model.AuditRecord, error)

func (h *Host) run(ctx context.Context, poolAddr common.Address, op string, fn operation) error {
	e, err := h.entry(poolAddr)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	return h.commit(ctx, e, op, func(p *staking.Pool, tx Tx) ([]model.AuditRecord, error) {
		return fn(p, tx, e.auth)
	})
}

// commit runs fn against a copy of the pool inside a ledger transaction and
// installs the copy only once the ledger, store and audit sink have all
// accepted the result. The caller holds e.mu.
func (h *Host) commit(ctx context.Context, e *entry, op string, fn func(p *staking.Pool, tx Tx) ([]model.AuditRecord, error)) error {
	work := e.pool.Clone()
	logger := h.logger.With(zap.String("pool", work.Address.Hex()), zap.String("op", op))

	tx, err := h.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}

	records, err := fn(work, tx)
	if err == nil {
		err = h.persist(ctx, work, tx, records)
	}
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("ledger rollback failed", zap.Error(rbErr))
			err = errors.Join(err, fmt.Errorf("rollback ledger tx: %w", rbErr))
		}
		fields := []zap.Field{zap.Error(err)}
		if kind, ok := staking.KindOf(err); ok {
			fields = append(fields, zap.String("kind", kind.String()))
		}
		logger.Warn("operation rejected", fields...)
		return err
	}

	if err := tx.Commit(); err != nil {
		err = fmt.Errorf("commit ledger tx: %w", err)
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("ledger rollback failed", zap.Error(rbErr))
			err = errors.Join(err, fmt.Errorf("rollback ledger tx: %w", rbErr))
		}
		return err
	}
	e.pool = work

	for _, rec := range records {
		logger.Info("operation committed",
			zap.Uint64("seq", rec.Seq),
			zap.Int("class_index", rec.ClassIndex),
			zap.String("receipt", rec.Receipt),
			zap.Uint64("amount", rec.Amount),
			zap.Uint64("fee", rec.Fee),
			zap.Uint64("net", rec.Net),
			zap.Uint64("redeem", rec.Redeem),
		)
	}
	return nil
}

func (h *Host) persist(ctx context.Context, p *staking.Pool, tx Tx, records []model.AuditRecord) error {
	ts := h.now().UTC().Format(time.RFC3339Nano)
	for i := range records {
		records[i].Seq = h.seq.Add(1)
		records[i].Pool = p.Address.Hex()
		records[i].Timestamp = ts
	}

	if h.store != nil {
		vault, err := tx.BalanceOf(ctx, p.Mint, p.Vault)
		if err != nil {
			return fmt.Errorf("vault balance: %w", err)
		}
		if err := h.store.SavePool(ctx, p, vault); err != nil {
			return fmt.Errorf("save pool: %w", err)
		}
	}
	if h.audit != nil {
		if err := h.audit.PutAuditBatch(ctx, records); err != nil {
			return fmt.Errorf("write audit: %w", err)
		}
	}
	return nil
}
