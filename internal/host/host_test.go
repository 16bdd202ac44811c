package host

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"stakeVault/internal/ledger"
	"stakeVault/internal/model"
	"stakeVault/internal/staking"
	"stakeVault/internal/storage"
)

var (
	poolAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	admin    = common.HexToAddress("0xadadadadadadadadadadadadadadadadadadadad")
	vault    = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	mint     = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	alice    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	bob      = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

type memorySink struct {
	mu      sync.Mutex
	records []model.AuditRecord
	err     error
}

func (s *memorySink) PutAuditBatch(_ context.Context, records []model.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.records = append(s.records, records...)
	return nil
}

// gatedSink parks the first batch of op until release is closed, then fails
// it with err when set.
type gatedSink struct {
	memorySink
	op      string
	err     error
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedSink(op string, err error) *gatedSink {
	return &gatedSink{op: op, err: err, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedSink) PutAuditBatch(ctx context.Context, records []model.AuditRecord) error {
	if len(records) > 0 && records[0].Op == s.op {
		gated := false
		s.once.Do(func() { gated = true })
		if gated {
			close(s.entered)
			<-s.release
			if s.err != nil {
				return s.err
			}
		}
	}
	return s.memorySink.PutAuditBatch(ctx, records)
}

func waitOrFail(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func newTestHost(t *testing.T) (*Host, *ledger.Memory, *memorySink) {
	t.Helper()
	m := ledger.NewMemory()
	sink := &memorySink{}
	h, err := New(Options{Ledger: NewMemoryLedger(m), Audit: sink})
	require.NoError(t, err)
	require.NoError(t, h.CreatePool(context.Background(), poolAddr, admin, vault, mint, 3, 10_000))
	return h, m, sink
}

func TestHostScenario(t *testing.T) {
	ctx := context.Background()
	h, m, sink := newTestHost(t)
	require.NoError(t, m.Credit(mint, alice, 100))
	require.NoError(t, m.Credit(mint, bob, 200))

	_, classA, err := h.AddClass(ctx, poolAddr, admin, 200_000_000)
	require.NoError(t, err)
	_, err = h.Stake(ctx, poolAddr, alice, classA, 100)
	require.NoError(t, err)

	_, classB, err := h.AddClass(ctx, poolAddr, admin, 50_000_000)
	require.NoError(t, err)
	_, err = h.Stake(ctx, poolAddr, bob, classB, 200)
	require.NoError(t, err)

	out, err := h.Unstake(ctx, poolAddr, alice, classA, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(200), out.Redeem)
	out, err = h.Unstake(ctx, poolAddr, bob, classB, 200)
	require.NoError(t, err)
	require.Equal(t, uint64(100), out.Redeem)

	_, vaultBal, err := h.Snapshot(ctx, poolAddr)
	require.NoError(t, err)
	require.Zero(t, vaultBal)

	ops := make([]string, 0, len(sink.records))
	for i, rec := range sink.records {
		require.Equal(t, uint64(i+1), rec.Seq)
		ops = append(ops, rec.Op)
	}
	require.Equal(t, []string{
		model.OpCreatePool, model.OpAddClass, model.OpStake, model.OpAddClass,
		model.OpStake, model.OpUnstake, model.OpUnstake,
	}, ops)
}

func TestHostRollsBackOnLedgerFailure(t *testing.T) {
	ctx := context.Background()
	h, m, sink := newTestHost(t)
	require.NoError(t, m.Credit(mint, alice, 100))
	_, receipt, err := h.AddClass(ctx, poolAddr, admin, 1)
	require.NoError(t, err)

	m.FailOn(ledger.OpMint, errors.New("mint refused"))
	_, err = h.Stake(ctx, poolAddr, alice, receipt, 100)
	require.Error(t, err)

	pool, vaultBal, err := h.Snapshot(ctx, poolAddr)
	require.NoError(t, err)
	require.Zero(t, vaultBal)
	require.Zero(t, pool.Classes[0].Supply)
	bal, _ := m.BalanceOf(ctx, mint, alice)
	require.Equal(t, uint64(100), bal)
	require.Len(t, sink.records, 2)

	_, err = h.Stake(ctx, poolAddr, alice, receipt, 100)
	require.NoError(t, err)
	m.FailOn(ledger.OpTransferWithAuthority, errors.New("payout refused"))
	_, err = h.Unstake(ctx, poolAddr, alice, receipt, 50)
	require.Error(t, err)
	bal, _ = m.BalanceOf(ctx, receipt, alice)
	require.Equal(t, uint64(100), bal)
	pool, _, err = h.Snapshot(ctx, poolAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(100), pool.Classes[0].Supply)
}

func TestHostRollsBackOnAuditFailure(t *testing.T) {
	ctx := context.Background()
	h, _, sink := newTestHost(t)
	sink.err = errors.New("disk full")

	_, _, err := h.AddClass(ctx, poolAddr, admin, 1)
	require.Error(t, err)
	pool, _, err := h.Snapshot(ctx, poolAddr)
	require.NoError(t, err)
	require.Zero(t, pool.ClassCount)
	require.Zero(t, pool.CreationCounter)
}

func TestHostRejectsUnknownAndDuplicatePools(t *testing.T) {
	ctx := context.Background()
	h, _, _ := newTestHost(t)

	_, _, err := h.AddClass(ctx, common.HexToAddress("0x0404"), admin, 1)
	require.ErrorIs(t, err, ErrUnknownPool)
	err = h.CreatePool(ctx, poolAddr, admin, vault, mint, 0, 1)
	require.ErrorIs(t, err, ErrPoolExists)
	err = h.CreatePool(ctx, common.HexToAddress("0x0505"), admin, common.HexToAddress("0x0606"), mint, 2, 1)
	require.ErrorIs(t, err, staking.ErrInvalidFee)
}

func TestHostRemoveReResolvesByReceipt(t *testing.T) {
	ctx := context.Background()
	h, m, _ := newTestHost(t)
	require.NoError(t, m.Credit(mint, alice, 1000))

	_, first, err := h.AddClass(ctx, poolAddr, admin, 1)
	require.NoError(t, err)
	_, _, err = h.AddClass(ctx, poolAddr, admin, 1)
	require.NoError(t, err)
	_, last, err := h.AddClass(ctx, poolAddr, admin, 1)
	require.NoError(t, err)

	removal, err := h.RemoveClass(ctx, poolAddr, admin, first)
	require.NoError(t, err)
	require.Equal(t, staking.Removal{Index: 0, Moved: last}, removal)

	res, err := h.Stake(ctx, poolAddr, alice, last, 10)
	require.NoError(t, err)
	require.Equal(t, 0, res.Index)

	_, err = h.Stake(ctx, poolAddr, alice, first, 10)
	require.ErrorIs(t, err, staking.ErrNotFound)
}

func TestHostPoolsRunIndependently(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMemory()
	h, err := New(Options{Ledger: NewMemoryLedger(m)})
	require.NoError(t, err)

	const pools = 8
	const depositsPerPool = 50
	addrs := make([]common.Address, pools)
	receipts := make([]common.Address, pools)
	depositors := make([]common.Address, pools)
	for i := range addrs {
		addrs[i] = common.HexToAddress(fmt.Sprintf("0x%040x", 0x1000+i))
		depositors[i] = common.HexToAddress(fmt.Sprintf("0x%040x", 0x2000+i))
		v := common.HexToAddress(fmt.Sprintf("0x%040x", 0x3000+i))
		require.NoError(t, h.CreatePool(ctx, addrs[i], admin, v, mint, 0, 1))
		_, receipts[i], err = h.AddClass(ctx, addrs[i], admin, uint64(i+1))
		require.NoError(t, err)
		require.NoError(t, m.Credit(mint, depositors[i], depositsPerPool))
	}

	var wg sync.WaitGroup
	errs := make(chan error, pools*depositsPerPool)
	for i := 0; i < pools; i++ {
		for n := 0; n < depositsPerPool; n++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				if _, err := h.Stake(ctx, addrs[i], depositors[i], receipts[i], 1); err != nil {
					errs <- err
				}
			}(i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, h.Pools(), pools)
	for i := range addrs {
		pool, vaultBal, err := h.Snapshot(ctx, addrs[i])
		require.NoError(t, err)
		require.Equal(t, uint64(depositsPerPool), vaultBal)
		require.Equal(t, uint64(depositsPerPool), pool.Classes[0].Supply)
	}
}

func TestHostRollbackKeepsSharedAccountsConsistent(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMemory()
	sink := newGatedSink(model.OpUnstake, errors.New("audit unavailable"))
	h, err := New(Options{Ledger: NewMemoryLedger(m), Audit: sink})
	require.NoError(t, err)

	poolB := common.HexToAddress("0x4444444444444444444444444444444444444444")
	vaultB := common.HexToAddress("0x5555555555555555555555555555555555555555")
	require.NoError(t, h.CreatePool(ctx, poolAddr, admin, vault, mint, 0, 1))
	require.NoError(t, h.CreatePool(ctx, poolB, admin, vaultB, mint, 0, 1))
	_, receiptA, err := h.AddClass(ctx, poolAddr, admin, 1)
	require.NoError(t, err)
	_, receiptB, err := h.AddClass(ctx, poolB, admin, 1)
	require.NoError(t, err)

	require.NoError(t, m.Credit(mint, alice, 100))
	_, err = h.Stake(ctx, poolAddr, alice, receiptA, 100)
	require.NoError(t, err)

	unstakeErr := make(chan error, 1)
	go func() {
		_, err := h.Unstake(ctx, poolAddr, alice, receiptA, 100)
		unstakeErr <- err
	}()
	waitOrFail(t, sink.entered, "unstake audit")

	// The payout of the pending unstake must not be spendable elsewhere.
	_, err = h.Stake(ctx, poolB, alice, receiptB, 100)
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	close(sink.release)
	err = <-unstakeErr
	require.Error(t, err)
	require.NotContains(t, err.Error(), "rollback")

	total := func() uint64 {
		var sum uint64
		for _, owner := range []common.Address{alice, vault, vaultB} {
			bal, err := m.BalanceOf(ctx, mint, owner)
			require.NoError(t, err)
			sum += bal
		}
		return sum
	}
	require.Equal(t, uint64(100), total())
	require.Equal(t, uint64(100), m.Supply(mint))

	bal, _ := m.BalanceOf(ctx, mint, vault)
	require.Equal(t, uint64(100), bal)
	bal, _ = m.BalanceOf(ctx, receiptA, alice)
	require.Equal(t, uint64(100), bal)
	pool, vaultBal, err := h.Snapshot(ctx, poolAddr)
	require.NoError(t, err)
	require.Equal(t, uint64(100), pool.Classes[0].Supply)
	require.Equal(t, uint64(100), vaultBal)

	// Once nothing is pending the same funds move normally.
	_, err = h.Unstake(ctx, poolAddr, alice, receiptA, 100)
	require.NoError(t, err)
	_, err = h.Stake(ctx, poolB, alice, receiptB, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(100), total())
}

func TestHostCreatePoolDoesNotBlockOtherPools(t *testing.T) {
	ctx := context.Background()
	m := ledger.NewMemory()
	sink := newGatedSink(model.OpCreatePool, nil)
	h, err := New(Options{Ledger: NewMemoryLedger(m), Audit: sink})
	require.NoError(t, err)

	slow := common.HexToAddress("0x6666666666666666666666666666666666666666")
	created := make(chan error, 1)
	go func() {
		created <- h.CreatePool(ctx, slow, admin, common.HexToAddress("0x7777777777777777777777777777777777777777"), mint, 0, 1)
	}()
	waitOrFail(t, sink.entered, "create_pool audit")

	other := make(chan error, 1)
	go func() {
		if err := h.CreatePool(ctx, poolAddr, admin, vault, mint, 0, 1); err != nil {
			other <- err
			return
		}
		_, _, err := h.AddClass(ctx, poolAddr, admin, 1)
		other <- err
	}()
	select {
	case err := <-other:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("operations on another pool blocked behind a pending create")
	}

	err = h.CreatePool(ctx, slow, admin, common.HexToAddress("0x8888888888888888888888888888888888888888"), mint, 0, 1)
	require.ErrorIs(t, err, ErrPoolExists)
	_, _, err = h.AddClass(ctx, slow, admin, 1)
	require.ErrorIs(t, err, ErrUnknownPool)

	close(sink.release)
	require.NoError(t, <-created)
	_, _, err = h.AddClass(ctx, slow, admin, 1)
	require.NoError(t, err)
}

func TestHostContinuesAuditSequence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	run := func() {
		sink := storage.NewJsonlStorage(path)
		last, err := sink.LastAuditSeq(ctx)
		require.NoError(t, err)
		h, err := New(Options{Ledger: NewMemoryLedger(ledger.NewMemory()), Audit: sink, StartSeq: last})
		require.NoError(t, err)
		require.NoError(t, h.CreatePool(ctx, poolAddr, admin, vault, mint, 0, 1))
		_, _, err = h.AddClass(ctx, poolAddr, admin, 1)
		require.NoError(t, err)
	}
	run()
	run()

	last, err := storage.NewJsonlStorage(path).LastAuditSeq(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(4), last)

	// A host that ignores the stored sequence is refused instead of
	// silently duplicating records.
	h, err := New(Options{Ledger: NewMemoryLedger(ledger.NewMemory()), Audit: storage.NewJsonlStorage(path)})
	require.NoError(t, err)
	err = h.CreatePool(ctx, poolAddr, admin, vault, mint, 0, 1)
	require.ErrorIs(t, err, storage.ErrAuditConflict)
	require.Empty(t, h.Pools())
}
