package script

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakeVault/internal/host"
	"stakeVault/internal/ledger"
	"stakeVault/internal/staking"
)

// Failure describes a script line the engine rejected.
type Failure struct {
	Line int
	Op   Op
	Err  error
}

// Stats counts script outcomes.
type Stats struct {
	Total    int
	Applied  int
	Rejected int
}

// Runner replays operation scripts against a host backed by an in-memory
// ledger. Classes can be referenced by receipt address, by the label given
// when they were added, or by current index.
type Runner struct {
	host   *host.Host
	ledger *ledger.Memory
	logger *zap.Logger
	labels map[string]common.Address
}

func NewRunner(h *host.Host, m *ledger.Memory, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{host: h, ledger: m, logger: logger, labels: make(map[string]common.Address)}
}

// Run applies every line of r. Rejected operations are reported through
// onFailure and do not stop the run; malformed input does.
func (r *Runner) Run(ctx context.Context, in io.Reader, onFailure func(Failure) error) (Stats, error) {
	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var stats Stats
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}
		stats.Total++

		op, err := ParseOp(line)
		if err != nil {
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := r.Apply(ctx, op); err != nil {
			stats.Rejected++
			r.logger.Debug("op rejected", zap.Int("line", lineNo), zap.String("op", op.Op), zap.Error(err))
			if onFailure != nil {
				if err := onFailure(Failure{Line: lineNo, Op: op, Err: err}); err != nil {
					return stats, err
				}
			}
			continue
		}
		stats.Applied++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

// Apply executes a single operation.
func (r *Runner) Apply(ctx context.Context, op Op) error {
	switch op.Op {
	case OpFund:
		mint, err := parseAddress("mint", op.Mint)
		if err != nil {
			return err
		}
		account, err := parseAddress("account", op.Account)
		if err != nil {
			return err
		}
		return r.ledger.Credit(mint, account, op.Amount)
	case OpCreatePool:
		return r.createPool(ctx, op)
	}

	pool, err := parseAddress("pool", op.Pool)
	if err != nil {
		return err
	}
	caller, err := parseAddress("caller", op.Caller)
	if err != nil {
		return err
	}

	switch op.Op {
	case OpAddClass:
		weight := staking.DefaultWeight
		if op.Weight != nil {
			weight = *op.Weight
		}
		_, receipt, err := r.host.AddClass(ctx, pool, caller, weight)
		if err != nil {
			return err
		}
		if op.Label != "" {
			r.labels[op.Label] = receipt
		}
		return nil
	case OpRemoveClass:
		receipt, err := r.resolve(ctx, pool, op.Receipt, op.Class)
		if err != nil {
			return err
		}
		_, err = r.host.RemoveClass(ctx, pool, caller, receipt)
		return err
	case OpReweight:
		updates := make([]staking.WeightUpdate, 0, len(op.Updates))
		for _, u := range op.Updates {
			receipt, err := r.resolve(ctx, pool, u.Receipt, nil)
			if err != nil {
				return err
			}
			updates = append(updates, staking.WeightUpdate{Receipt: receipt, Weight: u.Weight})
		}
		return r.host.Reweight(ctx, pool, caller, updates)
	case OpStake:
		receipt, err := r.resolve(ctx, pool, op.Receipt, op.Class)
		if err != nil {
			return err
		}
		_, err = r.host.Stake(ctx, pool, caller, receipt, op.Amount)
		return err
	case OpUnstake:
		receipt, err := r.resolve(ctx, pool, op.Receipt, op.Class)
		if err != nil {
			return err
		}
		_, err = r.host.Unstake(ctx, pool, caller, receipt, op.Amount)
		return err
	}
	return fmt.Errorf("unknown op %q", op.Op)
}

func (r *Runner) createPool(ctx context.Context, op Op) error {
	pool, err := parseAddress("pool", op.Pool)
	if err != nil {
		return err
	}
	admin, err := parseAddress("admin", op.Admin)
	if err != nil {
		return err
	}
	vault, err := parseAddress("vault", op.Vault)
	if err != nil {
		return err
	}
	mint, err := parseAddress("mint", op.Mint)
	if err != nil {
		return err
	}
	return r.host.CreatePool(ctx, pool, admin, vault, mint, op.FeeNumerator, op.FeeDenominator)
}

// resolve maps a label, receipt address or current index to a receipt.
func (r *Runner) resolve(ctx context.Context, pool common.Address, ref string, index *int) (common.Address, error) {
	if ref != "" {
		if receipt, ok := r.labels[ref]; ok {
			return receipt, nil
		}
		return parseAddress("receipt", ref)
	}
	if index == nil {
		return common.Address{}, fmt.Errorf("receipt or class is required")
	}
	snapshot, _, err := r.host.Snapshot(ctx, pool)
	if err != nil {
		return common.Address{}, err
	}
	class, err := snapshot.Get(*index)
	if err != nil {
		return common.Address{}, err
	}
	return class.Receipt, nil
}
