package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stakeVault/internal/model"
	"stakeVault/internal/staking"
	"stakeVault/internal/storage"
)

// Options tunes write retries.
type Options struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Store provides Postgres persistence for pool records and audit records.
type Store struct {
	pool  *pgxpool.Pool
	retry retryPolicy
}

func NewStore(ctx context.Context, dsn string, opts Options) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, retry: newRetryPolicy(opts)}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SavePool upserts the pool header columns and its fixed-size record.
func (s *Store) SavePool(ctx context.Context, p *staking.Pool, vaultBalance uint64) error {
	record, err := p.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode pool: %w", err)
	}
	return s.retry.do(ctx, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO pools (
				pool_address, admin, vault, mint, fee_numerator, fee_denominator,
				class_count, creation_counter, vault_balance, record, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
			ON CONFLICT (pool_address)
			DO UPDATE SET
				admin = EXCLUDED.admin,
				vault = EXCLUDED.vault,
				mint = EXCLUDED.mint,
				fee_numerator = EXCLUDED.fee_numerator,
				fee_denominator = EXCLUDED.fee_denominator,
				class_count = EXCLUDED.class_count,
				creation_counter = EXCLUDED.creation_counter,
				vault_balance = EXCLUDED.vault_balance,
				record = EXCLUDED.record,
				updated_at = now()
		`,
			poolKey(p.Address),
			p.Admin.Hex(),
			p.Vault.Hex(),
			p.Mint.Hex(),
			numeric(p.FeeNumerator),
			numeric(p.FeeDenominator),
			int64(p.ClassCount),
			numeric(p.CreationCounter),
			numeric(vaultBalance),
			record,
		)
		return err
	})
}

// LoadPool reads a pool record by address.
func (s *Store) LoadPool(ctx context.Context, address common.Address) (storage.Snapshot, bool, error) {
	var (
		record    []byte
		vault     string
		updatedAt time.Time
	)
	row := s.pool.QueryRow(ctx, `SELECT record, vault_balance::text, updated_at FROM pools WHERE pool_address=$1`, poolKey(address))
	if err := row.Scan(&record, &vault, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Snapshot{}, false, nil
		}
		return storage.Snapshot{}, false, err
	}

	pool := new(staking.Pool)
	if err := pool.UnmarshalBinary(record); err != nil {
		return storage.Snapshot{}, false, fmt.Errorf("decode pool record: %w", err)
	}
	balance, err := parseNumeric(vault)
	if err != nil {
		return storage.Snapshot{}, false, fmt.Errorf("vault balance: %w", err)
	}
	return storage.Snapshot{
		Pool:         pool,
		VaultBalance: balance,
		UpdatedAt:    updatedAt.UTC().Format(time.RFC3339Nano),
	}, true, nil
}

// PutAuditBatch inserts audit records. A sequence number already stored for
// the pool fails the whole batch with storage.ErrAuditConflict.
func (s *Store) PutAuditBatch(ctx context.Context, records []model.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		var weights []byte
		if len(r.Weights) > 0 {
			encoded, err := json.Marshal(r.Weights)
			if err != nil {
				return fmt.Errorf("marshal weights: %w", err)
			}
			weights = encoded
		}
		batch.Queue(`
			INSERT INTO audit_records (
				pool_address, seq, op, caller, class_index, receipt, amount, fee, net,
				redeem, supply, weight, moved_receipt, weights, recorded_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		`,
			strings.ToLower(r.Pool),
			numeric(r.Seq),
			r.Op,
			r.Caller,
			r.ClassIndex,
			nullString(r.Receipt),
			numeric(r.Amount),
			numeric(r.Fee),
			numeric(r.Net),
			numeric(r.Redeem),
			numeric(r.Supply),
			numeric(r.Weight),
			nullString(r.MovedFrom),
			weights,
			r.Timestamp,
		)
	}

	return s.retry.do(ctx, func(ctx context.Context) error {
		br := s.pool.SendBatch(ctx, batch)
		defer br.Close()

		for range records {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
}

// LastAuditSeq returns the highest stored audit sequence number, 0 when the
// table is empty.
func (s *Store) LastAuditSeq(ctx context.Context) (uint64, error) {
	var last string
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0)::text FROM audit_records`).Scan(&last); err != nil {
		return 0, fmt.Errorf("query last audit seq: %w", err)
	}
	return parseNumeric(last)
}

func poolKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// numeric passes uint64 values as text so NUMERIC(20,0) columns hold the
// full range without a signed cast.
func numeric(v uint64) string {
	return fmt.Sprintf("%d", v)
}

func parseNumeric(v string) (uint64, error) {
	var out uint64
	if _, err := fmt.Sscan(v, &out); err != nil {
		return 0, err
	}
	return out, nil
}

func nullString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
