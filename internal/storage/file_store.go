package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"stakeVault/internal/model"
	"stakeVault/internal/staking"
)

// FilePoolStore keeps one JSON document per pool in a directory. The
// document embeds the fixed-size binary record, which is authoritative; the
// view is written for humans.
type FilePoolStore struct {
	Dir string
}

type poolDocument struct {
	Record       string         `json:"record"`
	VaultBalance uint64         `json:"vault_balance"`
	UpdatedAt    string         `json:"updated_at"`
	View         model.PoolView `json:"view"`
}

func (s *FilePoolStore) path(address common.Address) string {
	return filepath.Join(s.Dir, strings.ToLower(address.Hex())+".json")
}

func (s *FilePoolStore) SavePool(_ context.Context, pool *staking.Pool, vaultBalance uint64) error {
	if s == nil || s.Dir == "" {
		return nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create pool dir: %w", err)
	}

	record, err := pool.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode pool: %w", err)
	}
	doc := poolDocument{
		Record:       hexutil.Encode(record),
		VaultBalance: vaultBalance,
		UpdatedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		View:         View(pool, vaultBalance),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pool: %w", err)
	}

	path := s.path(pool.Address)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write pool tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename pool: %w", err)
	}
	return nil
}

func (s *FilePoolStore) LoadPool(_ context.Context, address common.Address) (Snapshot, bool, error) {
	if s == nil || s.Dir == "" {
		return Snapshot{}, false, nil
	}
	data, err := os.ReadFile(s.path(address))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("read pool: %w", err)
	}
	return decodeDocument(data)
}

// ReadPoolFile loads a pool document from an explicit path.
func ReadPoolFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read pool: %w", err)
	}
	snap, _, err := decodeDocument(data)
	return snap, err
}

func decodeDocument(data []byte) (Snapshot, bool, error) {
	var doc poolDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Snapshot{}, false, fmt.Errorf("parse pool: %w", err)
	}
	record, err := hexutil.Decode(doc.Record)
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("decode pool record: %w", err)
	}
	pool := new(staking.Pool)
	if err := pool.UnmarshalBinary(record); err != nil {
		return Snapshot{}, false, fmt.Errorf("decode pool record: %w", err)
	}
	return Snapshot{Pool: pool, VaultBalance: doc.VaultBalance, UpdatedAt: doc.UpdatedAt}, true, nil
}
