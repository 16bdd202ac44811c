package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakeVault/internal/config"
	"stakeVault/internal/host"
	"stakeVault/internal/ledger"
	"stakeVault/internal/model"
	"stakeVault/internal/script"
	"stakeVault/internal/staking"
	"stakeVault/internal/storage"
)

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Input == "" {
		return fmt.Errorf("input path is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, pg, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	var audit storage.AuditSink
	if pg != nil {
		audit = pg
	} else {
		audit = storage.NewJsonlStorage(cfg.AuditOut)
	}

	var startSeq uint64
	if src, ok := audit.(storage.SeqSource); ok {
		startSeq, err = src.LastAuditSeq(ctx)
		if err != nil {
			return fmt.Errorf("read audit sequence: %w", err)
		}
	}

	failures, err := newJSONLWriter(cfg.Failures, false)
	if err != nil {
		return err
	}
	defer failures.Close()

	input, err := os.Open(cfg.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer input.Close()

	mem := ledger.NewMemory()
	h, err := host.New(host.Options{
		Ledger:   host.NewMemoryLedger(mem),
		Audit:    audit,
		Store:    store,
		Logger:   logger,
		StartSeq: startSeq,
	})
	if err != nil {
		return err
	}

	logger.Info("simulate start",
		zap.String("input", cfg.Input),
		zap.String("audit_out", cfg.AuditOut),
		zap.String("failures_out", cfg.Failures),
		zap.String("pool_dir", cfg.Store.PoolDir),
		zap.String("pg_dsn", redactDSN(cfg.Store.PGDSN)),
		zap.Uint64("start_seq", startSeq),
	)

	runner := script.NewRunner(h, mem, logger)
	stats, err := runner.Run(ctx, input, func(f script.Failure) error {
		return failures.Write(opFailure(f))
	})
	if err != nil {
		return err
	}

	logger.Info("simulate complete",
		zap.Int("ops", stats.Total),
		zap.Int("applied", stats.Applied),
		zap.Int("rejected", stats.Rejected),
		zap.Int("pools", len(h.Pools())),
	)
	return nil
}

func opFailure(f script.Failure) model.OpFailure {
	out := model.OpFailure{
		Line:  f.Line,
		Op:    f.Op.Op,
		Pool:  f.Op.Pool,
		Error: f.Err.Error(),
	}
	if kind, ok := staking.KindOf(f.Err); ok {
		out.Kind = kind.String()
	}
	return out
}

type jsonlWriter struct {
	file   *os.File
	writer *bufio.Writer
}

func newJSONLWriter(path string, appendMode bool) (*jsonlWriter, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &jsonlWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *jsonlWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	if w == nil {
		return nil
	}
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
