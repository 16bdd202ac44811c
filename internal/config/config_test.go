package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestLoadSimulateFlagsOverrideDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("simulate", pflag.ContinueOnError)
	flags.String("in", "", "")
	flags.String("audit-out", "./data/audit.jsonl", "")
	flags.Int("max-retries", 5, "")
	require.NoError(t, flags.Parse([]string{"--in", "ops.jsonl", "--max-retries", "2"}))

	cfg, err := LoadSimulate("", flags)
	require.NoError(t, err)
	require.Equal(t, "ops.jsonl", cfg.Input)
	require.Equal(t, "./data/audit.jsonl", cfg.AuditOut)
	require.Equal(t, "./data/failures.jsonl", cfg.Failures)
	require.Equal(t, 2, cfg.Store.MaxRetries)
	require.Equal(t, 500*time.Millisecond, cfg.Store.RetryBackoff)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadQuoteFromEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("STAKEPOOL_DECIMALS", "6")

	path := filepath.Join(dir, "stakepool.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool: \"0x1111111111111111111111111111111111111111,0x2222222222222222222222222222222222222222\"\npool-dir: /var/pools\n"), 0o644))

	cfg, err := LoadQuote(path, nil)
	require.NoError(t, err)
	require.Equal(t, uint8(6), cfg.Decimals)
	require.Equal(t, "/var/pools", cfg.Store.PoolDir)
	require.Len(t, cfg.Pools, 2)
}

func TestLoadQuoteRejectsDecimals(t *testing.T) {
	t.Setenv("STAKEPOOL_DECIMALS", "90")

	_, err := LoadQuote("", nil)
	require.Error(t, err)
}
