package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "STAKEPOOL"

// StoreConfig selects where pool records are persisted.
type StoreConfig struct {
	PoolDir      string
	PGDSN        string
	MaxRetries   int
	RetryBackoff time.Duration
}

// SimulateConfig holds configuration for replaying an operations script.
type SimulateConfig struct {
	Input    string
	AuditOut string
	Failures string
	Store    StoreConfig
	LogLevel string
}

// QuoteConfig holds configuration for reporting pool redemption values.
type QuoteConfig struct {
	Pools    []string
	PoolFile string
	Decimals uint8
	Store    StoreConfig
	LogLevel string
}

// ReconcileConfig holds configuration for comparing pools against chain state.
type ReconcileConfig struct {
	RPCURL   string
	Block    uint64
	Pools    []string
	PoolFile string
	Store    StoreConfig
	LogLevel string
}

// LoadSimulate merges config file, environment variables, and flags into SimulateConfig.
func LoadSimulate(cfgFile string, flags *pflag.FlagSet) (SimulateConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("audit-out", "./data/audit.jsonl")
		v.SetDefault("failures-out", "./data/failures.jsonl")
		v.SetDefault("pool-dir", "./data/pools")
	})
	if err != nil {
		return SimulateConfig{}, err
	}

	return SimulateConfig{
		Input:    v.GetString("in"),
		AuditOut: v.GetString("audit-out"),
		Failures: v.GetString("failures-out"),
		Store:    storeConfig(v),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("pool-dir", "./data/pools")
		v.SetDefault("decimals", 18)
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	decimals := v.GetUint("decimals")
	if decimals > 77 {
		return QuoteConfig{}, fmt.Errorf("decimals out of range: %d", decimals)
	}

	return QuoteConfig{
		Pools:    getStringSlice(v, "pool"),
		PoolFile: v.GetString("pool-file"),
		Decimals: uint8(decimals),
		Store:    storeConfig(v),
		LogLevel: v.GetString("log-level"),
	}, nil
}

// LoadReconcile merges config file, environment variables, and flags into ReconcileConfig.
func LoadReconcile(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("pool-dir", "./data/pools")
	})
	if err != nil {
		return ReconcileConfig{}, err
	}

	return ReconcileConfig{
		RPCURL:   v.GetString("rpc"),
		Block:    v.GetUint64("block"),
		Pools:    getStringSlice(v, "pool"),
		PoolFile: v.GetString("pool-file"),
		Store:    storeConfig(v),
		LogLevel: v.GetString("log-level"),
	}, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(v *viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("log-level", "info")
	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func storeConfig(v *viper.Viper) StoreConfig {
	return StoreConfig{
		PoolDir:      v.GetString("pool-dir"),
		PGDSN:        v.GetString("pg-dsn"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
