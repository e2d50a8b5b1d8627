// Package config loads marketctl settings. Defaults are overridden by an
// optional CUE file, which is overridden by the environment.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
)

//go:embed schema.cue
var schemaSource string

// Config aggregates application configuration values.
type Config struct {
	Ledger    LedgerConfig
	Aggregate AggregateConfig
	Logging   LoggingConfig

	// Account is the default session account.
	Account string

	// Listen is the address `devnet serve` binds.
	Listen string
}

// LedgerConfig selects and tunes the ledger connection.
type LedgerConfig struct {
	URL     string
	Devnet  string
	Gas     uint64
	Timeout time.Duration
}

// AggregateConfig bounds read concurrency.
type AggregateConfig struct {
	ProductConcurrency int
	ReadFanOut         int
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultDevnetPath         = "marketplace.db"
	defaultTimeout            = 30 * time.Second
	defaultProductConcurrency = 4
	defaultReadFanOut         = 8
	defaultListen             = "127.0.0.1:8545"
	defaultLoggingLevel       = "info"
	defaultLoggingFormat      = "text"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Ledger: LedgerConfig{
			Devnet:  defaultDevnetPath,
			Gas:     ledger.DefaultMaxGas,
			Timeout: defaultTimeout,
		},
		Aggregate: AggregateConfig{
			ProductConcurrency: defaultProductConcurrency,
			ReadFanOut:         defaultReadFanOut,
		},
		Logging: LoggingConfig{
			Level:  defaultLoggingLevel,
			Format: defaultLoggingFormat,
		},
		Listen: defaultListen,
	}
}

// Load builds the configuration. path may be empty.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = applyFile(cfg, path, data); err != nil {
			return Config{}, err
		}
	}
	return applyEnv(cfg)
}

// fileConfig mirrors #Config in schema.cue.
type fileConfig struct {
	Ledger *struct {
		URL     *string `json:"url"`
		Devnet  *string `json:"devnet"`
		Gas     *uint64 `json:"gas"`
		Timeout *string `json:"timeout"`
	} `json:"ledger"`
	Aggregate *struct {
		ProductConcurrency *int `json:"productConcurrency"`
		ReadFanOut         *int `json:"readFanOut"`
	} `json:"aggregate"`
	Account *string `json:"account"`
	Listen  *string `json:"listen"`
	Log     *struct {
		Level         *string `json:"level"`
		Format        *string `json:"format"`
		IncludeCaller *bool   `json:"includeCaller"`
	} `json:"log"`
}

func applyFile(cfg Config, filename string, data []byte) (Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, fmt.Errorf("compile config schema: %w", err)
	}
	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", filename, err)
	}
	v = schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, fmt.Errorf("validate %s: %w", filename, err)
	}

	var fc fileConfig
	if err := v.Decode(&fc); err != nil {
		return Config{}, fmt.Errorf("decode %s: %w", filename, err)
	}

	if l := fc.Ledger; l != nil {
		setString(&cfg.Ledger.URL, l.URL)
		setString(&cfg.Ledger.Devnet, l.Devnet)
		if l.Gas != nil {
			cfg.Ledger.Gas = *l.Gas
		}
		if l.Timeout != nil {
			d, err := time.ParseDuration(*l.Timeout)
			if err != nil {
				return Config{}, fmt.Errorf("invalid ledger.timeout: %w", err)
			}
			cfg.Ledger.Timeout = d
		}
	}
	if a := fc.Aggregate; a != nil {
		setInt(&cfg.Aggregate.ProductConcurrency, a.ProductConcurrency)
		setInt(&cfg.Aggregate.ReadFanOut, a.ReadFanOut)
	}
	setString(&cfg.Account, fc.Account)
	setString(&cfg.Listen, fc.Listen)
	if lg := fc.Log; lg != nil {
		setString(&cfg.Logging.Level, lg.Level)
		setString(&cfg.Logging.Format, lg.Format)
		if lg.IncludeCaller != nil {
			cfg.Logging.IncludeCaller = *lg.IncludeCaller
		}
	}
	return cfg, nil
}

func applyEnv(cfg Config) (Config, error) {
	cfg.Ledger.URL = valueOrDefault("MARKET_LEDGER_URL", cfg.Ledger.URL)
	cfg.Ledger.Devnet = valueOrDefault("MARKET_DEVNET_PATH", cfg.Ledger.Devnet)
	cfg.Account = valueOrDefault("MARKET_ACCOUNT", cfg.Account)
	cfg.Listen = valueOrDefault("MARKET_LISTEN", cfg.Listen)
	cfg.Aggregate.ProductConcurrency = parseIntWithDefault("MARKET_PRODUCT_CONCURRENCY", cfg.Aggregate.ProductConcurrency)
	cfg.Aggregate.ReadFanOut = parseIntWithDefault("MARKET_READ_FANOUT", cfg.Aggregate.ReadFanOut)
	cfg.Logging.Level = valueOrDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = valueOrDefault("LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.IncludeCaller = parseBoolWithDefault("LOG_INCLUDE_CALLER", cfg.Logging.IncludeCaller)

	if v := os.Getenv("MARKET_GAS"); v != "" {
		gas, err := strconv.ParseUint(v, 10, 64)
		if err != nil || gas == 0 {
			return Config{}, fmt.Errorf("invalid MARKET_GAS value %q", v)
		}
		cfg.Ledger.Gas = gas
	}
	if v := os.Getenv("MARKET_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid MARKET_TIMEOUT: %w", err)
		}
		cfg.Ledger.Timeout = d
	}
	return cfg, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}
