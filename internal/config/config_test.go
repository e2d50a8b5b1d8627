package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procateodor/blockchain-marketplace/internal/ledger"
)

var envKeys = []string{
	"MARKET_LEDGER_URL", "MARKET_DEVNET_PATH", "MARKET_ACCOUNT", "MARKET_LISTEN",
	"MARKET_PRODUCT_CONCURRENCY", "MARKET_READ_FANOUT", "MARKET_GAS", "MARKET_TIMEOUT",
	"LOG_LEVEL", "LOG_FORMAT", "LOG_INCLUDE_CALLER",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketctl.cue")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ledger.DefaultMaxGas, cfg.Ledger.Gas)
	assert.Equal(t, "marketplace.db", cfg.Ledger.Devnet)
	assert.Equal(t, 4, cfg.Aggregate.ProductConcurrency)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("MARKET_LEDGER_URL", "ws://ledger:8545")
	t.Setenv("MARKET_GAS", "5000")
	t.Setenv("MARKET_TIMEOUT", "2s")
	t.Setenv("MARKET_READ_FANOUT", "3")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_INCLUDE_CALLER", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ws://ledger:8545", cfg.Ledger.URL)
	assert.Equal(t, uint64(5000), cfg.Ledger.Gas)
	assert.Equal(t, 2*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, 3, cfg.Aggregate.ReadFanOut)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Logging.IncludeCaller)
}

func TestLoad_InvalidEnv(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"MARKET_GAS", "lots"},
		{"MARKET_GAS", "0"},
		{"MARKET_TIMEOUT", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
ledger: {
	devnet:  "/tmp/other.db"
	timeout: "5s"
}
aggregate: productConcurrency: 2
account: "0x00000000000000000000000000000000000000A1"
log: level: "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Ledger.Devnet)
	assert.Equal(t, 5*time.Second, cfg.Ledger.Timeout)
	assert.Equal(t, 2, cfg.Aggregate.ProductConcurrency)
	assert.Equal(t, 8, cfg.Aggregate.ReadFanOut)
	assert.Equal(t, "0x00000000000000000000000000000000000000A1", cfg.Account)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "warn")
	path := writeFile(t, `log: level: "debug"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_FileRejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", `colour: "red"`},
		{"bad level", `log: level: "loud"`},
		{"bad url", `ledger: url: "http://x"`},
		{"bad account", `account: "bob"`},
		{"non-positive gas", `ledger: gas: 0`},
		{"syntax", `ledger: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Load(writeFile(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	assert.ErrorContains(t, err, "read config")
}
