package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	dir := writeConfig(t, `
ledger:
  owner: "0xowner"
  approvers: ["0xa", "0xb", "0xc"]
  allow_self_approval: false
server:
  port: 8181
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "0xowner", cfg.Ledger.Owner)
	assert.Equal(t, []string{"0xa", "0xb", "0xc"}, cfg.Ledger.Approvers)
	assert.False(t, cfg.Ledger.AllowSelfApproval)
	assert.Equal(t, 3, cfg.Ledger.Threshold)
	assert.Equal(t, uint64(1), cfg.Ledger.FirstID)
	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Server.GRPCPort)
	assert.Equal(t, 500*time.Millisecond, cfg.Journal.FlushInterval)
	assert.Equal(t, "USDT", cfg.Token.Symbol)
	assert.Equal(t, 500*time.Millisecond, cfg.Token.MaxWait)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	dir := writeConfig(t, "ledger:\n  owner: \"0xfile\"\n")
	t.Setenv("LEDGER_OWNER", "0xenv")
	t.Setenv("LEDGER_THRESHOLD", "2")
	t.Setenv("LEDGER_APPROVERS", "0xa,0xb")
	t.Setenv("DATABASE_URL", "postgres://localhost/treasury")
	t.Setenv("AUTH_PUBLIC_KEY_DATA", "pem-data")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "0xenv", cfg.Ledger.Owner)
	assert.Equal(t, 2, cfg.Ledger.Threshold)
	assert.Equal(t, []string{"0xa", "0xb"}, cfg.Ledger.Approvers)
	assert.Equal(t, "postgres://localhost/treasury", cfg.Database.URL)
	assert.Equal(t, []byte("pem-data"), cfg.Auth.PublicKey)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{Ledger: LedgerConfig{Owner: "0xo", Threshold: 3, EscrowAddress: "escrow"}}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "valid", mutate: func(c *Config) {}, ok: true},
		{name: "no owner", mutate: func(c *Config) { c.Ledger.Owner = " " }},
		{name: "zero threshold", mutate: func(c *Config) { c.Ledger.Threshold = 0 }},
		{name: "too few approvers", mutate: func(c *Config) { c.Ledger.Approvers = []string{"0xa", "0xb"} }},
		{name: "enough approvers", mutate: func(c *Config) { c.Ledger.Approvers = []string{"0xa", "0xb", "0xc"} }, ok: true},
		{name: "no escrow", mutate: func(c *Config) { c.Ledger.EscrowAddress = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if tt.ok {
				assert.NoError(t, c.Validate())
			} else {
				assert.Error(t, c.Validate())
			}
		})
	}
}
