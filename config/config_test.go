package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"hourbank/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	t.Setenv("HOURBANK_KEYSTORE_PASSPHRASE", "test-passphrase")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddress)
	require.Equal(t, uint64(1000), cfg.BlockIntervalMs)
	require.Equal(t, "HTC", cfg.Ledger.Symbol)
	require.Equal(t, filepath.Join(dir, "operator.keystore"), cfg.OperatorKeystorePath)
	require.NoError(t, Validate(cfg))

	_, err = os.Stat(path)
	require.NoError(t, err)

	key, err := cfg.OperatorKey()
	require.NoError(t, err)
	require.Equal(t, crypto.HourPrefix, key.PubKey().Address().Prefix())

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.JournalPath, reloaded.JournalPath)
	require.Equal(t, cfg.OperatorKeystorePath, reloaded.OperatorKeystorePath)
}

func TestLoadParsesSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	owner := crypto.FromArray([20]byte{0x42}).String()
	contents := `ListenAddress = "127.0.0.1:9000"
DataDir = "./data"
BlockIntervalMs = 250
Env = "staging"
LogLevel = "debug"

[Ledger]
Owner = "` + owner + `"
Name = "Neighbourhood Hours"

[Booking]
Owner = "0x4200000000000000000000000000000000000000"

[Pauses]
Reputation = true

[RateLimit]
RequestsPerMinute = 120
Burst = 20
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, uint64(250), cfg.BlockIntervalMs)
	require.Equal(t, filepath.Join("./data", "journal.db"), cfg.JournalPath)
	require.Equal(t, "Neighbourhood Hours", cfg.Ledger.Name)
	require.Equal(t, "HTC", cfg.Ledger.Symbol)
	require.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	require.True(t, cfg.Pauses.View().IsPaused("reputation"))
	require.False(t, cfg.Pauses.View().IsPaused("ledger"))
	require.Equal(t, 120, cfg.RateLimit.RequestsPerMinute)
	require.NoError(t, Validate(cfg))
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("ValidatorKey = \"abc\"\n"), 0o644))
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}
	require.NoError(t, Validate(base()))

	cases := map[string]func(*Config){
		"interval too small": func(c *Config) { c.BlockIntervalMs = 1 },
		"bad ledger owner":   func(c *Config) { c.Ledger.Owner = "nope" },
		"bad booking owner":  func(c *Config) { c.Booking.Owner = "0x1234" },
		"burst missing":      func(c *Config) { c.RateLimit.RequestsPerMinute = 10 },
		"negative rate":      func(c *Config) { c.RateLimit.Burst = -1 },
		"unknown log level":  func(c *Config) { c.LogLevel = "loud" },
		"no listen address":  func(c *Config) { c.ListenAddress = " " },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			require.Error(t, Validate(cfg))
		})
	}
	require.Error(t, Validate(nil))
}

func TestPassphraseSourceOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	source := func() (string, error) { return "from-source", nil }

	cfg, err := Load(path, WithKeystorePassphraseSource(source))
	require.NoError(t, err)
	_, err = cfg.OperatorKey()
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	t.Setenv(reloaded.OperatorPassphraseEnv, "wrong")
	_, err = reloaded.OperatorKey()
	require.ErrorIs(t, err, crypto.ErrWrongPassphrase)
}
