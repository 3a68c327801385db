package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"hourbank/crypto"
	"hourbank/native/ledger"

	"github.com/BurntSushi/toml"
)

// Config is the node configuration read from a TOML file.
type Config struct {
	ListenAddress   string `toml:"ListenAddress"`
	DataDir         string `toml:"DataDir"`
	JournalPath     string `toml:"JournalPath"`
	BlockIntervalMs uint64 `toml:"BlockIntervalMs"`
	Env             string `toml:"Env"`
	LogFile         string `toml:"LogFile"`
	LogLevel        string `toml:"LogLevel"`
	// OperatorKeystorePath holds the key that owns the ledger and booking
	// modules unless an explicit owner is configured.
	OperatorKeystorePath  string `toml:"OperatorKeystorePath"`
	OperatorPassphraseEnv string `toml:"OperatorPassphraseEnv"`

	Ledger    Ledger    `toml:"Ledger"`
	Booking   Booking   `toml:"Booking"`
	Pauses    Pauses    `toml:"Pauses"`
	RateLimit RateLimit `toml:"RateLimit"`

	passphrase PassphraseSource
}

// PassphraseSource resolves the operator keystore passphrase.
type PassphraseSource func() (string, error)

// Option customises Load.
type Option func(*Config)

// WithKeystorePassphraseSource overrides the environment lookup used to
// unlock the operator keystore.
func WithKeystorePassphraseSource(source PassphraseSource) Option {
	return func(cfg *Config) {
		if source != nil {
			cfg.passphrase = source
		}
	}
}

// Load loads the configuration from the given path. A missing file is replaced
// by a default configuration and a freshly generated operator keystore.
func Load(path string, opts ...Option) (*Config, error) {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, cfg)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if strings.TrimSpace(cfg.OperatorKeystorePath) == "" {
		cfg.OperatorKeystorePath = defaultKeystorePath(path)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./hourbank-data"
	}
	if strings.TrimSpace(cfg.JournalPath) == "" {
		cfg.JournalPath = filepath.Join(cfg.DataDir, "journal.db")
	}
	if cfg.BlockIntervalMs == 0 {
		cfg.BlockIntervalMs = 1000
	}
	if strings.TrimSpace(cfg.Ledger.Name) == "" {
		cfg.Ledger.Name = ledger.DefaultName
	}
	if strings.TrimSpace(cfg.Ledger.Symbol) == "" {
		cfg.Ledger.Symbol = ledger.DefaultSymbol
	}
	if strings.TrimSpace(cfg.Ledger.TokenURI) == "" {
		cfg.Ledger.TokenURI = ledger.DefaultTokenURI
	}
	if strings.TrimSpace(cfg.OperatorPassphraseEnv) == "" {
		cfg.OperatorPassphraseEnv = "HOURBANK_KEYSTORE_PASSPHRASE"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string, cfg *Config) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	cfg.OperatorKeystorePath = defaultKeystorePath(path)
	passphrase, err := cfg.keystorePassphrase()
	if err != nil {
		return nil, err
	}
	if err := crypto.WriteOperatorKey(cfg.OperatorKeystorePath, key, passphrase); err != nil {
		return nil, err
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OperatorKey decrypts the operator keystore. The passphrase comes from the
// configured source, or from OperatorPassphraseEnv when none was supplied.
func (c *Config) OperatorKey() (*crypto.PrivateKey, error) {
	passphrase, err := c.keystorePassphrase()
	if err != nil {
		return nil, err
	}
	return crypto.ReadOperatorKey(c.OperatorKeystorePath, passphrase)
}

func (c *Config) keystorePassphrase() (string, error) {
	if c.passphrase != nil {
		return c.passphrase()
	}
	return os.Getenv(c.OperatorPassphraseEnv), nil
}

// SlogLevel maps LogLevel to a slog level; unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "operator.keystore")
}
