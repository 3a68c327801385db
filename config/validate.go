package config

import (
	"fmt"
	"strings"

	"hourbank/crypto"
)

var (
	MinBlockIntervalMs = uint64(50)
)

// Validate rejects configurations the node cannot start with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if cfg.BlockIntervalMs < MinBlockIntervalMs {
		return fmt.Errorf("config: BlockIntervalMs must be at least %d", MinBlockIntervalMs)
	}
	if owner := strings.TrimSpace(cfg.Ledger.Owner); owner != "" {
		if _, err := crypto.ParseAccount(owner); err != nil {
			return fmt.Errorf("config: ledger.Owner: %w", err)
		}
	}
	if owner := strings.TrimSpace(cfg.Booking.Owner); owner != "" {
		if _, err := crypto.ParseAccount(owner); err != nil {
			return fmt.Errorf("config: booking.Owner: %w", err)
		}
	}
	if len(strings.TrimSpace(cfg.Ledger.Symbol)) > 11 {
		return fmt.Errorf("config: ledger.Symbol too long")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("config: rate limit values must not be negative")
	}
	if cfg.RateLimit.RequestsPerMinute > 0 && cfg.RateLimit.Burst == 0 {
		return fmt.Errorf("config: RateLimit.Burst required when RequestsPerMinute is set")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown LogLevel %q", cfg.LogLevel)
	}
	return nil
}
