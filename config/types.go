package config

import "hourbank/native/common"

// Ledger seeds the credit ledger at genesis.
type Ledger struct {
	// Owner is the bech32 or 0x-hex account allowed to mint and burn. Empty
	// means the operator key.
	Owner    string `toml:"Owner"`
	Name     string `toml:"Name"`
	Symbol   string `toml:"Symbol"`
	TokenURI string `toml:"TokenURI"`
}

// Booking seeds the booking engine at genesis.
type Booking struct {
	Owner string `toml:"Owner"`
}

type Pauses struct {
	Ledger     bool `toml:"Ledger"`
	Booking    bool `toml:"Booking"`
	Reputation bool `toml:"Reputation"`
}

// View converts the toggles into the guard consulted by the host.
func (p Pauses) View() common.Pauses {
	return common.Pauses{
		"ledger":     p.Ledger,
		"booking":    p.Booking,
		"reputation": p.Reputation,
	}
}

// RateLimit bounds RPC requests per client address.
type RateLimit struct {
	RequestsPerMinute int `toml:"RequestsPerMinute"`
	Burst             int `toml:"Burst"`
}
