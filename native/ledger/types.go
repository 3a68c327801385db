package ledger

import (
	"errors"

	"github.com/holiman/uint256"

	coreerrors "hourbank/core/errors"
)

const moduleName = "ledger"

// Token defaults applied at genesis when the configuration leaves them empty.
const (
	DefaultName     = "HourBank Time Credits"
	DefaultSymbol   = "HTC"
	DefaultTokenURI = "https://hourbank.io/token-metadata.json"
	// Decimals is fixed: one credit is 10^6 base units.
	Decimals uint8 = 6
)

var (
	ErrUnauthorized        = coreerrors.New(moduleName, 100, coreerrors.ErrUnauthorized, "unauthorized")
	ErrInvalidAmount       = coreerrors.New(moduleName, 101, coreerrors.ErrInvalidAmount, "amount must be positive")
	ErrAmountOverflow      = coreerrors.New(moduleName, 101, coreerrors.ErrInvalidAmount, "amount overflows balance or supply")
	ErrInsufficientBalance = coreerrors.New(moduleName, 102, coreerrors.ErrInsufficientBalance, "insufficient balance")
)

var (
	errNilState           = errors.New("ledger engine: state not configured")
	errNotInitialized     = errors.New("ledger engine: not initialised")
	errAlreadyInitialized = errors.New("ledger engine: already initialised")
)

// Metadata is the process-wide token record.
type Metadata struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TokenURI    string
	Owner       [20]byte
	TotalSupply *uint256.Int
}

// Clone returns a deep copy of the metadata.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	clone := *m
	clone.TotalSupply = cloneAmount(m.TotalSupply)
	return &clone
}

// storedMetadata is the RLP layout persisted under the metadata key.
type storedMetadata struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TokenURI    string
	Owner       [20]byte
	TotalSupply *uint256.Int
}

func (s *storedMetadata) toMetadata() *Metadata {
	return &Metadata{
		Name:        s.Name,
		Symbol:      s.Symbol,
		Decimals:    s.Decimals,
		TokenURI:    s.TokenURI,
		Owner:       s.Owner,
		TotalSupply: cloneAmount(s.TotalSupply),
	}
}

func cloneAmount(v *uint256.Int) *uint256.Int {
	if v == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(v)
}
