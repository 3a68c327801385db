package ledger

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"hourbank/core/events"
	"hourbank/core/types"
)

// engineState abstracts the subset of the state manager the ledger needs.
type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	metadataKey   = []byte("ledger/meta")
	balancePrefix = []byte("ledger/balance/")
)

func balanceKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", balancePrefix, addr))
}

// Engine implements the fungible time-credit ledger: mint and burn by the
// owner, transfers by the holder, and total-supply conservation.
type Engine struct {
	state   engineState
	emitter events.Emitter
}

// NewEngine creates a ledger engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) loadMetadata() (*storedMetadata, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var meta storedMetadata
	ok, err := e.state.KVGet(metadataKey, &meta)
	if err != nil {
		return nil, fmt.Errorf("ledger: load metadata: %w", err)
	}
	if !ok {
		return nil, errNotInitialized
	}
	if meta.TotalSupply == nil {
		meta.TotalSupply = uint256.NewInt(0)
	}
	return &meta, nil
}

func (e *Engine) storeMetadata(meta *storedMetadata) error {
	if err := e.state.KVPut(metadataKey, meta); err != nil {
		return fmt.Errorf("ledger: store metadata: %w", err)
	}
	return nil
}

func (e *Engine) loadBalance(addr [20]byte) (*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	balance := new(uint256.Int)
	ok, err := e.state.KVGet(balanceKey(addr), balance)
	if err != nil {
		return nil, fmt.Errorf("ledger: load balance: %w", err)
	}
	if !ok {
		return uint256.NewInt(0), nil
	}
	return balance, nil
}

func (e *Engine) storeBalance(addr [20]byte, balance *uint256.Int) error {
	if err := e.state.KVPut(balanceKey(addr), cloneAmount(balance)); err != nil {
		return fmt.Errorf("ledger: store balance: %w", err)
	}
	return nil
}

// Initialize records the token metadata and owner. It may only run once.
func (e *Engine) Initialize(meta Metadata) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	ok, err := e.state.KVGet(metadataKey, nil)
	if err != nil {
		return fmt.Errorf("ledger: load metadata: %w", err)
	}
	if ok {
		return errAlreadyInitialized
	}
	name := strings.TrimSpace(meta.Name)
	if name == "" {
		name = DefaultName
	}
	symbol := strings.ToUpper(strings.TrimSpace(meta.Symbol))
	if symbol == "" {
		symbol = DefaultSymbol
	}
	if meta.Decimals != 0 && meta.Decimals != Decimals {
		return fmt.Errorf("ledger: decimals fixed at %d", Decimals)
	}
	return e.storeMetadata(&storedMetadata{
		Name:        name,
		Symbol:      symbol,
		Decimals:    Decimals,
		TokenURI:    strings.TrimSpace(meta.TokenURI),
		Owner:       meta.Owner,
		TotalSupply: uint256.NewInt(0),
	})
}

// Mint credits amount to recipient and grows the total supply. Only the owner
// may mint.
func (e *Engine) Mint(caller [20]byte, amount *uint256.Int, recipient [20]byte) error {
	meta, err := e.loadMetadata()
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	balance, err := e.loadBalance(recipient)
	if err != nil {
		return err
	}
	nextBalance, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return ErrAmountOverflow
	}
	nextSupply, overflow := new(uint256.Int).AddOverflow(meta.TotalSupply, amount)
	if overflow {
		return ErrAmountOverflow
	}
	if err := e.storeBalance(recipient, nextBalance); err != nil {
		return err
	}
	meta.TotalSupply = nextSupply
	if err := e.storeMetadata(meta); err != nil {
		return err
	}
	e.emit(NewMintedEvent(recipient, amount, nextSupply))
	return nil
}

// Burn destroys amount from holder and shrinks the total supply. Only the
// owner may burn.
func (e *Engine) Burn(caller [20]byte, amount *uint256.Int, holder [20]byte) error {
	meta, err := e.loadMetadata()
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	balance, err := e.loadBalance(holder)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return ErrInsufficientBalance
	}
	// Supply always covers any single balance, so this cannot underflow while
	// the conservation invariant holds.
	if meta.TotalSupply.Lt(amount) {
		return fmt.Errorf("ledger: supply underflow")
	}
	nextBalance := new(uint256.Int).Sub(balance, amount)
	nextSupply := new(uint256.Int).Sub(meta.TotalSupply, amount)
	if err := e.storeBalance(holder, nextBalance); err != nil {
		return err
	}
	meta.TotalSupply = nextSupply
	if err := e.storeMetadata(meta); err != nil {
		return err
	}
	e.emit(NewBurnedEvent(holder, amount, nextSupply))
	return nil
}

// Transfer moves amount from sender to recipient. The caller must be the
// sender; there is no allowance model. memo is only carried on the emitted
// event.
func (e *Engine) Transfer(caller [20]byte, amount *uint256.Int, sender, recipient [20]byte, memo string) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if caller != sender {
		return ErrUnauthorized
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	fromBalance, err := e.loadBalance(sender)
	if err != nil {
		return err
	}
	if fromBalance.Lt(amount) {
		return ErrInsufficientBalance
	}
	if sender != recipient {
		toBalance, err := e.loadBalance(recipient)
		if err != nil {
			return err
		}
		nextTo, overflow := new(uint256.Int).AddOverflow(toBalance, amount)
		if overflow {
			return ErrAmountOverflow
		}
		nextFrom := new(uint256.Int).Sub(fromBalance, amount)
		if err := e.storeBalance(sender, nextFrom); err != nil {
			return err
		}
		if err := e.storeBalance(recipient, nextTo); err != nil {
			return err
		}
	}
	e.emit(NewTransferredEvent(sender, recipient, amount, memo))
	return nil
}

// SetOwner hands mint/burn authority to newOwner.
func (e *Engine) SetOwner(caller, newOwner [20]byte) error {
	meta, err := e.loadMetadata()
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrUnauthorized
	}
	previous := meta.Owner
	meta.Owner = newOwner
	if err := e.storeMetadata(meta); err != nil {
		return err
	}
	e.emit(NewOwnerChangedEvent(previous, newOwner))
	return nil
}

// The metadata reads below (Metadata, TotalSupply, Name, Symbol, Decimals,
// TokenURI, Owner) fail with errNotInitialized until Initialize has run. The
// host applies genesis before accepting calls, so once a node is serving they
// only fail on a storage fault. BalanceOf does not depend on metadata.

// BalanceOf returns the balance of addr; unknown accounts hold zero.
func (e *Engine) BalanceOf(addr [20]byte) (*uint256.Int, error) {
	return e.loadBalance(addr)
}

// Metadata returns a copy of the token record.
func (e *Engine) Metadata() (*Metadata, error) {
	meta, err := e.loadMetadata()
	if err != nil {
		return nil, err
	}
	return meta.toMetadata(), nil
}

// TotalSupply returns the number of base units in circulation.
func (e *Engine) TotalSupply() (*uint256.Int, error) {
	meta, err := e.loadMetadata()
	if err != nil {
		return nil, err
	}
	return cloneAmount(meta.TotalSupply), nil
}

// Name returns the display name fixed at initialisation.
func (e *Engine) Name() (string, error) {
	meta, err := e.loadMetadata()
	if err != nil {
		return "", err
	}
	return meta.Name, nil
}

// Symbol returns the ticker fixed at initialisation.
func (e *Engine) Symbol() (string, error) {
	meta, err := e.loadMetadata()
	if err != nil {
		return "", err
	}
	return meta.Symbol, nil
}

// Decimals returns the number of fractional digits of one credit, 6 for every
// initialised ledger.
func (e *Engine) Decimals() (uint8, error) {
	meta, err := e.loadMetadata()
	if err != nil {
		return 0, err
	}
	return meta.Decimals, nil
}

// TokenURI returns the metadata URI; ok is false when none was configured.
func (e *Engine) TokenURI() (string, bool, error) {
	meta, err := e.loadMetadata()
	if err != nil {
		return "", false, err
	}
	return meta.TokenURI, meta.TokenURI != "", nil
}

// Owner returns the account allowed to mint, burn and reassign ownership.
func (e *Engine) Owner() ([20]byte, error) {
	meta, err := e.loadMetadata()
	if err != nil {
		return [20]byte{}, err
	}
	return meta.Owner, nil
}
