package ledger

import (
	"strings"

	"github.com/holiman/uint256"

	"hourbank/core/types"
	"hourbank/crypto"
)

const (
	EventTypeMinted       = "ledger.minted"
	EventTypeBurned       = "ledger.burned"
	EventTypeTransferred  = "ledger.transferred"
	EventTypeOwnerChanged = "ledger.ownerChanged"
)

// NewMintedEvent returns the payload emitted after credits are minted.
func NewMintedEvent(recipient [20]byte, amount, totalSupply *uint256.Int) *types.Event {
	return &types.Event{Type: EventTypeMinted, Attributes: map[string]string{
		"recipient":   crypto.FromArray(recipient).String(),
		"amount":      cloneAmount(amount).Dec(),
		"totalSupply": cloneAmount(totalSupply).Dec(),
	}}
}

// NewBurnedEvent returns the payload emitted after credits are burned.
func NewBurnedEvent(holder [20]byte, amount, totalSupply *uint256.Int) *types.Event {
	return &types.Event{Type: EventTypeBurned, Attributes: map[string]string{
		"holder":      crypto.FromArray(holder).String(),
		"amount":      cloneAmount(amount).Dec(),
		"totalSupply": cloneAmount(totalSupply).Dec(),
	}}
}

// NewTransferredEvent returns the payload for a balance movement. The memo is
// only ever surfaced here; it is not persisted in state.
func NewTransferredEvent(from, to [20]byte, amount *uint256.Int, memo string) *types.Event {
	attrs := map[string]string{
		"from":   crypto.FromArray(from).String(),
		"to":     crypto.FromArray(to).String(),
		"amount": cloneAmount(amount).Dec(),
	}
	if strings.TrimSpace(memo) != "" {
		attrs["memo"] = memo
	}
	return &types.Event{Type: EventTypeTransferred, Attributes: attrs}
}

// NewOwnerChangedEvent returns the payload emitted when ownership moves.
func NewOwnerChangedEvent(previous, next [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnerChanged, Attributes: map[string]string{
		"previous": crypto.FromArray(previous).String(),
		"owner":    crypto.FromArray(next).String(),
	}}
}
