package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"hourbank/core/types"
	"hourbank/crypto"
)

// Method names accepted in types.Call. Matching is case-insensitive.
const (
	MethodMint     = "mint"
	MethodBurn     = "burn"
	MethodTransfer = "transfer"
	MethodSetOwner = "setOwner"

	MethodCreateBooking    = "createBooking"
	MethodAcceptBooking    = "acceptBooking"
	MethodCompleteBooking  = "completeBooking"
	MethodCancelBooking    = "cancelBooking"
	MethodSetContractOwner = "setContractOwner"

	MethodAddRating = "addRating"
)

var (
	// ErrUnknownMethod is returned for calls no module handles.
	ErrUnknownMethod = errors.New("host: unknown module method")
	// ErrInvalidArgs is returned when call arguments cannot be decoded.
	ErrInvalidArgs = errors.New("host: invalid call arguments")
)

type operation func(ctx *execContext) (interface{}, error)

type decoder func(args json.RawMessage) (operation, error)

var dispatchTable = map[string]map[string]decoder{
	types.ModuleLedger: {
		strings.ToLower(MethodMint):     decodeMint,
		strings.ToLower(MethodBurn):     decodeBurn,
		strings.ToLower(MethodTransfer): decodeTransfer,
		strings.ToLower(MethodSetOwner): decodeLedgerSetOwner,
	},
	types.ModuleBooking: {
		strings.ToLower(MethodCreateBooking):    decodeCreateBooking,
		strings.ToLower(MethodAcceptBooking):    decodeAcceptBooking,
		strings.ToLower(MethodCompleteBooking):  decodeCompleteBooking,
		strings.ToLower(MethodCancelBooking):    decodeCancelBooking,
		strings.ToLower(MethodSetContractOwner): decodeBookingSetOwner,
	},
	types.ModuleReputation: {
		strings.ToLower(MethodAddRating): decodeAddRating,
	},
}

// resolve decodes the arguments of a normalised call before any state is
// touched.
func resolve(call types.Call) (operation, error) {
	methods, ok := dispatchTable[call.Module]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, call.Module, call.Method)
	}
	decode, ok := methods[call.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, call.Module, call.Method)
	}
	op, err := decode(call.Args)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ErrInvalidArgs, call.Module, call.Method, err)
	}
	return op, nil
}

func decodeArgs(raw json.RawMessage, out interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// Amount is a base-unit quantity encoded as a decimal string.
type Amount string

func (a Amount) parse() (*uint256.Int, error) {
	trimmed := strings.TrimSpace(string(a))
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", trimmed, err)
	}
	return v, nil
}

func parseAccount(field, value string) ([20]byte, error) {
	addr, err := crypto.ParseAccount(value)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr, nil
}

type MintArgs struct {
	Amount    Amount `json:"amount"`
	Recipient string `json:"recipient"`
}

func decodeMint(raw json.RawMessage) (operation, error) {
	var args MintArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	amount, err := args.Amount.parse()
	if err != nil {
		return nil, err
	}
	recipient, err := parseAccount("recipient", args.Recipient)
	if err != nil {
		return nil, err
	}
	return func(ctx *execContext) (interface{}, error) {
		return nil, ctx.ledger.Mint(ctx.caller, amount, recipient)
	}, nil
}

type BurnArgs struct {
	Amount Amount `json:"amount"`
	Holder string `json:"holder"`
}

func decodeBurn(raw json.RawMessage) (operation, error) {
	var args BurnArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	amount, err := args.Amount.parse()
	if err != nil {
		return nil, err
	}
	holder, err := parseAccount("holder", args.Holder)
	if err != nil {
		return nil, err
	}
	return func(ctx *execContext) (interface{}, error) {
		return nil, ctx.ledger.Burn(ctx.caller, amount, holder)
	}, nil
}

type TransferArgs struct {
	Amount    Amount `json:"amount"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Memo      string `json:"memo,omitempty"`
}

func decodeTransfer(raw json.RawMessage) (operation, error) {
	var args TransferArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	amount, err := args.Amount.parse()
	if err != nil {
		return nil, err
	}
	sender, err := parseAccount("sender", args.Sender)
	if err != nil {
		return nil, err
	}
	recipient, err := parseAccount("recipient", args.Recipient)
	if err != nil {
		return nil, err
	}
	return func(ctx *execContext) (interface{}, error) {
		return nil, ctx.ledger.Transfer(ctx.caller, amount, sender, recipient, args.Memo)
	}, nil
}

type SetOwnerArgs struct {
	NewOwner string `json:"newOwner"`
}

func decodeLedgerSetOwner(raw json.RawMessage) (operation, error) {
	var args SetOwnerArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	owner, err := parseAccount("newOwner", args.NewOwner)
	if err != nil {
		return nil, err
	}
	return func(ctx *execContext) (interface{}, error) {
		return nil, ctx.ledger.SetOwner(ctx.caller, owner)
	}, nil
}

type CreateBookingArgs struct {
	Provider    string `json:"provider"`
	SkillID     uint64 `json:"skillId"`
	Description string `json:"description"`
	Credits     uint64 `json:"credits"`
	Deadline    uint64 `json:"deadline"`
}

// CreateBookingResult is the receipt result of a successful create.
type CreateBookingResult struct {
	ID uint64 `json:"id"`
}

func decodeCreateBooking(raw json.RawMessage) (operation, error) {
	var args CreateBookingArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	provider, err := parseAccount("provider", args.Provider)
	if err != nil {
		return nil, err
	}
	return func(ctx *execContext) (interface{}, error) {
		id, err := ctx.bookings.CreateBooking(ctx.caller, provider, args.SkillID, args.Description, args.Credits, args.Deadline)
		if err != nil {
			return nil, err
		}
		return CreateBookingResult{ID: id}, nil
	}, nil
}

type BookingIDArgs struct {
	ID uint64 `json:"id"`
}

func decodeAcceptBooking(raw json.RawMessage) (operation, error) {
	var args BookingIDArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return func(ctx *execContext) (interface{}, error) {
		return nil, ctx.bookings.AcceptBooking(ctx.caller, args.ID)
	}, nil
}

type CompleteBookingArgs struct {
	ID          uint64 `json:"id"`
	HoursWorked uint64 `json:"hoursWorked"`
}

func decodeCompleteBooking(raw json.RawMessage) (operation, error) {
	var args CompleteBookingArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return func(ctx *execContext) (interface{}, error) {
		return nil, ctx.bookings.CompleteBooking(ctx.caller, args.ID, args.HoursWorked)
	}, nil
}

func decodeCancelBooking(raw json.RawMessage) (operation, error) {
	var args BookingIDArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return func(ctx *execContext) (interface{}, error) {
		return nil, ctx.bookings.CancelBooking(ctx.caller, args.ID)
	}, nil
}

func decodeBookingSetOwner(raw json.RawMessage) (operation, error) {
	var args SetOwnerArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	owner, err := parseAccount("newOwner", args.NewOwner)
	if err != nil {
		return nil, err
	}
	return func(ctx *execContext) (interface{}, error) {
		return nil, ctx.bookings.SetOwner(ctx.caller, owner)
	}, nil
}

type AddRatingArgs struct {
	Rated     string `json:"rated"`
	BookingID uint64 `json:"bookingId"`
	Score     uint64 `json:"score"`
	Comment   string `json:"comment"`
}

func decodeAddRating(raw json.RawMessage) (operation, error) {
	var args AddRatingArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	rated, err := parseAccount("rated", args.Rated)
	if err != nil {
		return nil, err
	}
	return func(ctx *execContext) (interface{}, error) {
		return nil, ctx.reputation.AddRating(ctx.caller, rated, args.BookingID, args.Score, args.Comment)
	}, nil
}
