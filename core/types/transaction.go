package types

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Module names accepted by the host dispatcher.
const (
	ModuleLedger     = "ledger"
	ModuleBooking    = "booking"
	ModuleReputation = "reputation"
)

// Call names one operation on one native module. Args is the JSON encoding
// of the method's argument object.
type Call struct {
	Module string          `json:"module"`
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Normalize trims and lower-cases the routing fields.
func (c Call) Normalize() Call {
	c.Module = strings.ToLower(strings.TrimSpace(c.Module))
	c.Method = strings.ToLower(strings.TrimSpace(c.Method))
	return c
}

// NewCall encodes args and returns the resulting call.
func NewCall(module, method string, args interface{}) (Call, error) {
	call := Call{Module: module, Method: method}
	if args == nil {
		return call, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return Call{}, err
	}
	call.Args = raw
	return call, nil
}

// Transaction is a signed call submitted by an account. The signer becomes the
// caller of the module operation.
type Transaction struct {
	Nonce uint64 `json:"nonce"`
	Call  Call   `json:"call"`

	R *big.Int `json:"r"`
	S *big.Int `json:"s"`
	V *big.Int `json:"v"`

	from []byte
}

// Hash covers the nonce and the call; signatures are excluded.
func (tx *Transaction) Hash() ([]byte, error) {
	txData := struct {
		Nonce uint64
		Call  Call
	}{tx.Nonce, tx.Call}

	b, err := json.Marshal(txData)
	if err != nil {
		return nil, err
	}
	hash := sha256.Sum256(b)
	return hash[:], nil
}

func (tx *Transaction) Sign(privKey *ecdsa.PrivateKey) error {
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(hash, privKey)
	if err != nil {
		return err
	}
	tx.R = new(big.Int).SetBytes(sig[:32])
	tx.S = new(big.Int).SetBytes(sig[32:64])
	tx.V = new(big.Int).SetBytes([]byte{sig[64] + 27})
	tx.from = nil
	return nil
}

// From recovers the signer address.
func (tx *Transaction) From() ([]byte, error) {
	if tx.from != nil {
		return tx.from, nil
	}
	if tx.R == nil || tx.S == nil || tx.V == nil {
		return nil, errors.New("transaction: missing signature")
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	rBytes, sBytes := tx.R.Bytes(), tx.S.Bytes()
	if len(rBytes) > 32 || len(sBytes) > 32 {
		return nil, errors.New("transaction: malformed signature")
	}
	v := tx.V.Uint64()
	if v != 27 && v != 28 {
		return nil, errors.New("transaction: invalid recovery id")
	}
	sig := make([]byte, 65)
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = byte(v - 27)
	pubKey, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	tx.from = crypto.PubkeyToAddress(*pubKey).Bytes()
	return tx.from, nil
}
