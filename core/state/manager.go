package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"hourbank/storage/trie"
)

// Manager is the key-value view over the state trie handed to the native
// engines. Values are RLP encoded and keys are hashed with keccak256 before
// they reach the trie.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut stores value under key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.trie == nil {
		return fmt.Errorf("state manager unavailable")
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed; a nil out only checks existence.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.trie == nil {
		return false, fmt.Errorf("state manager unavailable")
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Root returns the state root including pending writes.
func (m *Manager) Root() common.Hash {
	if m == nil || m.trie == nil {
		return common.Hash{}
	}
	return m.trie.Hash()
}
