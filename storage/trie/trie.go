package trie

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"

	"hourbank/storage"
)

var headKey = []byte("hourbank/head")

// Head is the last committed root together with the height the node resumes
// at after a restart.
type Head struct {
	Height uint64      `json:"height"`
	Root   common.Hash `json:"root"`
}

// Trie is the HourBank state trie: go-ethereum's Merkle Patricia trie plus
// the head record naming the committed root to reopen. Keys are hashed by the
// state manager.
//
// Trie is not safe for concurrent use.
type Trie struct {
	store  storage.Database
	trieDB *triedb.Database
	trie   *gethtrie.Trie
	root   common.Hash
}

// Open reopens the state recorded as head in store. A fresh store yields the
// empty trie at height zero.
func Open(store storage.Database) (*Trie, uint64, error) {
	head, err := LoadHead(store)
	if err != nil {
		return nil, 0, err
	}
	var root []byte
	if head.Root != (common.Hash{}) {
		root = head.Root.Bytes()
	}
	tr, err := NewTrie(store, root)
	if err != nil {
		return nil, 0, err
	}
	return tr, head.Height, nil
}

// LoadHead reads the head record. A missing record is the zero Head.
func LoadHead(store storage.Database) (Head, error) {
	var head Head
	raw, err := store.Get(headKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return head, nil
	case err != nil:
		return head, fmt.Errorf("trie: load head: %w", err)
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return head, fmt.Errorf("trie: decode head: %w", err)
	}
	return head, nil
}

// NewTrie opens a trie at root without consulting the head record. A nil or
// empty root denotes the empty trie.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	trieDB := store.TrieDB()
	rootHash := gethtypes.EmptyRootHash
	if len(root) > 0 {
		rootHash = common.BytesToHash(root)
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(rootHash), trieDB)
	if err != nil {
		return nil, err
	}
	return &Trie{
		store:  store,
		trieDB: trieDB,
		trie:   underlying,
		root:   rootHash,
	}, nil
}

// Get retrieves the value stored under key. Missing keys yield a nil slice.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(key)
}

// Update inserts or replaces the value stored under key.
func (t *Trie) Update(key, value []byte) error {
	return t.trie.Update(key, value)
}

// Hash returns the root hash including uncommitted mutations.
func (t *Trie) Hash() common.Hash {
	return t.trie.Hash()
}

// Root returns the last committed root hash.
func (t *Trie) Root() common.Hash {
	return t.root
}

// Copy returns an independent working copy sharing the node database. The
// host runs every call against a copy and adopts it only on success.
func (t *Trie) Copy() *Trie {
	return &Trie{
		store:  t.store,
		trieDB: t.trieDB,
		trie:   t.trie.Copy(),
		root:   t.root,
	}
}

// Commit flushes pending mutations as the state of height, chaining them onto
// the previous committed root, and records the result as head.
func (t *Trie) Commit(height uint64) (common.Hash, error) {
	newRoot, nodes := t.trie.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Update(newRoot, t.root, height, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.trieDB.Commit(newRoot, false); err != nil {
			return common.Hash{}, err
		}
	}
	underlying, err := gethtrie.New(gethtrie.TrieID(newRoot), t.trieDB)
	if err != nil {
		return common.Hash{}, err
	}
	t.trie = underlying
	t.root = newRoot
	if err := t.MarkHead(height); err != nil {
		return common.Hash{}, err
	}
	return newRoot, nil
}

// MarkHead records the committed root as the state to resume at height.
// Uncommitted mutations are not part of the record.
func (t *Trie) MarkHead(height uint64) error {
	encoded, err := json.Marshal(Head{Height: height, Root: t.root})
	if err != nil {
		return err
	}
	if err := t.store.Put(headKey, encoded); err != nil {
		return fmt.Errorf("trie: store head: %w", err)
	}
	return nil
}
