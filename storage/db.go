package storage

import (
	"errors"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	"github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("storage: key not found")

// Database is the key-value backend shared by the state trie and the host's
// bookkeeping records (chain head, genesis marker).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	// TrieDB exposes the node database the state trie commits into.
	TrieDB() *triedb.Database
	Close()
}

type backend struct {
	kv     ethdb.Database
	trieDB *triedb.Database
}

func newBackend(store ethdb.KeyValueStore) backend {
	db := rawdb.NewDatabase(store)
	return backend{
		kv:     db,
		trieDB: triedb.NewDatabase(db, triedb.HashDefaults),
	}
}

func (b backend) Put(key []byte, value []byte) error {
	return b.kv.Put(key, value)
}

func (b backend) Get(key []byte) ([]byte, error) {
	ok, err := b.kv.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return b.kv.Get(key)
}

func (b backend) Has(key []byte) (bool, error) {
	return b.kv.Has(key)
}

func (b backend) TrieDB() *triedb.Database {
	return b.trieDB
}

func (b backend) close() {
	_ = b.trieDB.Close()
	_ = b.kv.Close()
}

// --- In-Memory DB (for testing and journal replay) ---

type MemDB struct {
	backend
}

func NewMemDB() *MemDB {
	return &MemDB{backend: newBackend(memorydb.New())}
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	db.close()
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	backend
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	store, err := leveldb.NewCustom(path, "hourbank/db/", func(options *opt.Options) {
		options.OpenFilesCacheCapacity = 64
		options.BlockCacheCapacity = 16 * opt.MiB
		options.WriteBuffer = 8 * opt.MiB
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{backend: newBackend(store)}, nil
}

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.close()
}
