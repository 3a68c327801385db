// Package journal keeps an append-only record of every call the host executed
// and every state root it committed, so a node's history can be re-executed
// from genesis and checked root by root.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"hourbank/core/types"
)

var (
	bucketMeta  = []byte("meta")
	bucketCalls = []byte("calls")
	bucketRoots = []byte("roots")

	genesisKey = []byte("genesis")

	// ErrNoGenesis is returned when a journal has no genesis record.
	ErrNoGenesis = errors.New("journal: genesis not recorded")
	// ErrGenesisRecorded is returned when a second genesis is written.
	ErrGenesisRecorded = errors.New("journal: genesis already recorded")
)

// Entry is one executed call. Signed transactions are kept whole so replay
// goes through the same nonce and signature path; trusted calls only carry
// the caller.
type Entry struct {
	Seq    uint64             `json:"seq"`
	Height uint64             `json:"height"`
	Caller [20]byte           `json:"caller"`
	Call   types.Call         `json:"call"`
	Tx     *types.Transaction `json:"tx,omitempty"`
}

// Root is a committed state root at a height.
type Root struct {
	Height uint64      `json:"height"`
	Root   common.Hash `json:"root"`
}

// Journal is a bbolt-backed call log.
type Journal struct {
	db *bolt.DB
}

// Open creates or opens the journal at path. Read-only opens expect an
// existing journal.
func Open(path string, options *bolt.Options) (*Journal, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if options.ReadOnly {
		return &Journal{db: db}, nil
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketMeta, bucketCalls, bucketRoots} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying Bolt database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// RecordGenesis stores the encoded genesis configuration. It may only be
// written once.
func (j *Journal) RecordGenesis(encoded []byte) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketMeta)
		if bucket.Get(genesisKey) != nil {
			return ErrGenesisRecorded
		}
		return bucket.Put(genesisKey, append([]byte(nil), encoded...))
	})
}

// Genesis returns the encoded genesis configuration.
func (j *Journal) Genesis() ([]byte, error) {
	var out []byte
	err := j.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketMeta).Get(genesisKey)
		if raw == nil {
			return ErrNoGenesis
		}
		out = append([]byte(nil), raw...)
		return nil
	})
	return out, err
}

// Append stores entry under the next sequence number and returns it.
func (j *Journal) Append(entry Entry) (uint64, error) {
	var seq uint64
	err := j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCalls)
		next, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		entry.Seq = next
		encoded, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := bucket.Put(itob(next), encoded); err != nil {
			return err
		}
		seq = next
		return nil
	})
	return seq, err
}

// RecordRoot stores the state root committed at height, replacing any earlier
// root for the same height.
func (j *Journal) RecordRoot(height uint64, root common.Hash) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoots).Put(itob(height), root.Bytes())
	})
}

// Entries calls fn for every entry in sequence order. Iteration stops at the
// first error.
func (j *Journal) Entries(fn func(Entry) error) error {
	return j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCalls).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("journal: decode entry %d: %w", binary.BigEndian.Uint64(k), err)
			}
			return fn(entry)
		})
	})
}

// Roots returns every recorded root in height order.
func (j *Journal) Roots() ([]Root, error) {
	var roots []Root
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRoots).ForEach(func(k, v []byte) error {
			roots = append(roots, Root{Height: binary.BigEndian.Uint64(k), Root: common.BytesToHash(v)})
			return nil
		})
	})
	return roots, err
}
