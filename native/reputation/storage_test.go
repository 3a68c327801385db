package reputation

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/rlp"

	coreerrors "hourbank/core/errors"
)

type memoryStore struct {
	data map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string][]byte)}
}

func (m *memoryStore) KVPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.data[string(key)] = encoded
	return nil
}

func (m *memoryStore) KVGet(key []byte, out interface{}) (bool, error) {
	encoded, ok := m.data[string(key)]
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

func testAccount(label string) [20]byte {
	var addr [20]byte
	copy(addr[:], []byte(label))
	return addr
}

func TestLedgerPutAndGet(t *testing.T) {
	ledger := NewLedger(newMemoryStore())
	rater := testAccount("rater-address-000001")
	rated := testAccount("rated-address-000002")

	agg, err := ledger.Put(&Rating{Rater: rater, Rated: rated, BookingID: 7, Score: 4, Comment: "solid work", CreatedAt: 12})
	if err != nil {
		t.Fatalf("put rating: %v", err)
	}
	if agg.TotalScore != 4 || agg.TotalRatings != 1 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
	got, ok, err := ledger.Get(rater, rated, 7)
	if err != nil || !ok {
		t.Fatalf("get rating: ok=%v err=%v", ok, err)
	}
	if got.Score != 4 || got.Comment != "solid work" || got.CreatedAt != 12 {
		t.Fatalf("unexpected rating: %+v", got)
	}
	if _, ok, err := ledger.Get(rated, rater, 7); err != nil || ok {
		t.Fatalf("reversed key must be absent: ok=%v err=%v", ok, err)
	}
}

func TestLedgerValidation(t *testing.T) {
	ledger := NewLedger(newMemoryStore())
	rater := testAccount("rater")
	rated := testAccount("rated")

	cases := []struct {
		name   string
		rating Rating
		want   error
		kind   error
	}{
		{"score zero", Rating{Score: 0, BookingID: 1, Comment: "x"}, ErrInvalidRating, coreerrors.ErrInvalidRating},
		{"score six", Rating{Score: 6, BookingID: 1, Comment: "x"}, ErrInvalidRating, coreerrors.ErrInvalidRating},
		{"booking zero", Rating{Score: 3, BookingID: 0, Comment: "x"}, ErrInvalidBookingID, coreerrors.ErrInvalidInput},
		{"empty comment", Rating{Score: 3, BookingID: 1, Comment: ""}, ErrEmptyComment, coreerrors.ErrInvalidInput},
		{"long comment", Rating{Score: 3, BookingID: 1, Comment: strings.Repeat("c", MaxCommentLength+1)}, ErrCommentLength, coreerrors.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := tc.rating
			r.Rater, r.Rated = rater, rated
			_, err := ledger.Put(&r)
			if !errors.Is(err, tc.want) || !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if _, ok, err := ledger.Aggregate(rated); err != nil || ok {
		t.Fatalf("rejected ratings must not create an aggregate: ok=%v err=%v", ok, err)
	}

	boundary := Rating{Rater: rater, Rated: rated, BookingID: 1, Score: 3, Comment: strings.Repeat("c", MaxCommentLength)}
	agg, err := ledger.Put(&boundary)
	if err != nil {
		t.Fatalf("comment of exactly %d bytes: %v", MaxCommentLength, err)
	}
	if agg.TotalRatings != 1 || agg.TotalScore != 3 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}
}

func TestLedgerAggregateOverflow(t *testing.T) {
	store := newMemoryStore()
	ledger := NewLedger(store)
	rated := testAccount("rated")
	if err := store.KVPut(aggregateKey(rated), &storedAggregate{TotalScore: ^uint64(0) - 2, TotalRatings: 10}); err != nil {
		t.Fatalf("seed aggregate: %v", err)
	}
	_, err := ledger.Put(&Rating{Rater: testAccount("rater"), Rated: rated, BookingID: 1, Score: 5, Comment: "x"})
	if !errors.Is(err, ErrAggregateFull) {
		t.Fatalf("expected overflow rejection, got %v", err)
	}
	agg, _, err := ledger.Aggregate(rated)
	if err != nil || agg.TotalRatings != 10 {
		t.Fatalf("aggregate changed after overflow: %+v %v", agg, err)
	}
}
