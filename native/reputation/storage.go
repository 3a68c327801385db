package reputation

import (
	"fmt"
	"math"
)

// storage abstracts the subset of state manager functionality required by the
// reputation ledger.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	aggregatePrefix = []byte("reputation/aggregate/")
	ratingPrefix    = []byte("reputation/rating/")
)

func aggregateKey(account [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", aggregatePrefix, account))
}

func ratingKey(rater, rated [20]byte, bookingID uint64) []byte {
	return []byte(fmt.Sprintf("%s%x/%x/%d", ratingPrefix, rater, rated, bookingID))
}

// Ledger persists individual ratings and the per-account aggregates derived
// from them.
type Ledger struct {
	store storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store storage) *Ledger {
	return &Ledger{store: store}
}

// Put upserts the rating under (rater, rated, booking) and folds its score into
// the aggregate of the rated account. A rating stored under an existing key
// replaces the record while the aggregate still counts both submissions.
func (l *Ledger) Put(r *Rating) (*Aggregate, error) {
	if l == nil || l.store == nil {
		return nil, errNilState
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	agg, _, err := l.Aggregate(r.Rated)
	if err != nil {
		return nil, err
	}
	if agg.TotalRatings == math.MaxUint64 || agg.TotalScore > math.MaxUint64-uint64(r.Score) {
		return nil, ErrAggregateFull
	}
	agg.TotalScore += uint64(r.Score)
	agg.TotalRatings++

	stored := &storedRating{Score: r.Score, Comment: r.Comment, CreatedAt: r.CreatedAt}
	if err := l.store.KVPut(ratingKey(r.Rater, r.Rated, r.BookingID), stored); err != nil {
		return nil, fmt.Errorf("reputation: store rating: %w", err)
	}
	if err := l.store.KVPut(aggregateKey(r.Rated), &storedAggregate{TotalScore: agg.TotalScore, TotalRatings: agg.TotalRatings}); err != nil {
		return nil, fmt.Errorf("reputation: store aggregate: %w", err)
	}
	return agg, nil
}

// Aggregate returns the summary for account. When no rating exists a zero
// aggregate is returned with ok=false.
func (l *Ledger) Aggregate(account [20]byte) (*Aggregate, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errNilState
	}
	var stored storedAggregate
	ok, err := l.store.KVGet(aggregateKey(account), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("reputation: load aggregate: %w", err)
	}
	return &Aggregate{
		Account:      account,
		TotalScore:   stored.TotalScore,
		TotalRatings: stored.TotalRatings,
	}, ok, nil
}

// Get retrieves the rating left by rater for rated on bookingID.
func (l *Ledger) Get(rater, rated [20]byte, bookingID uint64) (*Rating, bool, error) {
	if l == nil || l.store == nil {
		return nil, false, errNilState
	}
	var stored storedRating
	ok, err := l.store.KVGet(ratingKey(rater, rated, bookingID), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("reputation: load rating: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &Rating{
		Rater:     rater,
		Rated:     rated,
		BookingID: bookingID,
		Score:     stored.Score,
		Comment:   stored.Comment,
		CreatedAt: stored.CreatedAt,
	}, true, nil
}
