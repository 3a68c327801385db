package reputation

import (
	"hourbank/core/events"
	"hourbank/core/types"
)

// Engine wires rating submissions against the ledger abstraction and stamps
// them with the current height.
type Engine struct {
	ledger   *Ledger
	emitter  events.Emitter
	heightFn func() uint64
}

// NewEngine constructs an engine backed by the provided storage backend.
func NewEngine(store storage) *Engine {
	e := &Engine{emitter: events.NoopEmitter{}, heightFn: func() uint64 { return 0 }}
	if store != nil {
		e.ledger = NewLedger(store)
	}
	return e
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetHeightFunc overrides the source of the current height.
func (e *Engine) SetHeightFunc(height func() uint64) {
	if e == nil {
		return
	}
	if height == nil {
		e.heightFn = func() uint64 { return 0 }
		return
	}
	e.heightFn = height
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

// AddRating records a score from caller for rated on bookingID. Neither the
// booking nor the relationship between rater and rated is checked. Scores
// outside [MinScore, MaxScore] fail with ErrInvalidRating, including values
// too wide for the stored byte.
func (e *Engine) AddRating(caller, rated [20]byte, bookingID uint64, score uint64, comment string) error {
	if e == nil || e.ledger == nil {
		return errNilState
	}
	if score < MinScore || score > MaxScore {
		return ErrInvalidRating
	}
	rating := &Rating{
		Rater:     caller,
		Rated:     rated,
		BookingID: bookingID,
		Score:     uint8(score),
		Comment:   comment,
		CreatedAt: e.heightFn(),
	}
	agg, err := e.ledger.Put(rating)
	if err != nil {
		return err
	}
	e.emit(NewRatedEvent(rating, agg))
	return nil
}

// Reputation returns the aggregate for account; ok is false when the account
// has never been rated.
func (e *Engine) Reputation(account [20]byte) (*Aggregate, bool, error) {
	if e == nil || e.ledger == nil {
		return nil, false, errNilState
	}
	agg, ok, err := e.ledger.Aggregate(account)
	if err != nil || !ok {
		return nil, false, err
	}
	return agg, true, nil
}

// Rating returns the individual rating stored under the composite key.
func (e *Engine) Rating(rater, rated [20]byte, bookingID uint64) (*Rating, bool, error) {
	if e == nil || e.ledger == nil {
		return nil, false, errNilState
	}
	return e.ledger.Get(rater, rated, bookingID)
}
