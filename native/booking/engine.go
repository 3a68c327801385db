package booking

import (
	"fmt"
	"math"

	"hourbank/core/events"
	"hourbank/core/types"
)

type engineState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var (
	metaKey      = []byte("booking/meta")
	recordPrefix = []byte("booking/record/")
)

func recordKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", recordPrefix, id))
}

// Engine tracks service bookings through their lifecycle:
//
//	Pending --accept(provider)--> Accepted --complete(provider)--> Completed
//	Pending --cancel(requester)--> Cancelled
//
// Completed and Cancelled are terminal.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	heightFn func() uint64
}

// NewEngine creates a booking engine with a no-op emitter and a zero height
// source.
func NewEngine() *Engine {
	return &Engine{
		emitter:  events.NoopEmitter{},
		heightFn: func() uint64 { return 0 },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

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

func (e *Engine) height() uint64 {
	if e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(events.Wrap(evt))
}

func (e *Engine) loadMeta() (*storedMeta, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	var meta storedMeta
	ok, err := e.state.KVGet(metaKey, &meta)
	if err != nil {
		return nil, fmt.Errorf("booking: load meta: %w", err)
	}
	if !ok {
		return nil, errNotInitialized
	}
	return &meta, nil
}

func (e *Engine) storeMeta(meta *storedMeta) error {
	if err := e.state.KVPut(metaKey, meta); err != nil {
		return fmt.Errorf("booking: store meta: %w", err)
	}
	return nil
}

func (e *Engine) load(id uint64) (*Booking, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	if id == 0 {
		return nil, false, nil
	}
	var stored storedBooking
	ok, err := e.state.KVGet(recordKey(id), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("booking: load %d: %w", id, err)
	}
	if !ok {
		return nil, false, nil
	}
	b, err := stored.toBooking()
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (e *Engine) store(b *Booking) error {
	if err := e.state.KVPut(recordKey(b.ID), newStoredBooking(b)); err != nil {
		return fmt.Errorf("booking: store %d: %w", b.ID, err)
	}
	return nil
}

// Initialize records the contract owner and starts the id counter at 1.
func (e *Engine) Initialize(owner [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	ok, err := e.state.KVGet(metaKey, nil)
	if err != nil {
		return fmt.Errorf("booking: load meta: %w", err)
	}
	if ok {
		return errAlreadyInitialized
	}
	return e.storeMeta(&storedMeta{Owner: owner, NextBookingID: 1})
}

// CreateBooking opens a Pending booking with the caller as requester and
// returns its identifier. Ids are allocated sequentially from 1.
func (e *Engine) CreateBooking(caller, provider [20]byte, skillID uint64, description string, credits, deadline uint64) (uint64, error) {
	meta, err := e.loadMeta()
	if err != nil {
		return 0, err
	}
	if credits == 0 {
		return 0, ErrInvalidCredits
	}
	current := e.height()
	if deadline <= current {
		return 0, ErrInvalidDeadline
	}
	if len(description) > MaxDescriptionLength {
		return 0, ErrDescriptionLength
	}
	if meta.NextBookingID == math.MaxUint64 {
		return 0, errCounterExhausted
	}
	b := &Booking{
		ID:          meta.NextBookingID,
		Requester:   caller,
		Provider:    provider,
		SkillID:     skillID,
		Description: description,
		Credits:     credits,
		Deadline:    deadline,
		Status:      StatusPending,
		CreatedAt:   current,
	}
	if err := e.store(b); err != nil {
		return 0, err
	}
	meta.NextBookingID++
	if err := e.storeMeta(meta); err != nil {
		return 0, err
	}
	e.emit(NewCreatedEvent(b))
	return b.ID, nil
}

// transition loads booking id and checks, in order, that it exists, that it is
// in the from status and that caller holds the gating role.
func (e *Engine) transition(caller [20]byte, id uint64, from Status, role func(*Booking) [20]byte) (*Booking, error) {
	b, ok, err := e.load(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if b.Status != from {
		return nil, ErrInvalidState
	}
	if caller != role(b) {
		return nil, ErrUnauthorized
	}
	return b, nil
}

func provider(b *Booking) [20]byte  { return b.Provider }
func requester(b *Booking) [20]byte { return b.Requester }

// AcceptBooking moves a Pending booking to Accepted. Only the provider may
// accept.
func (e *Engine) AcceptBooking(caller [20]byte, id uint64) error {
	b, err := e.transition(caller, id, StatusPending, provider)
	if err != nil {
		return err
	}
	b.Status = StatusAccepted
	if err := e.store(b); err != nil {
		return err
	}
	e.emit(NewAcceptedEvent(b))
	return nil
}

// CompleteBooking moves an Accepted booking to Completed and records the
// completion height and hours worked. Only the provider may complete.
func (e *Engine) CompleteBooking(caller [20]byte, id uint64, hoursWorked uint64) error {
	b, err := e.transition(caller, id, StatusAccepted, provider)
	if err != nil {
		return err
	}
	b.Status = StatusCompleted
	b.Completion = &Completion{At: e.height(), HoursWorked: hoursWorked}
	if err := e.store(b); err != nil {
		return err
	}
	e.emit(NewCompletedEvent(b))
	return nil
}

// CancelBooking moves a Pending booking to Cancelled. Only the requester may
// cancel.
func (e *Engine) CancelBooking(caller [20]byte, id uint64) error {
	b, err := e.transition(caller, id, StatusPending, requester)
	if err != nil {
		return err
	}
	b.Status = StatusCancelled
	if err := e.store(b); err != nil {
		return err
	}
	e.emit(NewCancelledEvent(b))
	return nil
}

// Booking returns the record stored under id. ok is false when it does not
// exist.
func (e *Engine) Booking(id uint64) (*Booking, bool, error) {
	return e.load(id)
}

// BookingStatus returns the status of booking id.
func (e *Engine) BookingStatus(id uint64) (Status, bool, error) {
	b, ok, err := e.load(id)
	if err != nil || !ok {
		return 0, ok, err
	}
	return b.Status, true, nil
}

// NextBookingID returns the identifier the next successful create will use.
// A value of 1 means no bookings exist yet.
func (e *Engine) NextBookingID() (uint64, error) {
	meta, err := e.loadMeta()
	if err != nil {
		return 0, err
	}
	return meta.NextBookingID, nil
}

// Owner returns the contract owner.
func (e *Engine) Owner() ([20]byte, error) {
	meta, err := e.loadMeta()
	if err != nil {
		return [20]byte{}, err
	}
	return meta.Owner, nil
}

// SetOwner reassigns the contract owner. Only the current owner may call it.
func (e *Engine) SetOwner(caller, newOwner [20]byte) error {
	meta, err := e.loadMeta()
	if err != nil {
		return err
	}
	if caller != meta.Owner {
		return ErrUnauthorized
	}
	previous := meta.Owner
	meta.Owner = newOwner
	if err := e.storeMeta(meta); err != nil {
		return err
	}
	e.emit(NewOwnerChangedEvent(previous, newOwner))
	return nil
}
