package booking

import (
	"errors"
	"fmt"

	coreerrors "hourbank/core/errors"
)

const moduleName = "booking"

// MaxDescriptionLength bounds the free-text description of a booking in bytes.
const MaxDescriptionLength = 500

// Status represents the lifecycle states of a booking.
type Status uint8

const (
	StatusPending   Status = 1
	StatusAccepted  Status = 2
	StatusCompleted Status = 3
	StatusCancelled Status = 4
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition leaves the status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

var (
	ErrUnauthorized      = coreerrors.New(moduleName, 400, coreerrors.ErrUnauthorized, "unauthorized")
	ErrNotFound          = coreerrors.New(moduleName, 401, coreerrors.ErrNotFound, "booking not found")
	ErrInvalidState      = coreerrors.New(moduleName, 402, coreerrors.ErrInvalidState, "invalid booking state")
	ErrInvalidCredits    = coreerrors.New(moduleName, 403, coreerrors.ErrInvalidInput, "credits must be positive")
	ErrInvalidDeadline   = coreerrors.New(moduleName, 403, coreerrors.ErrInvalidInput, "deadline must be after current height")
	ErrDescriptionLength = coreerrors.New(moduleName, 403, coreerrors.ErrInvalidInput, "description too long")
)

var (
	errNilState           = errors.New("booking engine: state not configured")
	errNotInitialized     = errors.New("booking engine: not initialised")
	errAlreadyInitialized = errors.New("booking engine: already initialised")
	errCounterExhausted   = errors.New("booking engine: id counter exhausted")
)

// Completion records how a booking concluded. It is present exactly when the
// booking status is StatusCompleted.
type Completion struct {
	At          uint64
	HoursWorked uint64
}

// Booking captures a single service engagement between a requester and a
// provider.
type Booking struct {
	ID          uint64
	Requester   [20]byte
	Provider    [20]byte
	SkillID     uint64
	Description string
	Credits     uint64
	Deadline    uint64
	Status      Status
	CreatedAt   uint64
	Completion  *Completion
}

// Clone returns a deep copy of the booking so callers can safely mutate the
// copy without affecting the stored instance.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	clone := *b
	if b.Completion != nil {
		completion := *b.Completion
		clone.Completion = &completion
	}
	return &clone
}

// storedBooking is the RLP layout persisted for a booking. The completion
// fields are only meaningful when Status is StatusCompleted.
type storedBooking struct {
	ID          uint64
	Requester   [20]byte
	Provider    [20]byte
	SkillID     uint64
	Description string
	Credits     uint64
	Deadline    uint64
	Status      uint8
	CreatedAt   uint64
	CompletedAt uint64
	HoursWorked uint64
}

func newStoredBooking(b *Booking) *storedBooking {
	stored := &storedBooking{
		ID:          b.ID,
		Requester:   b.Requester,
		Provider:    b.Provider,
		SkillID:     b.SkillID,
		Description: b.Description,
		Credits:     b.Credits,
		Deadline:    b.Deadline,
		Status:      uint8(b.Status),
		CreatedAt:   b.CreatedAt,
	}
	if b.Status == StatusCompleted && b.Completion != nil {
		stored.CompletedAt = b.Completion.At
		stored.HoursWorked = b.Completion.HoursWorked
	}
	return stored
}

func (s *storedBooking) toBooking() (*Booking, error) {
	status := Status(s.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("booking: stored record %d has invalid status %d", s.ID, s.Status)
	}
	b := &Booking{
		ID:          s.ID,
		Requester:   s.Requester,
		Provider:    s.Provider,
		SkillID:     s.SkillID,
		Description: s.Description,
		Credits:     s.Credits,
		Deadline:    s.Deadline,
		Status:      status,
		CreatedAt:   s.CreatedAt,
	}
	if status == StatusCompleted {
		b.Completion = &Completion{At: s.CompletedAt, HoursWorked: s.HoursWorked}
	}
	return b, nil
}

// storedMeta holds the module singletons.
type storedMeta struct {
	Owner         [20]byte
	NextBookingID uint64
}
