package reputation

import (
	"errors"

	coreerrors "hourbank/core/errors"
)

const moduleName = "reputation"

const (
	MinScore = 1
	MaxScore = 5
	// MaxCommentLength bounds a rating comment in bytes.
	MaxCommentLength = 256
)

var (
	ErrInvalidRating    = coreerrors.New(moduleName, 602, coreerrors.ErrInvalidRating, "score must be between 1 and 5")
	ErrInvalidBookingID = coreerrors.New(moduleName, 603, coreerrors.ErrInvalidInput, "booking id must be positive")
	ErrEmptyComment     = coreerrors.New(moduleName, 603, coreerrors.ErrInvalidInput, "comment required")
	ErrCommentLength    = coreerrors.New(moduleName, 603, coreerrors.ErrInvalidInput, "comment too long")
	ErrAggregateFull    = coreerrors.New(moduleName, 603, coreerrors.ErrInvalidInput, "aggregate counters exhausted")
)

var errNilState = errors.New("reputation: storage unavailable")

// Rating is an individual score left by a rater for a rated account in the
// context of a booking.
type Rating struct {
	Rater     [20]byte
	Rated     [20]byte
	BookingID uint64
	Score     uint8
	Comment   string
	CreatedAt uint64
}

// Validate checks the score, booking reference and comment bounds.
func (r *Rating) Validate() error {
	if r == nil {
		return ErrInvalidRating
	}
	if r.Score < MinScore || r.Score > MaxScore {
		return ErrInvalidRating
	}
	if r.BookingID == 0 {
		return ErrInvalidBookingID
	}
	if len(r.Comment) == 0 {
		return ErrEmptyComment
	}
	if len(r.Comment) > MaxCommentLength {
		return ErrCommentLength
	}
	return nil
}

// Aggregate summarises every rating an account has received.
type Aggregate struct {
	Account      [20]byte
	TotalScore   uint64
	TotalRatings uint64
}

// AverageRating returns the truncated mean score, or zero when no ratings
// exist.
func (a *Aggregate) AverageRating() uint64 {
	if a == nil || a.TotalRatings == 0 {
		return 0
	}
	return a.TotalScore / a.TotalRatings
}

type storedRating struct {
	Score     uint8
	Comment   string
	CreatedAt uint64
}

type storedAggregate struct {
	TotalScore   uint64
	TotalRatings uint64
}
