package reputation

import (
	"strconv"

	"hourbank/core/types"
	"hourbank/crypto"
)

const (
	// EventTypeRated is emitted when a rating is recorded.
	EventTypeRated = "reputation.rated"
)

// NewRatedEvent returns the canonical event payload for a rating together with
// the updated aggregate of the rated account. The comment is not included.
func NewRatedEvent(r *Rating, agg *Aggregate) *types.Event {
	attrs := make(map[string]string)
	if r == nil {
		return &types.Event{Type: EventTypeRated, Attributes: attrs}
	}
	attrs["rater"] = crypto.FromArray(r.Rater).String()
	attrs["rated"] = crypto.FromArray(r.Rated).String()
	attrs["bookingId"] = strconv.FormatUint(r.BookingID, 10)
	attrs["score"] = strconv.FormatUint(uint64(r.Score), 10)
	if agg != nil {
		attrs["totalScore"] = strconv.FormatUint(agg.TotalScore, 10)
		attrs["totalRatings"] = strconv.FormatUint(agg.TotalRatings, 10)
		attrs["averageRating"] = strconv.FormatUint(agg.AverageRating(), 10)
	}
	return &types.Event{Type: EventTypeRated, Attributes: attrs}
}
