package booking

import (
	"strconv"

	"hourbank/core/types"
	"hourbank/crypto"
)

const (
	EventTypeBookingCreated   = "booking.created"
	EventTypeBookingAccepted  = "booking.accepted"
	EventTypeBookingCompleted = "booking.completed"
	EventTypeBookingCancelled = "booking.cancelled"
	EventTypeOwnerChanged     = "booking.ownerChanged"
)

// NewCreatedEvent returns the canonical event payload for a new booking.
func NewCreatedEvent(b *Booking) *types.Event { return newBookingEvent(EventTypeBookingCreated, b) }

// NewAcceptedEvent returns the payload emitted when the provider accepts.
func NewAcceptedEvent(b *Booking) *types.Event { return newBookingEvent(EventTypeBookingAccepted, b) }

// NewCompletedEvent returns the payload emitted when the provider completes the
// work.
func NewCompletedEvent(b *Booking) *types.Event { return newBookingEvent(EventTypeBookingCompleted, b) }

// NewCancelledEvent returns the payload emitted when the requester cancels.
func NewCancelledEvent(b *Booking) *types.Event { return newBookingEvent(EventTypeBookingCancelled, b) }

func newBookingEvent(eventType string, b *Booking) *types.Event {
	attrs := make(map[string]string)
	if b == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(b.ID, 10)
	attrs["requester"] = crypto.FromArray(b.Requester).String()
	attrs["provider"] = crypto.FromArray(b.Provider).String()
	attrs["skillId"] = strconv.FormatUint(b.SkillID, 10)
	attrs["credits"] = strconv.FormatUint(b.Credits, 10)
	attrs["deadline"] = strconv.FormatUint(b.Deadline, 10)
	attrs["status"] = b.Status.String()
	if b.Completion != nil {
		attrs["completedAt"] = strconv.FormatUint(b.Completion.At, 10)
		attrs["hoursWorked"] = strconv.FormatUint(b.Completion.HoursWorked, 10)
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

// NewOwnerChangedEvent returns the payload emitted when the contract owner
// moves.
func NewOwnerChangedEvent(previous, next [20]byte) *types.Event {
	return &types.Event{Type: EventTypeOwnerChanged, Attributes: map[string]string{
		"previous": crypto.FromArray(previous).String(),
		"owner":    crypto.FromArray(next).String(),
	}}
}
