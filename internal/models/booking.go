package models

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// transitions is the whole legal state machine. Anything not listed here is
// rejected.
var transitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCompleted: {},
	BookingStatusCancelled: {},
}

func ParseBookingStatus(s string) (BookingStatus, error) {
	switch BookingStatus(s) {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCompleted, BookingStatusCancelled:
		return BookingStatus(s), nil
	}
	return "", ValidationError("status must be one of: pending, confirmed, completed, cancelled")
}

// BookingLocation is a point-in-time snapshot, not a live reference to the
// service's location.
type BookingLocation struct {
	Latitude  float64 `bson:"latitude" json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `bson:"longitude" json:"longitude" validate:"gte=-180,lte=180"`
	Address   string  `bson:"address,omitempty" json:"address,omitempty"`
}

type BookingReview struct {
	Rating  int       `bson:"rating" json:"rating" validate:"required,min=1,max=5"`
	Comment string    `bson:"comment,omitempty" json:"comment,omitempty" validate:"max=500"`
	Date    time.Time `bson:"date" json:"date"`
}

type Booking struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ServiceID primitive.ObjectID `bson:"serviceId" json:"serviceId"`
	FarmerID  string             `bson:"farmerId" json:"farmerId"`
	// LaborerID is denormalized from the service at creation time and never
	// changes, even if the service changes hands later.
	LaborerID           string          `bson:"laborerId" json:"laborerId"`
	BookingDate         time.Time       `bson:"bookingDate" json:"bookingDate"`
	StartTime           string          `bson:"startTime" json:"startTime"`
	EndTime             string          `bson:"endTime" json:"endTime"`
	Duration            float64         `bson:"duration" json:"duration"`
	TotalPrice          float64         `bson:"totalPrice" json:"totalPrice"`
	Status              BookingStatus   `bson:"status" json:"status"`
	Location            BookingLocation `bson:"location" json:"location"`
	SpecialInstructions string          `bson:"specialInstructions,omitempty" json:"specialInstructions,omitempty" validate:"max=1000"`
	Review              *BookingReview  `bson:"review,omitempty" json:"review,omitempty"`
	CreatedAt           time.Time       `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time       `bson:"updatedAt" json:"updatedAt"`
}

func (b *Booking) Validate() error {
	if err := Validate.Struct(b); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if b.Duration < 0.5 {
		return ValidationError("duration must be at least 0.5 hours")
	}
	if _, err := ValidateTimeWindow(b.StartTime, b.EndTime); err != nil {
		return err
	}
	return nil
}

// CanBeCancelled reports whether the booking is still in a non-terminal state.
func (b *Booking) CanBeCancelled() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// IsParticipant reports whether the given identity is the booking's farmer or
// laborer. Nobody else may act on a booking.
func (b *Booking) IsParticipant(userID string) bool {
	return b.FarmerID == userID || b.LaborerID == userID
}

// TransitionTo mutates the status after checking the state machine. The error
// names the statuses legal from the current state so callers can surface it
// directly.
func (b *Booking) TransitionTo(next BookingStatus) error {
	legal := transitions[b.Status]
	for _, s := range legal {
		if s == next {
			b.Status = next
			b.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	if len(legal) == 0 {
		return ConflictError("booking is %s; no further transitions are allowed", b.Status)
	}
	names := make([]string, len(legal))
	for i, s := range legal {
		names[i] = string(s)
	}
	return ConflictError("cannot move booking from %s to %s; allowed: %s", b.Status, next, strings.Join(names, ", "))
}

// Overlaps reports whether two half-open [start, end) windows on the same
// date intersect. Times are zero-padded HH:MM so string comparison preserves
// temporal order; the Mongo conflict query relies on the same property.
func (b *Booking) Overlaps(startTime, endTime string) bool {
	return b.StartTime < endTime && b.EndTime > startTime
}

// BlocksSlot reports whether this booking should count against a requested
// slot. Cancelled and completed bookings never block.
func (b *Booking) BlocksSlot() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}
