package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Darshan124-get/kisan--mitra/internal/helpers"
	"github.com/Darshan124-get/kisan--mitra/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BookingService orchestrates the booking lifecycle: availability evaluation,
// conflict detection, the status state machine and review attachment. All
// booking and service mutations go through here.
type BookingService struct {
	bookingsRepo models.BookingsRepo
	servicesRepo models.ServicesRepo
	health       models.StoreHealth
	logger       *slog.Logger
}

func NewBookingService(bookingsRepo models.BookingsRepo, servicesRepo models.ServicesRepo, health models.StoreHealth, logger *slog.Logger) *BookingService {
	return &BookingService{
		bookingsRepo: bookingsRepo,
		servicesRepo: servicesRepo,
		health:       health,
		logger:       logger,
	}
}

// CreateBookingInput is the normalized request for a new booking. Location is
// optional; missing coordinates snapshot the service's location.
type CreateBookingInput struct {
	ServiceID           primitive.ObjectID
	BookingDate         time.Time
	StartTime           string
	EndTime             string
	Duration            float64
	Location            *models.BookingLocation
	SpecialInstructions string
}

func (bs *BookingService) CreateBooking(ctx context.Context, caller *helpers.Identity, input CreateBookingInput) (*models.Booking, error) {
	if err := bs.health.Ping(ctx); err != nil {
		return nil, err
	}

	windowMinutes, err := models.ValidateTimeWindow(input.StartTime, input.EndTime)
	if err != nil {
		return nil, err
	}
	if input.Duration < 0.5 {
		return nil, models.ValidationError("duration must be at least 0.5 hours")
	}
	if math.Abs(input.Duration*60-float64(windowMinutes)) > 1 {
		return nil, models.ValidationError("duration does not match the requested time window")
	}

	service, err := bs.servicesRepo.GetServiceByID(ctx, input.ServiceID)
	if err != nil {
		return nil, err
	}

	bookingDate := truncateToDay(input.BookingDate)
	if !service.IsBookableAt(bookingDate, input.StartTime, input.EndTime) {
		return nil, fmt.Errorf("%w: service is not available at the requested date and time", models.ErrUnavailable)
	}

	location := snapshotLocation(input.Location, service)

	booking := &models.Booking{
		ServiceID:           service.ID,
		FarmerID:            caller.ID,
		LaborerID:           service.LaborerID,
		BookingDate:         bookingDate,
		StartTime:           input.StartTime,
		EndTime:             input.EndTime,
		Duration:            input.Duration,
		TotalPrice:          service.PricePerHour * input.Duration,
		Status:              models.BookingStatusPending,
		Location:            location,
		SpecialInstructions: input.SpecialInstructions,
	}
	if err := booking.Validate(); err != nil {
		return nil, err
	}

	// The repo re-checks conflicts and inserts inside one transaction, so
	// two concurrent requests for the same slot cannot both pass.
	created, err := bs.bookingsRepo.CreateBooking(ctx, booking)
	if err != nil {
		return nil, err
	}

	bs.logger.Info("Booking created",
		"booking_id", created.ID.Hex(),
		"service_id", service.ID.Hex(),
		"farmer_id", caller.ID,
		"date", bookingDate.Format("2006-01-02"),
	)
	return created, nil
}

// snapshotLocation freezes the booking's effective location. Partial input
// falls back to the service's coordinates and address field by field.
func snapshotLocation(loc *models.BookingLocation, service *models.Service) models.BookingLocation {
	out := models.BookingLocation{
		Longitude: service.Location.Coordinates[0],
		Latitude:  service.Location.Coordinates[1],
		Address:   service.Location.Address,
	}
	if loc == nil {
		return out
	}
	if loc.Latitude != 0 || loc.Longitude != 0 {
		out.Latitude = loc.Latitude
		out.Longitude = loc.Longitude
	}
	if loc.Address != "" {
		out.Address = loc.Address
	}
	return out
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (bs *BookingService) GetBooking(ctx context.Context, caller *helpers.Identity, id primitive.ObjectID) (*models.Booking, error) {
	if err := bs.health.Ping(ctx); err != nil {
		return nil, err
	}
	booking, err := bs.bookingsRepo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.IsParticipant(caller.ID) {
		return nil, fmt.Errorf("%w: you are not a participant in this booking", models.ErrForbidden)
	}
	return booking, nil
}

func (bs *BookingService) ListMyBookings(ctx context.Context, caller *helpers.Identity, status string) ([]*models.Booking, error) {
	if err := bs.health.Ping(ctx); err != nil {
		return nil, err
	}
	var parsed models.BookingStatus
	if status != "" {
		s, err := models.ParseBookingStatus(status)
		if err != nil {
			return nil, err
		}
		parsed = s
	}
	return bs.bookingsRepo.ListBookingsByParticipant(ctx, caller.ID, caller.Role, parsed)
}

// UpdateStatus applies the state machine: only participants may request a
// transition, and only transitions in the table are persisted.
func (bs *BookingService) UpdateStatus(ctx context.Context, caller *helpers.Identity, id primitive.ObjectID, requested string) (*models.Booking, error) {
	if err := bs.health.Ping(ctx); err != nil {
		return nil, err
	}

	next, err := models.ParseBookingStatus(requested)
	if err != nil {
		return nil, err
	}

	booking, err := bs.bookingsRepo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.IsParticipant(caller.ID) {
		return nil, fmt.Errorf("%w: you are not a participant in this booking", models.ErrForbidden)
	}

	prior := booking.Status
	if err := booking.TransitionTo(next); err != nil {
		return nil, err
	}

	updated, err := bs.bookingsRepo.UpdateBookingStatus(ctx, id, prior, next)
	if err != nil {
		return nil, err
	}

	bs.logger.Info("Booking status updated",
		"booking_id", id.Hex(), "status", next, "by", caller.ID)
	return updated, nil
}

// AttachReview records the review on the booking and appends it to the
// service. The service-side append recomputes the rating atomically.
func (bs *BookingService) AttachReview(ctx context.Context, caller *helpers.Identity, id primitive.ObjectID, rating int, comment string) (*models.Booking, *models.Service, error) {
	if err := bs.health.Ping(ctx); err != nil {
		return nil, nil, err
	}

	if rating < 1 || rating > 5 {
		return nil, nil, models.ValidationError("rating must be between 1 and 5")
	}
	if len(comment) > 500 {
		return nil, nil, models.ValidationError("review comment cannot exceed 500 characters")
	}

	booking, err := bs.bookingsRepo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if booking.FarmerID != caller.ID {
		return nil, nil, fmt.Errorf("%w: you can only review your own bookings", models.ErrForbidden)
	}
	if booking.Status != models.BookingStatusCompleted {
		return nil, nil, models.ConflictError("only completed bookings can be reviewed")
	}
	if booking.Review != nil {
		return nil, nil, models.ConflictError("review already exists for this booking")
	}

	now := time.Now().UTC()
	updatedBooking, err := bs.bookingsRepo.SetBookingReview(ctx, id, models.BookingReview{
		Rating:  rating,
		Comment: comment,
		Date:    now,
	})
	if err != nil {
		return nil, nil, err
	}

	updatedService, err := bs.servicesRepo.AppendReview(ctx, booking.ServiceID, models.ServiceReview{
		FarmerID: caller.ID,
		Rating:   rating,
		Comment:  comment,
		Date:     now,
	})
	if err != nil {
		// The booking review already landed; roll it back so the farmer can
		// retry instead of holding a review the service never aggregated.
		if clearErr := bs.bookingsRepo.ClearBookingReview(ctx, id); clearErr != nil {
			bs.logger.Warn("Failed to roll back booking review after service append failure",
				"booking_id", id.Hex(), "error", clearErr)
		}
		return nil, nil, err
	}

	bs.logger.Info("Review attached",
		"booking_id", id.Hex(),
		"service_id", booking.ServiceID.Hex(),
		"rating", rating,
		"service_rating", updatedService.Rating,
	)
	return updatedBooking, updatedService, nil
}
