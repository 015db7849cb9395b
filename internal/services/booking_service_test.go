package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Darshan124-get/kisan--mitra/internal/helpers"
	"github.com/Darshan124-get/kisan--mitra/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeServicesRepo struct {
	services map[primitive.ObjectID]*models.Service
}

func newFakeServicesRepo() *fakeServicesRepo {
	return &fakeServicesRepo{services: make(map[primitive.ObjectID]*models.Service)}
}

func (f *fakeServicesRepo) CreateService(_ context.Context, s *models.Service) (*models.Service, error) {
	if s.ID.IsZero() {
		s.ID = primitive.NewObjectID()
	}
	f.services[s.ID] = s
	return s, nil
}

func (f *fakeServicesRepo) GetServiceByID(_ context.Context, id primitive.ObjectID) (*models.Service, error) {
	s, ok := f.services[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (f *fakeServicesRepo) ListServices(_ context.Context, _ models.ServiceFilter) ([]*models.Service, int, error) {
	return nil, 0, nil
}

func (f *fakeServicesRepo) ListServicesByLaborer(_ context.Context, _ string) ([]*models.Service, error) {
	return nil, nil
}

func (f *fakeServicesRepo) UpdateService(_ context.Context, id primitive.ObjectID, _ map[string]interface{}) (*models.Service, error) {
	return f.services[id], nil
}

func (f *fakeServicesRepo) DeleteService(_ context.Context, id primitive.ObjectID) error {
	delete(f.services, id)
	return nil
}

func (f *fakeServicesRepo) AppendReview(_ context.Context, id primitive.ObjectID, review models.ServiceReview) (*models.Service, error) {
	s, ok := f.services[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	s.Reviews = append(s.Reviews, review)
	s.RecomputeRating()
	copied := *s
	return &copied, nil
}

type fakeBookingsRepo struct {
	bookings map[primitive.ObjectID]*models.Booking
	services *fakeServicesRepo
}

func newFakeBookingsRepo(services *fakeServicesRepo) *fakeBookingsRepo {
	return &fakeBookingsRepo{
		bookings: make(map[primitive.ObjectID]*models.Booking),
		services: services,
	}
}

func (f *fakeBookingsRepo) CreateBooking(_ context.Context, b *models.Booking) (*models.Booking, error) {
	for _, existing := range f.bookings {
		if existing.ServiceID == b.ServiceID &&
			existing.BookingDate.Equal(b.BookingDate) &&
			existing.BlocksSlot() &&
			existing.Overlaps(b.StartTime, b.EndTime) {
			return nil, models.ConflictError("service is already booked for this time slot")
		}
	}
	if b.ID.IsZero() {
		b.ID = primitive.NewObjectID()
	}
	f.bookings[b.ID] = b
	if s, ok := f.services.services[b.ServiceID]; ok {
		s.TotalBookings++
	}
	return b, nil
}

func (f *fakeBookingsRepo) GetBookingByID(_ context.Context, id primitive.ObjectID) (*models.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBookingsRepo) ListBookingsByParticipant(_ context.Context, userID, role string, status models.BookingStatus) ([]*models.Booking, error) {
	var out []*models.Booking
	for _, b := range f.bookings {
		mine := b.FarmerID == userID
		if role == "laborer" {
			mine = b.LaborerID == userID
		}
		if mine && (status == "" || b.Status == status) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBookingsRepo) UpdateBookingStatus(_ context.Context, id primitive.ObjectID, from, to models.BookingStatus) (*models.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if b.Status != from {
		return nil, models.ConflictError("booking is no longer %s", from)
	}
	b.Status = to
	copied := *b
	return &copied, nil
}

func (f *fakeBookingsRepo) SetBookingReview(_ context.Context, id primitive.ObjectID, review models.BookingReview) (*models.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if b.Review != nil {
		return nil, models.ConflictError("review already exists for this booking")
	}
	b.Review = &review
	copied := *b
	return &copied, nil
}

func (f *fakeBookingsRepo) ClearBookingReview(_ context.Context, id primitive.ObjectID) error {
	b, ok := f.bookings[id]
	if !ok {
		return models.ErrNotFound
	}
	b.Review = nil
	return nil
}

type okHealth struct{}

func (okHealth) Ping(context.Context) error { return nil }

type downHealth struct{}

func (downHealth) Ping(context.Context) error { return models.ErrStoreUnavailable }

var (
	farmer  = &helpers.Identity{ID: "farmer-1", Role: helpers.RoleFarmer}
	laborer = &helpers.Identity{ID: "laborer-1", Role: helpers.RoleLaborer}
	someone = &helpers.Identity{ID: "stranger-9", Role: helpers.RoleFarmer}

	testMonday = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
)

func testService() *models.Service {
	return &models.Service{
		ID:           primitive.NewObjectID(),
		LaborerID:    laborer.ID,
		ServiceType:  "tractor",
		Title:        "Tractor with driver",
		PricePerHour: 100,
		Location: models.Location{
			Type:        "Point",
			Coordinates: []float64{77.59, 12.97},
			Address:     "Hosur Road",
		},
		Availability: models.Availability{
			IsAvailable: true,
			Schedule: []models.ScheduleEntry{
				{Day: "Monday", StartTime: "09:00", EndTime: "17:00", IsAvailable: true},
			},
		},
		Status: models.ServiceStatusActive,
	}
}

func newTestBookingService(svc *models.Service) (*BookingService, *fakeServicesRepo, *fakeBookingsRepo) {
	servicesRepo := newFakeServicesRepo()
	if svc != nil {
		servicesRepo.services[svc.ID] = svc
	}
	bookingsRepo := newFakeBookingsRepo(servicesRepo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBookingService(bookingsRepo, servicesRepo, okHealth{}, logger), servicesRepo, bookingsRepo
}

func TestCreateBookingHappyPath(t *testing.T) {
	svc := testService()
	bs, servicesRepo, _ := newTestBookingService(svc)

	booking, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID: svc.ID,
		// Afternoon timestamp: only the calendar day should be kept.
		BookingDate: time.Date(2024, 6, 10, 15, 45, 0, 0, time.UTC),
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	if booking.Status != models.BookingStatusPending {
		t.Errorf("new booking status = %s, want pending", booking.Status)
	}
	if booking.TotalPrice != 200 {
		t.Errorf("totalPrice = %v, want 200", booking.TotalPrice)
	}
	if booking.LaborerID != laborer.ID {
		t.Errorf("laborerId = %s, want %s", booking.LaborerID, laborer.ID)
	}
	if !booking.BookingDate.Equal(testMonday) {
		t.Errorf("bookingDate = %v, want %v (time-of-day stripped)", booking.BookingDate, testMonday)
	}
	if booking.Location.Latitude != 12.97 || booking.Location.Longitude != 77.59 || booking.Location.Address != "Hosur Road" {
		t.Errorf("location should snapshot the service location, got %+v", booking.Location)
	}
	if servicesRepo.services[svc.ID].TotalBookings != 1 {
		t.Errorf("totalBookings = %d, want 1", servicesRepo.services[svc.ID].TotalBookings)
	}
}

func TestCreateBookingPriceFrozenAfterServicePriceChange(t *testing.T) {
	svc := testService()
	bs, servicesRepo, _ := newTestBookingService(svc)

	booking, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	servicesRepo.services[svc.ID].PricePerHour = 500

	reloaded, err := bs.GetBooking(context.Background(), farmer, booking.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if reloaded.TotalPrice != 200 {
		t.Errorf("totalPrice after price change = %v, want frozen 200", reloaded.TotalPrice)
	}
}

func TestCreateBookingOutsideScheduleWindow(t *testing.T) {
	svc := testService()
	bs, _, _ := newTestBookingService(svc)

	_, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "08:00",
		EndTime:     "10:00",
		Duration:    2,
	})
	if !errors.Is(err, models.ErrUnavailable) {
		t.Errorf("booking before opening time should be unavailable, got %v", err)
	}
}

func TestCreateBookingConflict(t *testing.T) {
	svc := testService()
	bs, _, _ := newTestBookingService(svc)

	if _, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
	}); err != nil {
		t.Fatalf("first booking failed: %v", err)
	}

	_, err := bs.CreateBooking(context.Background(), someone, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "11:00",
		EndTime:     "13:00",
		Duration:    2,
	})
	if !errors.Is(err, models.ErrConflict) {
		t.Errorf("overlapping booking should conflict, got %v", err)
	}

	// The same window on the following Monday is free.
	if _, err := bs.CreateBooking(context.Background(), someone, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday.AddDate(0, 0, 7),
		StartTime:   "11:00",
		EndTime:     "13:00",
		Duration:    2,
	}); err != nil {
		t.Errorf("same window on another date should not conflict: %v", err)
	}
}

func TestCreateBookingCancelledDoesNotBlock(t *testing.T) {
	svc := testService()
	bs, _, bookingsRepo := newTestBookingService(svc)

	first, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
	})
	if err != nil {
		t.Fatalf("first booking failed: %v", err)
	}
	bookingsRepo.bookings[first.ID].Status = models.BookingStatusCancelled

	if _, err := bs.CreateBooking(context.Background(), someone, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
	}); err != nil {
		t.Errorf("cancelled booking should not block the slot: %v", err)
	}
}

func TestCreateBookingDurationMismatch(t *testing.T) {
	svc := testService()
	bs, _, _ := newTestBookingService(svc)

	_, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    5,
	})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("duration not matching the window should fail validation, got %v", err)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	svc := testService()
	bs, _, _ := newTestBookingService(svc)

	booking, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	// The laborer confirms, the farmer completes.
	confirmed, err := bs.UpdateStatus(context.Background(), laborer, booking.ID, "confirmed")
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if confirmed.Status != models.BookingStatusConfirmed {
		t.Errorf("status = %s, want confirmed", confirmed.Status)
	}

	if _, err := bs.UpdateStatus(context.Background(), farmer, booking.ID, "completed"); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	// Terminal state: cancelling must conflict and leave the status alone.
	if _, err := bs.UpdateStatus(context.Background(), farmer, booking.ID, "cancelled"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("cancelling a completed booking should conflict, got %v", err)
	}
	reloaded, err := bs.GetBooking(context.Background(), farmer, booking.ID)
	if err != nil {
		t.Fatalf("GetBooking failed: %v", err)
	}
	if reloaded.Status != models.BookingStatusCompleted {
		t.Errorf("status after rejected transition = %s, want completed", reloaded.Status)
	}
}

func TestUpdateStatusAuthorization(t *testing.T) {
	svc := testService()
	bs, _, _ := newTestBookingService(svc)

	booking, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	if _, err := bs.UpdateStatus(context.Background(), someone, booking.ID, "confirmed"); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("non-participant transition should be forbidden, got %v", err)
	}

	if _, err := bs.UpdateStatus(context.Background(), farmer, booking.ID, "approved"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("unknown status should fail validation, got %v", err)
	}
}

func TestAttachReview(t *testing.T) {
	svc := testService()
	svc.Reviews = []models.ServiceReview{{FarmerID: "earlier-farmer", Rating: 5}}
	svc.Rating = 5
	bs, _, bookingsRepo := newTestBookingService(svc)

	booking, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}

	// Not completed yet.
	if _, _, err := bs.AttachReview(context.Background(), farmer, booking.ID, 4, "good work"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("review before completion should conflict, got %v", err)
	}

	bookingsRepo.bookings[booking.ID].Status = models.BookingStatusCompleted

	// Only the farmer may review.
	if _, _, err := bs.AttachReview(context.Background(), laborer, booking.ID, 4, ""); !errors.Is(err, models.ErrForbidden) {
		t.Errorf("laborer review should be forbidden, got %v", err)
	}
	if _, _, err := bs.AttachReview(context.Background(), farmer, booking.ID, 6, ""); !errors.Is(err, models.ErrValidation) {
		t.Errorf("rating above 5 should fail validation, got %v", err)
	}

	updatedBooking, updatedService, err := bs.AttachReview(context.Background(), farmer, booking.ID, 4, "good work")
	if err != nil {
		t.Fatalf("AttachReview failed: %v", err)
	}
	if updatedBooking.Review == nil || updatedBooking.Review.Rating != 4 {
		t.Errorf("booking review not recorded: %+v", updatedBooking.Review)
	}
	// Previous rating 5 plus new rating 4.
	if updatedService.Rating != 4.5 {
		t.Errorf("service rating = %v, want 4.5", updatedService.Rating)
	}
	if len(updatedService.Reviews) != 2 {
		t.Errorf("service reviews = %d, want 2", len(updatedService.Reviews))
	}

	// Second review on the same booking.
	if _, _, err := bs.AttachReview(context.Background(), farmer, booking.ID, 5, ""); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate review should conflict, got %v", err)
	}
}

// staleStatusRepo reports an outdated status from reads, standing in for a
// concurrent transition landing between the read and the write.
type staleStatusRepo struct {
	*fakeBookingsRepo
	reads models.BookingStatus
}

func (r *staleStatusRepo) GetBookingByID(ctx context.Context, id primitive.ObjectID) (*models.Booking, error) {
	b, err := r.fakeBookingsRepo.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Status = r.reads
	return b, nil
}

func TestUpdateStatusLostToConcurrentTransition(t *testing.T) {
	svc := testService()
	servicesRepo := newFakeServicesRepo()
	servicesRepo.services[svc.ID] = svc
	inner := newFakeBookingsRepo(servicesRepo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stale := &staleStatusRepo{fakeBookingsRepo: inner, reads: models.BookingStatusConfirmed}
	bs := NewBookingService(stale, servicesRepo, okHealth{}, logger)

	booking := &models.Booking{
		ID:          primitive.NewObjectID(),
		ServiceID:   svc.ID,
		FarmerID:    farmer.ID,
		LaborerID:   laborer.ID,
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
		Status:      models.BookingStatusCompleted,
	}
	inner.bookings[booking.ID] = booking

	// The read says confirmed, so cancelling passes the in-memory check; the
	// store already holds completed, so the conditional write must lose.
	if _, err := bs.UpdateStatus(context.Background(), farmer, booking.ID, "cancelled"); !errors.Is(err, models.ErrConflict) {
		t.Errorf("transition over a stale read should conflict, got %v", err)
	}
	if inner.bookings[booking.ID].Status != models.BookingStatusCompleted {
		t.Errorf("stored status = %s, want completed untouched", inner.bookings[booking.ID].Status)
	}
}

type appendFailServicesRepo struct {
	*fakeServicesRepo
}

func (r *appendFailServicesRepo) AppendReview(context.Context, primitive.ObjectID, models.ServiceReview) (*models.Service, error) {
	return nil, models.ErrStoreUnavailable
}

func TestAttachReviewRolledBackWhenServiceAppendFails(t *testing.T) {
	svc := testService()
	servicesRepo := newFakeServicesRepo()
	servicesRepo.services[svc.ID] = svc
	bookingsRepo := newFakeBookingsRepo(servicesRepo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bs := NewBookingService(bookingsRepo, &appendFailServicesRepo{servicesRepo}, okHealth{}, logger)

	booking, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID:   svc.ID,
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
	})
	if err != nil {
		t.Fatalf("CreateBooking failed: %v", err)
	}
	bookingsRepo.bookings[booking.ID].Status = models.BookingStatusCompleted

	if _, _, err := bs.AttachReview(context.Background(), farmer, booking.ID, 4, "good work"); err == nil {
		t.Fatal("service append failure must surface to the caller")
	}
	if bookingsRepo.bookings[booking.ID].Review != nil {
		t.Error("booking review must be rolled back when the service append fails")
	}

	// With the store healthy again the farmer can retry the same review.
	retry := NewBookingService(bookingsRepo, servicesRepo, okHealth{}, logger)
	updatedBooking, updatedService, err := retry.AttachReview(context.Background(), farmer, booking.ID, 4, "good work")
	if err != nil {
		t.Fatalf("retry after rollback failed: %v", err)
	}
	if updatedBooking.Review == nil {
		t.Error("retry should record the booking review")
	}
	if len(updatedService.Reviews) != 1 {
		t.Errorf("service reviews after retry = %d, want 1", len(updatedService.Reviews))
	}
}

func TestStoreUnavailable(t *testing.T) {
	servicesRepo := newFakeServicesRepo()
	bookingsRepo := newFakeBookingsRepo(servicesRepo)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bs := NewBookingService(bookingsRepo, servicesRepo, downHealth{}, logger)

	_, err := bs.CreateBooking(context.Background(), farmer, CreateBookingInput{
		ServiceID:   primitive.NewObjectID(),
		BookingDate: testMonday,
		StartTime:   "10:00",
		EndTime:     "12:00",
		Duration:    2,
	})
	if !errors.Is(err, models.ErrStoreUnavailable) {
		t.Errorf("operations against a down store should fail fast, got %v", err)
	}
}
