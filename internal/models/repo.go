package models

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var Validate = validator.New()

const (
	DbName             = "kisan_mitra"
	ServicesCollection = "services"
	BookingsCollection = "bookings"

	// queryTimeout bounds every storage call so an unreachable cluster
	// surfaces as ErrStoreUnavailable instead of a hang.
	queryTimeout = 5 * time.Second
)

// ServiceFilter narrows service listings. Zero values mean "no constraint".
type ServiceFilter struct {
	ServiceType   string
	MinPrice      *float64
	MaxPrice      *float64
	Status        ServiceStatus
	OnlyAvailable bool
	Search        string
	// Geo query: both Latitude and Longitude set, RadiusKm > 0.
	Latitude     *float64
	Longitude    *float64
	RadiusKm     float64
	SortByRating bool
	Page         int
	Limit        int
}

type ServicesRepo interface {
	CreateService(ctx context.Context, service *Service) (*Service, error)
	GetServiceByID(ctx context.Context, id primitive.ObjectID) (*Service, error)
	ListServices(ctx context.Context, filter ServiceFilter) ([]*Service, int, error)
	ListServicesByLaborer(ctx context.Context, laborerID string) ([]*Service, error)
	UpdateService(ctx context.Context, id primitive.ObjectID, update map[string]interface{}) (*Service, error)
	DeleteService(ctx context.Context, id primitive.ObjectID) error
	// AppendReview pushes the review and recomputes the rating in a single
	// atomic update, so concurrent appends never leave the mean stale.
	AppendReview(ctx context.Context, serviceID primitive.ObjectID, review ServiceReview) (*Service, error)
}

type BookingsRepo interface {
	// CreateBooking runs the conflict check and the insert in one Mongo
	// session transaction keyed by (serviceId, bookingDate), and increments
	// the service's totalBookings counter in the same transaction. Returns
	// ErrConflict when an overlapping pending/confirmed booking exists.
	CreateBooking(ctx context.Context, booking *Booking) (*Booking, error)
	GetBookingByID(ctx context.Context, id primitive.ObjectID) (*Booking, error)
	ListBookingsByParticipant(ctx context.Context, userID string, role string, status BookingStatus) ([]*Booking, error)
	// UpdateBookingStatus persists the transition only while the stored
	// status still equals from; a concurrent transition in between surfaces
	// as ErrConflict instead of overwriting it.
	UpdateBookingStatus(ctx context.Context, id primitive.ObjectID, from, to BookingStatus) (*Booking, error)
	SetBookingReview(ctx context.Context, id primitive.ObjectID, review BookingReview) (*Booking, error)
	// ClearBookingReview rolls a review back out when the service-side
	// append fails after SetBookingReview already landed.
	ClearBookingReview(ctx context.Context, id primitive.ObjectID) error
}

// StoreHealth is queried before each orchestrated operation so an unreachable
// store fails fast with 503 instead of mid-operation.
type StoreHealth interface {
	Ping(ctx context.Context) error
}

type MongodbRepo struct {
	client *mongo.Client
}

func MongodbNewRepo(client *mongo.Client) *MongodbRepo {
	return &MongodbRepo{client: client}
}

func (mdb *MongodbRepo) collection(name string) (*mongo.Collection, error) {
	if mdb.client == nil {
		return nil, fmt.Errorf("%w: mongodb client is not initialized", ErrStoreUnavailable)
	}
	return mdb.client.Database(DbName).Collection(name), nil
}

func (mdb *MongodbRepo) Ping(ctx context.Context) error {
	if mdb.client == nil {
		return fmt.Errorf("%w: mongodb client is not initialized", ErrStoreUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := mdb.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
