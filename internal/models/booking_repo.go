package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (mdb *MongodbRepo) EnsureBookingIndexes(ctx context.Context) error {
	col, err := mdb.collection(BookingsCollection)
	if err != nil {
		return err
	}
	_, err = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "farmerId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "laborerId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "serviceId", Value: 1}, {Key: "bookingDate", Value: 1}}},
		{Keys: bson.D{{Key: "bookingDate", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}

// conflictFilter matches any pending or confirmed booking for the same
// service and calendar date whose [startTime, endTime) window intersects the
// requested one. HH:MM strings are zero padded, so the lexicographic
// comparison Mongo performs preserves temporal order.
func conflictFilter(serviceID primitive.ObjectID, date time.Time, startTime, endTime string) bson.M {
	return bson.M{
		"serviceId":   serviceID,
		"bookingDate": date,
		"status":      bson.M{"$in": bson.A{BookingStatusPending, BookingStatusConfirmed}},
		"startTime":   bson.M{"$lt": endTime},
		"endTime":     bson.M{"$gt": startTime},
	}
}

// CreateBooking inserts the booking after re-checking for conflicts inside a
// session transaction, and bumps the service's totalBookings counter in the
// same transaction. Two concurrent requests for overlapping slots serialize
// on the transaction; the loser observes the winner's insert and gets
// ErrConflict.
func (mdb *MongodbRepo) CreateBooking(ctx context.Context, booking *Booking) (*Booking, error) {
	bookings, err := mdb.collection(BookingsCollection)
	if err != nil {
		return nil, err
	}
	services, err := mdb.collection(ServicesCollection)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*queryTimeout)
	defer cancel()

	if booking.ID.IsZero() {
		booking.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	sess, err := mdb.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("could not start mongo session: %w", wrapStoreErr(err))
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		filter := conflictFilter(booking.ServiceID, booking.BookingDate, booking.StartTime, booking.EndTime)
		n, err := bookings.CountDocuments(sc, filter)
		if err != nil {
			return nil, fmt.Errorf("conflict check failed: %w", wrapStoreErr(err))
		}
		if n > 0 {
			return nil, ConflictError("service is already booked for this time slot")
		}

		if _, err := bookings.InsertOne(sc, booking); err != nil {
			return nil, fmt.Errorf("insert booking failed: %w", wrapStoreErr(err))
		}

		if _, err := services.UpdateOne(sc,
			bson.M{"_id": booking.ServiceID},
			bson.M{"$inc": bson.M{"totalBookings": 1}},
		); err != nil {
			return nil, fmt.Errorf("totalBookings increment failed: %w", wrapStoreErr(err))
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (mdb *MongodbRepo) GetBookingByID(ctx context.Context, id primitive.ObjectID) (*Booking, error) {
	col, err := mdb.collection(BookingsCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var booking Booking
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&booking); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id.Hex())
		}
		return nil, fmt.Errorf("failed to load booking: %w", wrapStoreErr(err))
	}
	return &booking, nil
}

func (mdb *MongodbRepo) ListBookingsByParticipant(ctx context.Context, userID string, role string, status BookingStatus) ([]*Booking, error) {
	col, err := mdb.collection(BookingsCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := bson.M{}
	if role == "laborer" {
		query["laborerId"] = userID
	} else {
		query["farmerId"] = userID
	}
	if status != "" {
		query["status"] = status
	}

	opts := options.Find().SetSort(bson.D{{Key: "bookingDate", Value: -1}, {Key: "createdAt", Value: -1}})
	cursor, err := col.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", wrapStoreErr(err))
	}
	defer cursor.Close(ctx)

	var out []*Booking
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode bookings: %w", wrapStoreErr(err))
	}
	return out, nil
}

// UpdateBookingStatus filters on the status the caller read, so the in-memory
// transition check cannot be invalidated by a concurrent write between the
// read and this update.
func (mdb *MongodbRepo) UpdateBookingStatus(ctx context.Context, id primitive.ObjectID, from, to BookingStatus) (*Booking, error) {
	col, err := mdb.collection(BookingsCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated Booking
	err = col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": time.Now().UTC()}},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Bookings are never deleted, so a miss means the status moved.
			return nil, ConflictError("booking is no longer %s", from)
		}
		return nil, fmt.Errorf("failed to update booking status: %w", wrapStoreErr(err))
	}
	return &updated, nil
}

// SetBookingReview attaches the review only when none exists yet; the filter
// makes the at-most-one-review invariant hold even under concurrent requests.
func (mdb *MongodbRepo) SetBookingReview(ctx context.Context, id primitive.ObjectID, review BookingReview) (*Booking, error) {
	col, err := mdb.collection(BookingsCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated Booking
	err = col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "review": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"review": review, "updatedAt": time.Now().UTC()}},
		opts,
	).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ConflictError("review already exists for this booking")
		}
		return nil, fmt.Errorf("failed to set booking review: %w", wrapStoreErr(err))
	}
	return &updated, nil
}

func (mdb *MongodbRepo) ClearBookingReview(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.collection(BookingsCollection)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err = col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$unset": bson.M{"review": ""},
			"$set":   bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to clear booking review: %w", wrapStoreErr(err))
	}
	return nil
}
