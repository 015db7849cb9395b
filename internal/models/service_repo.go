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

// EnsureServiceIndexes creates the geospatial and compound indexes the
// listing queries depend on. Called once at startup.
func (mdb *MongodbRepo) EnsureServiceIndexes(ctx context.Context) error {
	col, err := mdb.collection(ServicesCollection)
	if err != nil {
		return err
	}
	_, err = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "location", Value: "2dsphere"}}},
		{Keys: bson.D{{Key: "serviceType", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "laborerId", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "availability.isAvailable", Value: 1}, {Key: "status", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create service indexes: %w", err)
	}
	return nil
}

func (mdb *MongodbRepo) CreateService(ctx context.Context, service *Service) (*Service, error) {
	col, err := mdb.collection(ServicesCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if service.ID.IsZero() {
		service.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	service.CreatedAt = now
	service.UpdatedAt = now
	if service.Images == nil {
		service.Images = []string{}
	}
	if service.Reviews == nil {
		service.Reviews = []ServiceReview{}
	}

	if _, err := col.InsertOne(ctx, service); err != nil {
		return nil, fmt.Errorf("failed to insert service: %w", wrapStoreErr(err))
	}
	return service, nil
}

func (mdb *MongodbRepo) GetServiceByID(ctx context.Context, id primitive.ObjectID) (*Service, error) {
	col, err := mdb.collection(ServicesCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var service Service
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&service); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: service %s", ErrNotFound, id.Hex())
		}
		return nil, fmt.Errorf("failed to load service: %w", wrapStoreErr(err))
	}
	return &service, nil
}

func buildServiceQuery(filter ServiceFilter) bson.M {
	query := bson.M{}

	if filter.Status != "" {
		query["status"] = filter.Status
	} else {
		query["status"] = ServiceStatusActive
	}
	if filter.OnlyAvailable {
		query["availability.isAvailable"] = true
	}
	if filter.ServiceType != "" {
		query["serviceType"] = filter.ServiceType
	}
	if filter.MinPrice != nil || filter.MaxPrice != nil {
		price := bson.M{}
		if filter.MinPrice != nil {
			price["$gte"] = *filter.MinPrice
		}
		if filter.MaxPrice != nil {
			price["$lte"] = *filter.MaxPrice
		}
		query["pricePerHour"] = price
	}
	if filter.Search != "" {
		regex := primitive.Regex{Pattern: filter.Search, Options: "i"}
		query["$or"] = bson.A{
			bson.M{"title": regex},
			bson.M{"description": regex},
			bson.M{"specifications.skills": regex},
		}
	}
	if filter.Latitude != nil && filter.Longitude != nil && filter.RadiusKm > 0 {
		query["location"] = bson.M{
			"$near": bson.M{
				"$geometry": bson.M{
					"type":        "Point",
					"coordinates": bson.A{*filter.Longitude, *filter.Latitude},
				},
				"$maxDistance": filter.RadiusKm * 1000,
			},
		}
	}
	return query
}

func (mdb *MongodbRepo) ListServices(ctx context.Context, filter ServiceFilter) ([]*Service, int, error) {
	col, err := mdb.collection(ServicesCollection)
	if err != nil {
		return nil, 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := buildServiceQuery(filter)
	geoQuery := filter.Latitude != nil && filter.Longitude != nil && filter.RadiusKm > 0

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	// $near results come back sorted by distance; adding another sort would
	// discard that ordering.
	if !geoQuery {
		if filter.SortByRating {
			opts.SetSort(bson.D{{Key: "rating", Value: -1}, {Key: "createdAt", Value: -1}})
		} else {
			opts.SetSort(bson.D{{Key: "createdAt", Value: -1}})
		}
	}

	cursor, err := col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list services: %w", wrapStoreErr(err))
	}
	defer cursor.Close(ctx)

	var services []*Service
	if err := cursor.All(ctx, &services); err != nil {
		return nil, 0, fmt.Errorf("failed to decode services: %w", wrapStoreErr(err))
	}

	// CountDocuments rejects $near, so geo listings report only the page size.
	total := len(services)
	if !geoQuery {
		n, err := col.CountDocuments(ctx, query)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to count services: %w", wrapStoreErr(err))
		}
		total = int(n)
	}
	return services, total, nil
}

func (mdb *MongodbRepo) ListServicesByLaborer(ctx context.Context, laborerID string) ([]*Service, error) {
	col, err := mdb.collection(ServicesCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := col.Find(ctx, bson.M{"laborerId": laborerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list laborer services: %w", wrapStoreErr(err))
	}
	defer cursor.Close(ctx)

	var services []*Service
	if err := cursor.All(ctx, &services); err != nil {
		return nil, fmt.Errorf("failed to decode laborer services: %w", wrapStoreErr(err))
	}
	return services, nil
}

func (mdb *MongodbRepo) UpdateService(ctx context.Context, id primitive.ObjectID, update map[string]interface{}) (*Service, error) {
	col, err := mdb.collection(ServicesCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	set := bson.M{"updatedAt": time.Now().UTC()}
	for k, v := range update {
		set[k] = v
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated Service
	err = col.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: service %s", ErrNotFound, id.Hex())
		}
		return nil, fmt.Errorf("failed to update service: %w", wrapStoreErr(err))
	}
	return &updated, nil
}

func (mdb *MongodbRepo) DeleteService(ctx context.Context, id primitive.ObjectID) error {
	col, err := mdb.collection(ServicesCollection)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete service: %w", wrapStoreErr(err))
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: service %s", ErrNotFound, id.Hex())
	}
	return nil
}

// AppendReview pushes the review and recomputes the mean rating in one
// aggregation-pipeline update. Both writes land in the same document update,
// so two concurrent reviews can never leave a stale mean.
func (mdb *MongodbRepo) AppendReview(ctx context.Context, serviceID primitive.ObjectID, review ServiceReview) (*Service, error) {
	col, err := mdb.collection(ServicesCollection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	reviewDoc := bson.D{
		{Key: "farmerId", Value: review.FarmerID},
		{Key: "rating", Value: review.Rating},
		{Key: "comment", Value: review.Comment},
		{Key: "date", Value: review.Date},
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "reviews", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$reviews", bson.A{}}}},
				bson.A{reviewDoc},
			}}}},
		}}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "rating", Value: bson.D{{Key: "$round", Value: bson.A{
				bson.D{{Key: "$avg", Value: "$reviews.rating"}}, 1,
			}}}},
			{Key: "updatedAt", Value: time.Now().UTC()},
		}}},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated Service
	err = col.FindOneAndUpdate(ctx, bson.M{"_id": serviceID}, pipeline, opts).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: service %s", ErrNotFound, serviceID.Hex())
		}
		return nil, fmt.Errorf("failed to append review: %w", wrapStoreErr(err))
	}
	return &updated, nil
}

// wrapStoreErr classifies driver failures that mean the store is unreachable.
func wrapStoreErr(err error) error {
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
