package container

import (
	"log/slog"

	"github.com/Darshan124-get/kisan--mitra/internal/helpers"
	"github.com/Darshan124-get/kisan--mitra/internal/models"
	"github.com/Darshan124-get/kisan--mitra/internal/services"
	"github.com/cloudinary/cloudinary-go/v2"
	"go.mongodb.org/mongo-driver/mongo"
)

// Container holds all application dependencies
type Container struct {
	Logger         *slog.Logger
	Cloudinary     *cloudinary.Cloudinary
	MongoDBClient  *mongo.Client
	TokenVerifier  *helpers.TokenVerifier
	Repo           *models.MongodbRepo
	ServiceService *services.ServiceService
	BookingService *services.BookingService
}

// NewContainer wires repositories into services and exposes them to the
// routing layer.
func NewContainer(
	logger *slog.Logger,
	cld *cloudinary.Cloudinary,
	mongoClient *mongo.Client,
	verifier *helpers.TokenVerifier,
) *Container {
	repo := models.MongodbNewRepo(mongoClient)
	serviceService := services.NewServiceService(repo, repo, cld, logger)
	bookingService := services.NewBookingService(repo, repo, repo, logger)

	return &Container{
		Logger:         logger,
		Cloudinary:     cld,
		MongoDBClient:  mongoClient,
		TokenVerifier:  verifier,
		Repo:           repo,
		ServiceService: serviceService,
		BookingService: bookingService,
	}
}
