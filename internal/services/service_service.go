package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Darshan124-get/kisan--mitra/internal/helpers"
	"github.com/Darshan124-get/kisan--mitra/internal/models"
	"github.com/cloudinary/cloudinary-go/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ServiceService owns the listing lifecycle: create, query, mutate, delete.
// Image bytes come in from the boundary already separated from the JSON body.
type ServiceService struct {
	servicesRepo models.ServicesRepo
	health       models.StoreHealth
	cld          *cloudinary.Cloudinary
	logger       *slog.Logger
}

func NewServiceService(servicesRepo models.ServicesRepo, health models.StoreHealth, cld *cloudinary.Cloudinary, logger *slog.Logger) *ServiceService {
	return &ServiceService{
		servicesRepo: servicesRepo,
		health:       health,
		cld:          cld,
		logger:       logger,
	}
}

// ServiceUpdate carries the owner-editable fields. Nil means "leave as is".
type ServiceUpdate struct {
	Title          *string
	Description    *string
	PricePerHour   *float64
	PricePerDay    *float64
	Status         *models.ServiceStatus
	Location       *models.Location
	Availability   *models.Availability
	Specifications *models.Specifications
	Images         []string
}

func (ss *ServiceService) CreateService(ctx context.Context, service *models.Service, owner *helpers.Identity, imageFiles [][]byte, imageNames []string) (*models.Service, error) {
	if err := ss.health.Ping(ctx); err != nil {
		return nil, err
	}

	service.LaborerID = owner.ID
	service.Status = models.ServiceStatusActive
	service.Rating = 0
	service.Reviews = nil
	service.TotalBookings = 0
	service.Sanitize()
	if err := service.Validate(); err != nil {
		return nil, err
	}

	var uploaded []string
	if len(imageFiles) > 0 {
		uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		urls, err := helpers.UploadImages(uploadCtx, ss.cld, imageFiles, imageNames, helpers.ServiceImageFolder)
		if err != nil {
			return nil, fmt.Errorf("failed to upload images: %w", err)
		}
		uploaded = urls
		service.Images = append(service.Images, urls...)
	}

	created, err := ss.servicesRepo.CreateService(ctx, service)
	if err != nil {
		// The record never landed; take the orphaned uploads back out.
		if len(uploaded) > 0 && !helpers.DeleteImages(context.Background(), ss.cld, uploaded) {
			ss.logger.Warn("Failed to clean up uploaded images after create failure", "count", len(uploaded))
		}
		return nil, err
	}
	return created, nil
}

func (ss *ServiceService) GetServiceByID(ctx context.Context, id primitive.ObjectID) (*models.Service, error) {
	if err := ss.health.Ping(ctx); err != nil {
		return nil, err
	}
	return ss.servicesRepo.GetServiceByID(ctx, id)
}

func (ss *ServiceService) ListServices(ctx context.Context, filter models.ServiceFilter) ([]*models.Service, int, error) {
	if err := ss.health.Ping(ctx); err != nil {
		return nil, 0, err
	}
	return ss.servicesRepo.ListServices(ctx, filter)
}

func (ss *ServiceService) ListMyServices(ctx context.Context, owner *helpers.Identity) ([]*models.Service, error) {
	if err := ss.health.Ping(ctx); err != nil {
		return nil, err
	}
	return ss.servicesRepo.ListServicesByLaborer(ctx, owner.ID)
}

func (ss *ServiceService) requireOwner(ctx context.Context, id primitive.ObjectID, caller *helpers.Identity) (*models.Service, error) {
	service, err := ss.servicesRepo.GetServiceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if service.LaborerID != caller.ID && !caller.IsAdmin() {
		return nil, fmt.Errorf("%w: only the service owner may modify this service", models.ErrForbidden)
	}
	return service, nil
}

func (ss *ServiceService) UpdateService(ctx context.Context, id primitive.ObjectID, caller *helpers.Identity, update ServiceUpdate) (*models.Service, error) {
	if err := ss.health.Ping(ctx); err != nil {
		return nil, err
	}
	if _, err := ss.requireOwner(ctx, id, caller); err != nil {
		return nil, err
	}

	set := map[string]interface{}{}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.PricePerHour != nil {
		if *update.PricePerHour < 0 {
			return nil, models.ValidationError("pricePerHour cannot be negative")
		}
		set["pricePerHour"] = *update.PricePerHour
	}
	if update.PricePerDay != nil {
		if *update.PricePerDay < 0 {
			return nil, models.ValidationError("pricePerDay cannot be negative")
		}
		set["pricePerDay"] = *update.PricePerDay
	}
	if update.Status != nil {
		switch *update.Status {
		case models.ServiceStatusActive, models.ServiceStatusInactive, models.ServiceStatusPending:
		default:
			return nil, models.ValidationError("status must be one of: active, inactive, pending")
		}
		set["status"] = *update.Status
	}
	if update.Location != nil {
		if err := update.Location.Validate(); err != nil {
			return nil, err
		}
		update.Location.Type = "Point"
		set["location"] = *update.Location
	}
	if update.Availability != nil {
		if err := update.Availability.Validate(); err != nil {
			return nil, err
		}
		set["availability"] = *update.Availability
	}
	if update.Specifications != nil {
		set["specifications"] = *update.Specifications
	}
	if update.Images != nil {
		set["images"] = update.Images
	}
	if len(set) == 0 {
		return nil, models.ValidationError("no fields to update")
	}

	return ss.servicesRepo.UpdateService(ctx, id, set)
}

func (ss *ServiceService) UpdateAvailability(ctx context.Context, id primitive.ObjectID, caller *helpers.Identity, availability models.Availability) (*models.Service, error) {
	return ss.UpdateService(ctx, id, caller, ServiceUpdate{Availability: &availability})
}

func (ss *ServiceService) UpdateLocation(ctx context.Context, id primitive.ObjectID, caller *helpers.Identity, location models.Location) (*models.Service, error) {
	return ss.UpdateService(ctx, id, caller, ServiceUpdate{Location: &location})
}

// DeleteService removes the record first, then cleans the images out of the
// blob store. Cleanup failures are logged, never surfaced: the deletion
// already succeeded at the record level.
func (ss *ServiceService) DeleteService(ctx context.Context, id primitive.ObjectID, caller *helpers.Identity) error {
	if err := ss.health.Ping(ctx); err != nil {
		return err
	}
	service, err := ss.requireOwner(ctx, id, caller)
	if err != nil {
		return err
	}

	if err := ss.servicesRepo.DeleteService(ctx, id); err != nil {
		return err
	}

	if len(service.Images) > 0 && !helpers.DeleteImages(ctx, ss.cld, service.Images) {
		ss.logger.Warn("Some service images could not be deleted from blob store",
			"service_id", id.Hex(), "image_count", len(service.Images))
	}
	return nil
}

func (ss *ServiceService) UploadImage(ctx context.Context, data []byte, name string) (string, error) {
	// Policy violations are the caller's fault; blob store failures are not.
	if err := helpers.ValidateImagePayload(data); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrValidation, err)
	}
	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return helpers.UploadImage(uploadCtx, ss.cld, data, name, helpers.ServiceImageFolder)
}
