package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Darshan124-get/kisan--mitra/internal/helpers"
	"github.com/Darshan124-get/kisan--mitra/internal/middleware"
	"github.com/Darshan124-get/kisan--mitra/internal/models"
	"github.com/Darshan124-get/kisan--mitra/internal/services"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type serviceUpdateRequest struct {
	Title          *string                `json:"title"`
	Description    *string                `json:"description"`
	PricePerHour   *float64               `json:"pricePerHour"`
	PricePerDay    *float64               `json:"pricePerDay"`
	Status         *models.ServiceStatus  `json:"status"`
	Location       *models.Location       `json:"location"`
	Availability   *models.Availability   `json:"availability"`
	Specifications *models.Specifications `json:"specifications"`
	Images         []string               `json:"images"`
}

func parseServiceID(c *gin.Context) (primitive.ObjectID, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid service ID format"))
		return primitive.NilObjectID, false
	}
	return id, true
}

// bindServiceCreate accepts either a plain JSON body or a multipart form with
// a "service" JSON field plus "images" file parts. Either way the core only
// ever sees the structured form.
func bindServiceCreate(c *gin.Context) (*models.Service, [][]byte, []string, error) {
	var service models.Service

	contentType := c.GetHeader("Content-Type")
	if !strings.HasPrefix(contentType, "multipart/form-data") {
		if err := c.ShouldBindJSON(&service); err != nil {
			return nil, nil, nil, err
		}
		return &service, nil, nil, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil, nil, err
	}
	payload := c.PostForm("service")
	if payload == "" {
		return nil, nil, nil, models.ValidationError("multipart requests must carry a 'service' JSON field")
	}
	if err := json.Unmarshal([]byte(payload), &service); err != nil {
		return nil, nil, nil, models.ValidationError("invalid service JSON: %v", err)
	}

	var files [][]byte
	var names []string
	for _, fh := range form.File["images"] {
		if fh.Size > helpers.MaxUploadBytes {
			return nil, nil, nil, models.ValidationError("image %s exceeds the %d byte limit", fh.Filename, helpers.MaxUploadBytes)
		}
		f, err := fh.Open()
		if err != nil {
			return nil, nil, nil, err
		}
		data, err := io.ReadAll(io.LimitReader(f, helpers.MaxUploadBytes+1))
		f.Close()
		if err != nil {
			return nil, nil, nil, err
		}
		files = append(files, data)
		names = append(names, fh.Filename)
	}
	return &service, files, names, nil
}

func CreateService(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}

		service, files, names, err := bindServiceCreate(c)
		if err != nil {
			respondError(c, models.ValidationError("%v", err))
			return
		}
		service.Location.Type = "Point"

		created, err := ss.CreateService(c.Request.Context(), service, identity, files, names)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, models.SuccessResponse(gin.H{"service": created}, "Service created successfully"))
	}
}

func parseFloatQuery(c *gin.Context, key string) *float64 {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return page, limit
}

func buildFilter(c *gin.Context) models.ServiceFilter {
	page, limit := parsePagination(c)
	filter := models.ServiceFilter{
		ServiceType: c.Query("serviceType"),
		MinPrice:    parseFloatQuery(c, "minPrice"),
		MaxPrice:    parseFloatQuery(c, "maxPrice"),
		Search:      c.Query("search"),
		Page:        page,
		Limit:       limit,
	}
	if status := c.Query("status"); status != "" {
		filter.Status = models.ServiceStatus(status)
	}
	if c.Query("isAvailable") == "true" {
		filter.OnlyAvailable = true
	}
	lat, lng := parseFloatQuery(c, "latitude"), parseFloatQuery(c, "longitude")
	radius := parseFloatQuery(c, "radius")
	if lat != nil && lng != nil && radius != nil {
		filter.Latitude = lat
		filter.Longitude = lng
		filter.RadiusKm = *radius
	}
	return filter
}

func ListServices(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := buildFilter(c)
		list, total, err := ss.ListServices(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.PaginatedResponse(gin.H{"services": list}, len(list), filter.Page, filter.Limit, total))
	}
}

// SearchServices is the ranked variant of the listing: only active available
// services, free-text query over title, description and skills, sorted by
// rating.
func SearchServices(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter := buildFilter(c)
		filter.Search = c.Query("q")
		filter.OnlyAvailable = true
		filter.SortByRating = true

		list, total, err := ss.ListServices(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.PaginatedResponse(gin.H{"services": list}, len(list), filter.Page, filter.Limit, total))
	}
}

func NearbyServices(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		lat, lng := parseFloatQuery(c, "latitude"), parseFloatQuery(c, "longitude")
		if lat == nil || lng == nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("latitude and longitude are required"))
			return
		}
		radius := 10.0
		if r := parseFloatQuery(c, "radius"); r != nil && *r > 0 {
			radius = *r
		}
		_, limit := parsePagination(c)

		filter := models.ServiceFilter{
			ServiceType:   c.Query("serviceType"),
			OnlyAvailable: true,
			Latitude:      lat,
			Longitude:     lng,
			RadiusKm:      radius,
			Page:          1,
			Limit:         limit,
		}
		list, _, err := ss.ListServices(c.Request.Context(), filter)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ListResponse(gin.H{"services": list}, len(list)))
	}
}

func ListMyServices(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		list, err := ss.ListMyServices(c.Request.Context(), identity)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.ListResponse(gin.H{"services": list}, len(list)))
	}
}

func GetService(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseServiceID(c)
		if !ok {
			return
		}
		service, err := ss.GetServiceByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"service": service}, ""))
	}
}

func UpdateService(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		id, ok := parseServiceID(c)
		if !ok {
			return
		}

		var req serviceUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		updated, err := ss.UpdateService(c.Request.Context(), id, identity, services.ServiceUpdate{
			Title:          req.Title,
			Description:    req.Description,
			PricePerHour:   req.PricePerHour,
			PricePerDay:    req.PricePerDay,
			Status:         req.Status,
			Location:       req.Location,
			Availability:   req.Availability,
			Specifications: req.Specifications,
			Images:         req.Images,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"service": updated}, "Service updated successfully"))
	}
}

func UpdateServiceAvailability(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		id, ok := parseServiceID(c)
		if !ok {
			return
		}

		var availability models.Availability
		if err := c.ShouldBindJSON(&availability); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		updated, err := ss.UpdateAvailability(c.Request.Context(), id, identity, availability)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"service": updated}, "Availability updated successfully"))
	}
}

func UpdateServiceLocation(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		id, ok := parseServiceID(c)
		if !ok {
			return
		}

		var location models.Location
		if err := c.ShouldBindJSON(&location); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		updated, err := ss.UpdateLocation(c.Request.Context(), id, identity, location)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"service": updated}, "Location updated successfully"))
	}
}

func DeleteService(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		id, ok := parseServiceID(c)
		if !ok {
			return
		}

		if err := ss.DeleteService(c.Request.Context(), id, identity); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(nil, "Service deleted successfully"))
	}
}

func UploadServiceImage(ss *services.ServiceService) gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("image")
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("no image file provided"))
			return
		}
		if fh.Size > helpers.MaxUploadBytes {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("image exceeds the 5 MiB limit"))
			return
		}

		f, err := fh.Open()
		if err != nil {
			respondError(c, err)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, helpers.MaxUploadBytes+1))
		if err != nil {
			respondError(c, err)
			return
		}

		url, err := ss.UploadImage(c.Request.Context(), data, fh.Filename)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"imageUrl": url}, ""))
	}
}
