package handlers

import (
	"net/http"
	"time"

	"github.com/Darshan124-get/kisan--mitra/internal/middleware"
	"github.com/Darshan124-get/kisan--mitra/internal/models"
	"github.com/Darshan124-get/kisan--mitra/internal/services"
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type createBookingRequest struct {
	ServiceID           string                  `json:"serviceId" binding:"required"`
	BookingDate         string                  `json:"bookingDate" binding:"required"`
	StartTime           string                  `json:"startTime" binding:"required"`
	EndTime             string                  `json:"endTime" binding:"required"`
	Duration            float64                 `json:"duration" binding:"required"`
	Location            *models.BookingLocation `json:"location"`
	SpecialInstructions string                  `json:"specialInstructions"`
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type attachReviewRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

func parseBookingID(c *gin.Context) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid booking ID format"))
		return primitive.NilObjectID, false
	}
	return id, true
}

func CreateBooking(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}

		var req createBookingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("serviceId, bookingDate, startTime, endTime and duration are required"))
			return
		}

		serviceID, err := primitive.ObjectIDFromHex(req.ServiceID)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("invalid service ID format"))
			return
		}
		bookingDate, err := time.Parse("2006-01-02", req.BookingDate)
		if err != nil {
			// Accept full timestamps too; only the calendar day is kept.
			bookingDate, err = time.Parse(time.RFC3339, req.BookingDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, models.ErrorResponse("bookingDate must be YYYY-MM-DD or RFC3339"))
				return
			}
		}

		booking, err := bs.CreateBooking(c.Request.Context(), identity, services.CreateBookingInput{
			ServiceID:           serviceID,
			BookingDate:         bookingDate,
			StartTime:           req.StartTime,
			EndTime:             req.EndTime,
			Duration:            req.Duration,
			Location:            req.Location,
			SpecialInstructions: req.SpecialInstructions,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, models.SuccessResponse(gin.H{"booking": booking}, "Booking created successfully"))
	}
}

func ListMyBookings(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}

		bookings, err := bs.ListMyBookings(c.Request.Context(), identity, c.Query("status"))
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.ListResponse(gin.H{"bookings": bookings}, len(bookings)))
	}
}

func GetBooking(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		id, ok := parseBookingID(c)
		if !ok {
			return
		}

		booking, err := bs.GetBooking(c.Request.Context(), identity, id)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"booking": booking}, ""))
	}
}

func UpdateBookingStatus(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		id, ok := parseBookingID(c)
		if !ok {
			return
		}

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("status is required"))
			return
		}

		booking, err := bs.UpdateStatus(c.Request.Context(), identity, id, req.Status)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"booking": booking}, "Booking status updated successfully"))
	}
}

func AttachReview(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := middleware.CallerIdentity(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse("unauthorized"))
			return
		}
		id, ok := parseBookingID(c)
		if !ok {
			return
		}

		var req attachReviewRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("rating is required"))
			return
		}

		booking, service, err := bs.AttachReview(c.Request.Context(), identity, id, req.Rating, req.Comment)
		if err != nil {
			respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{"booking": booking, "service": service}, "Review added successfully"))
	}
}
